package engine

import (
	"context"
	"log/slog"
	"time"

	"segmentline/internal/catalog"
	"segmentline/internal/domain"
	"segmentline/internal/logging"
	"segmentline/internal/metrics"
)

// Sender delivers a payload to the collector and returns a delivery id.
type Sender interface {
	Send(ctx context.Context, payload domain.Payload) (string, error)
}

type Engine struct {
	Catalog catalog.Catalog
	Sender  Sender
	Metrics *metrics.Recorder
	Log     *slog.Logger
	Now     func() time.Time
}

func New(cat catalog.Catalog, sender Sender) Engine {
	return Engine{
		Catalog: cat,
		Sender:  sender,
		Log:     logging.NewNop(),
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return logging.NewNop()
}

// NewSession returns a closed compose session bound to this engine.
func (e Engine) NewSession() *Session {
	return &Session{engine: e, status: domain.StatusIdle}
}
