package app

import (
	"fmt"
	"log/slog"
	"strings"

	"segmentline/internal/collector"
	"segmentline/internal/config"
	"segmentline/internal/engine"
	"segmentline/internal/metrics"
)

// Overrides are values taken from flags or the environment. Empty fields
// leave the file value untouched.
type Overrides struct {
	ConfigFile     string
	CollectorURL   string
	TimeoutSeconds int
	LogLevel       string
}

// ResolveConfig loads the workspace config, or an explicit file when given,
// falling back to the built-in default, then applies overrides.
func ResolveConfig(workspace string, o Overrides) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.ConfigFile != "" {
		cfg, err = config.FromFile(o.ConfigFile)
	} else {
		cfg, err = config.LoadOptional(workspace)
	}
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if v := strings.TrimSpace(o.CollectorURL); v != "" {
		cfg.Collector.URL = v
	}
	if o.TimeoutSeconds > 0 {
		cfg.Collector.TimeoutSeconds = o.TimeoutSeconds
	}
	if v := strings.TrimSpace(o.LogLevel); v != "" {
		cfg.Log.Level = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BuildEngine wires the catalog and collector client from cfg.
func BuildEngine(cfg *config.Config, log *slog.Logger, rec *metrics.Recorder) (engine.Engine, error) {
	cat, err := cfg.BuildCatalog()
	if err != nil {
		return engine.Engine{}, fmt.Errorf("build catalog: %w", err)
	}
	e := engine.New(cat, collector.New(cfg.Collector.URL, cfg.Timeout()))
	if log != nil {
		e.Log = log
	}
	e.Metrics = rec
	return e, nil
}
