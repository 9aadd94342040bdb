package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"segmentline/internal/domain"
	"segmentline/internal/selection"
)

const successMessage = "segment saved & sent to server"

// Session is the single live compose draft plus its submission status.
// Intents are serialized; the lock is released while a payload is in flight.
type Session struct {
	engine Engine

	mu       sync.Mutex
	open     bool
	gen      uint64
	draft    selection.Draft
	status   domain.SubmissionStatus
	inFlight bool
	// edited is set when the draft changes while a payload is in flight
	edited   bool
	result   *domain.SubmissionResult
}

// Open starts a fresh draft with an empty name and one empty slot.
func (s *Session) Open() domain.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	s.gen++
	s.draft = selection.NewDraft()
	s.clearOutcome()
	s.engine.Metrics.Intent("open", nil)
	s.engine.log().Debug("compose opened")
	return s.viewLocked()
}

// Close discards the draft and any result.
func (s *Session) Close() domain.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	s.gen++
	s.draft = selection.Draft{}
	s.clearOutcome()
	s.engine.Metrics.Intent("close", nil)
	s.engine.log().Debug("compose closed")
	return s.viewLocked()
}

// Dismiss returns a finished submission status to idle.
func (s *Session) Dismiss() domain.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		s.clearOutcome()
	}
	s.engine.Metrics.Intent("dismiss", nil)
	return s.viewLocked()
}

func (s *Session) SetName(name string) (domain.View, error) {
	return s.mutate("set_name", func() error {
		s.draft.Name = name
		return nil
	})
}

// SetSlot selects value (or selection.Empty) in slot index. Values that the
// slot does not currently offer are rejected.
func (s *Session) SetSlot(index int, value string) (domain.View, error) {
	return s.mutate("set_slot", func() error {
		slots := s.draft.Slots.Slots()
		available, err := AvailableFor(s.engine.Catalog, slots, index)
		if err != nil {
			return err
		}
		if value != selection.Empty && !containsValue(available, value) {
			if !s.engine.Catalog.Contains(value) {
				return ValidationError{Reason: fmt.Sprintf("unknown schema %s", value)}
			}
			return ValidationError{Reason: fmt.Sprintf("schema %s is already selected in another slot", value)}
		}
		return s.draft.Slots.Set(index, value)
	})
}

func (s *Session) AddSlot() (domain.View, error) {
	return s.mutate("add_slot", func() error {
		s.draft.Slots.Append()
		return nil
	})
}

func (s *Session) RemoveSlot(index int) (domain.View, error) {
	return s.mutate("remove_slot", func() error {
		return s.draft.Slots.Remove(index)
	})
}

// Submit validates the draft, sends its projection once and records the
// outcome. A second call while one is in flight fails with ErrBusy.
func (s *Session) Submit(ctx context.Context) (domain.View, error) {
	s.mu.Lock()
	if !s.open {
		view := s.viewLocked()
		s.mu.Unlock()
		return view, ErrClosed
	}
	if s.inFlight {
		view := s.viewLocked()
		s.mu.Unlock()
		s.engine.Metrics.Submission("busy")
		return view, ErrBusy
	}
	s.status = domain.StatusValidating
	snapshot := s.draft.Clone()
	if err := Validate(snapshot); err != nil {
		var ve ValidationError
		errors.As(err, &ve)
		s.status = domain.StatusFailed
		s.result = &domain.SubmissionResult{Outcome: domain.OutcomeError, Message: ve.UserMessage()}
		view := s.viewLocked()
		s.mu.Unlock()
		s.engine.Metrics.Submission("validation_error")
		s.engine.log().Info("submission rejected", "reason", ve.Reason)
		return view, err
	}
	payload := Project(s.engine.Catalog, snapshot)
	s.status = domain.StatusSending
	s.inFlight = true
	s.edited = false
	s.result = nil
	gen := s.gen
	s.mu.Unlock()

	started := s.engine.now()
	deliveryID, sendErr := s.send(ctx, payload)
	elapsed := s.engine.now().Sub(started)
	s.engine.Metrics.ObserveSend(elapsed)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	// a close, reopen or edit during the send supersedes its outcome
	stale := gen != s.gen || s.edited
	s.edited = false
	if sendErr != nil {
		serr := newSubmissionError(sendErr)
		s.engine.Metrics.Submission("submission_error")
		s.engine.log().Warn("submission failed",
			"segment", payload.SegmentName,
			"delivery", deliveryID,
			"status", serr.StatusCode,
			"error", sendErr)
		if stale {
			s.status = domain.StatusIdle
		} else {
			s.status = domain.StatusFailed
			s.result = &domain.SubmissionResult{Outcome: domain.OutcomeError, Message: "failed to send: " + serr.Detail()}
		}
		return s.viewLocked(), serr
	}
	s.engine.Metrics.Submission("success")
	s.engine.log().Info("segment submitted",
		"segment", payload.SegmentName,
		"schemas", len(payload.Schema),
		"delivery", deliveryID,
		"elapsed", elapsed)
	if stale {
		s.status = domain.StatusIdle
	} else {
		s.status = domain.StatusSucceeded
		s.result = &domain.SubmissionResult{Outcome: domain.OutcomeSuccess, Message: successMessage}
	}
	return s.viewLocked(), nil
}

func (s *Session) send(ctx context.Context, payload domain.Payload) (string, error) {
	if s.engine.Sender == nil {
		return "", errors.New("no collector configured")
	}
	return s.engine.Sender.Send(ctx, payload)
}

// Busy reports whether a submission is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// View returns the current draft with its derived availability and preview.
func (s *Session) View() domain.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) mutate(intent string, apply func() error) (domain.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		s.engine.Metrics.Intent(intent, ErrClosed)
		return s.viewLocked(), ErrClosed
	}
	err := apply()
	s.engine.Metrics.Intent(intent, err)
	if err != nil {
		s.engine.log().Debug("intent rejected", "intent", intent, "error", err)
		return s.viewLocked(), err
	}
	if s.inFlight {
		s.edited = true
	}
	if s.status.Terminal() {
		s.clearOutcome()
	}
	s.engine.log().Debug("intent applied", "intent", intent, "slots", strings.Join(s.draft.Slots.Slots(), ","))
	return s.viewLocked(), nil
}

func (s *Session) clearOutcome() {
	s.result = nil
	if !s.inFlight {
		s.status = domain.StatusIdle
	}
}

func (s *Session) viewLocked() domain.View {
	view := domain.View{
		Open:         s.open,
		Name:         s.draft.Name,
		Slots:        []string{},
		Availability: [][]domain.CatalogEntry{},
		Preview:      domain.Payload{Schema: []domain.SchemaEntry{}},
		Status:       s.status,
		Busy:         s.inFlight,
	}
	if s.result != nil {
		r := *s.result
		view.Result = &r
	}
	if !s.open || s.draft.Slots == nil {
		return view
	}
	derived := DeriveView(s.engine.Catalog, s.draft)
	view.Slots = s.draft.Slots.Slots()
	view.Availability = derived.Availability
	view.Preview = derived.Preview
	return view
}

func containsValue(entries []domain.CatalogEntry, value string) bool {
	for _, e := range entries {
		if e.Value == value {
			return true
		}
	}
	return false
}
