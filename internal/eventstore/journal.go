package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/loqalabs/dictat/internal/recognition"
	"github.com/loqalabs/dictat/internal/session"
)

const (
	EventSessionStarted = "session.started"
	EventSessionStopped = "session.stopped"
	EventSessionFailed  = "session.failed"
	EventResult         = "recognition.result"
)

// Journal records sessions and their results into a Store.
type Journal struct {
	store *Store
	log   *slog.Logger
}

func NewJournal(store *Store, log *slog.Logger) *Journal {
	return &Journal{store: store, log: log.With(slog.String("component", "journal"))}
}

// RecordResult stores a delivered recognition result.
func (j *Journal) RecordResult(ctx context.Context, res recognition.Result) error {
	if res.SessionID == "" {
		return nil
	}
	if err := j.store.AppendSession(ctx, res.SessionID, res.Language); err != nil {
		return fmt.Errorf("append session: %w", err)
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return j.store.AppendEvent(ctx, Event{
		SessionID: res.SessionID,
		Sequence:  res.Sequence,
		Type:      EventResult,
		Outcome:   res.Outcome.String(),
		Payload:   payload,
		CreatedAt: res.CompletedAt.UTC(),
	})
}

// RecordTransition stores a listening state change. It has the shape of a
// session observer and logs instead of returning errors.
func (j *Journal) RecordTransition(t session.Transition) {
	ctx := context.Background()
	if err := j.recordTransition(ctx, t); err != nil {
		j.log.Warn("journal transition failed",
			slog.String("session_id", t.SessionID),
			slog.String("error", err.Error()))
	}
}

func (j *Journal) recordTransition(ctx context.Context, t session.Transition) error {
	if err := j.store.AppendSession(ctx, t.SessionID, t.Language); err != nil {
		return err
	}
	evt := Event{SessionID: t.SessionID, CreatedAt: t.At.UTC()}
	var errMsg string
	switch {
	case t.State == session.Listening:
		evt.Type = EventSessionStarted
	case t.Err != nil:
		evt.Type = EventSessionFailed
		errMsg = t.Err.Error()
		evt.Payload = []byte(errMsg)
	default:
		evt.Type = EventSessionStopped
	}
	if err := j.store.AppendEvent(ctx, evt); err != nil {
		return err
	}
	if t.State == session.Idle {
		return j.store.EndSession(ctx, t.SessionID, errMsg)
	}
	return nil
}
