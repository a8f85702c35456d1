// Package relay mirrors the view onto the bus and turns inbound control
// messages into user events.
package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loqalabs/dictat/internal/bus"
	"github.com/loqalabs/dictat/internal/protocol"
	"github.com/loqalabs/dictat/internal/session"
	"github.com/loqalabs/dictat/internal/ui"
	"github.com/nats-io/nats.go"
)

// Relay implements ui.View by publishing to NATS.
type Relay struct {
	client *bus.Client
	logger *slog.Logger
	sub    *nats.Subscription
	now    func() time.Time
}

func New(client *bus.Client, logger *slog.Logger) *Relay {
	return &Relay{
		client: client,
		logger: logger.With(slog.String("component", "relay")),
		now:    time.Now,
	}
}

func (r *Relay) SetStatus(status string) {
	r.publish(protocol.SubjectStatus, protocol.Status{Status: status, Timestamp: r.now().UTC()})
}

func (r *Relay) AppendTranscript(fragment string) {
	r.publish(protocol.SubjectTranscriptAppend, protocol.TranscriptAppend{Text: fragment, Timestamp: r.now().UTC()})
}

func (r *Relay) ClearTranscript() {
	r.publish(protocol.SubjectTranscriptClear, protocol.TranscriptClear{Timestamp: r.now().UTC()})
}

// PublishState announces a listening transition.
func (r *Relay) PublishState(t session.Transition) {
	msg := protocol.SessionState{
		SessionID: t.SessionID,
		State:     t.State.String(),
		Language:  t.Language,
		Timestamp: t.At.UTC(),
	}
	if t.Err != nil {
		msg.Error = t.Err.Error()
	}
	r.publish(protocol.SubjectSessionState, msg)
}

// Listen subscribes to control messages and posts the matching events.
func (r *Relay) Listen(post func(ui.Event)) error {
	sub, err := r.client.Subscribe(protocol.SubjectControl, func(msg *nats.Msg) {
		var ctl protocol.Control
		if err := json.Unmarshal(msg.Data, &ctl); err != nil {
			r.logger.Warn("invalid control message", slog.String("error", err.Error()))
			return
		}
		evt, err := EventFromControl(ctl)
		if err != nil {
			r.logger.Warn("rejected control message", slog.String("action", ctl.Action), slog.String("error", err.Error()))
			return
		}
		post(evt)
	})
	if err != nil {
		return err
	}
	r.sub = sub
	r.logger.Info("listening for control messages", slog.String("subject", protocol.SubjectControl))
	return nil
}

func (r *Relay) Close() {
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
		r.sub = nil
	}
}

// EventFromControl maps a control message onto a user event.
func EventFromControl(ctl protocol.Control) (ui.Event, error) {
	switch strings.ToLower(ctl.Action) {
	case protocol.ActionToggle:
		return ui.Event{Kind: ui.EventMicToggle}, nil
	case protocol.ActionLang:
		if strings.TrimSpace(ctl.Value) == "" {
			return ui.Event{}, fmt.Errorf("lang requires a value")
		}
		return ui.Event{Kind: ui.EventLanguageChange, Value: ctl.Value}, nil
	case protocol.ActionClear:
		return ui.Event{Kind: ui.EventClear}, nil
	case protocol.ActionSave:
		return ui.Event{Kind: ui.EventSave, Value: ctl.Value}, nil
	default:
		return ui.Event{}, fmt.Errorf("unknown action %q", ctl.Action)
	}
}

func (r *Relay) publish(subject string, v any) {
	if err := r.client.PublishJSON(subject, v); err != nil {
		r.logger.Warn("publish failed", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}
