// Package capture runs the listening loop: it owns the microphone for one
// session and dispatches every captured utterance for recognition.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/dictat/internal/audio"
	"golang.org/x/sync/semaphore"
)

// Dispatcher accepts utterances without blocking.
type Dispatcher interface {
	Submit(audio.Utterance)
}

type Config struct {
	OnsetTimeout    time.Duration
	PhraseTimeLimit time.Duration
}

type Options struct {
	Config     Config
	Open       audio.Opener
	Dispatcher Dispatcher
	// Language is read once per captured utterance.
	Language func() string
	// Mic serializes microphone ownership across sessions. Nil means no
	// exclusivity is enforced.
	Mic       *semaphore.Weighted
	SessionID string
	Logger    *slog.Logger
}

// Loop is a single listening session's capture goroutine body.
type Loop struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

func NewLoop(opts Options) *Loop {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		opts:   opts,
		logger: logger.With(slog.String("component", "capture"), slog.String("session_id", opts.SessionID)),
		now:    time.Now,
	}
}

// Run captures until ctx is cancelled. Cancellation is observed between
// Listen calls, so an utterance being captured when ctx ends is still
// dispatched. A nil return means the loop was asked to stop; any error is a
// fatal capture failure.
func (l *Loop) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("capture loop panic: %v", r)
			l.logger.Error("capture loop panicked", slog.Any("panic", r))
		}
	}()

	if l.opts.Mic != nil {
		if err := l.opts.Mic.Acquire(ctx, 1); err != nil {
			return nil
		}
		defer l.opts.Mic.Release(1)
	}

	mic, err := l.opts.Open()
	if err != nil {
		return &audio.CaptureError{Op: "open", Err: err}
	}
	defer func() {
		if cerr := mic.Close(); cerr != nil {
			l.logger.Warn("microphone close failed", slogError(cerr))
		}
	}()

	if err := mic.Calibrate(l.opts.Config.OnsetTimeout); err != nil {
		return wrapCapture("calibrate", err)
	}
	l.logger.Info("capture started")

	seq := 0
	for ctx.Err() == nil {
		utt, err := mic.Listen(l.opts.Config.OnsetTimeout, l.opts.Config.PhraseTimeLimit)
		if errors.Is(err, audio.ErrNoSpeech) {
			continue
		}
		if err != nil {
			l.logger.Error("capture failed", slogError(err))
			return wrapCapture("listen", err)
		}
		seq++
		utt.SessionID = l.opts.SessionID
		utt.Sequence = seq
		utt.Language = l.language()
		if utt.CapturedAt.IsZero() {
			utt.CapturedAt = l.now()
		}
		l.logger.Debug("utterance captured",
			slog.Int("sequence", seq),
			slog.String("language", utt.Language),
			slog.Duration("duration", utt.Duration))
		l.opts.Dispatcher.Submit(utt)
	}
	l.logger.Info("capture stopped", slog.Int("utterances", seq))
	return nil
}

func (l *Loop) language() string {
	if l.opts.Language == nil {
		return ""
	}
	return l.opts.Language()
}

func wrapCapture(op string, err error) error {
	var capErr *audio.CaptureError
	if errors.As(err, &capErr) {
		return err
	}
	return &audio.CaptureError{Op: op, Err: err}
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
