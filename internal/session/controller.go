// Package session implements the start/stop lifecycle of listening sessions.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/dictat/internal/audio"
	"github.com/loqalabs/dictat/internal/capture"
	"github.com/loqalabs/dictat/internal/language"
	"golang.org/x/sync/semaphore"
)

type State int

const (
	Idle State = iota
	Listening
)

func (s State) String() string {
	if s == Listening {
		return "listening"
	}
	return "idle"
}

// Transition describes a state change. Err is set when a session ended
// because its capture loop failed.
type Transition struct {
	SessionID string
	State     State
	Language  string
	Err       error
	At        time.Time
}

type Options struct {
	Capture     capture.Config
	JoinTimeout time.Duration
	Open        audio.Opener
	Dispatcher  capture.Dispatcher
	// Language is the initial recognition language code.
	Language      string
	DefaultStatus string
	// Status receives user-facing status lines from any goroutine.
	Status func(string)
	// Observer is told about every transition.
	Observer func(Transition)
	Logger   *slog.Logger
}

type activeSession struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// Controller owns at most one listening session at a time.
type Controller struct {
	opts   Options
	logger *slog.Logger
	mic    *semaphore.Weighted

	// lifecycle serializes Start and Stop.
	lifecycle sync.Mutex

	mu       sync.Mutex
	state    State
	language string
	active   *activeSession
}

func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Status == nil {
		opts.Status = func(string) {}
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = time.Second
	}
	return &Controller{
		opts:     opts,
		logger:   logger.With(slog.String("component", "session")),
		mic:      semaphore.NewWeighted(1),
		language: opts.Language,
	}
}

// Start begins a listening session. It returns false if one is already
// running.
func (c *Controller) Start() bool {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if c.state == Listening {
		c.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	sess := &activeSession{id: uuid.NewString(), cancel: cancel, done: make(chan struct{})}
	c.state = Listening
	c.active = sess
	lang := c.language
	c.mu.Unlock()

	loop := capture.NewLoop(capture.Options{
		Config:     c.opts.Capture,
		Open:       c.opts.Open,
		Dispatcher: c.opts.Dispatcher,
		Language:   c.Language,
		Mic:        c.mic,
		SessionID:  sess.id,
		Logger:     c.opts.Logger,
	})

	// Announce before the loop runs so a loop that fails at once reports
	// its Idle transition last.
	c.logger.Info("session started", slog.String("session_id", sess.id), slog.String("language", lang))
	c.opts.Status(fmt.Sprintf("Listening [%s]", language.Name(lang)))
	c.notify(Transition{SessionID: sess.id, State: Listening, Language: lang})

	go func() {
		err := loop.Run(ctx)
		close(sess.done)
		c.loopExited(sess, err)
	}()
	return true
}

// Stop ends the current session. It waits up to JoinTimeout for the capture
// loop to exit and then reports Idle either way. It returns false if nothing
// was listening.
func (c *Controller) Stop() bool {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	sess := c.active
	if c.state != Listening || sess == nil {
		c.mu.Unlock()
		return false
	}
	c.active = nil
	lang := c.language
	c.mu.Unlock()

	sess.cancel()
	timer := time.NewTimer(c.opts.JoinTimeout)
	defer timer.Stop()
	select {
	case <-sess.done:
	case <-timer.C:
		c.logger.Warn("capture loop still running after join timeout; abandoning it",
			slog.String("session_id", sess.id),
			slog.Duration("join_timeout", c.opts.JoinTimeout))
	}

	c.mu.Lock()
	c.state = Idle
	c.mu.Unlock()

	c.logger.Info("session stopped", slog.String("session_id", sess.id))
	c.opts.Status(c.opts.DefaultStatus)
	c.notify(Transition{SessionID: sess.id, State: Idle, Language: lang})
	return true
}

// loopExited reconciles state when a capture loop returns on its own.
func (c *Controller) loopExited(sess *activeSession, err error) {
	c.mu.Lock()
	if c.active != sess {
		c.mu.Unlock()
		if err != nil {
			c.logger.Warn("stopped session's capture loop failed", slog.String("session_id", sess.id), slogError(err))
		}
		return
	}
	c.active = nil
	c.state = Idle
	lang := c.language
	c.mu.Unlock()
	sess.cancel()

	if err != nil {
		c.logger.Error("capture loop failed; session ended", slog.String("session_id", sess.id), slogError(err))
		c.opts.Status("Error: " + err.Error())
	} else {
		c.opts.Status(c.opts.DefaultStatus)
	}
	c.notify(Transition{SessionID: sess.id, State: Idle, Language: lang, Err: err})
}

// SetLanguage changes the language used for utterances captured from now
// on. value may be a code or a display name.
func (c *Controller) SetLanguage(value string) (language.Language, error) {
	lang, ok := language.Lookup(value)
	if !ok {
		return language.Language{}, fmt.Errorf("unknown language %q", value)
	}
	c.mu.Lock()
	c.language = lang.Code
	c.mu.Unlock()
	return lang, nil
}

// Language returns the current language code.
func (c *Controller) Language() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.language
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Listening() bool {
	return c.State() == Listening
}

// SessionID returns the active session's id, or "" when idle.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ""
	}
	return c.active.id
}

func (c *Controller) notify(t Transition) {
	if c.opts.Observer == nil {
		return
	}
	t.At = time.Now()
	c.opts.Observer(t)
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
