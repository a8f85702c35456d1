package session

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/dictat/internal/audio"
)

type blockingMic struct {
	listen func() (audio.Utterance, error)
	closed chan struct{}
	once   sync.Once
}

func newMic(listen func() (audio.Utterance, error)) *blockingMic {
	return &blockingMic{listen: listen, closed: make(chan struct{})}
}

func (m *blockingMic) Calibrate(time.Duration) error { return nil }

func (m *blockingMic) Listen(time.Duration, time.Duration) (audio.Utterance, error) {
	return m.listen()
}

func (m *blockingMic) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

type dispatcher struct {
	mu   sync.Mutex
	utts []audio.Utterance
}

func (d *dispatcher) Submit(u audio.Utterance) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.utts = append(d.utts, u)
}

func (d *dispatcher) all() []audio.Utterance {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]audio.Utterance(nil), d.utts...)
}

type statusLog struct {
	mu    sync.Mutex
	lines []string
	trans []Transition
}

func (s *statusLog) post(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *statusLog) observe(t Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trans = append(s.trans, t)
}

func (s *statusLog) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lines) == 0 {
		return ""
	}
	return s.lines[len(s.lines)-1]
}

func (s *statusLog) transitions() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Transition(nil), s.trans...)
}

func silentMic() *blockingMic {
	return newMic(func() (audio.Utterance, error) {
		time.Sleep(2 * time.Millisecond)
		return audio.Utterance{}, audio.ErrNoSpeech
	})
}

func newTestController(open audio.Opener, d *dispatcher, log *statusLog) *Controller {
	return NewController(Options{
		Open:          open,
		Dispatcher:    d,
		Language:      "ca-ES",
		DefaultStatus: "Click the microphone",
		JoinTimeout:   200 * time.Millisecond,
		Status:        log.post,
		Observer:      log.observe,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestStartStopLifecycle(t *testing.T) {
	mic := silentMic()
	log := &statusLog{}
	ctrl := newTestController(func() (audio.Microphone, error) { return mic, nil }, &dispatcher{}, log)

	if ctrl.Stop() {
		t.Fatalf("stop while idle must be a no-op")
	}
	if !ctrl.Start() {
		t.Fatalf("start failed")
	}
	if ctrl.Start() {
		t.Fatalf("second start must be a no-op")
	}
	if !ctrl.Listening() || ctrl.SessionID() == "" {
		t.Fatalf("expected an active session")
	}
	if log.last() != "Listening [Català]" {
		t.Fatalf("unexpected status %q", log.last())
	}

	if !ctrl.Stop() {
		t.Fatalf("stop failed")
	}
	if ctrl.State() != Idle || ctrl.SessionID() != "" {
		t.Fatalf("expected idle after stop")
	}
	if log.last() != "Click the microphone" {
		t.Fatalf("unexpected status %q", log.last())
	}
	select {
	case <-mic.closed:
	case <-time.After(time.Second):
		t.Fatalf("microphone not released after stop")
	}
	trans := log.transitions()
	if len(trans) != 2 || trans[0].State != Listening || trans[1].State != Idle || trans[0].SessionID != trans[1].SessionID {
		t.Fatalf("unexpected transitions %+v", trans)
	}
}

func TestFatalCaptureErrorReconcilesToIdle(t *testing.T) {
	mic := newMic(func() (audio.Utterance, error) {
		return audio.Utterance{}, &audio.CaptureError{Op: "read", Err: errors.New("device lost")}
	})
	log := &statusLog{}
	ctrl := newTestController(func() (audio.Microphone, error) { return mic, nil }, &dispatcher{}, log)

	ctrl.Start()
	waitFor(t, func() bool { return ctrl.State() == Idle })
	if got := log.last(); got != "Error: capture read: device lost" {
		t.Fatalf("unexpected status %q", got)
	}
	trans := log.transitions()
	if len(trans) != 2 || trans[1].Err == nil {
		t.Fatalf("expected failing transition, got %+v", trans)
	}
	if ctrl.Stop() {
		t.Fatalf("stop after fatal exit must be a no-op")
	}
	if !ctrl.Start() {
		t.Fatalf("expected restart after fatal exit")
	}
	waitFor(t, func() bool { return ctrl.State() == Idle })
}

func TestSetLanguageAppliesToNextUtterance(t *testing.T) {
	next := make(chan struct{})
	mic := newMic(func() (audio.Utterance, error) {
		select {
		case <-next:
			return audio.Utterance{PCM: []byte{1, 0}}, nil
		case <-time.After(5 * time.Millisecond):
			return audio.Utterance{}, audio.ErrNoSpeech
		}
	})
	d := &dispatcher{}
	ctrl := newTestController(func() (audio.Microphone, error) { return mic, nil }, d, &statusLog{})

	ctrl.Start()
	defer ctrl.Stop()
	next <- struct{}{}
	waitFor(t, func() bool { return len(d.all()) == 1 })

	if _, err := ctrl.SetLanguage("English"); err != nil {
		t.Fatalf("set language: %v", err)
	}
	if !ctrl.Listening() {
		t.Fatalf("language change must not restart capture")
	}
	next <- struct{}{}
	waitFor(t, func() bool { return len(d.all()) == 2 })

	got := d.all()
	if got[0].Language != "ca-ES" || got[1].Language != "en-US" {
		t.Fatalf("unexpected languages %q, %q", got[0].Language, got[1].Language)
	}
	if got[0].SessionID != got[1].SessionID {
		t.Fatalf("expected one session")
	}
	if _, err := ctrl.SetLanguage("fr-FR"); err == nil {
		t.Fatalf("expected unknown language error")
	}
	if ctrl.Language() != "en-US" {
		t.Fatalf("language changed by invalid value")
	}
}

func TestStopAbandonsStuckLoop(t *testing.T) {
	release := make(chan struct{})
	stuck := newMic(func() (audio.Utterance, error) {
		<-release
		return audio.Utterance{}, audio.ErrNoSpeech
	})
	var opens sync.Mutex
	opened := 0
	log := &statusLog{}
	ctrl := newTestController(func() (audio.Microphone, error) {
		opens.Lock()
		defer opens.Unlock()
		opened++
		if opened == 1 {
			return stuck, nil
		}
		return silentMic(), nil
	}, &dispatcher{}, log)

	ctrl.Start()
	start := time.Now()
	if !ctrl.Stop() {
		t.Fatalf("stop failed")
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Fatalf("stop returned before join timeout: %v", elapsed)
	}
	if ctrl.State() != Idle {
		t.Fatalf("expected idle after abandoned stop")
	}

	// The abandoned loop still owns the microphone, so a new session must not
	// open it until the old one exits.
	ctrl.Start()
	time.Sleep(50 * time.Millisecond)
	opens.Lock()
	if opened != 1 {
		opens.Unlock()
		t.Fatalf("microphone opened twice while owned")
	}
	opens.Unlock()

	close(release)
	waitFor(t, func() bool {
		opens.Lock()
		defer opens.Unlock()
		return opened == 2
	})
	if !ctrl.Listening() {
		t.Fatalf("abandoned loop exit must not affect the new session")
	}
	ctrl.Stop()
}

func TestImmediateOpenFailureEndsIdle(t *testing.T) {
	log := &statusLog{}
	ctrl := NewController(Options{
		Open:          func() (audio.Microphone, error) { return nil, errors.New("no such file") },
		Dispatcher:    &dispatcher{},
		Language:      "ca-ES",
		DefaultStatus: "Click the microphone",
		Status: func(line string) {
			log.post(line)
			if strings.HasPrefix(line, "Listening") {
				// Give a failing loop every chance to report first.
				time.Sleep(50 * time.Millisecond)
			}
		},
		Observer: log.observe,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	if !ctrl.Start() {
		t.Fatalf("start failed")
	}
	waitFor(t, func() bool { return len(log.transitions()) == 2 })

	if ctrl.State() != Idle {
		t.Fatalf("expected idle after open failure")
	}
	if got := log.last(); got != "Error: capture open: no such file" {
		t.Fatalf("unexpected final status %q", got)
	}
	trans := log.transitions()
	if trans[0].State != Listening || trans[1].State != Idle || trans[1].Err == nil {
		t.Fatalf("unexpected transition order %+v", trans)
	}
}
