package ui

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/dictat/internal/language"
	"github.com/loqalabs/dictat/internal/queue"
	"github.com/loqalabs/dictat/internal/recognition"
)

type recordingView struct {
	statuses  []string
	fragments []string
	clears    int
}

func (v *recordingView) SetStatus(s string)        { v.statuses = append(v.statuses, s) }
func (v *recordingView) AppendTranscript(f string) { v.fragments = append(v.fragments, f) }
func (v *recordingView) ClearTranscript()          { v.clears++; v.fragments = nil }

func (v *recordingView) lastStatus() string {
	if len(v.statuses) == 0 {
		return ""
	}
	return v.statuses[len(v.statuses)-1]
}

type fakeController struct {
	listening bool
	starts    int
	stops     int
	lang      string
}

func (c *fakeController) Start() bool { c.starts++; c.listening = true; return true }
func (c *fakeController) Stop() bool  { c.stops++; c.listening = false; return true }
func (c *fakeController) Listening() bool {
	return c.listening
}

func (c *fakeController) SetLanguage(value string) (language.Language, error) {
	lang, ok := language.Lookup(value)
	if !ok {
		return language.Language{}, errors.New("unknown")
	}
	c.lang = lang.Code
	return lang, nil
}

type memJournal struct {
	results []recognition.Result
}

func (j *memJournal) RecordResult(_ context.Context, res recognition.Result) error {
	j.results = append(j.results, res)
	return nil
}

func newTestPoller(view View, ctrl Controller) (*Poller, *queue.Queue[recognition.Result]) {
	results := queue.New[recognition.Result]()
	p := NewPoller(Options{
		Results:       results,
		Controller:    ctrl,
		View:          view,
		DefaultStatus: "Click the microphone",
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return p, results
}

func TestResultsAppendInArrivalOrder(t *testing.T) {
	view := &recordingView{}
	p, results := newTestPoller(view, nil)
	results.Enqueue(recognition.Result{Outcome: recognition.OutcomeSuccess, Text: "hola"})
	results.Enqueue(recognition.Result{Outcome: recognition.OutcomeSuccess, Text: "adeu."})
	p.Tick()

	if got := p.Transcript(); got != "hola adeu. " {
		t.Fatalf("unexpected transcript %q", got)
	}
	if len(view.fragments) != 2 || view.fragments[0] != "hola " {
		t.Fatalf("unexpected fragments %q", view.fragments)
	}
	if results.Len() != 0 {
		t.Fatalf("tick must drain every result")
	}
}

func TestErrorOutcomesBecomeStatus(t *testing.T) {
	cases := []struct {
		res  recognition.Result
		want string
	}{
		{recognition.Result{Outcome: recognition.OutcomeUnrecognized, Language: "es-ES"}, "Could not understand the audio [Español]"},
		{recognition.Result{Outcome: recognition.OutcomeServiceError, Message: "quota"}, "Service error: quota"},
		{recognition.Result{Outcome: recognition.OutcomeUnexpectedError, Message: "boom"}, "Unexpected error: boom"},
	}
	for _, tc := range cases {
		view := &recordingView{}
		p, results := newTestPoller(view, nil)
		results.Enqueue(tc.res)
		p.Tick()
		if view.lastStatus() != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, view.lastStatus())
		}
		if p.Transcript() != "" {
			t.Fatalf("error outcome must not touch the transcript")
		}
	}
}

func TestStatusesApplyBeforeResults(t *testing.T) {
	view := &recordingView{}
	p, results := newTestPoller(view, nil)
	results.Enqueue(recognition.Result{Outcome: recognition.OutcomeServiceError, Message: "down"})
	p.PostStatus("Listening [Català]")
	p.Tick()
	if len(view.statuses) != 2 || view.statuses[0] != "Listening [Català]" || view.statuses[1] != "Service error: down" {
		t.Fatalf("unexpected status order %q", view.statuses)
	}
}

func TestMicToggleAndLanguageEvents(t *testing.T) {
	view := &recordingView{}
	ctrl := &fakeController{}
	p, _ := newTestPoller(view, ctrl)

	p.Post(Event{Kind: EventMicToggle})
	p.Tick()
	if ctrl.starts != 1 || !ctrl.listening {
		t.Fatalf("expected start")
	}
	p.Post(Event{Kind: EventMicToggle})
	p.Tick()
	if ctrl.stops != 1 || ctrl.listening {
		t.Fatalf("expected stop")
	}

	p.Post(Event{Kind: EventLanguageChange, Value: "en-US"})
	p.Tick()
	if ctrl.lang != "en-US" || view.lastStatus() != "Language changed to: English" {
		t.Fatalf("unexpected language handling: %q %q", ctrl.lang, view.lastStatus())
	}
	p.Post(Event{Kind: EventLanguageChange, Value: "Klingon"})
	p.Tick()
	if ctrl.lang != "en-US" || view.lastStatus() != "Unknown language: Klingon" {
		t.Fatalf("unknown language must be rejected: %q %q", ctrl.lang, view.lastStatus())
	}
}

func TestClearResetsTranscriptAndStatus(t *testing.T) {
	view := &recordingView{}
	p, results := newTestPoller(view, nil)
	results.Enqueue(recognition.Result{Outcome: recognition.OutcomeSuccess, Text: "text"})
	p.Tick()
	p.Post(Event{Kind: EventClear})
	p.Tick()
	if p.Transcript() != "" || view.clears != 1 || view.lastStatus() != "Click the microphone" {
		t.Fatalf("clear not applied: %q %d %q", p.Transcript(), view.clears, view.lastStatus())
	}
}

func TestSaveEmptyTranscript(t *testing.T) {
	view := &recordingView{}
	p, _ := newTestPoller(view, nil)
	path := filepath.Join(t.TempDir(), "out.txt")
	p.Post(Event{Kind: EventSave, Value: path})
	p.Tick()
	if view.lastStatus() != "Nothing to save" {
		t.Fatalf("unexpected status %q", view.lastStatus())
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("no file must be written")
	}
}

func TestSaveWritesTrimmedTranscript(t *testing.T) {
	view := &recordingView{}
	p, results := newTestPoller(view, nil)
	results.Enqueue(recognition.Result{Outcome: recognition.OutcomeSuccess, Text: "hola; adeu."})
	results.Enqueue(recognition.Result{Outcome: recognition.OutcomeSuccess, Text: "com estas"})
	p.Tick()

	path := filepath.Join(t.TempDir(), "nested", "out.txt")
	p.Post(Event{Kind: EventSave, Value: path})
	p.Tick()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(data) != "hola; adeu. com estas" {
		t.Fatalf("unexpected contents %q", data)
	}
	if view.lastStatus() != "Transcript saved to: "+path {
		t.Fatalf("unexpected status %q", view.lastStatus())
	}
}

func TestSaveDefaultPathAndFailure(t *testing.T) {
	dir := t.TempDir()
	view := &recordingView{}
	results := queue.New[recognition.Result]()
	p := NewPoller(Options{Results: results, View: view, SaveDir: dir, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	p.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	results.Enqueue(recognition.Result{Outcome: recognition.OutcomeSuccess, Text: "x"})
	p.Tick()

	p.Post(Event{Kind: EventSave})
	p.Tick()
	want := filepath.Join(dir, "transcript-20260304-050607.txt")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected default save file: %v", err)
	}

	p.Post(Event{Kind: EventSave, Value: dir})
	p.Tick()
	if !strings.HasPrefix(view.lastStatus(), "Error saving: ") {
		t.Fatalf("expected save error, got %q", view.lastStatus())
	}
}

func TestJournalReceivesResults(t *testing.T) {
	journal := &memJournal{}
	results := queue.New[recognition.Result]()
	p := NewPoller(Options{Results: results, Journal: journal, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	results.Enqueue(recognition.Result{Outcome: recognition.OutcomeSuccess, Text: "a"})
	results.Enqueue(recognition.Result{Outcome: recognition.OutcomeUnrecognized})
	p.Tick()
	if len(journal.results) != 2 {
		t.Fatalf("expected 2 journal entries, got %d", len(journal.results))
	}
}

func TestRunDeliversQueuedWorkOnShutdown(t *testing.T) {
	view := &recordingView{}
	p, results := newTestPoller(view, nil)
	p.opts.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	results.Enqueue(recognition.Result{Outcome: recognition.OutcomeSuccess, Text: "late"})
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("poller did not stop")
	}
	if p.Transcript() != "late " {
		t.Fatalf("queued result lost: %q", p.Transcript())
	}
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		line string
		want Event
	}{
		{"toggle", Event{Kind: EventMicToggle}},
		{"lang es-ES", Event{Kind: EventLanguageChange, Value: "es-ES"}},
		{"LANG Català", Event{Kind: EventLanguageChange, Value: "Català"}},
		{"clear", Event{Kind: EventClear}},
		{"save", Event{Kind: EventSave}},
		{`save "/tmp/my notes.txt"`, Event{Kind: EventSave, Value: "/tmp/my notes.txt"}},
	}
	for _, tc := range cases {
		got, err := ParseCommand(tc.line)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.line, err)
		}
		if got != tc.want {
			t.Fatalf("parse %q: got %+v want %+v", tc.line, got, tc.want)
		}
	}
	if _, err := ParseCommand("dance"); err == nil {
		t.Fatalf("expected unknown command error")
	}
	if _, err := ParseCommand("lang"); err == nil {
		t.Fatalf("expected missing argument error")
	}
}

func TestReadCommands(t *testing.T) {
	var events []Event
	var errs []error
	input := "toggle\n\nbogus\nsave out.txt\n"
	if err := ReadCommands(strings.NewReader(input), func(e Event) { events = append(events, e) }, func(err error) { errs = append(errs, err) }); err != nil {
		t.Fatalf("read commands: %v", err)
	}
	if len(events) != 2 || events[1].Value != "out.txt" {
		t.Fatalf("unexpected events %+v", events)
	}
	if len(errs) != 1 {
		t.Fatalf("expected one parse error, got %d", len(errs))
	}
}

func TestTerminalView(t *testing.T) {
	var buf bytes.Buffer
	view := MultiView{NewTerminalView(&buf)}
	view.SetStatus("Listening [English]")
	view.AppendTranscript("hello ")
	view.ClearTranscript()
	out := buf.String()
	if !strings.Contains(out, "[status] Listening [English]") || !strings.Contains(out, "[text] hello") || !strings.Contains(out, "(cleared)") {
		t.Fatalf("unexpected terminal output %q", out)
	}
}
