// Package ui holds the single consumer that applies recognition results,
// status posts and user events to the transcript and the view.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loqalabs/dictat/internal/language"
	"github.com/loqalabs/dictat/internal/queue"
	"github.com/loqalabs/dictat/internal/recognition"
)

// Controller is the listening lifecycle driven by user events.
type Controller interface {
	Start() bool
	Stop() bool
	Listening() bool
	SetLanguage(value string) (language.Language, error)
}

// Journal records delivered results. Implementations must not block for
// long; they run on the poller goroutine.
type Journal interface {
	RecordResult(ctx context.Context, res recognition.Result) error
}

type Options struct {
	Results *queue.Queue[recognition.Result]
	// Statuses may be shared with producers created before the poller. A new
	// queue is made when nil.
	Statuses      *queue.Queue[string]
	Controller    Controller
	View          View
	Journal       Journal
	Interval      time.Duration
	DefaultStatus string
	SaveDir       string
	Logger        *slog.Logger
}

// Poller drains its queues on one goroutine. Transcript and view are only
// touched from Tick.
type Poller struct {
	opts       Options
	results    *queue.Queue[recognition.Result]
	statuses   *queue.Queue[string]
	events     *queue.Queue[Event]
	transcript Transcript
	status     string
	logger     *slog.Logger
	now        func() time.Time
}

func NewPoller(opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 100 * time.Millisecond
	}
	if opts.Results == nil {
		opts.Results = queue.New[recognition.Result]()
	}
	if opts.Statuses == nil {
		opts.Statuses = queue.New[string]()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		opts:     opts,
		results:  opts.Results,
		statuses: opts.Statuses,
		events:   queue.New[Event](),
		logger:   logger.With(slog.String("component", "ui-poller")),
		now:      time.Now,
	}
}

// Post queues a user event. Safe from any goroutine.
func (p *Poller) Post(evt Event) {
	p.events.Enqueue(evt)
}

// PostStatus queues a status line. Safe from any goroutine.
func (p *Poller) PostStatus(status string) {
	p.statuses.Enqueue(status)
}

// Run ticks until ctx ends, then performs one last tick so nothing already
// queued is dropped.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	p.setStatus(p.opts.DefaultStatus)
	for {
		select {
		case <-ctx.Done():
			p.Tick()
			return
		case <-ticker.C:
		case <-p.results.Ready():
		case <-p.statuses.Ready():
		case <-p.events.Ready():
		}
		p.Tick()
	}
}

// Tick applies everything queued so far: events, then status posts, then
// results.
func (p *Poller) Tick() {
	for _, evt := range p.events.Drain() {
		p.handleEvent(evt)
	}
	for _, status := range p.statuses.Drain() {
		p.setStatus(status)
	}
	for _, res := range p.results.Drain() {
		p.handleResult(res)
	}
}

// Transcript returns the current transcript text. Only call from the poller
// goroutine or after Run has returned.
func (p *Poller) Transcript() string {
	return p.transcript.Text()
}

// Status returns the last applied status line, with the same caveat as
// Transcript.
func (p *Poller) Status() string {
	return p.status
}

func (p *Poller) handleResult(res recognition.Result) {
	switch res.Outcome {
	case recognition.OutcomeSuccess:
		fragment := res.Text + " "
		p.transcript.Append(fragment)
		if p.opts.View != nil {
			p.opts.View.AppendTranscript(fragment)
		}
	case recognition.OutcomeUnrecognized:
		p.setStatus(fmt.Sprintf("Could not understand the audio [%s]", language.Name(res.Language)))
	case recognition.OutcomeServiceError:
		p.setStatus("Service error: " + res.Message)
	default:
		p.setStatus("Unexpected error: " + res.Message)
	}

	if p.opts.Journal != nil {
		if err := p.opts.Journal.RecordResult(context.Background(), res); err != nil {
			p.logger.Warn("journal write failed", slog.String("error", err.Error()))
		}
	}
}

func (p *Poller) handleEvent(evt Event) {
	p.logger.Debug("event", slog.String("kind", evt.Kind.String()), slog.String("value", evt.Value))
	switch evt.Kind {
	case EventMicToggle:
		if p.opts.Controller == nil {
			return
		}
		if p.opts.Controller.Listening() {
			// Stop waits up to the join timeout for the capture loop; queued
			// results and statuses are applied on the next tick.
			p.opts.Controller.Stop()
		} else {
			p.opts.Controller.Start()
		}
	case EventLanguageChange:
		if p.opts.Controller == nil {
			return
		}
		lang, err := p.opts.Controller.SetLanguage(evt.Value)
		if err != nil {
			p.setStatus("Unknown language: " + evt.Value)
			return
		}
		p.setStatus("Language changed to: " + lang.Name)
	case EventClear:
		p.transcript.Clear()
		if p.opts.View != nil {
			p.opts.View.ClearTranscript()
		}
		p.setStatus(p.opts.DefaultStatus)
	case EventSave:
		p.save(evt.Value)
	}
}

func (p *Poller) save(path string) {
	text := strings.TrimSpace(p.transcript.Text())
	if text == "" {
		p.setStatus("Nothing to save")
		return
	}
	if path == "" {
		path = DefaultSavePath(p.opts.SaveDir, p.now())
	}
	if err := SaveToFile(path, text); err != nil {
		p.logger.Error("transcript save failed", slog.String("path", path), slog.String("error", err.Error()))
		p.setStatus(fmt.Sprintf("Error saving: %v", err))
		return
	}
	p.logger.Info("transcript saved", slog.String("path", path))
	p.setStatus("Transcript saved to: " + path)
}

func (p *Poller) setStatus(status string) {
	p.status = status
	if p.opts.View != nil {
		p.opts.View.SetStatus(status)
	}
}
