// Package recognition runs one recognition task per captured utterance and
// hands every outcome to a single consumer.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/dictat/internal/audio"
	"github.com/loqalabs/dictat/internal/postprocess"
	"github.com/loqalabs/dictat/internal/stt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

const instrumentationName = "github.com/loqalabs/dictat/recognition"

// Sink receives results. It must be safe for concurrent use.
type Sink interface {
	Enqueue(Result)
}

type Options struct {
	// MaxInflight caps concurrent recognizer calls.
	MaxInflight int
	// Timeout bounds a single call; zero leaves it to the service.
	Timeout time.Duration
}

// Pool submits utterances to a Recognizer. Every Submit enqueues exactly one
// Result, whatever happens to the call.
type Pool struct {
	recognizer stt.Recognizer
	sink       Sink
	opts       Options
	sem        *semaphore.Weighted
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    poolMetrics
	now        func() time.Time
}

type poolMetrics struct {
	inflight metric.Int64UpDownCounter
	results  metric.Int64Counter
	latency  metric.Float64Histogram
}

func NewPool(parent context.Context, recognizer stt.Recognizer, sink Sink, opts Options, logger *slog.Logger) *Pool {
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 1
	}
	ctx, cancel := context.WithCancel(parent)
	p := &Pool{
		recognizer: recognizer,
		sink:       sink,
		opts:       opts,
		sem:        semaphore.NewWeighted(int64(opts.MaxInflight)),
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger.With(slog.String("component", "recognition-pool")),
		tracer:     otel.Tracer(instrumentationName),
		now:        time.Now,
	}
	if err := p.initMetrics(); err != nil {
		p.logger.Warn("failed to initialize metrics", slogError(err))
	}
	return p
}

func (p *Pool) initMetrics() error {
	meter := otel.Meter(instrumentationName)
	var err error
	if p.metrics.inflight, err = meter.Int64UpDownCounter("dictat.recognition.inflight",
		metric.WithDescription("Recognition calls currently in progress")); err != nil {
		return err
	}
	if p.metrics.results, err = meter.Int64Counter("dictat.recognition.results",
		metric.WithDescription("Recognition outcomes by kind")); err != nil {
		return err
	}
	p.metrics.latency, err = meter.Float64Histogram("dictat.recognition.latency",
		metric.WithDescription("Recognition call latency"), metric.WithUnit("s"))
	return err
}

// Submit schedules recognition of u and returns immediately.
func (p *Pool) Submit(u audio.Utterance) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.sink.Enqueue(p.process(u))
	}()
}

// Wait blocks until every submitted utterance has produced its result or ctx
// ends.
func (p *Pool) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels outstanding calls and waits for their results to be enqueued.
func (p *Pool) Close() {
	p.cancel()
	p.wg.Wait()
}

func (p *Pool) process(u audio.Utterance) Result {
	start := p.now()
	if err := p.sem.Acquire(p.ctx, 1); err != nil {
		return p.finish(u, start, "", fmt.Errorf("recognition pool closed: %w", err))
	}
	defer p.sem.Release(1)

	ctx := p.ctx
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}
	ctx, span := p.tracer.Start(ctx, "recognition.recognize", trace.WithAttributes(
		attribute.String("dictat.session_id", u.SessionID),
		attribute.Int("dictat.sequence", u.Sequence),
		attribute.String("dictat.language", u.Language),
		attribute.Int64("dictat.audio_ms", u.Duration.Milliseconds()),
	))
	defer span.End()

	p.addInflight(ctx, 1)
	text, err := p.recognize(ctx, u)
	p.addInflight(ctx, -1)

	res := p.finish(u, start, text, err)
	span.SetAttributes(attribute.String("dictat.outcome", res.Outcome.String()))
	if err != nil {
		span.RecordError(err)
		if res.Outcome != OutcomeUnrecognized {
			span.SetStatus(otelcodes.Error, res.Message)
		}
	}
	return res
}

func (p *Pool) recognize(ctx context.Context, u audio.Utterance) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recognizer panic: %v", r)
		}
	}()
	return p.recognizer.Recognize(ctx, stt.Request{PCM: u.PCM, Format: u.Format, Language: u.Language})
}

func (p *Pool) finish(u audio.Utterance, start time.Time, text string, err error) Result {
	res := Classify(text, err)
	res.SessionID = u.SessionID
	res.Sequence = u.Sequence
	res.Language = u.Language
	res.CompletedAt = p.now()
	res.Latency = res.CompletedAt.Sub(start)

	attrs := metric.WithAttributes(attribute.String("outcome", res.Outcome.String()))
	if p.metrics.results != nil {
		p.metrics.results.Add(context.Background(), 1, attrs)
	}
	if p.metrics.latency != nil {
		p.metrics.latency.Record(context.Background(), res.Latency.Seconds(), attrs)
	}

	if res.Outcome == OutcomeServiceError || res.Outcome == OutcomeUnexpectedError {
		p.logger.Warn("recognition failed",
			slog.String("session_id", u.SessionID),
			slog.Int("sequence", u.Sequence),
			slog.String("outcome", res.Outcome.String()),
			slogError(err))
	} else {
		p.logger.Debug("recognition complete",
			slog.String("session_id", u.SessionID),
			slog.Int("sequence", u.Sequence),
			slog.String("outcome", res.Outcome.String()),
			slog.Duration("latency", res.Latency))
	}
	return res
}

func (p *Pool) addInflight(ctx context.Context, n int64) {
	if p.metrics.inflight != nil {
		p.metrics.inflight.Add(ctx, n)
	}
}

// Classify turns a recognizer return into a Result. Successful text is
// post-processed here so every consumer sees normalized punctuation.
func Classify(text string, err error) Result {
	var svcErr *stt.ServiceError
	switch {
	case err == nil:
		return Result{Outcome: OutcomeSuccess, Text: postprocess.Apply(text)}
	case errors.Is(err, stt.ErrNotUnderstood):
		return Result{Outcome: OutcomeUnrecognized}
	case errors.As(err, &svcErr):
		return Result{Outcome: OutcomeServiceError, Message: svcErr.Error()}
	default:
		return Result{Outcome: OutcomeUnexpectedError, Message: err.Error()}
	}
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
