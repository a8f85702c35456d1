package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/dictat/internal/audio"
	"github.com/loqalabs/dictat/internal/bus"
	"github.com/loqalabs/dictat/internal/capture"
	"github.com/loqalabs/dictat/internal/config"
	"github.com/loqalabs/dictat/internal/eventstore"
	"github.com/loqalabs/dictat/internal/natsserver"
	"github.com/loqalabs/dictat/internal/queue"
	"github.com/loqalabs/dictat/internal/recognition"
	"github.com/loqalabs/dictat/internal/relay"
	"github.com/loqalabs/dictat/internal/session"
	"github.com/loqalabs/dictat/internal/stt"
	"github.com/loqalabs/dictat/internal/ui"
)

type Option func(*Runtime)

// WithTerminal reads commands from in and renders the view to out. Either
// may be nil.
func WithTerminal(in io.Reader, out io.Writer) Option {
	return func(r *Runtime) {
		r.input = in
		r.output = out
	}
}

// WithOpener replaces the configured microphone source.
func WithOpener(open audio.Opener) Option {
	return func(r *Runtime) { r.open = open }
}

// WithRecognizer replaces the configured recognition backend.
func WithRecognizer(rec stt.Recognizer) Option {
	return func(r *Runtime) { r.recognizer = rec }
}

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
	httpWG      sync.WaitGroup
	stopPoller  context.CancelFunc

	input      io.Reader
	output     io.Writer
	open       audio.Opener
	recognizer stt.Recognizer

	natsServer *natsserver.EmbeddedServer
	bus        *bus.Client
	store      *eventstore.Store
	recClose   io.Closer
	pool       *recognition.Pool
	controller *session.Controller
	poller     *ui.Poller
	relay      *relay.Relay
}

func New(cfg config.Config, logger *slog.Logger, opts ...Option) *Runtime {
	r := &Runtime{
		cfg:    cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start wires the pipeline and blocks until ctx is cancelled, then shuts it
// down in dependency order.
func (r *Runtime) Start(ctx context.Context) error {
	shutdownTelemetry, metricsHandler, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry
	defer r.closeTelemetry()

	if err := r.startPipeline(ctx); err != nil {
		r.stopPipeline()
		return err
	}

	if r.cfg.HTTP.Enabled {
		r.startHTTP(metricsHandler)
	}

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("language", r.controller.Language()),
		slog.String("recognition", r.cfg.Recognition.Mode),
		slog.String("capture", r.cfg.Capture.Source))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	r.stopHTTP()
	r.stopPipeline()
	return nil
}

func (r *Runtime) startPipeline(ctx context.Context) error {
	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger.With(slog.String("component", "eventstore")))
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	r.store = store
	journal := eventstore.NewJournal(store, r.logger)

	if r.cfg.Bus.Enabled {
		if err := r.startBus(ctx); err != nil {
			return err
		}
	}

	if r.recognizer == nil {
		rec, closer, err := stt.New(ctx, r.cfg.Recognition)
		if err != nil {
			return fmt.Errorf("create recognizer: %w", err)
		}
		r.recognizer = rec
		r.recClose = closer
	}

	results := queue.New[recognition.Result]()
	statuses := queue.New[string]()

	r.pool = recognition.NewPool(context.Background(), r.recognizer, results, recognition.Options{
		MaxInflight: r.cfg.Recognition.MaxInflight,
		Timeout:     time.Duration(r.cfg.Recognition.TimeoutMS) * time.Millisecond,
	}, r.logger)

	if r.open == nil {
		r.open = microphoneOpener(r.cfg.Capture)
	}

	var views ui.MultiView
	if r.cfg.UI.Terminal && r.output != nil {
		views = append(views, ui.NewTerminalView(r.output))
	}
	if r.bus != nil {
		r.relay = relay.New(r.bus, r.logger)
		views = append(views, r.relay)
	}

	onset, limit := r.cfg.Capture.Timeouts()
	r.controller = session.NewController(session.Options{
		Capture:       capture.Config{OnsetTimeout: onset, PhraseTimeLimit: limit},
		JoinTimeout:   time.Duration(r.cfg.Capture.JoinTimeoutMS) * time.Millisecond,
		Open:          r.open,
		Dispatcher:    r.pool,
		Language:      r.cfg.Session.DefaultLanguage,
		DefaultStatus: r.cfg.UI.DefaultStatus,
		Status:        statuses.Enqueue,
		Observer: func(t session.Transition) {
			journal.RecordTransition(t)
			if r.relay != nil {
				r.relay.PublishState(t)
			}
		},
		Logger: r.logger,
	})

	r.poller = ui.NewPoller(ui.Options{
		Results:       results,
		Statuses:      statuses,
		Controller:    r.controller,
		View:          views,
		Journal:       journal,
		Interval:      time.Duration(r.cfg.UI.PollIntervalMS) * time.Millisecond,
		DefaultStatus: r.cfg.UI.DefaultStatus,
		SaveDir:       r.cfg.UI.SaveDir,
		Logger:        r.logger,
	})

	pollCtx, cancelPoll := context.WithCancel(context.Background())
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.poller.Run(pollCtx)
	}()
	r.stopPoller = cancelPoll

	if r.relay != nil {
		if err := r.relay.Listen(r.poller.Post); err != nil {
			return fmt.Errorf("subscribe control: %w", err)
		}
	}

	if r.input != nil {
		// Not tracked by wg: a blocked terminal read cannot be interrupted.
		go func() {
			err := ui.ReadCommands(r.input, r.poller.Post, func(err error) {
				r.poller.PostStatus(err.Error())
			})
			if err != nil {
				r.logger.Warn("terminal input closed", slog.String("error", err.Error()))
			}
		}()
	}
	return nil
}

func (r *Runtime) startBus(ctx context.Context) error {
	busCfg := r.cfg.Bus
	srv, err := natsserver.Start(busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("start embedded nats: %w", err)
	}
	r.natsServer = srv
	if srv != nil {
		busCfg.Servers = []string{srv.ClientURL()}
	}
	client, err := bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("connect bus: %w", err)
	}
	r.bus = client
	return nil
}

// stopPipeline ends the session, lets in-flight recognitions land in the
// transcript and then releases resources. Safe on a partially started
// pipeline.
func (r *Runtime) stopPipeline() {
	if r.relay != nil {
		r.relay.Close()
	}
	if r.controller != nil {
		r.controller.Stop()
	}
	if r.pool != nil {
		drain := time.Duration(r.cfg.Recognition.DrainTimeoutMS) * time.Millisecond
		drainCtx, cancel := context.WithTimeout(context.Background(), drain)
		if err := r.pool.Wait(drainCtx); err != nil {
			r.logger.Warn("recognition drain timed out; cancelling in-flight calls", slog.Duration("drain_timeout", drain))
		}
		cancel()
		r.pool.Close()
	}
	if r.stopPoller != nil {
		r.stopPoller()
	}
	r.wg.Wait()

	if r.bus != nil {
		r.bus.Close()
	}
	r.natsServer.Shutdown()
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("event store close error", slog.String("error", err.Error()))
		}
	}
	if r.recClose != nil {
		if err := r.recClose.Close(); err != nil {
			r.logger.Error("recognizer close error", slog.String("error", err.Error()))
		}
	}
}

func (r *Runtime) startHTTP(metrics http.Handler) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.httpWG.Add(1)
	go func() {
		defer r.httpWG.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()
	r.logger.Info("http server listening", slog.String("addr", addr))
}

func (r *Runtime) stopHTTP() {
	if r.httpServer == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.httpWG.Wait()
}

func (r *Runtime) closeTelemetry() {
	if r.tracerClose == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.tracerClose(ctx); err != nil {
		r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, req *http.Request) {
	if r.Ready(req.Context()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

// Ready reports whether the pipeline is running and its dependencies answer.
func (r *Runtime) Ready(ctx context.Context) bool {
	if !r.ready.Load() {
		return false
	}
	if r.bus != nil && !r.bus.Healthy() {
		return false
	}
	return r.store == nil || r.store.Healthy(ctx)
}
