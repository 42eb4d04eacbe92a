package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"fortifit-backend/internal/config"
	"fortifit-backend/internal/form"
	"fortifit-backend/internal/llm"
	"fortifit-backend/internal/metrics"
	"fortifit-backend/internal/notify"
	"fortifit-backend/internal/planner"
	"fortifit-backend/internal/sanitize"
	"fortifit-backend/internal/server"
)

// App holds the application's dependencies.
type App struct {
	cfg       *config.Config
	log       zerolog.Logger
	transport llm.Transport
	recorder  *metrics.Recorder
	notifier  notify.Notifier
	planner   *planner.Planner
	closers   []llm.Closer
}

// Option adjusts how New wires dependencies.
type Option func(*options)

type options struct {
	now      func() time.Time
	notifier notify.Notifier
}

// WithClock replaces time.Now for the planner.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithNotifier bypasses the Telegram configuration.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// New builds the full dependency graph from cfg.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...Option) (*App, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, recorder: metrics.NewRecorder()}

	if a.transport, err = a.newTransport(ctx); err != nil {
		return nil, err
	}

	a.notifier = o.notifier
	if a.notifier == nil {
		a.notifier = a.newNotifier()
	}

	client := llm.NewClient(a.transport,
		llm.WithRetries(cfg.MaxRetries, cfg.RetryBackoff),
		llm.WithAttemptTimeout(cfg.RequestTimeout),
		llm.WithLogger(log.With().Str("component", "llm").Logger()),
	)

	plannerOpts := []planner.Option{
		planner.WithClock(o.now),
		planner.WithLocation(loc),
		planner.WithRecorder(a.recorder),
		planner.WithNotifier(a.notifier),
		planner.WithLogger(log.With().Str("component", "planner").Logger()),
		planner.WithBloatThreshold(cfg.PromptBloatTokens),
	}
	if cfg.StripHTML {
		plannerOpts = append(plannerOpts, planner.WithOutputFilter(sanitize.StripHTML))
	}
	a.planner = planner.NewPlanner(client, cfg.GeminiAPIKey, plannerOpts...)

	return a, nil
}

func (a *App) newTransport(ctx context.Context) (llm.Transport, error) {
	switch a.cfg.GeminiTransport {
	case config.TransportSDK:
		if a.cfg.GeminiAPIKey == "" {
			// Without a key the planner fails before any transport call.
			break
		}
		t, err := llm.NewSDKTransport(ctx, a.cfg.GeminiAPIKey, a.cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, t)
		return t, nil
	case config.TransportREST:
	default:
		return nil, fmt.Errorf("unsupported GEMINI_TRANSPORT %q", a.cfg.GeminiTransport)
	}
	return llm.NewRESTTransport(a.cfg.GeminiBaseURL, a.cfg.GeminiAPIKey, a.cfg.GeminiModel).
		SetTimeout(a.cfg.RequestTimeout), nil
}

func (a *App) newNotifier() notify.Notifier {
	if !a.cfg.AlertsEnabled() {
		return notify.Nop{}
	}
	tg, err := notify.NewTelegram(a.cfg.TelegramBotToken, a.cfg.TelegramAlertChatID)
	if err != nil {
		a.log.Warn().Err(err).Msg("telegram alerts disabled")
		return notify.Nop{}
	}
	return tg
}

// Server returns the HTTP server bound to this App's planner and metrics.
func (a *App) Server() *server.Server {
	return server.New(a.cfg, a.planner, a.recorder, a.log)
}

// Serve runs the HTTP server until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	return a.Server().Run(ctx)
}

// GeneratePlan runs the pipeline once, outside of HTTP.
func (a *App) GeneratePlan(ctx context.Context, f form.Form) (*planner.Plan, error) {
	return a.planner.Generate(ctx, f)
}

// Recorder exposes the metrics registry.
func (a *App) Recorder() *metrics.Recorder {
	return a.recorder
}

// Close waits for pending operator alerts and releases SDK clients.
func (a *App) Close() error {
	a.planner.Wait()

	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
