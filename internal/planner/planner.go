package planner

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fortifit-backend/internal/calendar"
	"fortifit-backend/internal/form"
	"fortifit-backend/internal/llm"
	"fortifit-backend/internal/notify"
	"fortifit-backend/internal/prompt"
	"fortifit-backend/internal/shared"
)

// Plan is the final, audited plan. The draft never leaves the pipeline.
type Plan struct {
	Text   string
	Stages []shared.AgentMeta
}

// Recorder receives metadata for every stage run, failed ones included.
type Recorder interface {
	RecordMeta(meta shared.AgentMeta)
}

type nopRecorder struct{}

func (nopRecorder) RecordMeta(shared.AgentMeta) {}

// Planner runs the two-stage draft and audit pipeline for one form.
type Planner struct {
	generator   llm.Generator
	apiKey      string
	now         func() time.Time
	loc         *time.Location
	recorder    Recorder
	notifier    notify.Notifier
	log         zerolog.Logger
	bloatTokens int
	filter      func(string) string

	alertTimeout time.Duration
	alertSlots   chan struct{}
	alerts       sync.WaitGroup
}

const (
	defaultAlertTimeout = 10 * time.Second
	maxPendingAlerts    = 8
)

// Option configures a Planner.
type Option func(*Planner)

// WithClock replaces time.Now as the source of "today".
func WithClock(now func() time.Time) Option {
	return func(p *Planner) { p.now = now }
}

// WithLocation sets the zone used for the local date shown in prompts.
func WithLocation(loc *time.Location) Option {
	return func(p *Planner) { p.loc = loc }
}

func WithRecorder(r Recorder) Option {
	return func(p *Planner) { p.recorder = r }
}

func WithNotifier(n notify.Notifier) Option {
	return func(p *Planner) { p.notifier = n }
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Planner) { p.log = l }
}

// WithBloatThreshold alerts when a stage prompt exceeds n tokens. Zero disables it.
func WithBloatThreshold(n int) Option {
	return func(p *Planner) { p.bloatTokens = n }
}

// WithAlertTimeout bounds each operator alert delivery.
func WithAlertTimeout(d time.Duration) Option {
	return func(p *Planner) { p.alertTimeout = d }
}

// WithOutputFilter post-processes the final plan text.
func WithOutputFilter(f func(string) string) Option {
	return func(p *Planner) { p.filter = f }
}

// NewPlanner creates a Planner. apiKey only gates requests; the generator
// is expected to carry it already.
func NewPlanner(generator llm.Generator, apiKey string, opts ...Option) *Planner {
	p := &Planner{
		generator: generator,
		apiKey:    apiKey,
		now:       time.Now,
		loc:       time.UTC,
		recorder:  nopRecorder{},
		notifier:  notify.Nop{},
		log:       zerolog.Nop(),

		alertTimeout: defaultAlertTimeout,
		alertSlots:   make(chan struct{}, maxPendingAlerts),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Wait blocks until alerts already sent by Generate have been delivered or
// timed out.
func (p *Planner) Wait() {
	p.alerts.Wait()
}

// Generate builds the draft prompt, generates a draft, audits it and
// returns the audited plan. Errors are ErrMissingAPIKey, *StageError or
// *InternalError.
func (p *Planner) Generate(ctx context.Context, f form.Form) (plan *Plan, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			p.log.Error().Interface("panic", r).Bytes("stack", stack).Msg("plan pipeline panicked")
			plan, err = nil, &InternalError{Value: r, Stack: stack}
		}
	}()

	if strings.TrimSpace(p.apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if f == nil {
		f = form.Form{}
	}

	now := p.now()
	pc := prompt.Context{
		Now:   calendar.NewTimeContext(now, p.loc),
		Event: calendar.Event(f.String("eventDate"), now),
	}

	draft, err := p.runStage(ctx, 1, shared.StageDraft, prompt.BuildDraft(f, pc))
	if err != nil {
		return nil, err
	}

	final, err := p.runStage(ctx, 2, shared.StageAudit, prompt.BuildAudit(draft.Text, f, pc))
	if err != nil {
		return nil, err
	}

	text := final.Text
	if p.filter != nil {
		text = p.filter(text)
	}
	return &Plan{Text: text, Stages: []shared.AgentMeta{draft.Meta, final.Meta}}, nil
}
