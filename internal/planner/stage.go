package planner

import (
	"context"
	"time"

	"fortifit-backend/internal/notify"
	"fortifit-backend/internal/shared"
)

// StageResult is the text one stage produced plus its metadata.
type StageResult struct {
	Text string
	Meta shared.AgentMeta
}

func (p *Planner) runStage(ctx context.Context, number int, name, promptText string) (StageResult, error) {
	start := time.Now()
	res := p.generator.Generate(ctx, promptText)

	meta := shared.AgentMeta{
		AgentName: name,
		Usage:     res.Usage,
		Latency:   time.Since(start),
		Attempts:  res.Attempts,
		Success:   res.Success,
	}
	p.recorder.RecordMeta(meta)

	if p.bloatTokens > 0 && meta.Usage.PromptTokens > p.bloatTokens {
		p.alert(ctx, notify.ContextBloat(name, meta.Usage.Model, meta.Usage.PromptTokens))
	}

	event := p.log.Info()
	if !res.Success {
		event = p.log.Warn().Str("reason", res.Error)
	}
	event.
		Str("stage", name).
		Int("attempts", res.Attempts).
		Int("prompt_chars", len(promptText)).
		Int("prompt_tokens", meta.Usage.PromptTokens).
		Int("completion_tokens", meta.Usage.CompletionTokens).
		Dur("latency", meta.Latency).
		Msg("stage finished")

	if !res.Success {
		p.alert(ctx, notify.StageFailure(name, res.Attempts, res.Error))
		return StageResult{Meta: meta}, &StageError{
			Stage:    number,
			Agent:    name,
			Reason:   res.Error,
			Raw:      res.Raw,
			Attempts: res.Attempts,
		}
	}
	return StageResult{Text: res.Text, Meta: meta}, nil
}

// alert delivers an operator alert in the background, even when the request
// was cancelled. It never blocks the caller: when maxPendingAlerts are
// already in flight the alert is dropped. Delivery failures are logged only.
func (p *Planner) alert(ctx context.Context, text string) {
	select {
	case p.alertSlots <- struct{}{}:
	default:
		p.log.Warn().Msg("admin alert dropped, too many pending")
		return
	}

	p.alerts.Add(1)
	go func() {
		defer p.alerts.Done()
		defer func() { <-p.alertSlots }()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.alertTimeout)
		defer cancel()

		done := make(chan error, 1)
		go func() { done <- p.notifier.Notify(ctx, text) }()

		var err error
		select {
		case err = <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
		if err != nil {
			p.log.Error().Err(err).Msg("failed to send admin alert")
		}
	}()
}
