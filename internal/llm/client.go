package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"fortifit-backend/internal/shared"
)

const (
	DefaultMaxRetries   = 1
	DefaultRetryBackoff = 600 * time.Millisecond
)

// Client wraps a Transport with a fixed-interval retry policy.
type Client struct {
	transport  Transport
	maxRetries int
	wait       time.Duration
	timeout    time.Duration
	log        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRetries sets how many extra attempts follow a failed one and the
// constant pause between them.
func WithRetries(maxRetries int, wait time.Duration) Option {
	return func(c *Client) {
		if maxRetries >= 0 {
			c.maxRetries = maxRetries
		}
		if wait >= 0 {
			c.wait = wait
		}
	}
}

// WithAttemptTimeout bounds each attempt. Zero leaves attempts unbounded.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger used for per-attempt events.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient returns a Client that makes 1+DefaultMaxRetries attempts unless
// configured otherwise.
func NewClient(t Transport, opts ...Option) *Client {
	c := &Client{
		transport:  t,
		maxRetries: DefaultMaxRetries,
		wait:       DefaultRetryBackoff,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// attemptState carries what the retry loop knows between attempts.
type attemptState struct {
	attempts   int
	lastReason string
	lastRaw    any
	usage      shared.TokenUsage
}

func (s *attemptState) fail(reason string, raw any) {
	s.lastReason = reason
	s.lastRaw = raw
}

func (s *attemptState) result() Result {
	return Result{
		Error:    s.lastReason,
		Raw:      s.lastRaw,
		Usage:    s.usage,
		Attempts: s.attempts,
	}
}

// Generate calls the transport until it returns non-empty text or the
// attempts run out. It never returns an error value; failures are
// reported in Result.Error with the last upstream body in Result.Raw.
func (c *Client) Generate(ctx context.Context, prompt string) Result {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.wait), uint64(c.maxRetries)),
		ctx,
	)

	var st attemptState
	for {
		st.attempts++
		reply, err := c.send(ctx, prompt)
		st.usage = st.usage.Add(reply.Usage)

		switch {
		case err != nil:
			st.fail(err.Error(), nil)
		case reply.Text != "":
			return Result{
				Success:  true,
				Text:     reply.Text,
				Raw:      reply.Raw,
				Usage:    st.usage,
				Attempts: st.attempts,
			}
		default:
			st.fail(reply.Reason(), reply.Raw)
		}

		c.log.Warn().
			Int("attempt", st.attempts).
			Str("reason", st.lastReason).
			Msg("generation attempt failed")

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			return st.result()
		}
		if err := sleep(ctx, wait); err != nil {
			st.fail(err.Error(), st.lastRaw)
			return st.result()
		}
	}
}

func (c *Client) send(ctx context.Context, prompt string) (Reply, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.transport.Send(ctx, prompt)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
