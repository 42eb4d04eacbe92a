package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fortifit-backend/internal/shared"
)

// scriptedTransport returns the queued replies in order and then repeats
// the last one.
type scriptedTransport struct {
	mu      sync.Mutex
	replies []Reply
	errs    []error
	calls   int
	prompts []string
}

func (s *scriptedTransport) Send(ctx context.Context, prompt string) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := min(s.calls, len(s.replies)-1)
	s.calls++
	s.prompts = append(s.prompts, prompt)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.replies[i], err
}

func TestClientGenerate(t *testing.T) {
	t.Run("FirstAttemptSucceeds", func(t *testing.T) {
		tr := &scriptedTransport{replies: []Reply{{Text: "plan", Usage: shared.TokenUsage{PromptTokens: 10}}}}
		res := NewClient(tr, WithRetries(1, 0)).Generate(context.Background(), "p")

		assert.True(t, res.Success)
		assert.Equal(t, "plan", res.Text)
		assert.Equal(t, 1, res.Attempts)
		assert.Equal(t, 10, res.Usage.PromptTokens)
		assert.Equal(t, 1, tr.calls)
		assert.Equal(t, []string{"p"}, tr.prompts)
	})

	t.Run("RetriesThenSucceeds", func(t *testing.T) {
		tr := &scriptedTransport{replies: []Reply{
			{Status: 503, ErrorMessage: "overloaded", Usage: shared.TokenUsage{PromptTokens: 4}},
			{Text: "plan", Usage: shared.TokenUsage{PromptTokens: 6}},
		}}
		res := NewClient(tr, WithRetries(1, 0)).Generate(context.Background(), "p")

		assert.True(t, res.Success)
		assert.Equal(t, 2, res.Attempts)
		assert.Equal(t, 10, res.Usage.PromptTokens)
		assert.Equal(t, 2, tr.calls)
	})

	t.Run("ExhaustsAttempts", func(t *testing.T) {
		raw := map[string]any{"promptFeedback": map[string]any{"blockReason": "SAFETY"}}
		tr := &scriptedTransport{replies: []Reply{{Status: 200, BlockReason: "SAFETY", Raw: raw}}}
		res := NewClient(tr, WithRetries(1, 0)).Generate(context.Background(), "p")

		assert.False(t, res.Success)
		assert.Empty(t, res.Text)
		assert.Equal(t, "SAFETY", res.Error)
		assert.Equal(t, raw, res.Raw)
		assert.Equal(t, 2, res.Attempts)
		assert.Equal(t, 2, tr.calls)
	})

	t.Run("LastFailureWins", func(t *testing.T) {
		tr := &scriptedTransport{replies: []Reply{
			{Status: 500, ErrorMessage: "first"},
			{Status: 429},
		}}
		res := NewClient(tr, WithRetries(1, 0)).Generate(context.Background(), "p")

		assert.Equal(t, "HTTP 429", res.Error)
		assert.Nil(t, res.Raw)
	})

	t.Run("NetworkError", func(t *testing.T) {
		tr := &scriptedTransport{
			replies: []Reply{{}},
			errs:    []error{errors.New("dial tcp: connection refused")},
		}
		res := NewClient(tr, WithRetries(0, 0)).Generate(context.Background(), "p")

		assert.False(t, res.Success)
		assert.Equal(t, "dial tcp: connection refused", res.Error)
		assert.Nil(t, res.Raw)
		assert.Equal(t, 1, tr.calls)
	})

	t.Run("CustomRetryCount", func(t *testing.T) {
		tr := &scriptedTransport{replies: []Reply{{Status: 500}}}
		res := NewClient(tr, WithRetries(3, 0)).Generate(context.Background(), "p")

		assert.Equal(t, 4, res.Attempts)
		assert.Equal(t, 4, tr.calls)
	})

	t.Run("DefaultsMakeTwoAttempts", func(t *testing.T) {
		tr := &scriptedTransport{replies: []Reply{{Status: 500}}}
		c := NewClient(tr)
		require.Equal(t, DefaultMaxRetries, c.maxRetries)
		require.Equal(t, DefaultRetryBackoff, c.wait)

		start := time.Now()
		res := c.Generate(context.Background(), "p")
		assert.Equal(t, 2, tr.calls)
		assert.Equal(t, "HTTP 500", res.Error)
		assert.GreaterOrEqual(t, time.Since(start), DefaultRetryBackoff)
	})

	t.Run("CancelledDuringWait", func(t *testing.T) {
		tr := &scriptedTransport{replies: []Reply{{Status: 500}}}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		res := NewClient(tr, WithRetries(5, time.Hour)).Generate(ctx, "p")

		assert.False(t, res.Success)
		assert.Equal(t, 1, tr.calls)
		assert.NotEmpty(t, res.Error)
	})
}

func TestReplyReason(t *testing.T) {
	tests := []struct {
		name  string
		reply Reply
		want  string
	}{
		{"BlockReasonFirst", Reply{BlockReason: "SAFETY", ErrorMessage: "x", Status: 400}, "SAFETY"},
		{"ErrorMessage", Reply{ErrorMessage: "API key not valid", Status: 400}, "API key not valid"},
		{"StatusOnly", Reply{Status: 502}, "HTTP 502"},
		{"EmptyOK", Reply{Status: 200}, "HTTP 200"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.reply.Reason())
		})
	}
}
