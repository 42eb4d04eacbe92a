package llm

import (
	"context"
	"fmt"

	"fortifit-backend/internal/shared"
)

// Reply is what a single upstream call produced. Text is empty on any kind
// of refusal or error; the other fields say why.
type Reply struct {
	Text         string
	BlockReason  string
	ErrorMessage string
	Status       int
	Raw          any
	Usage        shared.TokenUsage
}

// Reason is the most specific explanation for an empty reply.
func (r Reply) Reason() string {
	switch {
	case r.BlockReason != "":
		return r.BlockReason
	case r.ErrorMessage != "":
		return r.ErrorMessage
	default:
		return fmt.Sprintf("HTTP %d", r.Status)
	}
}

// Transport performs one generation request against the model.
// An error means no reply could be read at all (network, timeout).
type Transport interface {
	Send(ctx context.Context, prompt string) (Reply, error)
}

// Result is the outcome of Generate after all attempts. Exactly one of
// Text (Success) or Error is meaningful.
type Result struct {
	Success  bool
	Text     string
	Error    string
	Raw      any
	Usage    shared.TokenUsage
	Attempts int
}

// Generator produces text for a prompt, retrying as configured.
type Generator interface {
	Generate(ctx context.Context, prompt string) Result
}

// Closer is an interface for closing resources.
type Closer interface {
	Close() error
}
