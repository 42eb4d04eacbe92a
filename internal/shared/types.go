package shared

import (
	"time"
)

// Stage names used as the agent label in logs, metrics and alerts.
const (
	StageDraft = "draft"
	StageAudit = "audit"
)

// TokenUsage tracks the tokens the model reported for one or more calls.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Model            string
}

// Add returns the sum of t and u. The model name of u wins when set.
func (t TokenUsage) Add(u TokenUsage) TokenUsage {
	sum := TokenUsage{
		PromptTokens:     t.PromptTokens + u.PromptTokens,
		CompletionTokens: t.CompletionTokens + u.CompletionTokens,
		TotalTokens:      t.TotalTokens + u.TotalTokens,
		Model:            t.Model,
	}
	if u.Model != "" {
		sum.Model = u.Model
	}
	return sum
}

// IsZero reports whether no tokens were counted.
func (t TokenUsage) IsZero() bool {
	return t.PromptTokens == 0 && t.CompletionTokens == 0 && t.TotalTokens == 0
}

// AgentMeta holds operational metadata for one pipeline stage.
type AgentMeta struct {
	AgentName string
	Usage     TokenUsage
	Latency   time.Duration
	Attempts  int
	Success   bool
}
