package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"fortifit-backend/internal/shared"
)

// SDKTransport sends prompts through the Gemini Go SDK.
type SDKTransport struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
}

// NewSDKTransport creates a Gemini SDK client for model. Extra options are
// appended after the API key (endpoint overrides, HTTP client).
func NewSDKTransport(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*SDKTransport, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &SDKTransport{client: client, model: client.GenerativeModel(model), name: model}, nil
}

// Send issues one GenerateContent call. Blocked prompts and API errors are
// turned into a Reply so the caller can apply its retry policy.
func (t *SDKTransport) Send(ctx context.Context, prompt string) (Reply, error) {
	resp, err := t.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		if reply, ok := sdkFailure(err); ok {
			return reply, nil
		}
		return Reply{}, fmt.Errorf("failed to generate content: %w", err)
	}
	return sdkReply(resp, t.name), nil
}

// Close closes the underlying Gemini client.
func (t *SDKTransport) Close() error {
	return t.client.Close()
}

func sdkReply(resp *genai.GenerateContentResponse, model string) Reply {
	reply := Reply{Status: 200, Raw: resp}
	if resp == nil {
		return reply
	}
	if u := resp.UsageMetadata; u != nil {
		reply.Usage = shared.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
			Model:            model,
		}
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != genai.BlockReasonUnspecified {
		reply.BlockReason = fb.BlockReason.String()
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return reply
	}

	switch p := resp.Candidates[0].Content.Parts[0].(type) {
	case genai.Text:
		reply.Text = string(p)
	case genai.Blob:
		reply.Text = string(p.Data)
	}
	return reply
}

func sdkFailure(err error) (Reply, bool) {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		reply := Reply{Status: 200, Raw: blocked}
		switch {
		case blocked.PromptFeedback != nil && blocked.PromptFeedback.BlockReason != genai.BlockReasonUnspecified:
			reply.BlockReason = blocked.PromptFeedback.BlockReason.String()
		case blocked.Candidate != nil:
			reply.BlockReason = blocked.Candidate.FinishReason.String()
		default:
			reply.BlockReason = blocked.Error()
		}
		return reply, true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error()
		}
		return Reply{ErrorMessage: msg, Status: apiErr.Code, Raw: apiErr}, true
	}
	return Reply{}, false
}
