package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"fortifit-backend/internal/shared"
)

const (
	generatePath = "/v1beta/models/{model}:generateContent"
	apiKeyHeader = "x-goog-api-key"
)

// RESTTransport calls the Gemini generateContent endpoint directly.
type RESTTransport struct {
	client *resty.Client
	apiKey string
	model  string
}

// NewRESTTransport creates a transport for baseURL (scheme and host only).
func NewRESTTransport(baseURL, apiKey, model string) *RESTTransport {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json")

	return &RESTTransport{client: c, apiKey: apiKey, model: model}
}

// SetTimeout bounds every request made by the transport.
func (t *RESTTransport) SetTimeout(d time.Duration) *RESTTransport {
	if d > 0 {
		t.client.SetTimeout(d)
	}
	return t
}

type part struct {
	Text string `json:"text,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type inlineData struct {
	Data string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text            string      `json:"text"`
				InlineData      *inlineData `json:"inline_data"`
				InlineDataCamel *inlineData `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

// Send posts a single user turn and interprets the response body. Any HTTP
// status is a Reply; only transport failures are returned as errors.
func (t *RESTTransport) Send(ctx context.Context, prompt string) (Reply, error) {
	body := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetPathParam("model", t.model).
		SetHeader(apiKeyHeader, t.apiKey).
		SetBody(&body).
		Post(generatePath)
	if err != nil {
		// url.Error prints the request URL; report the cause only.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return Reply{}, fmt.Errorf("gemini request: %w", err)
	}

	return parseReply(resp.StatusCode(), resp.Body(), t.model), nil
}

func parseReply(status int, body []byte, model string) Reply {
	reply := Reply{Status: status}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		// Not JSON: nothing to extract, and nothing to pass through.
		return reply
	}
	reply.Raw = raw

	var gr generateResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return reply
	}

	reply.Text = firstPartText(gr)
	reply.BlockReason = gr.PromptFeedback.BlockReason
	reply.ErrorMessage = gr.Error.Message
	reply.Usage = shared.TokenUsage{
		PromptTokens:     gr.UsageMetadata.PromptTokenCount,
		CompletionTokens: gr.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      gr.UsageMetadata.TotalTokenCount,
		Model:            model,
	}
	if gr.ModelVersion != "" {
		reply.Usage.Model = gr.ModelVersion
	}
	return reply
}

func firstPartText(gr generateResponse) string {
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	p := gr.Candidates[0].Content.Parts[0]
	switch {
	case p.Text != "":
		return p.Text
	case p.InlineData != nil:
		return p.InlineData.Data
	case p.InlineDataCamel != nil:
		return p.InlineDataCamel.Data
	default:
		return ""
	}
}
