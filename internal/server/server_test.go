package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fortifit-backend/internal/auth"
	"fortifit-backend/internal/config"
	"fortifit-backend/internal/form"
	"fortifit-backend/internal/llm"
	"fortifit-backend/internal/metrics"
	"fortifit-backend/internal/planner"
)

// stubTransport replays replies in order, repeating the last one.
type stubTransport struct {
	mu      sync.Mutex
	replies []llm.Reply
	prompts []string
}

func (s *stubTransport) Send(ctx context.Context, prompt string) (llm.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	r := s.replies[min(len(s.prompts), len(s.replies))-1]
	return r, nil
}

func (s *stubTransport) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

type panicPlanner struct{}

func (panicPlanner) Generate(context.Context, form.Form) (*planner.Plan, error) {
	panic("nil map write")
}

func testConfig() *config.Config {
	return &config.Config{
		ServiceName:     "fortifit-backend",
		Port:            5000,
		GeminiAPIKey:    "key",
		GeminiModel:     "gemini-2.5-pro",
		GeminiTransport: config.TransportREST,
		BodyLimit:       "1M",
	}
}

func newTestServer(t *testing.T, cfg *config.Config, tr llm.Transport) (*Server, *metrics.Recorder) {
	t.Helper()
	rec := metrics.NewRecorder()
	client := llm.NewClient(tr, llm.WithRetries(1, 0))
	p := planner.NewPlanner(client, cfg.GeminiAPIKey,
		planner.WithClock(func() time.Time { return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC) }),
		planner.WithRecorder(rec),
	)
	return New(cfg, p, rec, zerolog.Nop()), rec
}

func postPlan(t *testing.T, h http.Handler, body string, header http.Header) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/plan", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return rec.Code, out
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), &stubTransport{replies: []llm.Reply{{Text: "x"}}})

	resp := get(srv, "/health")

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, map[string]any{
		"ok":      true,
		"service": "fortifit-backend",
		"port":    float64(5000),
		"model":   "gemini-2.5-pro",
	}, out)
	assert.NotEmpty(t, resp.Header().Get("X-Request-ID"))
}

func TestPlanSuccess(t *testing.T) {
	tr := &stubTransport{replies: []llm.Reply{{Text: "DRAFT"}, {Text: "FINAL PLAN"}}}
	srv, _ := newTestServer(t, testConfig(), tr)

	status, out := postPlan(t, srv, `{"name":"Ola","goal":"redukcja","locationsMulti":["Dom"]}`, nil)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"ok": true, "plan": "FINAL PLAN"}, out)
	require.Equal(t, 2, tr.calls())
	assert.Contains(t, tr.prompts[0], "- Imię: Ola")
	assert.Contains(t, tr.prompts[1], "DRAFT")
}

func TestPlanEmptyBody(t *testing.T) {
	tr := &stubTransport{replies: []llm.Reply{{Text: "DRAFT"}, {Text: "FINAL"}}}
	srv, _ := newTestServer(t, testConfig(), tr)

	status, out := postPlan(t, srv, "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "FINAL", out["plan"])
	assert.Contains(t, tr.prompts[0], "- Imię: anonim")
}

func TestPlanDraftBlocked(t *testing.T) {
	tr := &stubTransport{replies: []llm.Reply{{
		Status:      200,
		Raw:         map[string]any{"promptFeedback": map[string]any{"blockReason": "SAFETY"}},
		BlockReason: "SAFETY",
	}}}
	srv, rec := newTestServer(t, testConfig(), tr)

	status, out := postPlan(t, srv, `{"goal":"masa"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, false, out["ok"])
	assert.Equal(t, "Stage 1 error: SAFETY", out["error"])
	assert.Equal(t, map[string]any{"promptFeedback": map[string]any{"blockReason": "SAFETY"}}, out["raw"])
	assert.Equal(t, 2, tr.calls())
	assertMetric(t, rec, `fortifit_plan_requests_total{result="stage1_error"} 1`)
}

func TestPlanAuditFailure(t *testing.T) {
	tr := &stubTransport{replies: []llm.Reply{
		{Text: "DRAFT"},
		{Status: 429, ErrorMessage: "Resource has been exhausted"},
	}}
	srv, _ := newTestServer(t, testConfig(), tr)

	status, out := postPlan(t, srv, `{}`, nil)

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Stage 2 error: Resource has been exhausted", out["error"])
	assert.NotContains(t, out, "plan")
	assert.Equal(t, 3, tr.calls())
}

func TestPlanMissingAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.GeminiAPIKey = ""
	tr := &stubTransport{replies: []llm.Reply{{Text: "x"}}}
	srv, _ := newTestServer(t, cfg, tr)

	status, out := postPlan(t, srv, `{"name":"Ola"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, map[string]any{"ok": false, "error": "Missing API key configuration"}, out)
	assert.Zero(t, tr.calls())
}

func TestPlanBadRequest(t *testing.T) {
	tr := &stubTransport{replies: []llm.Reply{{Text: "x"}}}
	srv, _ := newTestServer(t, testConfig(), tr)

	for _, body := range []string{`[1,2]`, `"plan"`, `{"name":`, `{} garbage`, `{}{"x":1}`} {
		status, out := postPlan(t, srv, body, nil)
		assert.Equal(t, http.StatusBadRequest, status, body)
		assert.Equal(t, false, out["ok"])
		assert.NotEmpty(t, out["error"])
	}
	assert.Zero(t, tr.calls())
}

func TestPlanBodyTooLarge(t *testing.T) {
	tr := &stubTransport{replies: []llm.Reply{{Text: "x"}}}
	srv, _ := newTestServer(t, testConfig(), tr)

	big := `{"foodPrefsAllergies":"` + strings.Repeat("a", 1100*1024) + `"}`
	status, out := postPlan(t, srv, big, nil)

	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
	assert.Equal(t, false, out["ok"])
	assert.Zero(t, tr.calls())
}

func TestPlanRequiresTokenWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.AuthSecret = "s3cret"
	tr := &stubTransport{replies: []llm.Reply{{Text: "D"}, {Text: "F"}}}
	srv, _ := newTestServer(t, cfg, tr)

	status, _ := postPlan(t, srv, `{}`, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	token, err := auth.IssueToken("s3cret", "app", time.Minute)
	require.NoError(t, err)
	status, out := postPlan(t, srv, `{}`, http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "F", out["plan"])
}

func TestPlanRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 0.001
	tr := &stubTransport{replies: []llm.Reply{{Text: "D"}, {Text: "F"}}}
	srv, _ := newTestServer(t, cfg, tr)

	status, _ := postPlan(t, srv, `{}`, nil)
	assert.Equal(t, http.StatusOK, status)

	status, out := postPlan(t, srv, `{}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, false, out["ok"])
}

func TestPanicBecomesJSON(t *testing.T) {
	srv := New(testConfig(), panicPlanner{}, nil, zerolog.Nop())

	status, out := postPlan(t, srv, `{}`, nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, false, out["ok"])
	assert.Contains(t, out["error"], "nil map write")
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), &stubTransport{replies: []llm.Reply{{Text: "x"}}})

	req := httptest.NewRequest(http.MethodOptions, "/api/plan", nil)
	req.Header.Set("Origin", "https://app.fortifit.pl")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, req)

	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflightEchoesRequestedHeaders(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), &stubTransport{replies: []llm.Reply{{Text: "x"}}})

	req := httptest.NewRequest(http.MethodOptions, "/api/plan", nil)
	req.Header.Set("Origin", "https://app.fortifit.pl")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type,x-client-version")
	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, "content-type,x-client-version", resp.Header().Get("Access-Control-Allow-Headers"))
}

func assertMetric(t *testing.T, rec *metrics.Recorder, line string) {
	t.Helper()
	body, err := io.ReadAll(get(rec.Handler(), "/metrics").Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), line)
}

func TestMetricsEndpoint(t *testing.T) {
	tr := &stubTransport{replies: []llm.Reply{{Text: "D"}, {Text: "F"}}}
	srv, _ := newTestServer(t, testConfig(), tr)
	postPlan(t, srv, `{}`, nil)

	resp := get(srv, "/metrics")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `fortifit_plan_requests_total{result="ok"} 1`)
	assert.Contains(t, string(body), `fortifit_generation_attempts_total{agent="draft"} 1`)
}
