package server

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"fortifit-backend/internal/auth"
	"fortifit-backend/internal/form"
	"fortifit-backend/internal/planner"
)

const missingKeyMessage = "Missing API key configuration"

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Raw   any    `json:"raw,omitempty"`
}

type planResponse struct {
	OK   bool   `json:"ok"`
	Plan string `json:"plan"`
}

type healthResponse struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
	Port    int    `json:"port"`
	Model   string `json:"model"`
}

// RegisterRoutes builds the echo router with middleware.
func (s *Server) RegisterRoutes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.New().String() },
	}))
	e.Use(s.requestLogger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))
	e.Use(middleware.BodyLimit(s.cfg.BodyLimit))

	e.GET("/health", s.healthHandler)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	plan := []echo.MiddlewareFunc{auth.Middleware(s.cfg.AuthSecret)}
	if s.cfg.RateLimit > 0 {
		plan = append(plan, middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStore(rate.Limit(s.cfg.RateLimit)),
			DenyHandler: func(c echo.Context, identifier string, err error) error {
				s.recordRequest("rate_limited")
				return c.JSON(http.StatusTooManyRequests, errorResponse{Error: "Too many requests"})
			},
		}))
	}
	e.POST("/api/plan", s.planHandler, plan...)

	return e
}

func (s *Server) healthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		OK:      true,
		Service: s.cfg.ServiceName,
		Port:    s.cfg.Port,
		Model:   s.cfg.GeminiModel,
	})
}

func (s *Server) planHandler(c echo.Context) error {
	f, err := form.Decode(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		s.recordRequest("bad_request")
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	plan, err := s.planner.Generate(c.Request().Context(), f)
	if err == nil {
		s.recordRequest("ok")
		return c.JSON(http.StatusOK, planResponse{OK: true, Plan: plan.Text})
	}

	log := s.log.With().Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).Logger()

	var stageErr *planner.StageError
	switch {
	case errors.Is(err, planner.ErrMissingAPIKey):
		s.recordRequest("config_error")
		log.Error().Msg("GEMINI_API_KEY is not set")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: missingKeyMessage})
	case errors.As(err, &stageErr):
		s.recordRequest(stageResult(stageErr.Stage))
		log.Warn().Int("stage", stageErr.Stage).Str("reason", stageErr.Reason).Msg("plan generation failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: stageErr.Error(), Raw: stageErr.Raw})
	default:
		s.recordRequest("internal_error")
		log.Error().Err(err).Msg("plan pipeline fault")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func stageResult(stage int) string {
	if stage == 1 {
		return "stage1_error"
	}
	return "stage2_error"
}

// errorHandler renders echo errors (413, 404, panics caught by Recover) in
// the same {ok, error} shape as handler errors.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	}
	if code >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, errorResponse{Error: msg})
	}
	if err != nil {
		s.log.Error().Err(err).Msg("failed to write error response")
	}
}
