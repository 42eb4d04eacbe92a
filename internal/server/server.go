/*
Package server implements the HTTP transport for plan generation: the
health probe, the plan endpoint and the metrics scrape.
*/
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"fortifit-backend/internal/config"
	"fortifit-backend/internal/form"
	"fortifit-backend/internal/metrics"
	"fortifit-backend/internal/planner"
)

const shutdownGrace = 10 * time.Second

// PlanGenerator runs the plan pipeline for one questionnaire.
type PlanGenerator interface {
	Generate(ctx context.Context, f form.Form) (*planner.Plan, error)
}

// Server holds the dependencies shared by all handlers.
type Server struct {
	cfg     *config.Config
	planner PlanGenerator
	metrics *metrics.Recorder
	log     zerolog.Logger

	// Echo is the router built by RegisterRoutes.
	*echo.Echo
}

// New wires handlers and middleware. rec may be nil, in which case
// /metrics is not served.
func New(cfg *config.Config, p PlanGenerator, rec *metrics.Recorder, log zerolog.Logger) *Server {
	s := &Server{cfg: cfg, planner: p, metrics: rec, log: log}
	s.Echo = s.RegisterRoutes()
	return s
}

// HTTPServer returns a configured *http.Server for the router. Write
// timeout covers two sequential model calls with retries.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Echo,
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      15 * time.Minute,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := s.HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().
			Int("port", s.cfg.Port).
			Str("model", s.cfg.GeminiModel).
			Str("transport", s.cfg.GeminiTransport).
			Msg("fortifit backend listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	<-errCh
	s.log.Info().Msg("server exiting")
	return nil
}

func (s *Server) recordRequest(result string) {
	if s.metrics != nil {
		s.metrics.RecordRequest(result)
	}
}
