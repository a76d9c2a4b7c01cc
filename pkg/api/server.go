// Package api exposes the orchestrator's HTTP surface: job submission,
// job status, aggregate stats, health, and metrics.
package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/pagesmith/pagesmith/pkg/intake"
	"github.com/pagesmith/pagesmith/pkg/jobs"
	"github.com/pagesmith/pagesmith/pkg/metrics"
)

// Server is the HTTP API server.
type Server struct {
	echo     *echo.Echo
	srv      *http.Server
	index    *jobs.Index
	admitter *intake.Admitter
	limiter  *ipRateLimiter
	metrics  *metrics.Metrics
}

// NewServer creates the API server and registers all routes.
func NewServer(index *jobs.Index, admitter *intake.Admitter, m *metrics.Metrics) *Server {
	s := &Server{
		echo:     echo.New(),
		index:    index,
		admitter: admitter,
		limiter:  newIPRateLimiter(submitWindow),
		metrics:  m,
	}

	s.echo.Use(securityHeaders())

	s.echo.POST("/jobs", s.submitJobHandler)
	s.echo.GET("/jobs", s.listJobsHandler)
	s.echo.GET("/jobs/:id", s.getJobHandler)
	s.echo.GET("/tasks", s.listTasksHandler)
	s.echo.GET("/health", s.healthHandler)

	metricsHandler := m.Handler()
	s.echo.GET("/metrics", func(c *echo.Context) error {
		metricsHandler.ServeHTTP(c.Response(), c.Request())
		return nil
	})

	return s
}

// Start begins serving on addr. Blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s.echo}
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server: no new connections are accepted
// and in-flight requests get until ctx's deadline to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.stop()
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
