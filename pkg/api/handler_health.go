package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/pagesmith/pagesmith/pkg/version"
)

// healthHandler handles GET /health.
// Returns a minimal, safe response suitable for unauthenticated access.
// Only the orchestrator's own state is reported; queue and blob store
// reachability are excluded so an external outage does not make the
// platform restart a healthy orchestrator.
func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   version.Commit(),
		Jobs:      s.index.Stats(),
	})
}
