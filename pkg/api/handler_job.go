package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/pagesmith/pagesmith/pkg/jobs"
)

// submitJobHandler handles POST /jobs.
// Returns 201 as soon as the first stage is dispatched; subsequent
// stages run off the event loop and surface only via GET /jobs/:id.
func (s *Server) submitJobHandler(c *echo.Context) error {
	var req SubmitJobRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// Validate before the rate limit check so rejected submissions
	// never spend the caller's quota.
	if req.Product == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "product field is required")
	}
	if req.Audience == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "audience field is required")
	}

	// Duplicate rejection takes precedence over rate limiting: a resent
	// job id is refused outright, not deferred to the next window.
	if req.JobID != "" {
		if _, exists := s.index.Lookup(req.JobID); exists {
			return mapAdmitError(jobs.ErrDuplicate)
		}
	}

	if !s.limiter.allow(clientIP(c.Request())) {
		c.Response().Header().Set("Retry-After", "60")
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded: one submission per minute")
	}

	jobID, err := s.admitter.Admit(c.Request().Context(), req.JobID, jobs.Brief{
		Product:  req.Product,
		Audience: req.Audience,
		Tone:     req.Tone,
	})
	if err != nil {
		return mapAdmitError(err)
	}

	return c.JSON(http.StatusCreated, &SubmitJobResponse{
		JobID:  jobID,
		Status: string(jobs.StatusQueued),
	})
}

// getJobHandler handles GET /jobs/:id.
func (s *Server) getJobHandler(c *echo.Context) error {
	jobID := c.Param("id")
	if jobID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "job id is required")
	}

	job, ok := s.index.Lookup(jobID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	return c.JSON(http.StatusOK, job)
}

// listJobsHandler handles GET /jobs: aggregate counts by status.
func (s *Server) listJobsHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &StatsResponse{
		Stats:     s.index.Stats(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
