package api

import (
	"net/http"
	"sort"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/pagesmith/pagesmith/pkg/pipeline"
)

// listTasksHandler handles GET /tasks: every job projected to the task
// shape the front-end proxy consumes, oldest first.
func (s *Server) listTasksHandler(c *echo.Context) error {
	all := s.index.List()
	sort.Slice(all, func(i, j int) bool { return all[i].StartedAt.Before(all[j].StartedAt) })

	tasks := make([]TaskProjection, 0, len(all))
	for _, job := range all {
		tasks = append(tasks, TaskProjection{
			TaskID:    job.ID,
			JobID:     job.ID,
			Status:    string(job.Status),
			CreatedAt: job.StartedAt.UTC().Format(time.RFC3339),
			Progress:  pipeline.Progress(len(job.CompletedStages)),
		})
	}
	return c.JSON(http.StatusOK, tasks)
}
