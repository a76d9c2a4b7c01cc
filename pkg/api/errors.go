package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/pagesmith/pagesmith/pkg/intake"
	"github.com/pagesmith/pagesmith/pkg/jobs"
)

// mapAdmitError maps admission errors to HTTP error responses.
// Duplicate job ids are reported as 500: the wire contract treats a
// rejected duplicate admission as an internal rejection, not a conflict.
func mapAdmitError(err error) *echo.HTTPError {
	var validErr *intake.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	if errors.Is(err, jobs.ErrDuplicate) {
		return echo.NewHTTPError(http.StatusInternalServerError, "job already admitted")
	}

	slog.Error("Admission failed", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
