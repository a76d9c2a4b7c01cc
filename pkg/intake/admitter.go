// Package intake funnels job submissions into the pipeline controller.
// Both the HTTP POST path and the submissions-queue consumer go through
// the same Admitter so validation, id minting, and duplicate detection
// live in exactly one place.
package intake

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pagesmith/pagesmith/pkg/jobs"
)

// ValidationError reports a rejected submission brief.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid brief: %s %s", e.Field, e.Reason)
}

// JobAdmitter is the controller surface the intake paths need.
type JobAdmitter interface {
	Admit(ctx context.Context, jobID string, brief jobs.Brief) error
}

// Admitter validates briefs, mints job ids, and admits jobs.
type Admitter struct {
	ctrl     JobAdmitter
	validate *validator.Validate
}

// NewAdmitter creates the shared admission front door.
func NewAdmitter(ctrl JobAdmitter) *Admitter {
	return &Admitter{
		ctrl:     ctrl,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Admit validates the brief and admits the job, minting a fresh UUID
// when jobID is empty. Returns the admitted job id. Duplicate ids
// surface as jobs.ErrDuplicate from the index.
func (a *Admitter) Admit(ctx context.Context, jobID string, brief jobs.Brief) (string, error) {
	if err := a.validate.Struct(brief); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return "", &ValidationError{
				Field:  jsonField(verrs[0].Field()),
				Reason: "is required",
			}
		}
		return "", &ValidationError{Field: "brief", Reason: "is malformed"}
	}

	if jobID == "" {
		jobID = uuid.New().String()
	}

	if err := a.ctrl.Admit(ctx, jobID, brief); err != nil {
		return "", err
	}
	return jobID, nil
}

// jsonField maps Brief struct field names to their wire names.
func jsonField(name string) string {
	switch name {
	case "Product":
		return "product"
	case "Audience":
		return "audience"
	case "Tone":
		return "tone"
	}
	return name
}
