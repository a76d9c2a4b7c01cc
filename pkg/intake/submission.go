package intake

import (
	"context"
	"fmt"

	"github.com/pagesmith/pagesmith/pkg/jobs"
	"github.com/pagesmith/pagesmith/pkg/pipeline"
)

// Submission is a parsed async job submission ready for admission.
type Submission struct {
	JobID string
	Brief jobs.Brief
}

// ParseSubmission decodes a submissions-queue message body. Messages
// either reference a brief stored in the blob store via payload_key, or
// inline the brief fields directly.
func ParseSubmission(ctx context.Context, blobs BlobGetter, body string) (*Submission, error) {
	msg, err := pipeline.ParseSubmissionMessage(body)
	if err != nil {
		return nil, err
	}

	if msg.PayloadKey != "" {
		payload, err := blobs.Get(ctx, msg.PayloadKey)
		if err != nil {
			return nil, fmt.Errorf("fetching referenced brief %s: %w", msg.PayloadKey, err)
		}
		return &Submission{
			JobID: msg.JobID,
			Brief: jobs.Brief{
				Product:  stringField(payload, "product"),
				Audience: stringField(payload, "audience"),
				Tone:     stringField(payload, "tone"),
			},
		}, nil
	}

	return &Submission{
		JobID: msg.JobID,
		Brief: jobs.Brief{
			Product:  msg.Product,
			Audience: msg.Audience,
			Tone:     msg.Tone,
		},
	}, nil
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
