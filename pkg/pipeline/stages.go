// Package pipeline defines the fixed five-stage landing-page pipeline:
// stage ordering, artifact key scheme, and the wire messages exchanged
// with stage workers over the queues.
package pipeline

import (
	"fmt"
	"strings"
)

// Stage identifies one processing step of the pipeline.
type Stage string

// Canonical stages, in execution order.
const (
	StageResearch       Stage = "research"
	StageProductManager Stage = "product_manager"
	StageDrawer         Stage = "drawer"
	StageDesigner       Stage = "designer"
	StageCoder          Stage = "coder"
)

// Order is the canonical stage sequence. A job's completed stages are
// always a prefix of this list.
var Order = []Stage{
	StageResearch,
	StageProductManager,
	StageDrawer,
	StageDesigner,
	StageCoder,
}

// Count is the total number of stages.
const Count = 5

// Valid reports whether s names a known stage.
func Valid(s Stage) bool {
	for _, st := range Order {
		if st == s {
			return true
		}
	}
	return false
}

// Index returns the zero-based position of s in the canonical order,
// or -1 for an unknown stage.
func Index(s Stage) int {
	for i, st := range Order {
		if st == s {
			return i
		}
	}
	return -1
}

// After returns the stage that follows s, or false when s is the last
// stage or unknown.
func After(s Stage) (Stage, bool) {
	i := Index(s)
	if i < 0 || i >= len(Order)-1 {
		return "", false
	}
	return Order[i+1], true
}

// First returns the entry stage of the pipeline.
func First() Stage {
	return Order[0]
}

// Last reports whether s is the final stage.
func Last(s Stage) bool {
	return s == Order[len(Order)-1]
}

// InputKey returns the blob key for a stage's input artifact:
// "{job_id}/{stage}.json". Stage tokens always use underscore form.
func InputKey(jobID string, s Stage) string {
	return fmt.Sprintf("%s/%s.json", jobID, s)
}

// ResultKey returns the blob key for a stage's output artifact:
// "{job_id}/{stage}-result.json".
func ResultKey(jobID string, s Stage) string {
	return fmt.Sprintf("%s/%s-result.json", jobID, s)
}

// LegacyResultKey returns the hyphenated result key some historical
// workers wrote ("{job_id}/product-manager-result.json"). Readers fall
// back to this form when the underscore form is absent and legacy
// compatibility is enabled.
func LegacyResultKey(jobID string, s Stage) string {
	return fmt.Sprintf("%s/%s-result.json", jobID, strings.ReplaceAll(string(s), "_", "-"))
}

// Progress returns the percentage of completed stages, rounded to the
// nearest integer.
func Progress(completed int) int {
	if completed < 0 {
		return 0
	}
	if completed > Count {
		completed = Count
	}
	return (completed*100 + Count/2) / Count
}
