package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCompletionEventCurrentSchema(t *testing.T) {
	body := `{"job_id":"j1","task_type":"research","status":"success","result_key":"j1/research-result.json","timestamp":"2026-01-01T00:00:00Z"}`

	ev, err := ParseCompletionEvent(body)
	require.NoError(t, err)
	assert.Equal(t, "j1", ev.JobID)
	assert.Equal(t, StageResearch, ev.Stage())
	assert.Equal(t, EventStatusSuccess, ev.Status)
	assert.False(t, ev.IsAnnouncement())
}

// Older workers send the stage under "task" instead of "task_type".
func TestParseCompletionEventLegacyTaskKey(t *testing.T) {
	ev, err := ParseCompletionEvent(`{"job_id":"j1","task":"drawer","status":"failure","error":"timeout"}`)
	require.NoError(t, err)
	assert.Equal(t, StageDrawer, ev.Stage())
	assert.Equal(t, "timeout", ev.Error)
}

func TestParseCompletionEventPrefersTaskType(t *testing.T) {
	ev, err := ParseCompletionEvent(`{"job_id":"j1","task":"drawer","task_type":"designer","status":"success"}`)
	require.NoError(t, err)
	assert.Equal(t, StageDesigner, ev.Stage())
}

// result_key is optional: the next input is derived from the key
// scheme, never from the event payload.
func TestParseCompletionEventWithoutResultKey(t *testing.T) {
	ev, err := ParseCompletionEvent(`{"job_id":"j1","task_type":"coder","status":"success"}`)
	require.NoError(t, err)
	assert.Empty(t, ev.ResultKey)
}

func TestParseCompletionEventMalformed(t *testing.T) {
	_, err := ParseCompletionEvent(`{"job_id":`)
	assert.Error(t, err)
}

func TestJobCompletedAnnouncementShape(t *testing.T) {
	body, err := json.Marshal(NewJobCompletedEvent("j9"))
	require.NoError(t, err)

	ev, err := ParseCompletionEvent(string(body))
	require.NoError(t, err)
	assert.True(t, ev.IsAnnouncement())
	assert.Equal(t, "j9", ev.JobID)
	assert.Empty(t, ev.Stage())
}

func TestTaskMessageWireFormat(t *testing.T) {
	task := NewTaskMessage("j1", StageProductManager, "j1/product_manager.json", "orchestrator")
	body, err := json.Marshal(task)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(body, &wire))
	assert.Equal(t, "j1", wire["job_id"])
	assert.Equal(t, "product_manager", wire["task_type"])
	assert.Equal(t, "j1/product_manager.json", wire["payload_key"])
	assert.Equal(t, "orchestrator", wire["source"])
	assert.NotEmpty(t, wire["timestamp"])
}

func TestParseSubmissionMessageVariants(t *testing.T) {
	tests := []struct {
		name string
		body string
		want SubmissionMessage
	}{
		{
			name: "payload reference",
			body: `{"job_id":"j1","task_type":"start_job","payload_key":"j1/brief.json"}`,
			want: SubmissionMessage{JobID: "j1", TaskType: "start_job", PayloadKey: "j1/brief.json"},
		},
		{
			name: "inline brief",
			body: `{"job_id":"j2","product":"Acme","audience":"Devs","tone":"playful"}`,
			want: SubmissionMessage{JobID: "j2", Product: "Acme", Audience: "Devs", Tone: "playful"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseSubmissionMessage(tt.body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *msg)
		})
	}

	_, err := ParseSubmissionMessage("not json")
	assert.Error(t, err)
}
