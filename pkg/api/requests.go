package api

// SubmitJobRequest is the HTTP request body for POST /jobs.
type SubmitJobRequest struct {
	Product  string `json:"product"`
	Audience string `json:"audience"`
	Tone     string `json:"tone,omitempty"`
	JobID    string `json:"job_id,omitempty"`
}
