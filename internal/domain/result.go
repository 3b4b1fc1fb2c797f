package domain

import "time"

// StepTiming records how long one pipeline step took.
type StepTiming struct {
	Step            int     `json:"step"`
	Name            string  `json:"name"`
	DurationSeconds float64 `json:"duration_seconds"`
	FallbackUsed    bool    `json:"fallback_used,omitempty"`
}

// Result is the write-once outcome of a request: either a finished date plan
// or a failure envelope pointing at the step that killed the run.
type Result struct {
	Success   bool   `json:"success"`
	RequestID string `json:"request_id"`
	Message   string `json:"message,omitempty"`

	FinalDatePlan   map[string]any `json:"final_date_plan,omitempty"`
	CulturalSummary map[string]any `json:"cultural_summary,omitempty"`
	Performance     []StepTiming   `json:"pipeline_performance,omitempty"`

	Error        string `json:"error,omitempty"`
	Detail       string `json:"detail,omitempty"`
	FailedAtStep int    `json:"failed_at_step,omitempty"`

	CompletedAt time.Time `json:"completed_at"`
}

// NewErrorResult builds the failure envelope for a run that died at step.
func NewErrorResult(requestID string, step int, errMsg, detail string, now time.Time) *Result {
	return &Result{
		Success:      false,
		RequestID:    requestID,
		Error:        errMsg,
		Detail:       detail,
		FailedAtStep: step,
		CompletedAt:  now,
	}
}
