package domain

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a date plan request.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError || s == StatusCancelled
}

// StepStatus is the state of one pipeline step inside a progress document.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepProcessing StepStatus = "processing"
	StepComplete   StepStatus = "complete"
	StepFailed     StepStatus = "failed"
)

const StepCount = 6

// StepNames are the display names of the six pipeline steps, in order.
var StepNames = [StepCount]string{
	"Profile Analysis",
	"Cultural Enhancement",
	"Compatibility Analysis",
	"Activity Planning",
	"Venue Discovery",
	"Final Optimization",
}

// MaxCulturalPreviews caps the preview ring kept on the progress document.
const MaxCulturalPreviews = 8

type StepProgress struct {
	Step            int        `json:"step"`
	Name            string     `json:"name"`
	Status          StepStatus `json:"status"`
	DurationSeconds float64    `json:"duration_seconds"`
	Preview         string     `json:"preview,omitempty"`
}

// Progress is the durable progress document for one request. It is the only
// channel between the background pipeline and polling clients.
type Progress struct {
	RequestID        string         `json:"request_id"`
	Status           Status         `json:"status"`
	CurrentStep      int            `json:"current_step"`
	OverallProgress  float64        `json:"overall_progress"`
	Steps            []StepProgress `json:"steps"`
	CulturalPreviews []string       `json:"cultural_previews"`
	ProcessingStart  time.Time      `json:"processing_start"`
	LastUpdated      time.Time      `json:"last_updated"`
	Error            string         `json:"error,omitempty"`

	// Redundant copy of the final result, written alongside the result key
	// so completed plans survive a lost result record.
	ResultsEmbedded bool            `json:"results_embedded"`
	EmbeddedResult  json.RawMessage `json:"final_date_plan_embedded,omitempty"`
}

// NewProgress builds the initial document for a freshly accepted request.
func NewProgress(requestID string, now time.Time) *Progress {
	steps := make([]StepProgress, StepCount)
	for i := range steps {
		steps[i] = StepProgress{
			Step:   i + 1,
			Name:   StepNames[i],
			Status: StepPending,
		}
	}
	return &Progress{
		RequestID:        requestID,
		Status:           StatusStarting,
		CurrentStep:      0,
		OverallProgress:  0,
		Steps:            steps,
		CulturalPreviews: []string{},
		ProcessingStart:  now,
		LastUpdated:      now,
	}
}

// SetOverall raises overall progress to pct, never lowering it.
func (p *Progress) SetOverall(pct float64) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if pct > p.OverallProgress {
		p.OverallProgress = pct
	}
}

// AddCulturalPreviews appends previews, keeping only the most recent
// MaxCulturalPreviews entries.
func (p *Progress) AddCulturalPreviews(previews ...string) {
	for _, pv := range previews {
		if pv == "" {
			continue
		}
		p.CulturalPreviews = append(p.CulturalPreviews, pv)
	}
	if n := len(p.CulturalPreviews); n > MaxCulturalPreviews {
		p.CulturalPreviews = p.CulturalPreviews[n-MaxCulturalPreviews:]
	}
}
