package domain

import (
	"strings"
	"time"
)

// ProfileInput is one person's dating profile as submitted. Text and images
// may both be present; at least one is required.
type ProfileInput struct {
	Text      string   `json:"text,omitempty"`
	ImageData []string `json:"image_data,omitempty"`
}

// HasContent reports whether the profile carries any usable input.
func (p ProfileInput) HasContent() bool {
	if strings.TrimSpace(p.Text) != "" {
		return true
	}
	for _, img := range p.ImageData {
		if strings.TrimSpace(img) != "" {
			return true
		}
	}
	return false
}

// RequestRecord is the write-once snapshot of a submission. The background
// pipeline reads its inputs from here, never from the HTTP request.
type RequestRecord struct {
	RequestID string       `json:"request_id"`
	PersonA   ProfileInput `json:"person_a"`
	PersonB   ProfileInput `json:"person_b"`
	Context   Context      `json:"context"`
	CreatedAt time.Time    `json:"created_at"`
}
