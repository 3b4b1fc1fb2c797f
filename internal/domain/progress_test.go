package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestNewProgressStartsPending(t *testing.T) {
	p := NewProgress("r1", time.Now().UTC())
	if p.Status != StatusStarting || p.CurrentStep != 0 || p.OverallProgress != 0 {
		t.Fatalf("bad initial progress: %+v", p)
	}
	if len(p.Steps) != StepCount {
		t.Fatalf("steps = %d, want %d", len(p.Steps), StepCount)
	}
	for i, sp := range p.Steps {
		if sp.Step != i+1 || sp.Status != StepPending || sp.Name != StepNames[i] {
			t.Fatalf("step %d: %+v", i+1, sp)
		}
	}
}

func TestSetOverallNeverDecreases(t *testing.T) {
	p := NewProgress("r1", time.Now().UTC())
	p.SetOverall(50)
	p.SetOverall(30)
	if p.OverallProgress != 50 {
		t.Fatalf("overall = %v, want 50", p.OverallProgress)
	}
	p.SetOverall(150)
	if p.OverallProgress != 100 {
		t.Fatalf("overall = %v, want clamped to 100", p.OverallProgress)
	}
}

func TestAddCulturalPreviewsKeepsMostRecent(t *testing.T) {
	p := NewProgress("r1", time.Now().UTC())
	for i := 0; i < MaxCulturalPreviews+4; i++ {
		p.AddCulturalPreviews(fmt.Sprintf("preview %d", i))
	}
	if len(p.CulturalPreviews) != MaxCulturalPreviews {
		t.Fatalf("previews = %d, want %d", len(p.CulturalPreviews), MaxCulturalPreviews)
	}
	if p.CulturalPreviews[0] != "preview 4" {
		t.Fatalf("oldest kept = %q, want preview 4", p.CulturalPreviews[0])
	}
	if last := p.CulturalPreviews[MaxCulturalPreviews-1]; last != fmt.Sprintf("preview %d", MaxCulturalPreviews+3) {
		t.Fatalf("newest kept = %q", last)
	}
}

func TestAddCulturalPreviewsSkipsEmpty(t *testing.T) {
	p := NewProgress("r1", time.Now().UTC())
	p.AddCulturalPreviews("", "a", "")
	if len(p.CulturalPreviews) != 1 || p.CulturalPreviews[0] != "a" {
		t.Fatalf("previews = %v", p.CulturalPreviews)
	}
}

func TestProgressEmbeddedResultWireField(t *testing.T) {
	p := NewProgress("r1", time.Now().UTC())
	p.Status = StatusComplete
	p.ResultsEmbedded = true
	p.EmbeddedResult = json.RawMessage(`{"success":true}`)

	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"final_date_plan_embedded"`) {
		t.Fatalf("embedded result field missing or misnamed: %s", raw)
	}

	var back Progress
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.ResultsEmbedded || string(back.EmbeddedResult) != `{"success":true}` {
		t.Fatalf("embedded result lost on round trip: %+v", back)
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{StatusComplete, StatusError, StatusCancelled} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusStarting, StatusProcessing} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}
