package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/aimorme/datewise-backend/internal/clients/openai"
	"github.com/aimorme/datewise-backend/internal/clients/qloo"
	"github.com/aimorme/datewise-backend/internal/domain"
	"github.com/aimorme/datewise-backend/internal/pkg/logger"
)

type stubAI struct {
	generate func(system, user string) (map[string]any, error)
	opts     []openai.GenerateOptions
}

func (s *stubAI) GenerateJSON(_ context.Context, system, user string, opts openai.GenerateOptions) (map[string]any, error) {
	s.opts = append(s.opts, opts)
	return s.generate(system, user)
}

func (s *stubAI) ValidateKey(context.Context) error { return nil }

type stubTaste struct {
	search   func(query string, limit int) ([]qloo.Entity, error)
	insights func(p qloo.InsightsParams) ([]qloo.Entity, error)
	entities func(ids []string) ([]qloo.Entity, error)
}

func (s *stubTaste) Search(_ context.Context, query string, limit int) ([]qloo.Entity, error) {
	if s.search == nil {
		return nil, nil
	}
	return s.search(query, limit)
}

func (s *stubTaste) Insights(_ context.Context, p qloo.InsightsParams) ([]qloo.Entity, error) {
	if s.insights == nil {
		return nil, nil
	}
	return s.insights(p)
}

func (s *stubTaste) Entities(_ context.Context, ids []string) ([]qloo.Entity, error) {
	if s.entities == nil {
		return nil, nil
	}
	return s.entities(ids)
}

func (s *stubTaste) ValidateKey(context.Context) error { return nil }

func testContext() domain.Context {
	return domain.NormalizeContext(domain.Context{
		Location:  "rotterdam",
		TimeOfDay: "morning",
		Duration:  "full day",
		DateType:  "first_date",
	}, time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC))
}

func validAnalysis() map[string]any {
	return map[string]any{
		"psychological_profile": map[string]any{
			"dating_traits": map[string]any{"adventurousness": 0.8, "romantic_style": "playful"},
			"summary":       "Curious and outgoing.",
		},
		"taste_entities": map[string]any{
			"music":      []any{"jazz"},
			"activities": []any{"cycling", "opera"},
		},
		"query_preparation": map[string]any{
			"search_terms": []any{"jazz cafe"},
		},
	}
}

func newTestPipeline(ai openai.Client, tg qloo.Client) *Pipeline {
	return New(ai, tg, Config{MaxAttempts: 1}, logger.NewNop())
}

func TestAnalyzeProfilesFatalWhenReasoningExhausted(t *testing.T) {
	ai := &stubAI{generate: func(string, string) (map[string]any, error) {
		return nil, errors.New("openai http 429: rate limited")
	}}
	p := newTestPipeline(ai, &stubTaste{})

	rec := &domain.RequestRecord{
		PersonA: domain.ProfileInput{Text: "loves jazz and cycling"},
		PersonB: domain.ProfileInput{Text: "museum person"},
	}
	st := &State{Context: testContext()}

	out := p.AnalyzeProfiles(context.Background(), rec, st)
	if out.Kind != KindFatal {
		t.Fatalf("outcome = %v, want fatal", out.Kind)
	}
	if out.Err == nil {
		t.Fatalf("fatal outcome must carry an error")
	}
}

func TestStageRetriesDoNotMultiplyClientRetries(t *testing.T) {
	ai := &stubAI{generate: func(string, string) (map[string]any, error) {
		return nil, errors.New("openai http 500: boom")
	}}
	p := New(ai, &stubTaste{}, Config{MaxAttempts: 3}, logger.NewNop())

	rec := &domain.RequestRecord{
		PersonA: domain.ProfileInput{Text: "loves jazz"},
		PersonB: domain.ProfileInput{Text: "museum person"},
	}
	st := &State{Context: testContext()}

	if out := p.AnalyzeProfiles(context.Background(), rec, st); out.Kind != KindFatal {
		t.Fatalf("outcome = %v, want fatal", out.Kind)
	}
	// Person A exhausts the whole stage budget; person B is never reached.
	if len(ai.opts) != 3 {
		t.Fatalf("reasoning calls = %d, want exactly the stage budget of 3", len(ai.opts))
	}
	for i, o := range ai.opts {
		if o.MaxAttempts != 1 {
			t.Fatalf("call %d passed client MaxAttempts %d, want 1", i+1, o.MaxAttempts)
		}
	}
}

func TestAnalyzeProfilesRoundTripsContextAndPartitionsEntities(t *testing.T) {
	ai := &stubAI{generate: func(string, string) (map[string]any, error) {
		return validAnalysis(), nil
	}}
	p := newTestPipeline(ai, &stubTaste{})

	rec := &domain.RequestRecord{
		PersonA: domain.ProfileInput{Text: "I love jazz nights and cycling along the river"},
		PersonB: domain.ProfileInput{Text: "I love jazz nights and cycling along the river"},
	}
	st := &State{Context: testContext()}

	out := p.AnalyzeProfiles(context.Background(), rec, st)
	if out.Kind != KindSuccess {
		t.Fatalf("outcome = %v (%v), want success", out.Kind, out.Err)
	}

	if !reflect.DeepEqual(out.Payload["original_context"], st.Context.Map()) {
		t.Fatalf("context not round-tripped: %#v", out.Payload["original_context"])
	}

	taste := st.AnalysisA["taste_entities"].(map[string]any)
	mentioned := taste["mentioned"].(map[string]any)
	inferred := taste["inferred"].(map[string]any)
	if !reflect.DeepEqual(mentioned["music"], []string{"jazz"}) {
		t.Fatalf("jazz should stay mentioned: %#v", mentioned)
	}
	if !reflect.DeepEqual(inferred["activities"], []string{"opera"}) {
		t.Fatalf("opera should move to inferred: %#v", inferred)
	}
}

func TestEnrichProfilesEmptyResultsIsSuccess(t *testing.T) {
	p := newTestPipeline(&stubAI{}, &stubTaste{})
	st := &State{Context: testContext(), AnalysisA: validAnalysis(), AnalysisB: validAnalysis()}

	out := p.EnrichProfiles(context.Background(), st)
	if out.Kind != KindSuccess {
		t.Fatalf("outcome = %v, want success with empty discoveries", out.Kind)
	}
	enriched := out.Payload["person_a"].(map[string]any)
	if n := len(asSlice(enriched["cultural_discoveries"])); n != 0 {
		t.Fatalf("expected no discoveries, got %d", n)
	}
	if conf := asFloat(enriched["discovery_confidence"]); conf != 0 {
		t.Fatalf("confidence = %v, want 0", conf)
	}
}

func TestEnrichProfilesFallbackWhenTasteGraphFails(t *testing.T) {
	tg := &stubTaste{
		search: func(string, int) ([]qloo.Entity, error) {
			return nil, errors.New("qloo http 503: unavailable")
		},
	}
	p := newTestPipeline(&stubAI{}, tg)
	st := &State{Context: testContext(), AnalysisA: validAnalysis(), AnalysisB: validAnalysis()}

	out := p.EnrichProfiles(context.Background(), st)
	if out.Kind != KindFallback {
		t.Fatalf("outcome = %v, want fallback", out.Kind)
	}
	if out.Payload["fallback_used"] != true {
		t.Fatalf("fallback payload not flagged: %#v", out.Payload)
	}
	// Degraded output still has to be valid input for step 3.
	enriched := out.Payload["person_b"].(map[string]any)
	if enriched["analysis"] == nil {
		t.Fatalf("degraded enrichment lost the analysis")
	}
	if !reflect.DeepEqual(enriched["original_context"], st.Context.Map()) {
		t.Fatalf("degraded enrichment lost the context")
	}
}

func TestPlanDateFatalAfterValidationFailures(t *testing.T) {
	ai := &stubAI{generate: func(string, string) (map[string]any, error) {
		// Parses fine but misses the required keys.
		return map[string]any{"chitchat": "sure"}, nil
	}}
	p := newTestPipeline(ai, &stubTaste{})
	st := &State{Context: testContext(), EnrichedA: map[string]any{}, EnrichedB: map[string]any{}}

	out := p.PlanDate(context.Background(), st)
	if out.Kind != KindFatal {
		t.Fatalf("outcome = %v, want fatal", out.Kind)
	}
}

func validPlan() map[string]any {
	return map[string]any{
		"compatibility_insights": map[string]any{"shared_ground": []any{"live music"}},
		"date_plan": map[string]any{
			"theme": "sound and taste of the city",
			"activities": []any{
				map[string]any{"name": "Vinyl browsing", "venue_type": "record store", "venue_search_tags": []any{"music"}},
				map[string]any{"name": "Canal-side lunch", "venue_type": "restaurant"},
			},
		},
	}
}

func TestDiscoverVenuesAffinityFallbackWhenCurationFails(t *testing.T) {
	tg := &stubTaste{insights: func(qloo.InsightsParams) ([]qloo.Entity, error) {
		return []qloo.Entity{
			{EntityID: "e1", Name: "Quiet Corner", Affinity: 0.4},
			{EntityID: "e2", Name: "Blue Note", Affinity: 0.9},
			{EntityID: "e3", Name: "Middle Ground", Affinity: 0.6},
			{EntityID: "e4", Name: "Last Resort", Affinity: 0.1},
		}, nil
	}}
	ai := &stubAI{generate: func(string, string) (map[string]any, error) {
		return nil, errors.New("openai http 500: boom")
	}}
	p := newTestPipeline(ai, tg)
	st := &State{Context: testContext(), Plan: validPlan()}

	out := p.DiscoverVenues(context.Background(), st)
	if out.Kind != KindFallback {
		t.Fatalf("outcome = %v, want fallback (all activities affinity-ranked)", out.Kind)
	}
	recs := asSlice(out.Payload["venue_recommendations"])
	if len(recs) != 2 {
		t.Fatalf("expected 2 activity recommendations, got %d", len(recs))
	}
	first := asMap(recs[0])
	if first["selection_method"] != "affinity_ranked" {
		t.Fatalf("selection_method = %v", first["selection_method"])
	}
	venues := asSlice(first["venues"])
	if len(venues) != 3 {
		t.Fatalf("expected top 3 venues, got %d", len(venues))
	}
	if asString(asMap(venues[0])["name"]) != "Blue Note" {
		t.Fatalf("venues not affinity sorted: %#v", venues)
	}
}

func TestDiscoverVenuesDegradesToEmptyWhenTasteGraphFails(t *testing.T) {
	tg := &stubTaste{insights: func(qloo.InsightsParams) ([]qloo.Entity, error) {
		return nil, errors.New("qloo http 502: bad gateway")
	}}
	p := newTestPipeline(&stubAI{}, tg)
	st := &State{Context: testContext(), Plan: validPlan()}

	out := p.DiscoverVenues(context.Background(), st)
	if out.Kind != KindFallback {
		t.Fatalf("outcome = %v, want fallback", out.Kind)
	}
	if out.Payload["fallback_used"] != true {
		t.Fatalf("fallback not flagged")
	}
	recs := asSlice(out.Payload["venue_recommendations"])
	if len(recs) != 2 {
		t.Fatalf("degraded output must still cover every activity, got %d", len(recs))
	}
	if !reflect.DeepEqual(out.Payload["original_context"], st.Context.Map()) {
		t.Fatalf("context lost in degraded venue output")
	}
}

func TestOptimizePlanFallbackBuildsFullDayItinerary(t *testing.T) {
	ai := &stubAI{generate: func(string, string) (map[string]any, error) {
		return nil, errors.New("openai http 429: rate limited")
	}}
	p := newTestPipeline(ai, &stubTaste{})
	st := &State{Context: testContext(), Plan: validPlan()}

	out := p.OptimizePlan(context.Background(), st)
	if out.Kind != KindFallback {
		t.Fatalf("outcome = %v, want fallback", out.Kind)
	}
	if out.Payload["fallback_used"] != true {
		t.Fatalf("fallback not flagged")
	}

	final := asMap(out.Payload["final_date_plan"])
	stops := asSlice(final["optimized_itinerary"])
	// Full day + morning interprets to exactly 5 stops, 10:00 to 20:00.
	if len(stops) != 5 {
		t.Fatalf("itinerary has %d stops, want 5", len(stops))
	}
	if got := asString(asMap(stops[0])["time"]); got != "10:00" {
		t.Fatalf("first stop at %s, want 10:00", got)
	}
	if got := asString(asMap(stops[4])["time"]); got != "18:00" {
		t.Fatalf("last stop at %s, want 18:00", got)
	}
	if !reflect.DeepEqual(out.Payload["original_context"], st.Context.Map()) {
		t.Fatalf("context lost in final payload")
	}
}

func TestOptimizePlanRejectsWrongStopCount(t *testing.T) {
	calls := 0
	ai := &stubAI{generate: func(system, _ string) (map[string]any, error) {
		calls++
		if !strings.Contains(system, "itinerary optimizer") {
			return nil, fmt.Errorf("unexpected call")
		}
		return map[string]any{
			"optimized_itinerary": []any{
				map[string]any{"time": "10:00", "activity": "One"},
				map[string]any{"time": "12:00", "activity": "Two"},
			},
		}, nil
	}}
	p := newTestPipeline(ai, &stubTaste{})
	st := &State{Context: testContext(), Plan: validPlan()}

	out := p.OptimizePlan(context.Background(), st)
	if out.Kind != KindFallback {
		t.Fatalf("outcome = %v, want fallback after rejecting short itinerary", out.Kind)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt in fast mode, got %d", calls)
	}
}
