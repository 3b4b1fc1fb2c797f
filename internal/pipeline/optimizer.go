package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aimorme/datewise-backend/internal/clients/openai"
)

// Step 6: turn the plan and discovered venues into a realistic timed
// itinerary fitting the interpreted date window. When the reasoning service
// is exhausted the stage builds a deterministic itinerary from the window
// itself, so the pipeline always ends with a servable plan.

const optimizerSystemPrompt = `You are a date itinerary optimizer. Given a date plan, venue recommendations and a fixed date window, produce a JSON object:
"optimized_itinerary": [{"time": "HH:MM", "activity": string, "venue": string, "description": string, "duration_hours": number}],
"logistics": {"travel_notes": string, "budget_estimate": string},
"success_prediction": {"score": 0-1, "reasoning": string}.
The itinerary must contain exactly the requested number of activities, start at the window start and fit inside it. Respond with JSON only.`

func (p *Pipeline) OptimizePlan(ctx context.Context, st *State) Outcome {
	if st.Plan == nil {
		return Fatal(fmt.Errorf("final optimization requires a date plan"))
	}

	interp := InterpretDuration(st.Context)
	user := optimizerUserPrompt(st, interp)

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		optimized, err := p.ai.GenerateJSON(ctx, optimizerSystemPrompt, user, openai.GenerateOptions{
			Temperature: 0.5,
			MaxTokens:   3500,
			Timeout:     60 * time.Second,
			MaxAttempts: 1,
		})
		if err == nil {
			err = validateItinerary(optimized, interp)
		}
		if err != nil {
			lastErr = err
			p.log.Warn("Final optimization attempt failed",
				"attempt", attempt,
				"max_attempts", p.cfg.MaxAttempts,
				"error", err.Error(),
			)
			if ctx.Err() != nil {
				return Fatal(ctx.Err())
			}
			continue
		}

		final := p.finalPayload(st, interp, optimized, false)
		st.Final = final
		out := Success(final, fmt.Sprintf("Optimized %d-stop itinerary %s-%s", interp.Activities, interp.StartTime, interp.EndTime))
		out.CulturalPreviews = []string{fmt.Sprintf("Itinerary locked: %s to %s", interp.StartTime, interp.EndTime)}
		return out
	}

	p.log.Warn("Final optimization falling back to deterministic itinerary", "error", lastErr.Error())
	optimized := map[string]any{
		"optimized_itinerary": fallbackItinerary(st, interp),
		"logistics": map[string]any{
			"travel_notes":    fmt.Sprintf("Plan short walks between stops in %s.", st.Context.Location),
			"budget_estimate": "moderate",
		},
		"success_prediction": map[string]any{
			"score":     0.5,
			"reasoning": "Schedule generated from the date window without final optimization.",
		},
	}
	final := p.finalPayload(st, interp, optimized, true)
	st.Final = final
	return Fallback(final, "Built fallback itinerary", "final optimization unavailable")
}

func optimizerUserPrompt(st *State, interp Interpretation) string {
	ctxJSON, _ := json.Marshal(st.Context.Map())
	interpJSON, _ := json.Marshal(interpretationMap(interp))
	planJSON, _ := json.Marshal(st.Plan["date_plan"])
	var venuesJSON []byte
	if st.Venues != nil {
		venuesJSON, _ = json.Marshal(st.Venues["venue_recommendations"])
	}
	return fmt.Sprintf(
		"Date plan:\n%s\n\nVenue recommendations:\n%s\n\nDate context:\n%s\n\nDate window (exactly %d activities, %s to %s):\n%s",
		planJSON, venuesJSON, ctxJSON, interp.Activities, interp.StartTime, interp.EndTime, interpJSON,
	)
}

func validateItinerary(optimized map[string]any, interp Interpretation) error {
	if err := openai.RequireKeys(optimized, "optimized_itinerary"); err != nil {
		return err
	}
	stops := asSlice(optimized["optimized_itinerary"])
	if len(stops) != interp.Activities {
		return fmt.Errorf("itinerary has %d stops, window requires %d", len(stops), interp.Activities)
	}
	for i, stop := range stops {
		m := asMap(stop)
		if m == nil || asString(m["time"]) == "" || asString(m["activity"]) == "" {
			return fmt.Errorf("itinerary stop %d missing time or activity", i+1)
		}
	}
	return nil
}

func (p *Pipeline) finalPayload(st *State, interp Interpretation, optimized map[string]any, fallbackUsed bool) map[string]any {
	plan := asMap(st.Plan["date_plan"])
	finalPlan := map[string]any{
		"theme":               asString(plan["theme"]),
		"optimized_itinerary": optimized["optimized_itinerary"],
		"logistics":           optimized["logistics"],
		"success_prediction":  optimized["success_prediction"],
	}
	return map[string]any{
		"final_date_plan":         finalPlan,
		"duration_interpretation": interpretationMap(interp),
		"original_context":        st.Context.Map(),
		"fallback_used":           fallbackUsed,
	}
}

// fallbackItinerary spreads the planned activities evenly across the date
// window. Venue names come from step 5 when available, otherwise the stop
// keeps its venue type.
func fallbackItinerary(st *State, interp Interpretation) []any {
	activities := planActivities(st.Plan)
	venuesByActivity := map[string]string{}
	if st.Venues != nil {
		for _, rec := range asSlice(st.Venues["venue_recommendations"]) {
			m := asMap(rec)
			venues := asSlice(m["venues"])
			if len(venues) == 0 {
				continue
			}
			if name := asString(asMap(venues[0])["name"]); name != "" {
				venuesByActivity[asString(m["activity"])] = name
			}
		}
	}

	startHour := parseClock(interp.StartTime)
	span := float64(interp.TotalHours) / float64(interp.Activities)

	stops := make([]any, 0, interp.Activities)
	for i := 0; i < interp.Activities; i++ {
		name := fmt.Sprintf("Activity %d", i+1)
		venueType := ""
		if i < len(activities) {
			if n := asString(activities[i]["name"]); n != "" {
				name = n
			}
			venueType = asString(activities[i]["venue_type"])
		}
		venue := venuesByActivity[name]
		if venue == "" {
			venue = venueType
		}
		hour := float64(startHour) + span*float64(i)
		stops = append(stops, map[string]any{
			"time":           fmt.Sprintf("%02d:%02d", int(hour)%24, int(hour*60)%60),
			"activity":       name,
			"venue":          venue,
			"description":    fmt.Sprintf("%s in %s", name, st.Context.Location),
			"duration_hours": span,
		})
	}
	return stops
}

func parseClock(t string) int {
	var h, m int
	if _, err := fmt.Sscanf(t, "%d:%d", &h, &m); err != nil {
		return 10
	}
	return h
}
