package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aimorme/datewise-backend/internal/clients/openai"
)

// Step 3: one reasoning call combining both enriched profiles into
// compatibility insights and a themed activity plan with taste-graph ready
// venue queries. Like step 1, a failed plan leaves nothing for downstream
// stages, so exhaustion is fatal. Step 4 is bookkeeping only: activity
// planning ships inside this output.

var planRequiredKeys = []string{"compatibility_insights", "date_plan"}

const plannerSystemPrompt = `You are a date planner. Given two analyzed and culturally enriched dating profiles plus a date context, produce a JSON object with exactly these top-level keys:
"compatibility_insights": {"shared_ground": [strings], "complementary_differences": [strings], "compatibility_score": 0-1},
"date_plan": {"theme": string, "activities": [{"name": string, "description": string, "venue_type": string, "venue_search_tags": [strings]}]}.
The number of activities must fit the date duration in the context. Venue types must be concrete place categories. Respond with JSON only.`

func (p *Pipeline) PlanDate(ctx context.Context, st *State) Outcome {
	if st.EnrichedA == nil || st.EnrichedB == nil {
		return Fatal(fmt.Errorf("planning requires both enriched profiles"))
	}

	interp := InterpretDuration(st.Context)
	user := plannerUserPrompt(st, interp)

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		plan, err := p.ai.GenerateJSON(ctx, plannerSystemPrompt, user, openai.GenerateOptions{
			Temperature: 0.7,
			MaxTokens:   4000,
			Timeout:     60 * time.Second,
			MaxAttempts: 1,
		})
		if err == nil {
			err = validatePlan(plan)
		}
		if err != nil {
			lastErr = err
			p.log.Warn("Compatibility planning attempt failed",
				"attempt", attempt,
				"max_attempts", p.cfg.MaxAttempts,
				"error", err.Error(),
			)
			if ctx.Err() != nil {
				return Fatal(ctx.Err())
			}
			continue
		}

		plan["original_context"] = st.Context.Map()
		plan["duration_interpretation"] = interpretationMap(interp)
		st.Plan = plan

		activities := planActivities(plan)
		out := Success(plan, fmt.Sprintf("Planned %d activities around shared tastes", len(activities)))
		if theme := asString(asMap(plan["date_plan"])["theme"]); theme != "" {
			out.CulturalPreviews = []string{fmt.Sprintf("Date theme: %s", theme)}
		}
		return out
	}
	return Fatal(fmt.Errorf("planning exhausted after %d attempts: %w", p.cfg.MaxAttempts, lastErr))
}

func plannerUserPrompt(st *State, interp Interpretation) string {
	ctxJSON, _ := json.Marshal(st.Context.Map())
	interpJSON, _ := json.Marshal(interpretationMap(interp))
	a, _ := json.Marshal(profileDigest(st.EnrichedA))
	b, _ := json.Marshal(profileDigest(st.EnrichedB))
	return fmt.Sprintf(
		"Person A:\n%s\n\nPerson B:\n%s\n\nDate context:\n%s\n\nDate window (plan exactly %d activities):\n%s",
		a, b, ctxJSON, interp.Activities, interpJSON,
	)
}

// profileDigest trims an enriched profile to what the planner prompt needs:
// the analysis plus discovery names, without raw entity records.
func profileDigest(enriched map[string]any) map[string]any {
	digest := map[string]any{
		"analysis":             enriched["analysis"],
		"discovery_confidence": enriched["discovery_confidence"],
	}
	var names []string
	for _, d := range asSlice(enriched["cultural_discoveries"]) {
		if name := asString(asMap(d)["name"]); name != "" {
			names = append(names, name)
		}
	}
	digest["cultural_discoveries"] = names
	return digest
}

func validatePlan(plan map[string]any) error {
	if err := openai.RequireKeys(plan, planRequiredKeys...); err != nil {
		return err
	}
	if len(planActivities(plan)) == 0 {
		return fmt.Errorf("date_plan has no activities")
	}
	return nil
}

// planActivities returns the activity objects of a step-3 plan.
func planActivities(plan map[string]any) []map[string]any {
	var out []map[string]any
	for _, a := range asSlice(asMap(plan["date_plan"])["activities"]) {
		if m := asMap(a); m != nil {
			out = append(out, m)
		}
	}
	return out
}

func interpretationMap(i Interpretation) map[string]any {
	return map[string]any{
		"total_hours":      i.TotalHours,
		"start_time":       i.StartTime,
		"end_time":         i.EndTime,
		"activities_count": i.Activities,
		"meals_included":   i.Meals,
	}
}
