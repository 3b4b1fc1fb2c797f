package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/aimorme/datewise-backend/internal/clients/openai"
	"github.com/aimorme/datewise-backend/internal/clients/qloo"
)

// Step 5: per planned activity, fetch venue candidates from the taste graph
// and curate the top picks with a reasoning call. The stage prefers degrading
// over aborting: a plan with empty venue lists still beats no plan.

const (
	maxActivities     = 5
	venuesPerActivity = 3
)

const curatorSystemPrompt = `You are a venue curator. Given a date activity and a list of candidate venues with affinity scores, pick the best 3 for the couple. Produce a JSON object:
"selected_venues": [{"name": string, "reasoning": string}] (best first, at most 3, names copied exactly from the candidates).
Respond with JSON only.`

func (p *Pipeline) DiscoverVenues(ctx context.Context, st *State) Outcome {
	if st.Plan == nil {
		return Fatal(fmt.Errorf("venue discovery requires a date plan"))
	}

	activities := planActivities(st.Plan)
	if len(activities) > maxActivities {
		activities = activities[:maxActivities]
	}

	signals := discoverySignals(st.EnrichedA, st.EnrichedB)
	location := locationQuery(st.Context.Location)

	anyVenues := false
	allDegraded := true
	var previews []string
	recommendations := make([]any, 0, len(activities))

	for _, activity := range activities {
		if ctx.Err() != nil {
			return Fatal(ctx.Err())
		}

		name := asString(activity["name"])
		candidates := p.venueCandidates(ctx, activity, location, signals)

		var venues []map[string]any
		method := "none"
		if len(candidates) > 0 {
			venues, method = p.curateVenues(ctx, name, candidates)
			anyVenues = anyVenues || len(venues) > 0
			if method == "ai_curated" {
				allDegraded = false
			}
		}

		if len(venues) > 0 {
			previews = append(previews, fmt.Sprintf("%s at %s", name, asString(venues[0]["name"])))
		}

		recommendations = append(recommendations, map[string]any{
			"activity":         name,
			"venue_type":       asString(activity["venue_type"]),
			"venues":           venuesToAny(venues),
			"selection_method": method,
		})
	}

	payload := map[string]any{
		"venue_recommendations": recommendations,
		"original_context":      st.Context.Map(),
		"fallback_used":         false,
	}
	st.Venues = payload

	if !anyVenues {
		payload["fallback_used"] = true
		return Fallback(payload, "Venue discovery degraded", "no venue candidates available; itinerary will carry venue types only")
	}

	preview := fmt.Sprintf("Matched venues for %d activities", len(recommendations))
	if allDegraded {
		payload["fallback_used"] = true
		out := Fallback(payload, preview, "venue curation unavailable; ranked by affinity")
		out.CulturalPreviews = previews
		return out
	}

	out := Success(payload, preview)
	out.CulturalPreviews = previews
	return out
}

// venueCandidates tries three progressively broader insight queries and
// keeps the first non-empty result set. Taste-graph errors just advance to
// the broader query.
func (p *Pipeline) venueCandidates(ctx context.Context, activity map[string]any, location string, signals []string) []qloo.Entity {
	tags := stringItems(activity["venue_search_tags"])

	approaches := []qloo.InsightsParams{
		{
			FilterType:      "urn:entity:place",
			LocationQuery:   location,
			SignalEntityIDs: signals,
			FilterTags:      tags,
			Take:            15,
			SortBy:          "affinity",
		},
		{
			FilterType:      "urn:entity:place",
			LocationQuery:   location,
			SignalEntityIDs: signals,
			PopularityMin:   0.3,
			Take:            12,
			SortBy:          "affinity",
		},
		{
			FilterType:    "urn:entity:place",
			LocationQuery: location,
			Take:          10,
			SortBy:        "affinity",
		},
	}

	for i, params := range approaches {
		found, err := p.tg.Insights(ctx, params)
		if err != nil {
			p.log.Warn("Venue candidate query failed",
				"activity", asString(activity["name"]),
				"approach", i+1,
				"error", err.Error(),
			)
			continue
		}
		if len(found) > 0 {
			return found
		}
	}
	return nil
}

// curateVenues asks the reasoning service to pick and justify the top
// venues; on any failure it falls back to affinity order.
func (p *Pipeline) curateVenues(ctx context.Context, activityName string, candidates []qloo.Entity) ([]map[string]any, string) {
	byName := make(map[string]qloo.Entity, len(candidates))
	digest := make([]map[string]any, 0, len(candidates))
	for _, cand := range candidates {
		byName[cand.Name] = cand
		digest = append(digest, map[string]any{
			"name":     cand.Name,
			"affinity": cand.Affinity,
			"rating":   cand.Properties["business_rating"],
		})
	}
	digestJSON, _ := json.Marshal(digest)
	user := fmt.Sprintf("Activity: %s\nCandidates:\n%s", activityName, digestJSON)

	curated, err := p.ai.GenerateJSON(ctx, curatorSystemPrompt, user, openai.GenerateOptions{
		Temperature: 0.3,
		MaxTokens:   1200,
		Timeout:     30 * time.Second,
		MaxAttempts: 1,
	})
	if err == nil {
		var venues []map[string]any
		for _, sel := range asSlice(curated["selected_venues"]) {
			m := asMap(sel)
			cand, ok := byName[asString(m["name"])]
			if !ok {
				continue
			}
			v := venueToMap(cand)
			v["reasoning"] = asString(m["reasoning"])
			venues = append(venues, v)
			if len(venues) == venuesPerActivity {
				break
			}
		}
		if len(venues) > 0 {
			return venues, "ai_curated"
		}
		err = fmt.Errorf("curation selected no known candidates")
	}

	p.log.Warn("Venue curation degraded to affinity ranking",
		"activity", activityName,
		"error", err.Error(),
	)
	return affinityTop(candidates, venuesPerActivity), "affinity_ranked"
}

func affinityTop(candidates []qloo.Entity, n int) []map[string]any {
	sorted := make([]qloo.Entity, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Affinity > sorted[j].Affinity
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	out := make([]map[string]any, 0, len(sorted))
	for _, cand := range sorted {
		out = append(out, venueToMap(cand))
	}
	return out
}

func venueToMap(e qloo.Entity) map[string]any {
	m := map[string]any{
		"name":     e.Name,
		"affinity": e.Affinity,
	}
	if addr := asString(e.Properties["address"]); addr != "" {
		m["address"] = addr
	}
	if rating := asFloat(e.Properties["business_rating"]); rating > 0 {
		m["rating"] = rating
	}
	if price := asFloat(e.Properties["price_level"]); price > 0 {
		m["price_level"] = price
	}
	return m
}

func venuesToAny(venues []map[string]any) []any {
	out := make([]any, 0, len(venues))
	for _, v := range venues {
		out = append(out, v)
	}
	return out
}

// discoverySignals pulls the strongest discovery entity ids from both
// enriched profiles to bias venue search toward shared tastes.
func discoverySignals(enrichedA, enrichedB map[string]any) []string {
	var out []string
	seen := map[string]bool{}
	for _, enriched := range []map[string]any{enrichedA, enrichedB} {
		count := 0
		for _, d := range asSlice(enriched["cultural_discoveries"]) {
			if count >= 3 {
				break
			}
			id := asString(asMap(d)["entity_id"])
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
			count++
		}
	}
	return out
}
