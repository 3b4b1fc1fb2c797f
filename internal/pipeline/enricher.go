package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aimorme/datewise-backend/internal/clients/qloo"
	"github.com/aimorme/datewise-backend/internal/pkg/httpx"
	"github.com/aimorme/datewise-backend/internal/pkg/logger"
)

// Step 2: taste-graph discovery per profile. Empty discovery sets are a
// valid degraded outcome; the stage only fails hard when step 1 left it
// nothing to work with.

const (
	maxInterestsPerProfile = 6
	maxSeedEntities        = 5
	discoveryTake          = 10
)

func (p *Pipeline) EnrichProfiles(ctx context.Context, st *State) Outcome {
	if st.AnalysisA == nil || st.AnalysisB == nil {
		return Fatal(fmt.Errorf("cultural enhancement requires both profile analyses"))
	}

	enrichedA, previewsA, errsA := p.enrichOne(ctx, st.AnalysisA, st, "person_a")
	if ctx.Err() != nil {
		return Fatal(ctx.Err())
	}
	enrichedB, previewsB, errsB := p.enrichOne(ctx, st.AnalysisB, st, "person_b")
	if ctx.Err() != nil {
		return Fatal(ctx.Err())
	}

	st.EnrichedA = enrichedA
	st.EnrichedB = enrichedB

	payload := map[string]any{
		"person_a":         enrichedA,
		"person_b":         enrichedB,
		"original_context": st.Context.Map(),
	}

	discA := len(asSlice(enrichedA["cultural_discoveries"]))
	discB := len(asSlice(enrichedB["cultural_discoveries"]))
	preview := fmt.Sprintf("Mapped %d cultural affinities", discA+discB)

	if discA+discB == 0 && (errsA > 0 || errsB > 0) {
		payload["fallback_used"] = true
		enrichedA["fallback_used"] = true
		enrichedB["fallback_used"] = true
		out := Fallback(payload, "Cultural enhancement degraded", "taste graph unavailable; continuing with profile analysis only")
		return out
	}

	out := Success(payload, preview)
	out.CulturalPreviews = append(previewsA, previewsB...)
	return out
}

// enrichOne runs the search -> insights -> enrich chain for one profile.
// Taste-graph errors are counted, not propagated; the chain keeps whatever
// it managed to discover.
func (p *Pipeline) enrichOne(ctx context.Context, analysis map[string]any, st *State, label string) (map[string]any, []string, int) {
	log := p.log.With("profile", label)
	interests := extractInterests(analysis)

	failures := 0
	var seedIDs []string
	seedNames := map[string]string{}
	for _, interest := range interests {
		if len(seedIDs) >= maxSeedEntities {
			break
		}
		results, err := p.tg.Search(ctx, interest, 3)
		if err != nil {
			failures++
			if httpx.IsRateLimited(err) {
				log.Warn("Taste-graph rate limited, skipping remaining seeds", "interest", interest)
				break
			}
			log.Warn("Taste-graph search failed", "interest", interest, "error", err.Error())
			continue
		}
		if len(results) == 0 {
			continue
		}
		seedIDs = append(seedIDs, results[0].EntityID)
		seedNames[results[0].EntityID] = results[0].Name
	}

	var discoveries []qloo.Entity
	if len(seedIDs) > 0 {
		found, err := p.tg.Insights(ctx, qloo.InsightsParams{
			FilterType:      "urn:entity:place",
			LocationQuery:   locationQuery(st.Context.Location),
			SignalEntityIDs: seedIDs,
			Take:            discoveryTake,
			SortBy:          "affinity",
		})
		if err != nil {
			failures++
			log.Warn("Taste-graph insights failed", "error", err.Error())
		} else {
			discoveries = found
		}
	}

	discoveries = p.enrichEntities(ctx, discoveries, log)

	confidence := float64(len(discoveries)) / float64(discoveryTake)
	if confidence > 1 {
		confidence = 1
	}

	var previews []string
	for i, d := range discoveries {
		if i >= 2 {
			break
		}
		previews = append(previews, fmt.Sprintf("Discovered affinity: %s", d.Name))
	}

	enriched := map[string]any{
		"analysis":             analysis,
		"interests_used":       interests,
		"seed_entities":        seedNames,
		"cultural_discoveries": entitiesToMaps(discoveries),
		"discovery_confidence": confidence,
		"original_context":     st.Context.Map(),
	}
	return enriched, previews, failures
}

// enrichEntities backfills names and descriptions via the entity lookup.
// Best-effort: lookup failures keep the insight records as-is.
func (p *Pipeline) enrichEntities(ctx context.Context, entities []qloo.Entity, log *logger.Logger) []qloo.Entity {
	if len(entities) == 0 {
		return entities
	}
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		if e.EntityID != "" {
			ids = append(ids, e.EntityID)
		}
	}
	full, err := p.tg.Entities(ctx, ids)
	if err != nil {
		log.Warn("Taste-graph entity lookup failed", "error", err.Error())
		return entities
	}
	byID := make(map[string]qloo.Entity, len(full))
	for _, e := range full {
		byID[e.EntityID] = e
	}
	for i, e := range entities {
		if f, ok := byID[e.EntityID]; ok {
			if f.Name != "" {
				entities[i].Name = f.Name
			}
			if len(f.Properties) > 0 {
				entities[i].Properties = f.Properties
			}
			if len(f.Tags) > 0 {
				entities[i].Tags = f.Tags
			}
		}
	}
	return entities
}

// extractInterests pulls taste entities out of a step-1 analysis, mentioned
// entities first, topped up with personality-guided search terms.
func extractInterests(analysis map[string]any) []string {
	var out []string
	seen := map[string]bool{}
	add := func(items []string) {
		for _, it := range items {
			key := strings.ToLower(it)
			if seen[key] || len(out) >= maxInterestsPerProfile {
				continue
			}
			seen[key] = true
			out = append(out, it)
		}
	}

	taste := asMap(analysis["taste_entities"])
	for _, bucket := range []string{"mentioned", "inferred"} {
		cats := asMap(taste[bucket])
		// Stable order across runs.
		names := make([]string, 0, len(cats))
		for c := range cats {
			names = append(names, c)
		}
		sort.Strings(names)
		for _, c := range names {
			add(stringItems(cats[c]))
		}
	}

	prep := asMap(analysis["query_preparation"])
	add(stringItems(prep["search_terms"]))
	return out
}

func entitiesToMaps(entities []qloo.Entity) []any {
	out := make([]any, 0, len(entities))
	for _, e := range entities {
		m := map[string]any{
			"entity_id": e.EntityID,
			"name":      e.Name,
			"type":      e.Type,
			"affinity":  e.Affinity,
		}
		if e.Popularity > 0 {
			m["popularity"] = e.Popularity
		}
		if len(e.Properties) > 0 {
			m["properties"] = e.Properties
		}
		out = append(out, m)
	}
	return out
}

// locationQuery widens a bare city name for the taste graph's location
// filter.
func locationQuery(location string) string {
	location = strings.TrimSpace(location)
	if location == "" {
		return ""
	}
	return strings.ToUpper(location[:1]) + location[1:]
}
