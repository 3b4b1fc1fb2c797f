package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aimorme/datewise-backend/internal/clients/openai"
	"github.com/aimorme/datewise-backend/internal/domain"
)

// Step 1: one reasoning call per profile, producing the psychological and
// taste analysis everything downstream builds on. There is no usable
// fallback for a failed analysis, so exhaustion is fatal.

var analysisRequiredKeys = []string{"psychological_profile", "taste_entities", "query_preparation"}

const analyzerSystemPrompt = `You are a dating profile analyst. Given one person's dating profile text, produce a JSON object with exactly these top-level keys:
"psychological_profile": {"dating_traits": {"adventurousness": 0-1, "openness": 0-1, "extraversion": 0-1, "romantic_style": string}, "summary": string},
"taste_entities": {"music": [strings], "food": [strings], "activities": [strings], "media": [strings]},
"query_preparation": {"search_terms": [strings], "vibe_keywords": [strings]}.
Only include taste entities the profile actually mentions or strongly implies. Respond with JSON only.`

func (p *Pipeline) AnalyzeProfiles(ctx context.Context, rec *domain.RequestRecord, st *State) Outcome {
	a, err := p.analyzeOne(ctx, rec.PersonA, st.Context, "person_a")
	if err != nil {
		return Fatal(fmt.Errorf("person A analysis: %w", err))
	}
	b, err := p.analyzeOne(ctx, rec.PersonB, st.Context, "person_b")
	if err != nil {
		return Fatal(fmt.Errorf("person B analysis: %w", err))
	}

	st.AnalysisA = a
	st.AnalysisB = b

	out := Success(map[string]any{
		"person_a":         a,
		"person_b":         b,
		"original_context": st.Context.Map(),
	}, "Analyzed both profiles")
	out.CulturalPreviews = append(personalityPreviews(a, "Person A"), personalityPreviews(b, "Person B")...)
	return out
}

func (p *Pipeline) analyzeOne(ctx context.Context, profile domain.ProfileInput, dctx domain.Context, label string) (map[string]any, error) {
	text, sources := combineProfileText(profile)
	if text == "" {
		return nil, fmt.Errorf("no usable profile content")
	}

	ctxJSON, _ := json.Marshal(dctx.Map())
	user := fmt.Sprintf("Profile (%s):\n%s\n\nDate context:\n%s", sources, text, ctxJSON)

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		analysis, err := p.ai.GenerateJSON(ctx, analyzerSystemPrompt, user, openai.GenerateOptions{
			Temperature: 0.7,
			MaxTokens:   2000,
			Timeout:     45 * time.Second,
			MaxAttempts: 1, // this loop owns the retry budget
		})
		if err == nil {
			err = openai.RequireKeys(analysis, analysisRequiredKeys...)
		}
		if err != nil {
			lastErr = err
			p.log.Warn("Profile analysis attempt failed",
				"profile", label,
				"attempt", attempt,
				"max_attempts", p.cfg.MaxAttempts,
				"error", err.Error(),
			)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		partitionTasteEntities(analysis, text)
		analysis["original_context"] = dctx.Map()
		analysis["processing"] = map[string]any{
			"profile":       label,
			"attempt":       attempt,
			"input_sources": sources,
			"fallback_used": false,
		}
		return analysis, nil
	}
	return nil, fmt.Errorf("analysis exhausted after %d attempts: %w", p.cfg.MaxAttempts, lastErr)
}

// combineProfileText merges the text input with a placeholder for attached
// screenshots. Image transcription is out of scope, so screenshots only
// contribute a note the model can weigh.
func combineProfileText(profile domain.ProfileInput) (text, sources string) {
	parts := []string{}
	srcs := []string{}
	if t := strings.TrimSpace(profile.Text); t != "" {
		parts = append(parts, t)
		srcs = append(srcs, "text")
	}
	images := 0
	for _, img := range profile.ImageData {
		if strings.TrimSpace(img) != "" {
			images++
		}
	}
	if images > 0 {
		parts = append(parts, fmt.Sprintf("[%d profile screenshot(s) attached; transcript not available]", images))
		srcs = append(srcs, "images")
	}
	return strings.Join(parts, " "), strings.Join(srcs, "+")
}

// partitionTasteEntities splits each taste category into entities the
// profile text actually mentions and ones the model inferred. Downstream
// taste-graph seeding prefers mentioned entities.
func partitionTasteEntities(analysis map[string]any, inputText string) {
	taste := asMap(analysis["taste_entities"])
	if taste == nil {
		return
	}
	lowered := strings.ToLower(inputText)

	mentioned := map[string]any{}
	inferred := map[string]any{}
	for category, v := range taste {
		var keep, moved []string
		for _, entity := range stringItems(v) {
			if entityMentioned(lowered, entity) {
				keep = append(keep, entity)
			} else {
				moved = append(moved, entity)
			}
		}
		if len(keep) > 0 {
			mentioned[category] = keep
		}
		if len(moved) > 0 {
			inferred[category] = moved
		}
	}
	analysis["taste_entities"] = map[string]any{
		"mentioned": mentioned,
		"inferred":  inferred,
	}
}

// entityMentioned checks whether any word of the entity name (4+ chars, to
// skip articles) appears in the profile text.
func entityMentioned(loweredText, entity string) bool {
	for _, word := range strings.Fields(strings.ToLower(entity)) {
		if len(word) >= 4 && strings.Contains(loweredText, word) {
			return true
		}
	}
	return false
}

func personalityPreviews(analysis map[string]any, who string) []string {
	profile := asMap(analysis["psychological_profile"])
	if profile == nil {
		return nil
	}
	if style := asString(asMap(profile["dating_traits"])["romantic_style"]); style != "" {
		return []string{fmt.Sprintf("%s: %s romantic style", who, style)}
	}
	if summary := asString(profile["summary"]); summary != "" {
		if len(summary) > 80 {
			summary = summary[:80]
		}
		return []string{fmt.Sprintf("%s: %s", who, summary)}
	}
	return nil
}
