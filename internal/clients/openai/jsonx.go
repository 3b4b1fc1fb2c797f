package openai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseModelJSON turns a model reply into a JSON object. Models wrap JSON in
// markdown fences or prose often enough that a plain unmarshal is not good
// enough; each recovery strategy is tried in order until one yields an
// object.
func ParseModelJSON(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}

	candidates := []string{
		text,
		stripFences(text),
		outerObject(text),
		firstBalancedObject(text),
	}

	var lastErr error
	for _, cand := range candidates {
		cand = strings.TrimSpace(cand)
		if cand == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(cand), &obj); err != nil {
			lastErr = err
			continue
		}
		return obj, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no JSON object found")
	}
	return nil, lastErr
}

// stripFences removes a leading ```json (or bare ```) fence and the matching
// closing fence.
func stripFences(text string) string {
	if !strings.Contains(text, "```") {
		return ""
	}
	start := strings.Index(text, "```")
	rest := text[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Drop the language tag line ("json", "JSON", or empty).
		tag := strings.TrimSpace(rest[:nl])
		if tag == "" || strings.EqualFold(tag, "json") {
			rest = rest[nl+1:]
		}
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

// outerObject slices from the first '{' to the last '}'.
func outerObject(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// firstBalancedObject scans for the first complete top-level object,
// tracking brace depth outside of string literals.
func firstBalancedObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// RequireKeys verifies obj carries every key, returning an error naming the
// first missing one.
func RequireKeys(obj map[string]any, keys ...string) error {
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			return fmt.Errorf("missing required key %q", k)
		}
	}
	return nil
}
