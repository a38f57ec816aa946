package engine

import (
	"encoding/json"
	"sort"
	"strings"

	"brand-studio/server/internal/gateway"
)

// Envelope keys the workflow wraps result arrays in.
var envelopeKeys = []string{"stories", "pillars", "worlds"}

const maxExtractDepth = 12

// shapeMatcher recognises a bare array by its first element.
type shapeMatcher struct {
	name  string
	match func(first map[string]any) bool
}

// shapeMatchers are evaluated in order; the first hit wins.
var shapeMatchers = []shapeMatcher{
	{name: "submission", match: func(m map[string]any) bool { return has(m, "executionID") }},
	{name: "pillar", match: func(m map[string]any) bool { return has(m, "pillar_id") || has(m, "name") }},
	{name: "story", match: func(m map[string]any) bool { return has(m, "storyline") || has(m, "logline") }},
	{name: "world", match: func(m map[string]any) bool {
		return (has(m, "title") || has(m, "label")) && (has(m, "why_it_fits") || has(m, "why"))
	}},
}

func has(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

// ExtractArray unwraps the result array of a webhook response. It first
// follows the usual envelope path ([0].response.body[0].output.<key>, any
// step optional), then searches the whole value for an envelope key or an
// array of a known shape. An empty array on the envelope path does not end
// the search. It returns nil when nothing matches; an empty or ambiguous
// object is not an error.
func ExtractArray(data any) []any {
	if arr, ok := unwrapEnvelope(data); ok && len(arr) > 0 {
		return arr
	}
	arr, _ := search(data, 0)
	return arr
}

func unwrapEnvelope(data any) ([]any, bool) {
	v := data
	v = first(v)
	v = step(v, "response")
	v = step(v, "body")
	v = first(v)
	v = step(v, "output")
	v = decodeEmbedded(v)
	return envelopeArray(v)
}

func first(v any) any {
	if arr, ok := v.([]any); ok && len(arr) > 0 {
		return arr[0]
	}
	return v
}

func step(v any, key string) any {
	if m, ok := v.(map[string]any); ok {
		if next, ok := m[key]; ok && next != nil {
			return next
		}
	}
	return v
}

func envelopeArray(v any) ([]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	for _, k := range envelopeKeys {
		if arr, ok := decodeEmbedded(m[k]).([]any); ok {
			return arr, true
		}
	}
	return nil, false
}

func search(v any, depth int) ([]any, bool) {
	if depth > maxExtractDepth {
		return nil, false
	}
	v = decodeEmbedded(v)

	switch val := v.(type) {
	case map[string]any:
		if arr, ok := envelopeArray(val); ok {
			return arr, true
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if arr, ok := search(val[k], depth+1); ok {
				return arr, true
			}
		}
	case []any:
		if len(val) == 0 {
			return nil, false
		}
		if head, ok := val[0].(map[string]any); ok {
			for _, m := range shapeMatchers {
				if m.match(head) {
					return val, true
				}
			}
		}
		for _, child := range val {
			if arr, ok := search(child, depth+1); ok {
				return arr, true
			}
		}
	}
	return nil, false
}

// decodeEmbedded parses JSON the workflow sometimes returns as a string,
// fenced or not. Other values are returned unchanged.
func decodeEmbedded(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	body := gateway.StripCodeFences(s)
	if !strings.HasPrefix(body, "{") && !strings.HasPrefix(body, "[") {
		return v
	}
	var out any
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return v
	}
	return out
}

// decodeItems re-decodes loosely typed items into T, skipping items that do
// not fit.
func decodeItems[T any](items []any) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			continue
		}
		var t T
		if err := json.Unmarshal(b, &t); err != nil {
			continue
		}
		out = append(out, t)
	}
	return out
}
