package engine

import (
	"encoding/json"
	"fmt"

	"brand-studio/server/internal/models"
)

// ContextSource supplies the assembled generation context to the engines.
type ContextSource interface {
	// FullContext returns the external record for the current form with
	// session metadata overlaid, or ErrNoCategory.
	FullContext() (models.ExternalRecord, error)
	Positioning() string
	Language() string
	SelectedWorld() *models.World
}

// payloadWith copies the context and adds extra keys.
func payloadWith(rec models.ExternalRecord, extra map[string]any) map[string]any {
	out := make(map[string]any, len(rec)+len(extra))
	for k, v := range rec {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func worldDescriptor(w *models.World) map[string]any {
	if w == nil {
		return nil
	}
	return map[string]any{
		"id":          w.ID,
		"title":       w.Title,
		"description": w.Description,
		"hook":        w.Hook,
		"why_it_fits": w.WhyItFits,
	}
}

// jsonText renders v as indented JSON for prompt templates.
func jsonText(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal prompt input: %w", err)
	}
	return string(b), nil
}
