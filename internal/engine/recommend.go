package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"brand-studio/server/internal/gateway"
	"brand-studio/server/internal/interfaces"
	"brand-studio/server/internal/models"
	"brand-studio/server/internal/prompts"
)

// recommendation is one pick returned by the model.
type recommendation struct {
	ID     models.FlexText `json:"id"`
	Reason string          `json:"reason"`
}

// recommender runs the shared "pick the best of N" model pass used for
// worlds and pillars.
type recommender struct {
	model   interfaces.ModelGateway
	prompts *prompts.TemplateEngine
}

// ask renders the template with a simplified item list and returns the
// chosen ids with their reasons.
func (r recommender) ask(ctx context.Context, template string, brief models.ExternalRecord, positioning string, items []map[string]string) (map[string]string, error) {
	list, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal candidates: %w", err)
	}
	prompt, err := r.prompts.Render(template, prompts.Vars{
		"brand_name":  brief.String("Brand Name"),
		"audience":    audienceSummary(brief),
		"positioning": positioning,
		"items":       string(list),
	})
	if err != nil {
		return nil, err
	}

	text, err := r.model.AskModel(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseRecommendations(text)
}

func parseRecommendations(text string) (map[string]string, error) {
	var raw any
	if err := gateway.DecodeModelJSON(text, &raw); err != nil {
		return nil, err
	}
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case map[string]any:
		for _, k := range []string{"recommendations", "recommended", "picks"} {
			if arr, ok := v[k].([]any); ok {
				items = arr
				break
			}
		}
	}
	if items == nil {
		return nil, fmt.Errorf("%w: no recommendations in model output", gateway.ErrMalformedResponse)
	}

	out := make(map[string]string, len(items))
	for _, rec := range decodeItems[recommendation](items) {
		if id := strings.TrimSpace(rec.ID.String()); id != "" {
			out[id] = rec.Reason
		}
	}
	return out, nil
}

func audienceSummary(rec models.ExternalRecord) string {
	var parts []string
	for _, title := range []string{"Consumer - Age", "Consumer - Gender", "Consumer - Income", "Consumer - Lifestyle"} {
		if v := rec.String(title); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return "not specified"
	}
	return strings.Join(parts, "; ")
}
