package generators

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"brand-studio/server/internal/interfaces"
)

// ActionGenerateWorld is the webhook action that renders a world's key visual.
const ActionGenerateWorld = "generate_world"

var ErrNoImage = errors.New("image response carried no image")

// WorldImageGenerator renders world images through the workflow webhook.
type WorldImageGenerator struct {
	webhook interfaces.WebhookGateway
}

func NewWorldImageGenerator(webhook interfaces.WebhookGateway) *WorldImageGenerator {
	return &WorldImageGenerator{webhook: webhook}
}

// GenerateImage submits the world with the brand context and returns the
// first image reference found in the response.
func (g *WorldImageGenerator) GenerateImage(ctx context.Context, req *interfaces.ImageRequest) (*interfaces.ImageResponse, error) {
	if req == nil || req.World == nil {
		return nil, fmt.Errorf("image request has no world")
	}
	start := time.Now()

	payload := make(map[string]any, len(req.Context)+2)
	for k, v := range req.Context {
		payload[k] = v
	}
	payload["language"] = req.Language
	payload["world"] = map[string]any{
		"id":          req.World.ID,
		"title":       req.World.Title,
		"description": req.World.Description,
		"hook":        req.World.Hook,
		"why_it_fits": req.World.WhyItFits,
	}

	resp, err := g.webhook.SubmitAction(ctx, ActionGenerateWorld, payload)
	if err != nil {
		return nil, err
	}
	url, ok := findImage(resp, 0)
	if !ok {
		return nil, ErrNoImage
	}
	return &interfaces.ImageResponse{
		URL:            url,
		GenerationTime: time.Since(start).Milliseconds(),
	}, nil
}

var (
	urlKeys    = []string{"image_url", "imageUrl", "url", "image", "output_url"}
	base64Keys = []string{"image_base64", "b64_json", "base64"}
)

// findImage walks the response depth-first for an image reference.
func findImage(v any, depth int) (string, bool) {
	if depth > 8 {
		return "", false
	}
	switch val := v.(type) {
	case map[string]any:
		for _, k := range urlKeys {
			if s, ok := val[k].(string); ok && looksLikeImageRef(s) {
				return s, true
			}
		}
		for _, k := range base64Keys {
			if s, ok := val[k].(string); ok && s != "" {
				if strings.HasPrefix(s, "data:") {
					return s, true
				}
				return "data:image/png;base64," + s, true
			}
		}
		for _, child := range val {
			if s, ok := findImage(child, depth+1); ok {
				return s, true
			}
		}
	case []any:
		for _, child := range val {
			if s, ok := findImage(child, depth+1); ok {
				return s, true
			}
		}
	case string:
		if looksLikeImageRef(val) {
			return val, true
		}
	}
	return "", false
}

func looksLikeImageRef(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "data:image/")
}
