package interfaces

import "context"

// ModelGateway is the "ask the model" capability.
type ModelGateway interface {
	// AskModel sends a single prompt and returns the raw text answer. Callers
	// strip code fences and parse JSON themselves.
	AskModel(ctx context.Context, prompt string) (string, error)
}

// WebhookGateway is the "submit action, get structured result" capability.
type WebhookGateway interface {
	// SubmitAction posts the payload under the given action name and returns
	// the decoded JSON response (map, slice or scalar). An empty body yields
	// an empty map.
	SubmitAction(ctx context.Context, action string, payload map[string]any) (any, error)
}
