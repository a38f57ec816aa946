package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"brand-studio/server/internal/interfaces"
	"brand-studio/server/internal/models"
)

// Persisted state keys, one per top-level piece of workspace state.
const (
	KeyLanguage         = "language"
	KeyWebhookEnv       = "webhookEnv"
	KeySelectedCategory = "selectedCategory"
	KeyRegion           = "region"
	KeySalesperson      = "salesperson"
	KeySessionID        = "sessionId"
	KeyBrandDescription = "brandDescription"
	KeyPositioningEdits = "positioningEdits"
	KeyAdPillars        = "adPillars"
	KeyWorlds           = "worlds"
	KeySelectedWorldID  = "selectedWorldId"
	KeyImageOnly        = "imageOnly"
	KeyClipDuration     = "clipDuration"
	KeyTranscribedClips = "transcribedClips"
	KeySuggestions      = "suggestions"
)

func FormKey(c models.Category) string   { return "form:" + string(c) }
func ImagesKey(c models.Category) string { return "images:" + string(c) }

// preservedKeys survive a full reset.
var preservedKeys = map[string]bool{
	KeyLanguage:   true,
	KeyWebhookEnv: true,
}

// AllKeys lists every persisted key.
func AllKeys() []string {
	keys := []string{
		KeyLanguage, KeyWebhookEnv, KeySelectedCategory, KeyRegion, KeySalesperson,
		KeySessionID, KeyBrandDescription, KeyPositioningEdits, KeyAdPillars, KeyWorlds,
		KeySelectedWorldID, KeyImageOnly, KeyClipDuration, KeyTranscribedClips, KeySuggestions,
	}
	for _, c := range models.Categories {
		keys = append(keys, FormKey(c), ImagesKey(c))
	}
	return keys
}

// StateSync writes workspace state as JSON, one key per field, last write wins.
type StateSync struct {
	store interfaces.KVStore
}

func NewStateSync(store interfaces.KVStore) *StateSync {
	return &StateSync{store: store}
}

func (s *StateSync) Save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := s.store.Set(ctx, key, string(data)); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// Load decodes a key into v and reports whether it existed.
func (s *StateSync) Load(ctx context.Context, key string, v any) (bool, error) {
	raw, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// Reset clears every key except language and webhook environment.
func (s *StateSync) Reset(ctx context.Context) error {
	var keys []string
	for _, k := range AllKeys() {
		if !preservedKeys[k] {
			keys = append(keys, k)
		}
	}
	return s.store.Delete(ctx, keys...)
}
