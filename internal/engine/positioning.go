package engine

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"brand-studio/server/internal/interfaces"
	"brand-studio/server/internal/logger"
	"brand-studio/server/internal/storage"
)

const (
	ActionGenerateDescription     = "generate_description"
	ActionSaveEditsPositioning    = "save_edits_positioning"
	ActionSaveEnhancedPositioning = "save_enhanced_positioning"
)

// statementKeys are tried in order when pulling the positioning statement
// out of a webhook response.
var statementKeys = []string{"description", "positioning", "brand_description", "output", "text"}

type PositioningState struct {
	Statement    string `json:"statement"`
	EditBuffer   string `json:"editBuffer"`
	IsGenerating bool   `json:"isGenerating"`
}

type PositioningDeps struct {
	Source     ContextSource
	Webhook    interfaces.WebhookGateway
	Scopes     *Scopes
	Background *Detached
	Hooks      Hooks
	Log        *logger.Logger
}

// Positioning holds the brand positioning statement and its edit buffer.
type Positioning struct {
	deps PositioningDeps

	mu         sync.RWMutex
	statement  string
	editBuffer string
	generating bool
}

func NewPositioning(deps PositioningDeps) *Positioning {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Scopes == nil {
		deps.Scopes = NewScopes()
	}
	if deps.Background == nil {
		deps.Background = NewDetached(0, deps.Log)
	}
	return &Positioning{deps: deps}
}

func (p *Positioning) State() PositioningState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PositioningState{Statement: p.statement, EditBuffer: p.editBuffer, IsGenerating: p.generating}
}

// Statement is the current positioning text, empty until generated.
func (p *Positioning) Statement() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.statement
}

// Generate asks the workflow for a positioning statement built from the
// current form.
func (p *Positioning) Generate(ctx context.Context) (string, error) {
	brief, err := p.deps.Source.FullContext()
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.generating = true
	p.mu.Unlock()

	opCtx, end := p.deps.Scopes.Begin(ctx, ScopePositioning)
	resp, err := p.deps.Webhook.SubmitAction(opCtx, ActionGenerateDescription, payloadWith(brief, nil))
	end()

	p.mu.Lock()
	p.generating = false
	if err != nil {
		p.mu.Unlock()
		return "", err
	}
	statement := findStatement(resp, 0)
	if statement == "" {
		statement = rawText(resp)
	}
	p.statement = strings.TrimSpace(statement)
	p.editBuffer = p.statement
	out := p.statement
	p.mu.Unlock()

	p.deps.Hooks.changed(storage.KeyBrandDescription, storage.KeyPositioningEdits)
	return out, nil
}

// findStatement returns the first non-empty string under a statement key,
// searching objects and arrays depth first.
func findStatement(v any, depth int) string {
	if depth > maxExtractDepth {
		return ""
	}
	switch t := v.(type) {
	case map[string]any:
		for _, k := range statementKeys {
			if s, ok := t[k].(string); ok && strings.TrimSpace(s) != "" {
				if inner := findStatement(decodeEmbedded(s), depth+1); inner != "" {
					return inner
				}
				return s
			}
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s := findStatement(t[k], depth+1); s != "" {
				return s
			}
		}
	case []any:
		for _, item := range t {
			if s := findStatement(item, depth+1); s != "" {
				return s
			}
		}
	}
	return ""
}

func rawText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any:
		if len(t) == 0 {
			return ""
		}
	case []any:
		if len(t) == 0 {
			return ""
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// Edit updates the edit buffer without touching the statement.
func (p *Positioning) Edit(text string) {
	p.mu.Lock()
	p.editBuffer = text
	p.mu.Unlock()
	p.deps.Hooks.changed(storage.KeyPositioningEdits)
}

// Save makes text (or the edit buffer when text is empty) the statement and
// syncs it to the backend in the background.
func (p *Positioning) Save(text string) error {
	brief, err := p.deps.Source.FullContext()
	if err != nil {
		return err
	}

	p.mu.Lock()
	if text != "" {
		p.editBuffer = text
	}
	p.statement = p.editBuffer
	statement := p.statement
	p.mu.Unlock()
	p.deps.Hooks.changed(storage.KeyBrandDescription, storage.KeyPositioningEdits)

	p.sync(ActionSaveEditsPositioning, payloadWith(brief, map[string]any{"positioning": statement}))
	return nil
}

// SaveEnhanced syncs the current statement together with the selected world
// in the background.
func (p *Positioning) SaveEnhanced() error {
	brief, err := p.deps.Source.FullContext()
	if err != nil {
		return err
	}
	statement := p.Statement()
	if statement == "" {
		return ErrNoPositioning
	}
	p.sync(ActionSaveEnhancedPositioning, payloadWith(brief, map[string]any{
		"positioning":    statement,
		"selected_world": worldDescriptor(p.deps.Source.SelectedWorld()),
	}))
	return nil
}

func (p *Positioning) sync(action string, payload map[string]any) {
	p.deps.Background.Go(action, func(ctx context.Context) error {
		_, err := p.deps.Webhook.SubmitAction(ctx, action, payload)
		return err
	}, func(err error) { p.deps.Hooks.synced(action, err) })
}

func (p *Positioning) ResetFlags() {
	p.mu.Lock()
	p.generating = false
	p.mu.Unlock()
}

func (p *Positioning) Reset() {
	p.mu.Lock()
	p.statement, p.editBuffer, p.generating = "", "", false
	p.mu.Unlock()
}

func (p *Positioning) Restore(statement, editBuffer string) {
	p.mu.Lock()
	p.statement, p.editBuffer = statement, editBuffer
	p.mu.Unlock()
}
