package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"brand-studio/server/internal/interfaces"
	"brand-studio/server/internal/logger"
	"brand-studio/server/internal/models"
	"brand-studio/server/internal/storage"
	"brand-studio/server/internal/transcode"
)

const (
	ActionGetUsers          = "get_users"
	ActionSearchDiscussions = "search_discussions"
	ActionLoadDiscussion    = "load_discussion"
)

// IntakeState is a copy of the questionnaire and session inputs.
type IntakeState struct {
	Language     string                                 `json:"language"`
	Category     models.Category                        `json:"selectedCategory,omitempty"`
	Region       string                                 `json:"region,omitempty"`
	Salesperson  string                                 `json:"salesperson,omitempty"`
	Forms        map[models.Category]*models.FormRecord `json:"forms"`
	PackImages   map[models.Category][]string           `json:"packImages"`
	ImageOnly    bool                                   `json:"imageOnly"`
	ClipDuration int                                    `json:"clipDuration"`
	Clips        []models.TranscribedClip               `json:"transcribedClips"`
	Suggestions  map[string]any                         `json:"suggestions,omitempty"`
}

type IntakeDeps struct {
	Transcoder *transcode.Transcoder
	Webhook    interfaces.WebhookGateway
	Hooks      Hooks
	Log        *logger.Logger
}

// Intake owns the three category questionnaires and the session inputs
// around them.
type Intake struct {
	deps IntakeDeps

	mu           sync.RWMutex
	language     string
	category     models.Category
	region       string
	salesperson  string
	forms        map[models.Category]*models.FormRecord
	images       map[models.Category][]string
	imageOnly    bool
	clipDuration int
	clips        []models.TranscribedClip
	suggestions  map[string]any
}

func NewIntake(deps IntakeDeps) *Intake {
	if deps.Transcoder == nil {
		deps.Transcoder = transcode.New(nil)
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	in := &Intake{deps: deps, language: transcode.DefaultLanguage}
	in.resetLocked()
	return in
}

func (in *Intake) resetLocked() {
	in.category = ""
	in.region = ""
	in.salesperson = ""
	in.forms = make(map[models.Category]*models.FormRecord, len(models.Categories))
	in.images = make(map[models.Category][]string, len(models.Categories))
	for _, c := range models.Categories {
		in.forms[c] = models.NewFormRecord(c)
	}
	in.imageOnly = false
	in.clipDuration = 0
	in.clips = nil
	in.suggestions = make(map[string]any)
}

// Reset clears everything except the language.
func (in *Intake) Reset() {
	in.mu.Lock()
	in.resetLocked()
	in.mu.Unlock()
}

func (in *Intake) State() IntakeState {
	in.mu.RLock()
	defer in.mu.RUnlock()

	st := IntakeState{
		Language:     in.language,
		Category:     in.category,
		Region:       in.region,
		Salesperson:  in.salesperson,
		Forms:        make(map[models.Category]*models.FormRecord, len(in.forms)),
		PackImages:   make(map[models.Category][]string, len(in.images)),
		ImageOnly:    in.imageOnly,
		ClipDuration: in.clipDuration,
		Clips:        append([]models.TranscribedClip(nil), in.clips...),
		Suggestions:  make(map[string]any, len(in.suggestions)),
	}
	for c, f := range in.forms {
		st.Forms[c] = f.Clone()
	}
	for c, imgs := range in.images {
		st.PackImages[c] = append([]string(nil), imgs...)
	}
	for k, v := range in.suggestions {
		st.Suggestions[k] = v
	}
	return st
}

func (in *Intake) Language() string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.language
}

func (in *Intake) Category() models.Category {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.category
}

// Form returns a copy of one category's form.
func (in *Intake) Form(c models.Category) *models.FormRecord {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.forms[c].Clone()
}

func (in *Intake) SetLanguage(lang string) error {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return fmt.Errorf("language: %w", ErrBadInput)
	}
	in.mu.Lock()
	in.language = lang
	in.mu.Unlock()
	in.deps.Hooks.changed(storage.KeyLanguage)
	return nil
}

// SelectCategory switches the active questionnaire and reports whether the
// category actually changed.
func (in *Intake) SelectCategory(raw string) (bool, error) {
	c, ok := models.ParseCategory(raw)
	if !ok {
		return false, fmt.Errorf("category %q: %w", raw, ErrBadInput)
	}
	in.mu.Lock()
	changed := in.category != c
	in.category = c
	in.mu.Unlock()
	if changed {
		in.deps.Hooks.changed(storage.KeySelectedCategory)
	}
	return changed, nil
}

func (in *Intake) SetRegion(region string) {
	in.mu.Lock()
	in.region = strings.TrimSpace(region)
	in.mu.Unlock()
	in.deps.Hooks.changed(storage.KeyRegion)
}

func (in *Intake) SetSalesperson(name string) {
	in.mu.Lock()
	in.salesperson = strings.TrimSpace(name)
	in.mu.Unlock()
	in.deps.Hooks.changed(storage.KeySalesperson)
}

func (in *Intake) SetImageOnly(on bool) {
	in.mu.Lock()
	in.imageOnly = on
	in.mu.Unlock()
	in.deps.Hooks.changed(storage.KeyImageOnly)
}

func (in *Intake) SetClipDuration(seconds int) error {
	if seconds < 0 {
		return fmt.Errorf("clip duration: %w", ErrBadInput)
	}
	in.mu.Lock()
	in.clipDuration = seconds
	in.mu.Unlock()
	in.deps.Hooks.changed(storage.KeyClipDuration)
	return nil
}

// SetField writes one answer of the active form through the generic path
// updater. Paths must exist in the category's schema.
func (in *Intake) SetField(path string, v models.FieldValue) error {
	in.mu.Lock()
	c := in.category
	if c == "" {
		in.mu.Unlock()
		return ErrNoCategory
	}
	f, ok := transcode.SchemaFor(c).Field(path)
	if !ok {
		in.mu.Unlock()
		return fmt.Errorf("field %q: %w", path, ErrBadInput)
	}
	if f.Kind == transcode.KindText && len(v.Keys) > 0 {
		in.mu.Unlock()
		return fmt.Errorf("field %q takes text: %w", path, ErrBadInput)
	}
	if f.Kind != transcode.KindText && v.Text != "" {
		in.mu.Unlock()
		return fmt.Errorf("field %q takes option keys: %w", path, ErrBadInput)
	}
	in.forms[c].Set(path, v)
	in.mu.Unlock()
	in.deps.Hooks.changed(storage.FormKey(c))
	return nil
}

// ReplaceForm swaps a whole form, e.g. after a restore.
func (in *Intake) ReplaceForm(form *models.FormRecord) error {
	if form == nil {
		return fmt.Errorf("form: %w", ErrBadInput)
	}
	c, ok := models.ParseCategory(string(form.Category))
	if !ok {
		return fmt.Errorf("category %q: %w", form.Category, ErrBadInput)
	}
	clone := models.NewFormRecord(c)
	for p, v := range form.Fields {
		clone.Set(p, v)
	}
	in.mu.Lock()
	in.forms[c] = clone
	in.mu.Unlock()
	in.deps.Hooks.changed(storage.FormKey(c))
	return nil
}

// SetPackImages replaces the pack images of the active category.
func (in *Intake) SetPackImages(images []string) error {
	in.mu.Lock()
	c := in.category
	if c == "" {
		in.mu.Unlock()
		return ErrNoCategory
	}
	in.images[c] = compactStrings(images)
	in.mu.Unlock()
	in.deps.Hooks.changed(storage.ImagesKey(c))
	return nil
}

func compactStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// LoadSubmission restores a form from an external record (or submission
// rows) and makes its category active.
func (in *Intake) LoadSubmission(raw any) (models.Category, error) {
	form := in.deps.Transcoder.FromExternal(raw, "")
	images := transcode.ImagesFromExternal(raw)
	c := form.Category

	in.mu.Lock()
	in.forms[c] = form
	in.images[c] = images
	in.category = c
	in.mu.Unlock()
	in.deps.Hooks.changed(storage.FormKey(c), storage.ImagesKey(c), storage.KeySelectedCategory)
	return c, nil
}

// External renders the active form with the session metadata on top. It
// fails with ErrNoCategory when no category is selected.
func (in *Intake) External(sessionID string) (models.ExternalRecord, error) {
	in.mu.RLock()
	defer in.mu.RUnlock()

	c := in.category
	if c == "" {
		return nil, ErrNoCategory
	}
	rec := in.deps.Transcoder.ToExternal(in.forms[c], in.language, in.images[c], c, in.imageOnly)
	if in.salesperson != "" {
		rec[transcode.TitleSalesperson] = in.salesperson
	}
	if !in.imageOnly {
		if in.region != "" {
			rec[transcode.TitleRegion] = in.region
		}
		if sessionID != "" {
			rec[transcode.TitleSessionID] = sessionID
		}
	}
	return rec, nil
}

// FetchUsers loads the salesperson directory, caching the result.
func (in *Intake) FetchUsers(ctx context.Context) (any, error) {
	return in.suggest(ctx, ActionGetUsers, "", map[string]any{})
}

// SearchDiscussions looks up earlier submissions matching query.
func (in *Intake) SearchDiscussions(ctx context.Context, query string) (any, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyPrompt
	}
	return in.suggest(ctx, ActionSearchDiscussions, query, map[string]any{"query": query})
}

func (in *Intake) suggest(ctx context.Context, action, query string, payload map[string]any) (any, error) {
	resp, err := in.deps.Webhook.SubmitAction(ctx, action, payload)
	if err != nil {
		return nil, err
	}
	key := action
	if query != "" {
		key += ":" + strings.ToLower(query)
	}
	in.mu.Lock()
	in.suggestions[key] = resp
	in.mu.Unlock()
	in.deps.Hooks.changed(storage.KeySuggestions)
	return resp, nil
}

// LoadDiscussion fetches one earlier submission and restores it into the
// matching form.
func (in *Intake) LoadDiscussion(ctx context.Context, id string) (models.Category, error) {
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("discussion id: %w", ErrBadInput)
	}
	resp, err := in.deps.Webhook.SubmitAction(ctx, ActionLoadDiscussion, map[string]any{"id": id})
	if err != nil {
		return "", err
	}
	if rows := ExtractArray(resp); len(rows) > 0 {
		resp = rows
	}
	return in.LoadSubmission(resp)
}

// RestoreState loads persisted intake state.
func (in *Intake) RestoreState(st IntakeState) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if st.Language != "" {
		in.language = st.Language
	}
	if c, ok := models.ParseCategory(string(st.Category)); ok {
		in.category = c
	}
	in.region = st.Region
	in.salesperson = st.Salesperson
	for c, f := range st.Forms {
		if f != nil {
			f = f.Clone()
			f.Category = c
			in.forms[c] = f
		}
	}
	for c, imgs := range st.PackImages {
		in.images[c] = append([]string(nil), imgs...)
	}
	in.imageOnly = st.ImageOnly
	in.clipDuration = st.ClipDuration
	in.clips = append([]models.TranscribedClip(nil), st.Clips...)
	for k, v := range st.Suggestions {
		in.suggestions[k] = v
	}
}
