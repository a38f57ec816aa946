package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"brand-studio/server/internal/config"
	"brand-studio/server/internal/gateway"
	"brand-studio/server/internal/interfaces"
	"brand-studio/server/internal/logger"
	"brand-studio/server/internal/models"
	"brand-studio/server/internal/prompts"
	"brand-studio/server/internal/storage"
)

const (
	ActionGeneratePillars  = "generate_pillars"
	ActionUpdatePillar     = "update_pillar"
	ActionSavePillars      = "save_pillars"
	ActionGenerateStory    = "generate_story"
	ActionGenerateAdImages = "generate_ad_images"
)

// PillarState is a copy of the pillar engine's state.
type PillarState struct {
	Pillars             []*models.AdPillar `json:"pillars"`
	IsGeneratingPillars bool               `json:"isGeneratingPillars"`
	IsAnalyzingPillars  bool               `json:"isAnalyzingPillars"`
	AnalysisError       string             `json:"analysisError,omitempty"`
}

type PillarDeps struct {
	Source     ContextSource
	Webhook    interfaces.WebhookGateway
	Model      interfaces.ModelGateway
	Prompts    *prompts.TemplateEngine
	Rules      config.PillarConfig
	Scopes     *Scopes
	Background *Detached
	Hooks      Hooks
	Log        *logger.Logger
}

// PillarEngine owns the ad pillars and every story under them, including
// each story's version history.
type PillarEngine struct {
	deps PillarDeps
	rec  recommender

	mu            sync.RWMutex
	pillars       []*models.AdPillar
	generating    bool
	analyzing     bool
	analysisError string
}

func NewPillarEngine(deps PillarDeps) *PillarEngine {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Scopes == nil {
		deps.Scopes = NewScopes()
	}
	if deps.Background == nil {
		deps.Background = NewDetached(0, deps.Log)
	}
	return &PillarEngine{
		deps: deps,
		rec:  recommender{model: deps.Model, prompts: deps.Prompts},
	}
}

// State returns a deep copy of the current state
func (e *PillarEngine) State() PillarState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st := PillarState{
		Pillars:             make([]*models.AdPillar, len(e.pillars)),
		IsGeneratingPillars: e.generating,
		IsAnalyzingPillars:  e.analyzing,
		AnalysisError:       e.analysisError,
	}
	for i, p := range e.pillars {
		st.Pillars[i] = p.Clone()
	}
	return st
}

// Pillars returns deep copies of the pillars.
func (e *PillarEngine) Pillars() []*models.AdPillar {
	return e.State().Pillars
}

// Story returns a copy of one story.
func (e *PillarEngine) Story(pIdx, sIdx int) (*models.Story, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, s, err := e.storyAt(pIdx, sIdx)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

func (e *PillarEngine) pillarAt(pIdx int) (*models.AdPillar, error) {
	if pIdx < 0 || pIdx >= len(e.pillars) {
		return nil, fmt.Errorf("pillar %d: %w", pIdx, ErrNotFound)
	}
	return e.pillars[pIdx], nil
}

func (e *PillarEngine) storyAt(pIdx, sIdx int) (*models.AdPillar, *models.Story, error) {
	p, err := e.pillarAt(pIdx)
	if err != nil {
		return nil, nil, err
	}
	if sIdx < 0 || sIdx >= len(p.Stories) {
		return nil, nil, fmt.Errorf("story %d of pillar %d: %w", sIdx, pIdx, ErrNotFound)
	}
	return p, p.Stories[sIdx], nil
}

// holds reports whether p is still one of the engine's pillars.
func (e *PillarEngine) holds(p *models.AdPillar) bool {
	for _, cur := range e.pillars {
		if cur == p {
			return true
		}
	}
	return false
}

// relocate finds a story by id under a pillar captured before a gateway
// call. Either may have gone away in the meantime.
func (e *PillarEngine) relocate(p *models.AdPillar, storyID string) *models.Story {
	if !e.holds(p) {
		return nil
	}
	for _, s := range p.Stories {
		if s.ID == storyID {
			return s
		}
	}
	return nil
}

// applyRules drops excluded pillars, renames the rest and caps the batch.
func applyRules(rules config.PillarConfig, raw []models.AdPillar) []models.AdPillar {
	excluded := make(map[string]bool, len(rules.Exclude))
	for _, name := range rules.Exclude {
		excluded[normalizeLabel(name)] = true
	}
	rename := make(map[string]string, len(rules.Rename))
	for from, to := range rules.Rename {
		rename[normalizeLabel(from)] = to
	}

	out := make([]models.AdPillar, 0, len(raw))
	for _, p := range raw {
		if excluded[normalizeLabel(p.Label())] || excluded[normalizeLabel(p.Name)] {
			continue
		}
		if to, ok := rename[normalizeLabel(p.Label())]; ok {
			p.PillarName = to
		} else if to, ok := rename[normalizeLabel(p.Name)]; ok {
			p.PillarName = to
		}
		out = append(out, p)
		if rules.Max > 0 && len(out) == rules.Max {
			break
		}
	}
	return out
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// GeneratePillars replaces the pillar list with a filtered batch from the
// webhook and runs a recommendation pass over it.
func (e *PillarEngine) GeneratePillars(ctx context.Context) error {
	brief, err := e.deps.Source.FullContext()
	if err != nil {
		return err
	}
	positioning := e.deps.Source.Positioning()
	if strings.TrimSpace(positioning) == "" {
		return ErrNoPositioning
	}

	e.mu.Lock()
	e.generating = true
	e.analysisError = ""
	e.mu.Unlock()
	e.deps.Hooks.changed(storage.KeyAdPillars)

	opCtx, end := e.deps.Scopes.Begin(ctx, ScopePillars)
	defer end()
	resp, err := e.deps.Webhook.SubmitAction(opCtx, ActionGeneratePillars, payloadWith(brief, map[string]any{
		"positioning":    positioning,
		"selected_world": worldDescriptor(e.deps.Source.SelectedWorld()),
	}))

	if err != nil {
		e.mu.Lock()
		e.generating = false
		e.mu.Unlock()
		e.deps.Hooks.changed(storage.KeyAdPillars)
		return err
	}

	batch := applyRules(e.deps.Rules, decodeItems[models.AdPillar](ExtractArray(resp)))
	fresh := make([]*models.AdPillar, 0, len(batch))
	for i := range batch {
		p := batch[i]
		if p.Identifier() == "" {
			p.PillarID = models.FlexText(uuid.NewString())
		}
		p.Recommended, p.RecommendationReason = false, ""
		p.IsSelected, p.IsEditing, p.IsGeneratingStories, p.Error = false, false, false, ""
		p.Stories = nil
		fresh = append(fresh, &p)
	}

	e.mu.Lock()
	e.pillars = fresh
	e.generating = false
	e.mu.Unlock()
	e.deps.Hooks.changed(storage.KeyAdPillars)

	if len(fresh) == 0 {
		e.deps.Hooks.notice("No pillars came back from the workflow.")
		return nil
	}
	if err := e.recommend(opCtx); err != nil && !gateway.IsCancelled(err) {
		e.deps.Log.Warn("pillar recommendation failed", "error", err)
	}
	return nil
}

// RecommendPillars clears every recommendation flag and marks exactly the
// pillars the model picked.
func (e *PillarEngine) RecommendPillars(ctx context.Context) error {
	opCtx, end := e.deps.Scopes.Begin(ctx, ScopePillars)
	defer end()
	return e.recommend(opCtx)
}

func (e *PillarEngine) recommend(ctx context.Context) error {
	e.mu.RLock()
	empty := len(e.pillars) == 0
	e.mu.RUnlock()
	if empty {
		return nil
	}
	brief, err := e.deps.Source.FullContext()
	if err != nil {
		return err
	}

	e.mu.Lock()
	if len(e.pillars) == 0 {
		e.mu.Unlock()
		return nil
	}
	items := make([]map[string]string, 0, len(e.pillars))
	for _, p := range e.pillars {
		p.Recommended, p.RecommendationReason = false, ""
		items = append(items, map[string]string{
			"id":                  p.Identifier(),
			"life_problem":        p.Problem(),
			"hook_world_snapshot": p.HookWorldSnapshot.String(),
		})
	}
	e.analyzing = true
	e.analysisError = ""
	e.mu.Unlock()
	e.deps.Hooks.changed(storage.KeyAdPillars)

	picks, err := e.rec.ask(ctx, prompts.RecommendPillars, brief, e.deps.Source.Positioning(), items)

	e.mu.Lock()
	e.analyzing = false
	if err != nil {
		if !gateway.IsCancelled(err) {
			e.analysisError = fmt.Sprintf("Pillar analysis failed: %v", err)
		}
		e.mu.Unlock()
		e.deps.Hooks.changed(storage.KeyAdPillars)
		if !gateway.IsCancelled(err) {
			e.deps.Hooks.notice("Could not analyze pillars. None are marked as recommended.")
		}
		return err
	}
	for _, p := range e.pillars {
		if reason, ok := picks[p.Identifier()]; ok {
			p.Recommended, p.RecommendationReason = true, reason
		}
	}
	e.mu.Unlock()
	e.deps.Hooks.changed(storage.KeyAdPillars)
	return nil
}

func pillarDescriptor(p *models.AdPillar) map[string]any {
	return map[string]any{
		"pillar_id":                 p.Identifier(),
		"pillar_name":               p.Label(),
		"life_problem":              p.Problem(),
		"hook_world_snapshot":       p.HookWorldSnapshot.String(),
		"functional_problem_source": p.FunctionalProblemSource.String(),
	}
}

// GenerateStories replaces a pillar's stories with a batch from the
// webhook. When nothing usable comes back the pillar gets an error and keeps
// its existing stories.
func (e *PillarEngine) GenerateStories(ctx context.Context, pIdx int) error {
	brief, err := e.deps.Source.FullContext()
	if err != nil {
		return err
	}

	e.mu.Lock()
	p, err := e.pillarAt(pIdx)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	p.IsGeneratingStories = true
	p.Error = ""
	key := p.Identifier()
	payload := payloadWith(brief, map[string]any{
		"pillar":         pillarDescriptor(p),
		"positioning":    e.deps.Source.Positioning(),
		"selected_world": worldDescriptor(e.deps.Source.SelectedWorld()),
	})
	e.mu.Unlock()
	e.deps.Hooks.changed(storage.KeyAdPillars)

	opCtx, end := e.deps.Scopes.Begin(ctx, storiesScope(key))
	resp, err := e.deps.Webhook.SubmitAction(opCtx, ActionGenerateStory, payload)
	end()

	var stories []models.StoryContent
	if err == nil {
		stories = decodeItems[models.StoryContent](ExtractArray(resp))
	}

	e.mu.Lock()
	defer e.deps.Hooks.changed(storage.KeyAdPillars)
	defer e.mu.Unlock()

	if !e.holds(p) {
		return err
	}
	p.IsGeneratingStories = false
	switch {
	case err != nil:
		if !gateway.IsCancelled(err) {
			p.Error = fmt.Sprintf("Story generation failed: %v", err)
		}
		return err
	case len(stories) == 0:
		p.Error = "No stories could be read from the response."
		return nil
	}
	p.Stories = make([]*models.Story, 0, len(stories))
	for _, c := range stories {
		p.Stories = append(p.Stories, newStory(c))
	}
	return nil
}

// FreestyleStory writes one story from the user's own request and puts it
// first in the pillar's list.
func (e *PillarEngine) FreestyleStory(ctx context.Context, pIdx int, request string) (*models.Story, error) {
	if strings.TrimSpace(request) == "" {
		return nil, ErrEmptyPrompt
	}
	brief, err := e.deps.Source.FullContext()
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	p, err := e.pillarAt(pIdx)
	var pillarJSON string
	if err == nil {
		pillarJSON, err = jsonText(pillarDescriptor(p))
	}
	e.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	briefJSON, err := jsonText(brief)
	if err != nil {
		return nil, err
	}
	world := "none selected"
	if w := e.deps.Source.SelectedWorld(); w != nil {
		world = fmt.Sprintf("%s: %s", w.Title, w.Description)
	}
	prompt, err := e.deps.Prompts.Render(prompts.FreestyleStory, prompts.Vars{
		"context":     briefJSON,
		"positioning": e.deps.Source.Positioning(),
		"world":       world,
		"pillar":      pillarJSON,
		"request":     request,
		"language":    e.deps.Source.Language(),
	})
	if err != nil {
		return nil, err
	}
	text, err := e.deps.Model.AskModel(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var content models.StoryContent
	if err := gateway.DecodeModelJSON(text, &content); err != nil {
		return nil, err
	}
	if isEmptyContent(content) {
		return nil, fmt.Errorf("%w: story has no content", gateway.ErrMalformedResponse)
	}

	s := newStory(content)
	e.mu.Lock()
	if !e.holds(p) {
		e.mu.Unlock()
		return nil, fmt.Errorf("pillar %d: %w", pIdx, ErrNotFound)
	}
	p.Stories = append([]*models.Story{s}, p.Stories...)
	out := s.Clone()
	e.mu.Unlock()
	e.deps.Hooks.changed(storage.KeyAdPillars)
	return out, nil
}

func isEmptyContent(c models.StoryContent) bool {
	return c.Title == "" && c.Storyline == "" && c.Logline == "" && c.Overview == "" &&
		c.Story == "" && len(c.Frames) == 0
}

// UpdatePillar applies the user's edits and leaves edit mode at once. The
// backend save runs detached; its failure is reported but the local edit
// stands.
func (e *PillarEngine) UpdatePillar(pIdx int, patch models.PillarPatch) error {
	brief, err := e.deps.Source.FullContext()
	if err != nil {
		return err
	}

	e.mu.Lock()
	p, err := e.pillarAt(pIdx)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if patch.PillarName != nil {
		p.PillarName = *patch.PillarName
	}
	if patch.LifeProblem != nil {
		p.LifeProblem = *patch.LifeProblem
		p.LifestyleProblem = ""
	}
	if patch.HookWorldSnapshot != nil {
		p.HookWorldSnapshot = models.FlexText(*patch.HookWorldSnapshot)
	}
	p.IsEditing = false
	payload := payloadWith(brief, map[string]any{"pillar": pillarDescriptor(p)})
	e.mu.Unlock()
	e.deps.Hooks.changed(storage.KeyAdPillars)

	e.deps.Background.Go(ActionUpdatePillar, func(ctx context.Context) error {
		_, err := e.deps.Webhook.SubmitAction(ctx, ActionUpdatePillar, payload)
		return err
	}, func(err error) {
		e.deps.Hooks.synced(ActionUpdatePillar, err)
		if err != nil {
			e.deps.Hooks.notice("Pillar saved locally, but the backend save failed.")
		}
	})
	return nil
}

// beginStoryOp marks a story busy and captures what the model call needs.
func (e *PillarEngine) beginStoryOp(pIdx, sIdx int, mark func(*models.Story)) (*models.AdPillar, string, models.StoryContent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, s, err := e.storyAt(pIdx, sIdx)
	if err != nil {
		return nil, "", models.StoryContent{}, err
	}
	if s.Busy() {
		return nil, "", models.StoryContent{}, ErrStoryBusy
	}
	mark(s)
	s.Error = ""
	return p, s.ID, s.StoryContent.Clone(), nil
}

// finishStoryOp clears the busy flag and, on success, archives and applies
// the new content. A failure leaves the versions untouched.
func (e *PillarEngine) finishStoryOp(p *models.AdPillar, storyID, label string, err error, next func(models.StoryContent) models.StoryContent) {
	e.mu.Lock()
	s := e.relocate(p, storyID)
	if s != nil {
		s.IsUpdating, s.IsTranslating = false, false
		switch {
		case err == nil:
			archiveThenApply(s, next)
		case !gateway.IsCancelled(err):
			s.Error = fmt.Sprintf("%s failed: %v", label, err)
		}
	}
	e.mu.Unlock()
	e.deps.Hooks.changed(storage.KeyAdPillars)
}

// TranslateStory rewrites a story's text into lang, keeping its frame
// structure.
func (e *PillarEngine) TranslateStory(ctx context.Context, pIdx, sIdx int, lang string) error {
	if strings.TrimSpace(lang) == "" {
		return fmt.Errorf("target language: %w", ErrBadInput)
	}
	p, id, current, err := e.beginStoryOp(pIdx, sIdx, func(s *models.Story) { s.IsTranslating = true })
	if err != nil {
		return err
	}
	e.deps.Hooks.changed(storage.KeyAdPillars)

	var translated models.StoryContent
	err = func() error {
		opCtx, end := e.deps.Scopes.Begin(ctx, storyScope(id))
		defer end()

		storyJSON, err := jsonText(current)
		if err != nil {
			return err
		}
		prompt, err := e.deps.Prompts.Render(prompts.TranslateStory, prompts.Vars{
			"language": lang,
			"story":    storyJSON,
		})
		if err != nil {
			return err
		}
		text, err := e.deps.Model.AskModel(opCtx, prompt)
		if err != nil {
			return err
		}
		return gateway.DecodeModelJSON(text, &translated)
	}()

	e.finishStoryOp(p, id, "Translation", err, func(cur models.StoryContent) models.StoryContent {
		return mergeTranslation(cur, translated, lang)
	})
	return err
}

// UpdateStory asks the model to rewrite a story according to the user's
// change request.
func (e *PillarEngine) UpdateStory(ctx context.Context, pIdx, sIdx int, changes string) error {
	if strings.TrimSpace(changes) == "" {
		return ErrEmptyPrompt
	}
	brief, err := e.deps.Source.FullContext()
	if err != nil {
		return err
	}
	p, id, current, err := e.beginStoryOp(pIdx, sIdx, func(s *models.Story) { s.IsUpdating = true })
	if err != nil {
		return err
	}
	e.deps.Hooks.changed(storage.KeyAdPillars)

	var rewritten models.StoryContent
	err = func() error {
		opCtx, end := e.deps.Scopes.Begin(ctx, storyScope(id))
		defer end()

		briefJSON, err := jsonText(brief)
		if err != nil {
			return err
		}
		storyJSON, err := jsonText(current)
		if err != nil {
			return err
		}
		prompt, err := e.deps.Prompts.Render(prompts.UpdateStory, prompts.Vars{
			"context": briefJSON,
			"story":   storyJSON,
			"changes": changes,
		})
		if err != nil {
			return err
		}
		text, err := e.deps.Model.AskModel(opCtx, prompt)
		if err != nil {
			return err
		}
		if err := gateway.DecodeModelJSON(text, &rewritten); err != nil {
			return err
		}
		if isEmptyContent(rewritten) {
			return fmt.Errorf("%w: rewritten story has no content", gateway.ErrMalformedResponse)
		}
		return nil
	}()

	e.finishStoryOp(p, id, "Update", err, func(cur models.StoryContent) models.StoryContent {
		if rewritten.Language == "" {
			rewritten.Language = cur.Language
		}
		return rewritten
	})
	return err
}

// SaveStory archives the current content and applies the user's direct
// edits. A nil edit archives the content unchanged.
func (e *PillarEngine) SaveStory(pIdx, sIdx int, edited *models.StoryContent) error {
	e.mu.Lock()
	_, s, err := e.storyAt(pIdx, sIdx)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if s.Busy() {
		e.mu.Unlock()
		return ErrStoryBusy
	}
	archiveThenApply(s, func(cur models.StoryContent) models.StoryContent {
		if edited == nil {
			return cur
		}
		return edited.Clone()
	})
	e.mu.Unlock()
	e.deps.Hooks.changed(storage.KeyAdPillars)
	return nil
}

// NavigateVersion steps through a story's history; see navigate.
func (e *PillarEngine) NavigateVersion(pIdx, sIdx, dir int) (int, error) {
	e.mu.Lock()
	_, s, err := e.storyAt(pIdx, sIdx)
	if err != nil {
		e.mu.Unlock()
		return 0, err
	}
	navigate(s, dir)
	idx := s.CurrentVersionIndex
	e.mu.Unlock()
	e.deps.Hooks.changed(storage.KeyAdPillars)
	return idx, nil
}

func (e *PillarEngine) ToggleViewOriginal(pIdx, sIdx int) (bool, error) {
	return e.toggleStory(pIdx, sIdx, func(s *models.Story) bool {
		s.IsViewingOriginal = !s.IsViewingOriginal
		if s.IsViewingOriginal {
			s.IsEditing = false
		}
		return s.IsViewingOriginal
	})
}

func (e *PillarEngine) ToggleEditStory(pIdx, sIdx int) (bool, error) {
	return e.toggleStory(pIdx, sIdx, func(s *models.Story) bool {
		s.IsEditing = !s.IsEditing
		if s.IsEditing {
			s.IsViewingOriginal = false
		}
		return s.IsEditing
	})
}

func (e *PillarEngine) toggleStory(pIdx, sIdx int, flip func(*models.Story) bool) (bool, error) {
	e.mu.Lock()
	_, s, err := e.storyAt(pIdx, sIdx)
	if err != nil {
		e.mu.Unlock()
		return false, err
	}
	on := flip(s)
	e.mu.Unlock()
	e.deps.Hooks.changed(storage.KeyAdPillars)
	return on, nil
}

func (e *PillarEngine) TogglePillarSelected(pIdx int) (bool, error) {
	return e.togglePillar(pIdx, func(p *models.AdPillar) bool {
		p.IsSelected = !p.IsSelected
		return p.IsSelected
	})
}

func (e *PillarEngine) ToggleEditPillar(pIdx int) (bool, error) {
	return e.togglePillar(pIdx, func(p *models.AdPillar) bool {
		p.IsEditing = !p.IsEditing
		return p.IsEditing
	})
}

func (e *PillarEngine) togglePillar(pIdx int, flip func(*models.AdPillar) bool) (bool, error) {
	e.mu.Lock()
	p, err := e.pillarAt(pIdx)
	if err != nil {
		e.mu.Unlock()
		return false, err
	}
	on := flip(p)
	e.mu.Unlock()
	e.deps.Hooks.changed(storage.KeyAdPillars)
	return on, nil
}

// SavePillars sends the selected pillars to the backend in the background.
func (e *PillarEngine) SavePillars() error {
	brief, err := e.deps.Source.FullContext()
	if err != nil {
		return err
	}

	e.mu.RLock()
	var selected []*models.AdPillar
	for _, p := range e.pillars {
		if p.IsSelected {
			selected = append(selected, p.Clone())
		}
	}
	e.mu.RUnlock()

	payload := payloadWith(brief, map[string]any{"pillars": selected})
	e.deps.Background.Go(ActionSavePillars, func(ctx context.Context) error {
		_, err := e.deps.Webhook.SubmitAction(ctx, ActionSavePillars, payload)
		return err
	}, func(err error) {
		e.deps.Hooks.synced(ActionSavePillars, err)
		if err != nil {
			e.deps.Hooks.notice("Pillars kept locally, but the backend save failed.")
		}
	})
	return nil
}

// GenerateAdImages asks the workflow for ad visuals of one story and
// returns its response as is.
func (e *PillarEngine) GenerateAdImages(ctx context.Context, pIdx, sIdx int) (any, error) {
	brief, err := e.deps.Source.FullContext()
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	p, s, err := e.storyAt(pIdx, sIdx)
	var payload map[string]any
	if err == nil {
		payload = payloadWith(brief, map[string]any{
			"pillar":         pillarDescriptor(p),
			"story":          s.Displayed(),
			"selected_world": worldDescriptor(e.deps.Source.SelectedWorld()),
		})
	}
	e.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return e.deps.Webhook.SubmitAction(ctx, ActionGenerateAdImages, payload)
}

// ResetFlags clears every in-flight flag after a cancel-all. Applied
// mutations stay.
func (e *PillarEngine) ResetFlags() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.generating = false
	e.analyzing = false
	for _, p := range e.pillars {
		p.IsGeneratingStories = false
		for _, s := range p.Stories {
			s.IsUpdating = false
			s.IsTranslating = false
		}
	}
}

func (e *PillarEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pillars = nil
	e.generating = false
	e.analyzing = false
	e.analysisError = ""
}

// Restore loads persisted pillars. In-flight flags are dropped and stories
// missing an id or an original snapshot get one.
func (e *PillarEngine) Restore(pillars []*models.AdPillar) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pillars = make([]*models.AdPillar, 0, len(pillars))
	for _, p := range pillars {
		if p == nil {
			continue
		}
		p = p.Clone()
		p.IsGeneratingStories = false
		kept := p.Stories[:0]
		for _, s := range p.Stories {
			if s == nil {
				continue
			}
			s.IsUpdating, s.IsTranslating = false, false
			if s.ID == "" {
				s.ID = uuid.NewString()
			}
			if s.OriginalStory == nil {
				o := s.StoryContent.Clone()
				s.OriginalStory = &o
			}
			if s.CurrentVersionIndex < 0 || s.CurrentVersionIndex >= len(s.Versions) {
				s.CurrentVersionIndex = models.LatestVersion
			}
			kept = append(kept, s)
		}
		p.Stories = kept
		e.pillars = append(e.pillars, p)
	}
}
