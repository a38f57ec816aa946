package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"brand-studio/server/internal/gateway"
	"brand-studio/server/internal/generators"
	"brand-studio/server/internal/interfaces"
	"brand-studio/server/internal/logger"
	"brand-studio/server/internal/models"
	"brand-studio/server/internal/prompts"
	"brand-studio/server/internal/storage"
)

const (
	ActionGenerateWorlds = "generate_worlds"
	ActionSaveWorlds     = "save_worlds"

	maxWorlds = 4
	maxRank   = 4
)

// ImageScheduler queues world image jobs.
type ImageScheduler interface {
	Enqueue(job *generators.ImageJob) error
}

// WorldState is a copy of the world engine's state.
type WorldState struct {
	Worlds             []models.World               `json:"worlds"`
	SelectedWorldID    string                       `json:"selectedWorldId,omitempty"`
	IsGeneratingWorlds bool                         `json:"isGeneratingWorlds"`
	IsAnalyzingWorlds  bool                         `json:"isAnalyzingWorlds"`
	AnalysisError      string                       `json:"analysisError,omitempty"`
	Images             map[string]models.WorldImage `json:"images"`
}

// WorldPatch carries edits to a world; nil fields are left alone.
type WorldPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Hook        *string `json:"hook,omitempty"`
}

type WorldDeps struct {
	Source     ContextSource
	Webhook    interfaces.WebhookGateway
	Model      interfaces.ModelGateway
	Prompts    *prompts.TemplateEngine
	ImageGen   interfaces.ImageGenerator
	Scheduler  ImageScheduler
	Images     *generators.ImageCache
	Scopes     *Scopes
	Background *Detached
	Hooks      Hooks
	Log        *logger.Logger
}

// WorldEngine owns the candidate brand worlds, their recommendation and rank
// state, and their images.
type WorldEngine struct {
	deps WorldDeps
	rec  recommender

	mu            sync.RWMutex
	worlds        []*models.World
	selectedID    string
	generating    bool
	analyzing     bool
	analysisError string
	snapshots     map[string]*models.World
}

func NewWorldEngine(deps WorldDeps) *WorldEngine {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Images == nil {
		deps.Images = generators.NewImageCache(0)
	}
	if deps.Scopes == nil {
		deps.Scopes = NewScopes()
	}
	if deps.Background == nil {
		deps.Background = NewDetached(0, deps.Log)
	}
	return &WorldEngine{
		deps:      deps,
		rec:       recommender{model: deps.Model, prompts: deps.Prompts},
		snapshots: make(map[string]*models.World),
	}
}

// State returns a copy of the current state
func (e *WorldEngine) State() WorldState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st := WorldState{
		Worlds:             make([]models.World, len(e.worlds)),
		SelectedWorldID:    e.selectedID,
		IsGeneratingWorlds: e.generating,
		IsAnalyzingWorlds:  e.analyzing,
		AnalysisError:      e.analysisError,
		Images:             e.deps.Images.Snapshot(),
	}
	for i, w := range e.worlds {
		st.Worlds[i] = *w
	}
	return st
}

// Worlds returns copies of the worlds in display order.
func (e *WorldEngine) Worlds() []models.World {
	return e.State().Worlds
}

// Selected returns a copy of the selected world, or nil.
func (e *WorldEngine) Selected() *models.World {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if w := e.find(e.selectedID); w != nil {
		return w.Clone()
	}
	return nil
}

func (e *WorldEngine) SelectedID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.selectedID
}

func (e *WorldEngine) find(id string) *models.World {
	if id == "" {
		return nil
	}
	for _, w := range e.worlds {
		if w.ID == id {
			return w
		}
	}
	return nil
}

// GenerateWorlds replaces the world list with a fresh batch from the webhook
// and runs a recommendation pass over it.
func (e *WorldEngine) GenerateWorlds(ctx context.Context) error {
	brief, err := e.deps.Source.FullContext()
	if err != nil {
		return err
	}
	positioning := e.deps.Source.Positioning()
	if strings.TrimSpace(positioning) == "" {
		return ErrNoPositioning
	}

	e.mu.Lock()
	e.worlds = nil
	e.selectedID = ""
	e.snapshots = make(map[string]*models.World)
	e.analysisError = ""
	e.generating = true
	e.mu.Unlock()
	e.deps.Images.Clear()
	e.deps.Hooks.changed(storage.KeyWorlds, storage.KeySelectedWorldID)

	opCtx, end := e.deps.Scopes.Begin(ctx, ScopeWorlds)
	defer end()
	resp, err := e.deps.Webhook.SubmitAction(opCtx, ActionGenerateWorlds, payloadWith(brief, map[string]any{
		"positioning": positioning,
	}))

	if err != nil {
		e.mu.Lock()
		e.generating = false
		e.mu.Unlock()
		e.deps.Hooks.changed(storage.KeyWorlds)
		return err
	}

	worlds := decodeItems[models.World](ExtractArray(resp))
	if len(worlds) > maxWorlds {
		worlds = worlds[:maxWorlds]
	}
	fresh := make([]*models.World, 0, len(worlds))
	seen := make(map[string]bool, len(worlds))
	for i := range worlds {
		w := worlds[i]
		if w.ID == "" || seen[w.ID] {
			w.ID = uuid.NewString()
		}
		seen[w.ID] = true
		w.Recommended, w.RecommendationReason, w.Ranking, w.IsEditing = false, "", 0, false
		fresh = append(fresh, &w)
	}

	e.mu.Lock()
	e.worlds = fresh
	e.generating = false
	e.mu.Unlock()
	e.deps.Hooks.changed(storage.KeyWorlds)

	if len(fresh) == 0 {
		e.deps.Hooks.notice("No worlds came back from the workflow.")
		return nil
	}
	if err := e.recommend(opCtx); err != nil && !gateway.IsCancelled(err) {
		e.deps.Log.Warn("world recommendation failed", "error", err)
	}
	return nil
}

// RecommendWorlds clears every recommendation flag, asks the model for the
// best worlds and marks exactly the returned ids. Recommended worlds move to
// the front and get their images generated.
func (e *WorldEngine) RecommendWorlds(ctx context.Context) error {
	opCtx, end := e.deps.Scopes.Begin(ctx, ScopeWorlds)
	defer end()
	return e.recommend(opCtx)
}

func (e *WorldEngine) recommend(ctx context.Context) error {
	e.mu.RLock()
	empty := len(e.worlds) == 0
	e.mu.RUnlock()
	if empty {
		return nil
	}
	brief, err := e.deps.Source.FullContext()
	if err != nil {
		return err
	}

	e.mu.Lock()
	if len(e.worlds) == 0 {
		e.mu.Unlock()
		return nil
	}
	items := make([]map[string]string, 0, len(e.worlds))
	for _, w := range e.worlds {
		w.Recommended, w.RecommendationReason = false, ""
		items = append(items, map[string]string{"id": w.ID, "title": w.Title, "description": w.Description})
	}
	e.analyzing = true
	e.analysisError = ""
	e.mu.Unlock()
	e.deps.Hooks.changed(storage.KeyWorlds)

	picks, err := e.rec.ask(ctx, prompts.RecommendWorlds, brief, e.deps.Source.Positioning(), items)

	e.mu.Lock()
	e.analyzing = false
	if err != nil {
		if !gateway.IsCancelled(err) {
			e.analysisError = fmt.Sprintf("World analysis failed: %v", err)
		}
		e.mu.Unlock()
		e.deps.Hooks.changed(storage.KeyWorlds)
		return err
	}

	var newly []*models.World
	for _, w := range e.worlds {
		if reason, ok := picks[w.ID]; ok {
			w.Recommended, w.RecommendationReason = true, reason
			newly = append(newly, w.Clone())
		}
	}
	sort.SliceStable(e.worlds, func(i, j int) bool {
		return e.worlds[i].Recommended && !e.worlds[j].Recommended
	})
	e.mu.Unlock()
	e.deps.Hooks.changed(storage.KeyWorlds)

	for _, w := range newly {
		if err := e.startImage(w, brief); err != nil && !errors.Is(err, ErrImageBusy) {
			e.deps.Log.Warn("world image not scheduled", "world", w.ID, "error", err)
		}
	}
	return nil
}

// GenerateWorldImage starts image generation for one world. It returns
// immediately; progress is visible in the image state.
func (e *WorldEngine) GenerateWorldImage(id string) error {
	e.mu.RLock()
	w := e.find(id)
	if w != nil {
		w = w.Clone()
	}
	e.mu.RUnlock()
	if w == nil {
		return ErrNotFound
	}
	brief, err := e.deps.Source.FullContext()
	if err != nil {
		return err
	}
	return e.startImage(w, brief)
}

// Image returns the image state of one world.
func (e *WorldEngine) Image(id string) (models.WorldImage, bool) {
	return e.deps.Images.Get(id)
}

func (e *WorldEngine) startImage(w *models.World, brief models.ExternalRecord) error {
	if e.deps.ImageGen == nil {
		return fmt.Errorf("no image generator configured")
	}
	if !e.deps.Images.MarkLoading(w.ID) {
		return ErrImageBusy
	}
	e.deps.Hooks.changed(storage.KeyWorlds)

	job := &generators.ImageJob{
		ID:        w.ID,
		Generator: e.deps.ImageGen,
		Request:   &interfaces.ImageRequest{World: w, Context: brief, Language: e.deps.Source.Language()},
		Done: func(resp *interfaces.ImageResponse, err error) {
			if err != nil {
				e.deps.Images.Fail(w.ID, err)
				e.deps.Hooks.notice(fmt.Sprintf("Image for %q failed: %v", w.Title, err))
			} else {
				e.deps.Images.Put(w.ID, resp.URL)
			}
			e.deps.Hooks.changed(storage.KeyWorlds)
		},
	}

	if e.deps.Scheduler == nil {
		e.deps.Background.Go("world_image", func(ctx context.Context) error {
			resp, err := job.Generator.GenerateImage(ctx, job.Request)
			job.Done(resp, err)
			return err
		}, nil)
		return nil
	}
	if err := e.deps.Scheduler.Enqueue(job); err != nil {
		e.deps.Images.Fail(w.ID, err)
		e.deps.Hooks.changed(storage.KeyWorlds)
		return err
	}
	return nil
}

// CreateCustomWorld turns a free-text idea into one world, appends it and
// selects it.
func (e *WorldEngine) CreateCustomWorld(ctx context.Context, request string) (*models.World, error) {
	if strings.TrimSpace(request) == "" {
		return nil, ErrEmptyPrompt
	}
	brief, err := e.deps.Source.FullContext()
	if err != nil {
		return nil, err
	}
	briefJSON, err := jsonText(brief)
	if err != nil {
		return nil, err
	}
	prompt, err := e.deps.Prompts.Render(prompts.CustomWorld, prompts.Vars{
		"context":     briefJSON,
		"positioning": e.deps.Source.Positioning(),
		"request":     request,
	})
	if err != nil {
		return nil, err
	}
	text, err := e.deps.Model.AskModel(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var w models.World
	if err := gateway.DecodeModelJSON(text, &w); err != nil {
		return nil, err
	}
	if w.Title == "" && w.Description == "" {
		return nil, fmt.Errorf("%w: custom world has no title or description", gateway.ErrMalformedResponse)
	}
	w.ID = uuid.NewString()
	w.IsCustom = true
	w.Recommended, w.RecommendationReason, w.Ranking, w.IsEditing = false, "", 0, false

	e.mu.Lock()
	e.worlds = append(e.worlds, &w)
	e.selectedID = w.ID
	out := w.Clone()
	e.mu.Unlock()
	e.deps.Hooks.changed(storage.KeyWorlds, storage.KeySelectedWorldID)
	return out, nil
}

// RankWorld assigns rank 1..4, taking it away from whichever world held it.
// Rank 0 clears the world's rank.
func (e *WorldEngine) RankWorld(id string, rank int) error {
	if rank < 0 || rank > maxRank {
		return ErrInvalidRank
	}
	e.mu.Lock()
	target := e.find(id)
	if target == nil {
		e.mu.Unlock()
		return ErrNotFound
	}
	if rank != 0 {
		for _, w := range e.worlds {
			if w != target && w.Ranking == rank {
				w.Ranking = 0
			}
		}
	}
	target.Ranking = rank
	e.mu.Unlock()
	e.deps.Hooks.changed(storage.KeyWorlds)
	return nil
}

// SelectWorld marks the world used as story context; "" clears it.
func (e *WorldEngine) SelectWorld(id string) error {
	e.mu.Lock()
	if id != "" && e.find(id) == nil {
		e.mu.Unlock()
		return ErrNotFound
	}
	e.selectedID = id
	e.mu.Unlock()
	e.deps.Hooks.changed(storage.KeySelectedWorldID)
	return nil
}

// ToggleEditWorld enters or leaves edit mode. Entering captures a snapshot
// of the world as it was, available through EditSnapshot.
func (e *WorldEngine) ToggleEditWorld(id string) (bool, error) {
	e.mu.Lock()
	w := e.find(id)
	if w == nil {
		e.mu.Unlock()
		return false, ErrNotFound
	}
	if !w.IsEditing {
		e.snapshots[id] = w.Clone()
	}
	w.IsEditing = !w.IsEditing
	editing := w.IsEditing
	e.mu.Unlock()
	e.deps.Hooks.changed(storage.KeyWorlds)
	return editing, nil
}

// EditSnapshot returns the world as it was when edit mode was last entered.
func (e *WorldEngine) EditSnapshot(id string) (*models.World, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s, ok := e.snapshots[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// UpdateWorld edits a world's text while it is in edit mode. Changing the
// title or description drops the world's finished image.
func (e *WorldEngine) UpdateWorld(id string, patch WorldPatch) error {
	e.mu.Lock()
	w := e.find(id)
	if w == nil {
		e.mu.Unlock()
		return ErrNotFound
	}
	if !w.IsEditing {
		e.mu.Unlock()
		return ErrNotEditing
	}
	stale := false
	if patch.Title != nil && *patch.Title != w.Title {
		w.Title, stale = *patch.Title, true
	}
	if patch.Description != nil && *patch.Description != w.Description {
		w.Description, stale = *patch.Description, true
	}
	if patch.Hook != nil {
		w.Hook = *patch.Hook
	}
	e.mu.Unlock()
	// The image was drawn from the old title and description.
	if stale {
		e.deps.Images.Invalidate(id)
	}
	e.deps.Hooks.changed(storage.KeyWorlds)
	return nil
}

// SaveWorlds sends the current worlds to the backend in the background.
// Failures are reported on the sync channel; local state is kept.
func (e *WorldEngine) SaveWorlds() error {
	brief, err := e.deps.Source.FullContext()
	if err != nil {
		return err
	}
	st := e.State()
	payload := payloadWith(brief, map[string]any{
		"worlds":            st.Worlds,
		"selected_world_id": st.SelectedWorldID,
	})
	e.deps.Background.Go(ActionSaveWorlds, func(ctx context.Context) error {
		_, err := e.deps.Webhook.SubmitAction(ctx, ActionSaveWorlds, payload)
		return err
	}, func(err error) { e.deps.Hooks.synced(ActionSaveWorlds, err) })
	return nil
}

// ResetFlags clears in-flight flags after a cancel-all.
func (e *WorldEngine) ResetFlags() {
	e.mu.Lock()
	e.generating = false
	e.analyzing = false
	e.mu.Unlock()
}

// Reset drops every world and image.
func (e *WorldEngine) Reset() {
	e.mu.Lock()
	e.worlds = nil
	e.selectedID = ""
	e.generating = false
	e.analyzing = false
	e.analysisError = ""
	e.snapshots = make(map[string]*models.World)
	e.mu.Unlock()
	e.deps.Images.Clear()
}

// Restore loads persisted worlds; editing flags are dropped.
func (e *WorldEngine) Restore(worlds []models.World, selectedID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.worlds = make([]*models.World, 0, len(worlds))
	for i := range worlds {
		w := worlds[i]
		w.IsEditing = false
		if w.ID == "" {
			w.ID = uuid.NewString()
		}
		e.worlds = append(e.worlds, &w)
	}
	e.selectedID = ""
	if e.find(selectedID) != nil {
		e.selectedID = selectedID
	}
}
