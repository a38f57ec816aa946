package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"brand-studio/server/internal/config"
	"brand-studio/server/internal/generators"
	"brand-studio/server/internal/interfaces"
	"brand-studio/server/internal/logger"
	"brand-studio/server/internal/models"
	"brand-studio/server/internal/prompts"
	"brand-studio/server/internal/storage"
	"brand-studio/server/internal/transcode"
)

// CancelAllOps is the Cancel name that aborts every open scope.
const CancelAllOps = "all"

// SessionWebhook is the webhook gateway plus the per-workspace session and
// environment it carries.
type SessionWebhook interface {
	interfaces.WebhookGateway
	Environment() string
	SetEnvironment(env string) error
	SessionID() string
	SetSessionID(id string)
	OnSessionAdopted(fn func(id string))
}

type StudioDeps struct {
	ID          string
	Webhook     SessionWebhook
	Model       interfaces.ModelGateway
	Prompts     *prompts.TemplateEngine
	Transcoder  *transcode.Transcoder
	Scheduler   ImageScheduler
	Transcriber interfaces.Transcriber
	Store       interfaces.KVStore
	Pillars     config.PillarConfig
	ImageCache  int
	SyncTimeout time.Duration
	Publish     func(models.Event)
	Log         *logger.Logger
}

// StudioState is the full workspace snapshot served to the UI.
type StudioState struct {
	Workspace   string           `json:"workspace"`
	WebhookEnv  string           `json:"webhookEnv"`
	SessionID   string           `json:"sessionId,omitempty"`
	Intake      IntakeState      `json:"intake"`
	Positioning PositioningState `json:"positioning"`
	Worlds      WorldState       `json:"worlds"`
	Pillars     PillarState      `json:"pillars"`
	ActiveOps   []string         `json:"activeOps"`
}

// Studio is one workspace: the intake, positioning, world and pillar
// engines sharing a context source, cancellation scopes and state sync.
type Studio struct {
	id          string
	webhook     SessionWebhook
	transcriber interfaces.Transcriber
	sync        *storage.StateSync
	syncTimeout time.Duration
	publish     func(models.Event)
	log         *logger.Logger

	scopes     *Scopes
	background *Detached

	intake      *Intake
	positioning *Positioning
	worlds      *WorldEngine
	pillars     *PillarEngine
}

func NewStudio(deps StudioDeps) *Studio {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Store == nil {
		deps.Store = storage.NewMemoryStore()
	}
	if deps.SyncTimeout <= 0 {
		deps.SyncTimeout = 30 * time.Second
	}
	if deps.Prompts == nil {
		deps.Prompts = prompts.NewTemplateEngine()
	}
	log := deps.Log.With("workspace", deps.ID)

	s := &Studio{
		id:          deps.ID,
		webhook:     deps.Webhook,
		transcriber: deps.Transcriber,
		sync:        storage.NewStateSync(deps.Store),
		syncTimeout: deps.SyncTimeout,
		publish:     deps.Publish,
		log:         log,
		scopes:      NewScopes(),
		background:  NewDetached(deps.SyncTimeout, log),
	}
	hooks := Hooks{Changed: s.changed, Synced: s.synced, Notice: s.notice}

	s.intake = NewIntake(IntakeDeps{
		Transcoder: deps.Transcoder,
		Webhook:    deps.Webhook,
		Hooks:      hooks,
		Log:        log,
	})
	s.positioning = NewPositioning(PositioningDeps{
		Source:     s,
		Webhook:    deps.Webhook,
		Scopes:     s.scopes,
		Background: s.background,
		Hooks:      hooks,
		Log:        log,
	})
	s.worlds = NewWorldEngine(WorldDeps{
		Source:     s,
		Webhook:    deps.Webhook,
		Model:      deps.Model,
		Prompts:    deps.Prompts,
		ImageGen:   generators.NewWorldImageGenerator(deps.Webhook),
		Scheduler:  deps.Scheduler,
		Images:     generators.NewImageCache(deps.ImageCache),
		Scopes:     s.scopes,
		Background: s.background,
		Hooks:      hooks,
		Log:        log,
	})
	s.pillars = NewPillarEngine(PillarDeps{
		Source:     s,
		Webhook:    deps.Webhook,
		Model:      deps.Model,
		Prompts:    deps.Prompts,
		Rules:      deps.Pillars,
		Scopes:     s.scopes,
		Background: s.background,
		Hooks:      hooks,
		Log:        log,
	})

	deps.Webhook.OnSessionAdopted(func(string) { s.changed(storage.KeySessionID) })
	return s
}

func (s *Studio) ID() string { return s.id }

func (s *Studio) Intake() *Intake { return s.intake }

func (s *Studio) PositioningEngine() *Positioning { return s.positioning }

func (s *Studio) Worlds() *WorldEngine { return s.worlds }

func (s *Studio) Pillars() *PillarEngine { return s.pillars }

// Positioning is the current statement; part of ContextSource.
func (s *Studio) Positioning() string { return s.positioning.Statement() }

func (s *Studio) Language() string { return s.intake.Language() }

func (s *Studio) SelectedWorld() *models.World { return s.worlds.Selected() }

// FullContext is the external record every generation call starts from.
func (s *Studio) FullContext() (models.ExternalRecord, error) {
	return s.intake.External(s.webhook.SessionID())
}

func (s *Studio) State() StudioState {
	return StudioState{
		Workspace:   s.id,
		WebhookEnv:  s.webhook.Environment(),
		SessionID:   s.webhook.SessionID(),
		Intake:      s.intake.State(),
		Positioning: s.positioning.State(),
		Worlds:      s.worlds.State(),
		Pillars:     s.pillars.State(),
		ActiveOps:   s.scopes.Active(),
	}
}

// SelectCategory switches the questionnaire. A different category starts a
// new brief, so positioning, worlds and pillars are dropped.
func (s *Studio) SelectCategory(raw string) error {
	changed, err := s.intake.SelectCategory(raw)
	if err != nil || !changed {
		return err
	}
	s.resetDownstream()
	return nil
}

// LoadSubmission replaces the active brief with a saved record. Work built
// on the previous brief is dropped.
func (s *Studio) LoadSubmission(raw any) (models.Category, error) {
	c, err := s.intake.LoadSubmission(raw)
	if err != nil {
		return "", err
	}
	s.resetDownstream()
	return c, nil
}

// LoadDiscussion fetches a past discussion and loads it like LoadSubmission.
func (s *Studio) LoadDiscussion(ctx context.Context, id string) (models.Category, error) {
	c, err := s.intake.LoadDiscussion(ctx, id)
	if err != nil {
		return "", err
	}
	s.resetDownstream()
	return c, nil
}

// resetDownstream clears positioning, worlds and pillars, which all derive
// from the brief.
func (s *Studio) resetDownstream() {
	s.positioning.Reset()
	s.worlds.Reset()
	s.pillars.Reset()
	s.changed(storage.KeyBrandDescription)
	s.changed(storage.KeyPositioningEdits)
	s.changed(storage.KeyWorlds)
	s.changed(storage.KeySelectedWorldID)
	s.changed(storage.KeyAdPillars)
}

func (s *Studio) SetWebhookEnv(env string) error {
	if err := s.webhook.SetEnvironment(env); err != nil {
		return fmt.Errorf("%v: %w", err, ErrBadInput)
	}
	s.changed(storage.KeyWebhookEnv)
	return nil
}

// RetryFailedClips re-transcribes failed clips with the configured
// transcriber.
func (s *Studio) RetryFailedClips(ctx context.Context) (int, error) {
	return s.intake.RetryFailed(ctx, s.transcriber)
}

// Cancel aborts one operation scope, or all of them for CancelAllOps.
// Cancellation stops progress; applied changes stay.
func (s *Studio) Cancel(op string) int {
	if op == CancelAllOps {
		return s.CancelAll()
	}
	if s.scopes.Cancel(op) {
		return 1
	}
	return 0
}

// CancelAll aborts every scope and clears every in-flight flag.
func (s *Studio) CancelAll() int {
	n := s.scopes.CancelAll()
	s.positioning.ResetFlags()
	s.worlds.ResetFlags()
	s.pillars.ResetFlags()
	s.changed(storage.KeyWorlds)
	s.changed(storage.KeyAdPillars)
	return n
}

// Reset wipes the workspace except language and webhook environment.
func (s *Studio) Reset(ctx context.Context) error {
	s.CancelAll()
	s.intake.Reset()
	s.positioning.Reset()
	s.worlds.Reset()
	s.pillars.Reset()
	s.webhook.SetSessionID("")

	if err := s.sync.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset stored state: %w", err)
	}
	s.emit(models.Event{Type: models.EventState, Topic: "reset"})
	return nil
}

// Restore loads every persisted key. Missing keys keep their defaults.
func (s *Studio) Restore(ctx context.Context) error {
	var st IntakeState
	st.Forms = make(map[models.Category]*models.FormRecord)
	st.PackImages = make(map[models.Category][]string)

	load := func(key string, v any) bool {
		ok, err := s.sync.Load(ctx, key, v)
		if err != nil {
			s.log.Warn("skipping unreadable state", "key", key, "error", err)
			return false
		}
		return ok
	}

	load(storage.KeyLanguage, &st.Language)
	load(storage.KeySelectedCategory, &st.Category)
	load(storage.KeyRegion, &st.Region)
	load(storage.KeySalesperson, &st.Salesperson)
	load(storage.KeyImageOnly, &st.ImageOnly)
	load(storage.KeyClipDuration, &st.ClipDuration)
	load(storage.KeyTranscribedClips, &st.Clips)
	load(storage.KeySuggestions, &st.Suggestions)
	for _, c := range models.Categories {
		var form models.FormRecord
		if load(storage.FormKey(c), &form) {
			st.Forms[c] = &form
		}
		var images []string
		if load(storage.ImagesKey(c), &images) {
			st.PackImages[c] = images
		}
	}
	s.intake.RestoreState(st)

	var env string
	if load(storage.KeyWebhookEnv, &env) && env != "" {
		if err := s.webhook.SetEnvironment(env); err != nil {
			s.log.Warn("ignoring stored webhook environment", "env", env, "error", err)
		}
	}
	var session string
	if load(storage.KeySessionID, &session) && session != "" {
		s.webhook.SetSessionID(session)
	}

	var statement, edits string
	load(storage.KeyBrandDescription, &statement)
	load(storage.KeyPositioningEdits, &edits)
	s.positioning.Restore(statement, edits)

	var worlds []models.World
	var selected string
	load(storage.KeyWorlds, &worlds)
	load(storage.KeySelectedWorldID, &selected)
	s.worlds.Restore(worlds, selected)

	var pillars []*models.AdPillar
	load(storage.KeyAdPillars, &pillars)
	s.pillars.Restore(pillars)
	return ctx.Err()
}

// Close waits for detached backend saves to finish.
func (s *Studio) Close() {
	s.background.Wait()
}

// value returns the current value persisted under key.
func (s *Studio) value(key string) (any, bool) {
	switch key {
	case storage.KeyLanguage:
		return s.intake.Language(), true
	case storage.KeyWebhookEnv:
		return s.webhook.Environment(), true
	case storage.KeySessionID:
		return s.webhook.SessionID(), true
	case storage.KeyBrandDescription:
		return s.positioning.State().Statement, true
	case storage.KeyPositioningEdits:
		return s.positioning.State().EditBuffer, true
	case storage.KeyAdPillars:
		return s.pillars.Pillars(), true
	case storage.KeyWorlds:
		return s.worlds.Worlds(), true
	case storage.KeySelectedWorldID:
		return s.worlds.SelectedID(), true
	}

	st := s.intake.State()
	switch key {
	case storage.KeySelectedCategory:
		return st.Category, true
	case storage.KeyRegion:
		return st.Region, true
	case storage.KeySalesperson:
		return st.Salesperson, true
	case storage.KeyImageOnly:
		return st.ImageOnly, true
	case storage.KeyClipDuration:
		return st.ClipDuration, true
	case storage.KeyTranscribedClips:
		return st.Clips, true
	case storage.KeySuggestions:
		return st.Suggestions, true
	}
	if c, ok := strings.CutPrefix(key, "form:"); ok {
		return st.Forms[models.Category(c)], true
	}
	if c, ok := strings.CutPrefix(key, "images:"); ok {
		return st.PackImages[models.Category(c)], true
	}
	return nil, false
}

// changed persists one key and tells the UI about it.
func (s *Studio) changed(key string) {
	v, ok := s.value(key)
	if !ok {
		s.log.Warn("unknown state key", "key", key)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.syncTimeout)
	defer cancel()
	if err := s.sync.Save(ctx, key, v); err != nil {
		s.log.Warn("failed to persist state", "key", key, "error", err)
	}
	s.emit(models.Event{Type: models.EventState, Topic: key})
}

func (s *Studio) synced(action string, err error) {
	ev := models.Event{Type: models.EventSync, Topic: action, Status: "ok"}
	if err != nil {
		ev.Status = "failed"
		ev.Message = err.Error()
	}
	s.emit(ev)
}

func (s *Studio) notice(msg string) {
	s.emit(models.Event{Type: models.EventNotice, Topic: "notice", Message: msg})
}

func (s *Studio) emit(ev models.Event) {
	if s.publish == nil {
		return
	}
	ev.Workspace = s.id
	ev.Time = time.Now()
	s.publish(ev)
}
