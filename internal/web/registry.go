package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"brand-studio/server/internal/config"
	"brand-studio/server/internal/engine"
	"brand-studio/server/internal/gateway"
	"brand-studio/server/internal/interfaces"
	"brand-studio/server/internal/logger"
	"brand-studio/server/internal/models"
	"brand-studio/server/internal/prompts"
	"brand-studio/server/internal/storage"
	"brand-studio/server/internal/transcode"
)

var errBadWorkspace = errors.New("workspace id must be 1-64 letters, digits, '-' or '_'")

// RegistryDeps are the process-wide collaborators shared by every workspace.
type RegistryDeps struct {
	Config      *config.Config
	Store       interfaces.KVStore
	Model       interfaces.ModelGateway
	Prompts     *prompts.TemplateEngine
	Transcoder  *transcode.Transcoder
	Scheduler   engine.ImageScheduler
	Transcriber interfaces.Transcriber
	Hub         *EventHub
	Log         *logger.Logger

	// NewWebhook overrides how a workspace's webhook client is built.
	NewWebhook func(workspace string) engine.SessionWebhook
}

// Registry holds one Studio per workspace id, created on first use and
// restored from storage.
type Registry struct {
	deps       RegistryDeps
	httpClient *http.Client
	mu         sync.Mutex
	studios    map[string]*engine.Studio
}

func NewRegistry(deps RegistryDeps) *Registry {
	if deps.Config == nil {
		deps.Config = config.Default()
	}
	if deps.Store == nil {
		deps.Store = storage.NewMemoryStore()
	}
	if deps.Transcoder == nil {
		deps.Transcoder = transcode.New(nil)
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	return &Registry{
		deps:       deps,
		httpClient: &http.Client{Timeout: deps.Config.Webhook.Timeout},
		studios:    make(map[string]*engine.Studio),
	}
}

// NewWorkspaceID returns a fresh random workspace id.
func NewWorkspaceID() string {
	return uuid.NewString()
}

func validWorkspaceID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// Get returns the studio of a workspace, creating and restoring it on first
// use.
func (r *Registry) Get(ctx context.Context, id string) (*engine.Studio, error) {
	if !validWorkspaceID(id) {
		return nil, fmt.Errorf("%v: %w", errBadWorkspace, engine.ErrBadInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.studios[id]; ok {
		return s, nil
	}

	s := engine.NewStudio(engine.StudioDeps{
		ID:          id,
		Webhook:     r.webhook(id),
		Model:       r.deps.Model,
		Prompts:     r.deps.Prompts,
		Transcoder:  r.deps.Transcoder,
		Scheduler:   r.deps.Scheduler,
		Transcriber: r.deps.Transcriber,
		Store:       storage.NewNamespace(r.deps.Store, id),
		Pillars:     r.deps.Config.Pillars,
		ImageCache:  r.deps.Config.Images.MaxEntries,
		SyncTimeout: r.deps.Config.Webhook.Timeout,
		Publish:     r.publish,
		Log:         r.deps.Log,
	})
	if err := s.Restore(ctx); err != nil {
		return nil, fmt.Errorf("failed to restore workspace %s: %w", id, err)
	}
	r.studios[id] = s
	r.deps.Log.Info("workspace opened", "workspace", id)
	return s, nil
}

func (r *Registry) webhook(id string) engine.SessionWebhook {
	if r.deps.NewWebhook != nil {
		return r.deps.NewWebhook(id)
	}
	return gateway.NewWebhook(r.deps.Config.Webhook, r.httpClient, r.deps.Log.With("workspace", id))
}

func (r *Registry) publish(ev models.Event) {
	if r.deps.Hub != nil {
		r.deps.Hub.Publish(ev)
	}
}

// Count returns the number of open workspaces.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.studios)
}

// Close cancels every running operation and waits for detached saves, up to
// the deadline of ctx.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	studios := make([]*engine.Studio, 0, len(r.studios))
	for _, s := range r.studios {
		studios = append(studios, s)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, s := range studios {
			s.CancelAll()
			s.Close()
		}
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for %d workspaces: %w", len(studios), ctx.Err())
	}
}
