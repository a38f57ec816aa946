package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"brand-studio/server/internal/engine"
	"brand-studio/server/internal/gateway"
	"brand-studio/server/internal/logger"
	"brand-studio/server/internal/prompts"
)

const maxBodyBytes = 16 << 20

type Handlers struct {
	registry *Registry
	hub      *EventHub
	prompts  *prompts.TemplateEngine
	log      *logger.Logger
}

func NewHandlers(registry *Registry, hub *EventHub, tmpl *prompts.TemplateEngine, log *logger.Logger) *Handlers {
	if log == nil {
		log = logger.Nop()
	}
	return &Handlers{registry: registry, hub: hub, prompts: tmpl, log: log}
}

// imageQueueStats is implemented by the shared image worker pool.
type imageQueueStats interface {
	Pending() int
	GetWorkerCount() int
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if h.hub != nil {
		clients = h.hub.ClientCount("")
	}
	resp := map[string]any{
		"status":     "ok",
		"service":    "brand-studio",
		"workspaces": h.registry.Count(),
		"clients":    clients,
	}
	if q, ok := h.registry.deps.Scheduler.(imageQueueStats); ok {
		resp["image_queue"] = map[string]int{
			"workers": q.GetWorkerCount(),
			"pending": q.Pending(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps an engine or gateway error onto a response. A cancelled
// operation is not a failure.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if gateway.IsCancelled(err) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
		return
	}

	status, msg := http.StatusBadGateway, err.Error()
	var httpErr *gateway.HTTPError
	switch {
	case errors.Is(err, engine.ErrNoCategory),
		errors.Is(err, engine.ErrNoPositioning),
		errors.Is(err, engine.ErrEmptyTranscript):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrBadInput),
		errors.Is(err, engine.ErrInvalidRank),
		errors.Is(err, engine.ErrEmptyPrompt):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrStoryBusy),
		errors.Is(err, engine.ErrImageBusy),
		errors.Is(err, engine.ErrNotEditing):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrNoTranscriber):
		status = http.StatusServiceUnavailable
	case errors.Is(err, gateway.ErrMalformedResponse):
		msg = gateway.ErrMalformedResponse.Error()
	case errors.As(err, &httpErr):
		msg = fmt.Sprintf("upstream returned HTTP %d", httpErr.Status)
	}

	if status >= http.StatusInternalServerError {
		h.log.Warn("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeMessage(w, status, msg)
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("request body: %v: %w", err, engine.ErrBadInput)
}

func indexParam(r *http.Request, name string) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative index: %w", name, engine.ErrBadInput)
	}
	return n, nil
}

func storyParams(r *http.Request) (int, int, error) {
	p, err := indexParam(r, "p")
	if err != nil {
		return 0, 0, err
	}
	s, err := indexParam(r, "s")
	if err != nil {
		return 0, 0, err
	}
	return p, s, nil
}

// studio resolves the workspace of the request, writing the error response
// itself on failure.
func (h *Handlers) studio(w http.ResponseWriter, r *http.Request) (*engine.Studio, bool) {
	s, err := h.registry.Get(r.Context(), chi.URLParam(r, "ws"))
	if err != nil {
		if errors.Is(err, engine.ErrBadInput) {
			writeMessage(w, http.StatusBadRequest, err.Error())
		} else {
			h.log.Error("failed to open workspace", "error", err)
			writeMessage(w, http.StatusInternalServerError, "failed to open workspace")
		}
		return nil, false
	}
	return s, true
}

// Workspace handlers

func (h *Handlers) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	id := NewWorkspaceID()
	s, err := h.registry.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.State())
}

func (h *Handlers) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.State())
}

func (h *Handlers) ResetWorkspace(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	if err := s.Reset(r.Context()); err != nil {
		h.log.Error("failed to reset workspace", "workspace", s.ID(), "error", err)
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.State())
}

type settingsRequest struct {
	Language     *string `json:"language"`
	Region       *string `json:"region"`
	Salesperson  *string `json:"salesperson"`
	ImageOnly    *bool   `json:"imageOnly"`
	ClipDuration *int    `json:"clipDuration"`
	WebhookEnv   *string `json:"webhookEnv"`
}

func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	var req settingsRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	in := s.Intake()
	if req.WebhookEnv != nil {
		if err := s.SetWebhookEnv(*req.WebhookEnv); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	if req.Language != nil {
		if err := in.SetLanguage(*req.Language); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	if req.ClipDuration != nil {
		if err := in.SetClipDuration(*req.ClipDuration); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	if req.Region != nil {
		in.SetRegion(*req.Region)
	}
	if req.Salesperson != nil {
		in.SetSalesperson(*req.Salesperson)
	}
	if req.ImageOnly != nil {
		in.SetImageOnly(*req.ImageOnly)
	}
	writeJSON(w, http.StatusOK, s.State())
}

func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	n := s.Cancel(chi.URLParam(r, "op"))
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": n})
}

// Prompt template handlers

func (h *Handlers) ListPrompts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"templates": h.prompts.Names()})
}

func (h *Handlers) ExportPrompt(w http.ResponseWriter, r *http.Request) {
	data, err := h.prompts.ExportTemplate(chi.URLParam(r, "name"))
	if err != nil {
		writeMessage(w, http.StatusNotFound, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, data)
}
