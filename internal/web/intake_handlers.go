package web

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"brand-studio/server/internal/engine"
	"brand-studio/server/internal/models"
)

type categoryRequest struct {
	Category string `json:"category"`
}

func (h *Handlers) SelectCategory(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	var req categoryRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := s.SelectCategory(req.Category); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.State())
}

type fieldRequest struct {
	Path  string            `json:"path"`
	Value models.FieldValue `json:"value"`
}

func (h *Handlers) SetField(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	var req fieldRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := s.Intake().SetField(req.Path, req.Value); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Intake().Form(s.Intake().Category()))
}

// LoadForm accepts an external record (or an array holding one) and
// restores it into the matching form.
func (h *Handlers) LoadForm(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	var raw any
	if err := decode(r, &raw); err != nil {
		h.writeError(w, r, err)
		return
	}
	if raw == nil {
		h.writeError(w, r, fmt.Errorf("empty record: %w", engine.ErrBadInput))
		return
	}
	c, err := s.LoadSubmission(raw)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"category": c, "form": s.Intake().Form(c)})
}

type imagesRequest struct {
	Images []string `json:"images"`
}

func (h *Handlers) SetPackImages(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	var req imagesRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := s.Intake().SetPackImages(req.Images); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Intake().State().PackImages)
}

// GetContext returns the external record the workflow webhook receives.
func (h *Handlers) GetContext(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	rec, err := s.FullContext()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Clips

func (h *Handlers) AddClip(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	var clip models.TranscribedClip
	if err := decode(r, &clip); err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := s.Intake().AddClip(clip)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) RemoveClip(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	if err := s.Intake().RemoveClip(chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) RetryClips(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	n, err := s.RetryFailedClips(r.Context())
	if err != nil && n == 0 {
		h.writeError(w, r, err)
		return
	}
	resp := map[string]any{"recovered": n, "clips": s.Intake().State().Clips}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Suggestions

func (h *Handlers) FetchUsers(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	resp, err := s.Intake().FetchUsers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) SearchDiscussions(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	resp, err := s.Intake().SearchDiscussions(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) LoadDiscussion(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	c, err := s.LoadDiscussion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"category": c, "form": s.Intake().Form(c)})
}
