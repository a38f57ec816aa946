package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"brand-studio/server/internal/engine"
)

// Positioning

func (h *Handlers) GeneratePositioning(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	if _, err := s.PositioningEngine().Generate(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.PositioningEngine().State())
}

type positioningRequest struct {
	Text string `json:"text"`
	// Draft only updates the edit buffer.
	Draft bool `json:"draft"`
}

func (h *Handlers) SavePositioning(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	var req positioningRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p := s.PositioningEngine()
	if req.Draft {
		p.Edit(req.Text)
	} else if err := p.Save(req.Text); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p.State())
}

func (h *Handlers) SaveEnhancedPositioning(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	if err := s.PositioningEngine().SaveEnhanced(); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "syncing"})
}

// Worlds

func (h *Handlers) GenerateWorlds(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	if err := s.Worlds().GenerateWorlds(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Worlds().State())
}

func (h *Handlers) RecommendWorlds(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	if err := s.Worlds().RecommendWorlds(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Worlds().State())
}

type promptRequest struct {
	Request string `json:"request"`
}

func (h *Handlers) CreateCustomWorld(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	var req promptRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	world, err := s.Worlds().CreateCustomWorld(r.Context(), req.Request)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, world)
}

func (h *Handlers) SaveWorlds(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	if err := s.Worlds().SaveWorlds(); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "syncing"})
}

type selectWorldRequest struct {
	ID string `json:"id"`
}

func (h *Handlers) SelectWorld(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	var req selectWorldRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := s.Worlds().SelectWorld(req.ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Worlds().State())
}

type rankRequest struct {
	Rank int `json:"rank"`
}

func (h *Handlers) RankWorld(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	var req rankRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := s.Worlds().RankWorld(chi.URLParam(r, "id"), req.Rank); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Worlds().State())
}

// ToggleEditWorld flips edit mode. Entering it returns the snapshot the
// editor starts from.
func (h *Handlers) ToggleEditWorld(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	editing, err := s.Worlds().ToggleEditWorld(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := map[string]any{"editing": editing}
	if snap, ok := s.Worlds().EditSnapshot(id); ok && editing {
		resp["snapshot"] = snap
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) UpdateWorld(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	var patch engine.WorldPatch
	if err := decode(r, &patch); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := s.Worlds().UpdateWorld(chi.URLParam(r, "id"), patch); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Worlds().State())
}

func (h *Handlers) GenerateWorldImage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.Worlds().GenerateWorldImage(id); err != nil {
		h.writeError(w, r, err)
		return
	}
	img, _ := s.Worlds().Image(id)
	writeJSON(w, http.StatusAccepted, img)
}
