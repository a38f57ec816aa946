package web

import (
	"fmt"
	"net/http"

	"brand-studio/server/internal/engine"
	"brand-studio/server/internal/models"
)

// Pillars

func (h *Handlers) GeneratePillars(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	if err := s.Pillars().GeneratePillars(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Pillars().State())
}

func (h *Handlers) RecommendPillars(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	if err := s.Pillars().RecommendPillars(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Pillars().State())
}

func (h *Handlers) SavePillars(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	if err := s.Pillars().SavePillars(); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "syncing"})
}

func (h *Handlers) UpdatePillar(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	p, err := indexParam(r, "p")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var patch models.PillarPatch
	if err := decode(r, &patch); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := s.Pillars().UpdatePillar(p, patch); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Pillars().State())
}

func (h *Handlers) ToggleEditPillar(w http.ResponseWriter, r *http.Request) {
	h.togglePillar(w, r, (*engine.PillarEngine).ToggleEditPillar, "editing")
}

func (h *Handlers) TogglePillarSelected(w http.ResponseWriter, r *http.Request) {
	h.togglePillar(w, r, (*engine.PillarEngine).TogglePillarSelected, "selected")
}

func (h *Handlers) togglePillar(w http.ResponseWriter, r *http.Request, flip func(*engine.PillarEngine, int) (bool, error), field string) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	p, err := indexParam(r, "p")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	on, err := flip(s.Pillars(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{field: on})
}

// Stories

func (h *Handlers) GenerateStories(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	p, err := indexParam(r, "p")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := s.Pillars().GenerateStories(r.Context(), p); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Pillars().State())
}

func (h *Handlers) FreestyleStory(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	p, err := indexParam(r, "p")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req promptRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	story, err := s.Pillars().FreestyleStory(r.Context(), p, req.Request)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, story)
}

type translateRequest struct {
	Language string `json:"language"`
}

func (h *Handlers) TranslateStory(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	p, i, err := storyParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req translateRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := s.Pillars().TranslateStory(r.Context(), p, i, req.Language); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeStory(w, r, s, p, i)
}

type updateStoryRequest struct {
	Changes string `json:"changes"`
}

func (h *Handlers) UpdateStory(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	p, i, err := storyParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req updateStoryRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := s.Pillars().UpdateStory(r.Context(), p, i, req.Changes); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeStory(w, r, s, p, i)
}

type saveStoryRequest struct {
	Content *models.StoryContent `json:"content"`
}

// SaveStory archives the current version and applies the edited content. A
// missing content saves the story unchanged.
func (h *Handlers) SaveStory(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	p, i, err := storyParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req saveStoryRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := s.Pillars().SaveStory(p, i, req.Content); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeStory(w, r, s, p, i)
}

type navigateRequest struct {
	Direction string `json:"direction"`
}

func (h *Handlers) NavigateVersion(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	p, i, err := storyParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req navigateRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	dir, valid := engine.ParseDirection(req.Direction)
	if !valid {
		h.writeError(w, r, fmt.Errorf("direction %q: %w", req.Direction, engine.ErrBadInput))
		return
	}
	if _, err := s.Pillars().NavigateVersion(p, i, dir); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeStory(w, r, s, p, i)
}

func (h *Handlers) ToggleViewOriginal(w http.ResponseWriter, r *http.Request) {
	h.toggleStory(w, r, (*engine.PillarEngine).ToggleViewOriginal)
}

func (h *Handlers) ToggleEditStory(w http.ResponseWriter, r *http.Request) {
	h.toggleStory(w, r, (*engine.PillarEngine).ToggleEditStory)
}

func (h *Handlers) toggleStory(w http.ResponseWriter, r *http.Request, flip func(*engine.PillarEngine, int, int) (bool, error)) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	p, i, err := storyParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := flip(s.Pillars(), p, i); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeStory(w, r, s, p, i)
}

func (h *Handlers) GenerateAdImages(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	p, i, err := storyParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := s.Pillars().GenerateAdImages(r.Context(), p, i)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// storyView is a story together with the content the UI should show.
type storyView struct {
	*models.Story
	Displayed models.StoryContent `json:"displayed"`
}

func (h *Handlers) writeStory(w http.ResponseWriter, r *http.Request, s *engine.Studio, p, i int) {
	story, err := s.Pillars().Story(p, i)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, storyView{Story: story, Displayed: story.Displayed()})
}
