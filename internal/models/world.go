package models

import (
	"encoding/json"
)

// World is a candidate creative setting for the campaign.
type World struct {
	ID                   string `json:"id"`
	Title                string `json:"title"`
	Description          string `json:"description"`
	Hook                 string `json:"hook,omitempty"`
	WhyItFits            string `json:"why_it_fits,omitempty"`
	IsCustom             bool   `json:"isCustom,omitempty"`
	Recommended          bool   `json:"recommended,omitempty"`
	RecommendationReason string `json:"recommendationReason,omitempty"`
	// Ranking is the user's priority 1..4; 0 means unranked.
	Ranking   int  `json:"ranking,omitempty"`
	IsEditing bool `json:"isEditing,omitempty"`
}

// UnmarshalJSON also accepts the webhook's alternate spellings
// (label for title, why for why_it_fits, numeric ids).
func (w *World) UnmarshalJSON(b []byte) error {
	var aux struct {
		ID                   FlexText `json:"id"`
		Title                string   `json:"title"`
		Label                string   `json:"label"`
		Description          string   `json:"description"`
		Hook                 FlexText `json:"hook"`
		WhyItFits            string   `json:"why_it_fits"`
		Why                  string   `json:"why"`
		IsCustom             bool     `json:"isCustom"`
		Recommended          bool     `json:"recommended"`
		RecommendationReason string   `json:"recommendationReason"`
		Ranking              int      `json:"ranking"`
		IsEditing            bool     `json:"isEditing"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*w = World{
		ID:                   aux.ID.String(),
		Title:                firstNonEmpty(aux.Title, aux.Label),
		Description:          aux.Description,
		Hook:                 aux.Hook.String(),
		WhyItFits:            firstNonEmpty(aux.WhyItFits, aux.Why),
		IsCustom:             aux.IsCustom,
		Recommended:          aux.Recommended,
		RecommendationReason: aux.RecommendationReason,
		Ranking:              aux.Ranking,
		IsEditing:            aux.IsEditing,
	}
	return nil
}

func (w *World) Clone() *World {
	if w == nil {
		return nil
	}
	c := *w
	return &c
}

// WorldImage is the per-world image generation state.
type WorldImage struct {
	URL     string `json:"url,omitempty"`
	Loading bool   `json:"loading,omitempty"`
	Error   string `json:"error,omitempty"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
