package models

// AdPillar is a narrative angle for the campaign together with the stories
// generated for it.
type AdPillar struct {
	PillarID                FlexText `json:"pillar_id,omitempty"`
	Name                    string   `json:"name,omitempty"`
	PillarName              string   `json:"pillar_name,omitempty"`
	LifeProblem             string   `json:"life_problem,omitempty"`
	LifestyleProblem        string   `json:"lifestyle_problem,omitempty"`
	HookWorldSnapshot       FlexText `json:"hook_world_snapshot,omitempty"`
	FunctionalProblemSource FlexText `json:"functional_problem_source,omitempty"`

	Recommended          bool     `json:"recommended,omitempty"`
	RecommendationReason string   `json:"recommendationReason,omitempty"`
	IsSelected           bool     `json:"isSelected,omitempty"`
	Stories              []*Story `json:"stories"`
	IsGeneratingStories  bool     `json:"isGeneratingStories,omitempty"`
	IsEditing            bool     `json:"isEditing,omitempty"`
	Error                string   `json:"error,omitempty"`
}

// Identifier is pillar_id, falling back to name.
func (p *AdPillar) Identifier() string {
	return firstNonEmpty(p.PillarID.String(), p.Name)
}

// Problem is life_problem, falling back to lifestyle_problem.
func (p *AdPillar) Problem() string {
	return firstNonEmpty(p.LifeProblem, p.LifestyleProblem)
}

// Label is the display name used for category rules.
func (p *AdPillar) Label() string {
	return firstNonEmpty(p.PillarName, p.Name)
}

func (p *AdPillar) Clone() *AdPillar {
	if p == nil {
		return nil
	}
	c := *p
	c.Stories = make([]*Story, len(p.Stories))
	for i, s := range p.Stories {
		c.Stories[i] = s.Clone()
	}
	return &c
}

// PillarPatch carries user edits to a pillar's descriptive fields.
type PillarPatch struct {
	PillarName        *string `json:"pillar_name,omitempty"`
	LifeProblem       *string `json:"life_problem,omitempty"`
	HookWorldSnapshot *string `json:"hook_world_snapshot,omitempty"`
}
