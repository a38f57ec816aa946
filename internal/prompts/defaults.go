package prompts

func defaultTemplates() []*Template {
	return []*Template{
		{
			Name:        RecommendWorlds,
			Description: "Pick the two strongest brand worlds",
			Content: `You are a senior brand strategist.

Brand: {{brand_name}}
Target audience: {{audience}}
Positioning: {{positioning}}

Candidate brand worlds:
{{items}}

Pick the 2 worlds that fit this brand best. For each give a one-sentence reason.
Answer with JSON only, no commentary:
{"recommendations":[{"id":"<world id>","reason":"<one sentence>"}]}`,
		},
		{
			Name:        RecommendPillars,
			Description: "Pick the two strongest ad pillars",
			Content: `You are a senior brand strategist.

Brand: {{brand_name}}
Target audience: {{audience}}
Positioning: {{positioning}}

Candidate ad pillars:
{{items}}

Pick the 2 pillars with the strongest emotional pull for this audience. For each give a one-sentence reason.
Answer with JSON only, no commentary:
{"recommendations":[{"id":"<pillar id>","reason":"<one sentence>"}]}`,
		},
		{
			Name:        CustomWorld,
			Description: "Turn a user idea into one brand world",
			Content: `You are a creative director building a brand world for an ad campaign.

Brand context:
{{context}}

Positioning: {{positioning}}

The user describes the world they want:
{{request}}

Write one brand world. Answer with JSON only:
{"title":"<short name>","description":"<2-3 vivid sentences>","why_it_fits":"<one sentence>"}`,
		},
		{
			Name:        FreestyleStory,
			Description: "Write one story for a pillar from a free-text request",
			Content: `You are an award-winning advertising copywriter.

Brand context:
{{context}}

Positioning: {{positioning}}

Brand world: {{world}}

Ad pillar:
{{pillar}}

Request from the user:
{{request}}

Write one ad story in {{language}}. Answer with a single JSON object only:
{"title":"","logline":"","storyline":"","overview":"","frames":[{"frame_number":1,"visual":"","action":"","dialogue":"","voiceover":"","text":""}],"ending_moment":"","tagline":""}`,
		},
		{
			Name:        TranslateStory,
			Description: "Translate a story keeping its structure",
			Content: `Translate every text value of this ad story into {{language}}.
Keep the JSON structure, keys and frame count exactly as they are. Do not translate keys.

{{story}}

Answer with the translated JSON object only.`,
		},
		{
			Name:        UpdateStory,
			Description: "Rewrite a story from change requests",
			Content: `You are an advertising copywriter revising an ad story.

Brand context:
{{context}}

Current story:
{{story}}

Requested changes:
{{changes}}

Rewrite the whole story applying the changes and keep its language and structure.
Answer with the complete revised JSON object only, using the same keys.`,
		},
	}
}
