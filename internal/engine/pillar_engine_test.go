package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brand-studio/server/internal/config"
	"brand-studio/server/internal/gateway"
	"brand-studio/server/internal/models"
)

func TestApplyRulesExcludesRenamesAndCaps(t *testing.T) {
	raw := []models.AdPillar{
		{PillarID: "1", PillarName: "Self-Actualization"},
		{PillarID: "2", PillarName: "Physiological"},
		{PillarID: "3", Name: "safety"},
		{PillarID: "4", PillarName: "Love/Belonging"},
		{PillarID: "5", PillarName: " Esteem "},
		{PillarID: "6", PillarName: "Adventure"},
		{PillarID: "7", Name: "self actualization"},
	}
	out := applyRules(config.Default().Pillars, raw)

	require.Len(t, out, 4)
	var names []string
	for _, p := range out {
		names = append(names, p.Label())
		assert.NotContains(t, strings.ToLower(p.Label()), "actualization")
	}
	assert.Equal(t, []string{"Basic Needs", "Security", "Connection", "Recognition"}, names)
}

func TestApplyRulesHonoursConfiguredTable(t *testing.T) {
	rules := config.PillarConfig{Exclude: []string{"Adventure"}, Max: 2}
	out := applyRules(rules, []models.AdPillar{
		{Name: "Adventure"}, {Name: "Calm"}, {Name: "Joy"}, {Name: "Pride"},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "Calm", out[0].Label())
	assert.Equal(t, "Joy", out[1].Label())
}

func pillarEnvelope(pillars ...map[string]any) []any {
	items := make([]any, len(pillars))
	for i, p := range pillars {
		items[i] = p
	}
	return []any{map[string]any{"response": map[string]any{"body": []any{
		map[string]any{"output": map[string]any{"pillars": items}},
	}}}}
}

func TestGeneratePillarsFiltersAndRecommends(t *testing.T) {
	ts := newTestStudio(t)
	ts.ready(t)
	ts.webhook.respond(ActionGeneratePillars, pillarEnvelope(
		map[string]any{"pillar_id": 1, "pillar_name": "Self-Actualization", "life_problem": "x"},
		map[string]any{"pillar_id": 2, "pillar_name": "Physiological", "life_problem": "thirst"},
		map[string]any{"pillar_id": 3, "pillar_name": "Safety", "lifestyle_problem": "worry"},
		map[string]any{"pillar_id": 4, "pillar_name": "Esteem", "hook_world_snapshot": map[string]any{"world": "Beach"}},
		map[string]any{"pillar_id": 5, "pillar_name": "Fun"},
		map[string]any{"pillar_id": 6, "pillar_name": "Calm"},
	))
	ts.model.on("Candidate ad pillars", recommendJSON("3", "6"), nil)

	require.NoError(t, ts.Pillars().GeneratePillars(context.Background()))
	st := ts.Pillars().State()
	require.Len(t, st.Pillars, 4)
	assert.False(t, st.IsGeneratingPillars)

	var ids []string
	for _, p := range st.Pillars {
		ids = append(ids, p.Identifier())
		assert.Equal(t, p.Identifier() == "3", p.Recommended, p.Identifier())
	}
	assert.Equal(t, []string{"2", "3", "4", "5"}, ids)
	assert.Equal(t, "Basic Needs", st.Pillars[0].Label())
	assert.Equal(t, "worry", st.Pillars[1].Problem())
	assert.Equal(t, `{"world":"Beach"}`, st.Pillars[2].HookWorldSnapshot.String())
}

func TestCancelPillarsStopsRecommendation(t *testing.T) {
	ts := newTestStudio(t)
	ts.ready(t)
	ts.webhook.respond(ActionGeneratePillars, pillarEnvelope(
		map[string]any{"pillar_id": 2, "pillar_name": "Physiological"},
		map[string]any{"pillar_id": 6, "pillar_name": "Calm"},
	))
	entered := ts.model.holdOn("Candidate ad pillars")

	errc := make(chan error, 1)
	go func() { errc <- ts.Pillars().GeneratePillars(context.Background()) }()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("recommendation pass never started")
	}
	assert.Equal(t, 1, ts.Cancel(ScopePillars))
	require.NoError(t, <-errc)

	st := ts.Pillars().State()
	assert.False(t, st.IsAnalyzingPillars)
	assert.Empty(t, st.AnalysisError)
	require.Len(t, st.Pillars, 2)
	assert.Empty(t, ts.events.of(models.EventNotice), "a cancelled pass is not reported as a failure")
}

func TestRecommendPillarsFailureAlerts(t *testing.T) {
	ts := newTestStudio(t)
	ts.ready(t)
	ts.Pillars().Restore([]*models.AdPillar{{PillarID: "1", Recommended: true}, {PillarID: "2"}})
	ts.model.on("Candidate ad pillars", "", errors.New("quota"))

	assert.Error(t, ts.Pillars().RecommendPillars(context.Background()))
	for _, p := range ts.Pillars().Pillars() {
		assert.False(t, p.Recommended)
	}
	assert.NotEmpty(t, ts.events.of(models.EventNotice))
}

func storyFixture() map[string]any {
	return map[string]any{"output": map[string]any{"stories": []any{
		map[string]any{"title": "One", "logline": "l1", "frames": []any{
			map[string]any{"frame_number": 1, "visual": "sunrise"},
			map[string]any{"frame_number": 2, "visual": "bottle"},
		}},
		map[string]any{"title": "Two", "story": "Once upon a time", "tagline": "Shine"},
	}}}
}

// withStories prepares one pillar holding the two fixture stories.
func withStories(t *testing.T) *testStudio {
	t.Helper()
	ts := newTestStudio(t)
	ts.ready(t)
	ts.Pillars().Restore([]*models.AdPillar{{PillarID: "p1", PillarName: "Calm"}})
	ts.webhook.respond(ActionGenerateStory, storyFixture())
	require.NoError(t, ts.Pillars().GenerateStories(context.Background(), 0))
	return ts
}

func TestGenerateStoriesCapturesOriginal(t *testing.T) {
	ts := withStories(t)
	p := ts.Pillars().Pillars()[0]
	require.Len(t, p.Stories, 2)
	assert.False(t, p.IsGeneratingStories)

	s := p.Stories[0]
	assert.NotEmpty(t, s.ID)
	assert.True(t, s.IsFrameBased())
	require.NotNil(t, s.OriginalStory)
	assert.Equal(t, s.StoryContent, *s.OriginalStory)
	assert.Equal(t, models.LatestVersion, s.CurrentVersionIndex)
	assert.Empty(t, s.Versions)

	sent := ts.webhook.last(ActionGenerateStory)
	assert.Equal(t, "p1", sent["pillar"].(map[string]any)["pillar_id"])
	assert.Equal(t, "Sunshine in a bottle", sent["positioning"])
}

func TestGenerateStoriesExtractionFailureKeepsStories(t *testing.T) {
	ts := withStories(t)
	ts.webhook.respond(ActionGenerateStory, map[string]any{})

	require.NoError(t, ts.Pillars().GenerateStories(context.Background(), 0))
	p := ts.Pillars().Pillars()[0]
	assert.Len(t, p.Stories, 2)
	assert.NotEmpty(t, p.Error)
	for _, s := range p.Stories {
		assert.Empty(t, s.Error, "error stays at pillar level")
	}

	ts.webhook.fail(ActionGenerateStory, &gateway.HTTPError{Status: 502})
	assert.Error(t, ts.Pillars().GenerateStories(context.Background(), 0))
	assert.Len(t, ts.Pillars().Pillars()[0].Stories, 2)
	assert.ErrorIs(t, ts.Pillars().GenerateStories(context.Background(), 3), ErrNotFound)
}

func TestFreestyleStoryIsPrepended(t *testing.T) {
	ts := withStories(t)
	ts.model.on("award-winning", "```json\n{\"title\":\"Free\",\"story\":\"A walk\"}\n```", nil)

	s, err := ts.Pillars().FreestyleStory(context.Background(), 0, "make it about walking")
	require.NoError(t, err)
	assert.Equal(t, "Free", s.Title)
	require.NotNil(t, s.OriginalStory)

	stories := ts.Pillars().Pillars()[0].Stories
	require.Len(t, stories, 3)
	assert.Equal(t, "Free", stories[0].Title)
	assert.Equal(t, "One", stories[1].Title)
}

func TestVersionMonotonicity(t *testing.T) {
	ts := withStories(t)
	pe := ts.Pillars()
	original := *pe.Pillars()[0].Stories[0].OriginalStory

	ts.model.on("Translate every text value", `{"title":"Uno","logline":"l1-es","frames":[{"frame_number":9,"visual":"amanecer"}]}`, nil)
	ts.model.on("revising an ad story", `{"title":"One v2","logline":"better","frames":[{"frame_number":1,"visual":"dawn"}],"isEditing":true,"versions":[{}]}`, nil)

	require.NoError(t, pe.SaveStory(0, 0, nil))
	require.NoError(t, pe.TranslateStory(context.Background(), 0, 0, "es"))
	require.NoError(t, pe.UpdateStory(context.Background(), 0, 0, "make it brighter"))
	edited := models.StoryContent{Title: "Hand edit", Story: "typed"}
	require.NoError(t, pe.SaveStory(0, 0, &edited))

	s, err := pe.Story(0, 0)
	require.NoError(t, err)
	assert.Len(t, s.Versions, 4)
	assert.Equal(t, models.LatestVersion, s.CurrentVersionIndex)
	assert.Equal(t, original, *s.OriginalStory)
	assert.Equal(t, "Hand edit", s.Title)
	assert.False(t, s.IsEditing)

	translated := s.Versions[2]
	assert.Equal(t, "Uno", translated.Title)
	assert.Equal(t, "es", translated.Language)
	require.Len(t, translated.Frames, 2, "translation keeps the frame count")
	assert.Equal(t, "amanecer", translated.Frames[0].Visual)
	assert.Equal(t, models.FlexText("1"), translated.Frames[0].FrameNumber)
	assert.Equal(t, "bottle", translated.Frames[1].Visual)

	assert.Equal(t, "One v2", s.Versions[3].Title)
	assert.Equal(t, "es", s.Versions[3].Language, "update keeps the language when the model omits it")
}

func TestFailedUpdateDoesNotArchive(t *testing.T) {
	ts := withStories(t)
	ts.model.on("revising an ad story", "", &gateway.HTTPError{Status: 500, Body: "boom"})

	err := ts.Pillars().UpdateStory(context.Background(), 0, 1, "shorter")
	require.Error(t, err)

	s, _ := ts.Pillars().Story(0, 1)
	assert.Empty(t, s.Versions)
	assert.False(t, s.IsUpdating)
	assert.Contains(t, s.Error, "Update failed")
	assert.Equal(t, "Once upon a time", s.Story)

	other, _ := ts.Pillars().Story(0, 0)
	assert.Empty(t, other.Error, "sibling stories are untouched")
}

func TestStoryBusyGuard(t *testing.T) {
	ts := withStories(t)
	pe := ts.Pillars()
	ts.model.on("revising an ad story", `{"title":"x","story":"y"}`, nil)

	pe.mu.Lock()
	pe.pillars[0].Stories[0].IsTranslating = true
	pe.mu.Unlock()

	assert.ErrorIs(t, pe.UpdateStory(context.Background(), 0, 0, "x"), ErrStoryBusy)
	assert.ErrorIs(t, pe.TranslateStory(context.Background(), 0, 0, "zh"), ErrStoryBusy)
	assert.ErrorIs(t, pe.SaveStory(0, 0, nil), ErrStoryBusy)

	require.NoError(t, pe.UpdateStory(context.Background(), 0, 1, "y"))
	s, _ := pe.Story(0, 1)
	assert.Len(t, s.Versions, 1, "a busy story does not block its siblings")
}

func TestUpdateLandsOnMovedStory(t *testing.T) {
	ts := withStories(t)
	pe := ts.Pillars()
	ts.model.on("award-winning", `{"title":"Free","story":"A walk"}`, nil)

	id := pe.Pillars()[0].Stories[1].ID
	// Prepend a story between capture and apply by driving the two halves.
	p, sid, _, err := pe.beginStoryOp(0, 1, func(s *models.Story) { s.IsUpdating = true })
	require.NoError(t, err)
	require.Equal(t, id, sid)
	_, err = pe.FreestyleStory(context.Background(), 0, "walk")
	require.NoError(t, err)
	pe.finishStoryOp(p, sid, "Update", nil, func(models.StoryContent) models.StoryContent {
		return models.StoryContent{Title: "Rewritten"}
	})

	stories := pe.Pillars()[0].Stories
	require.Len(t, stories, 3)
	assert.Equal(t, id, stories[2].ID)
	assert.Equal(t, "Rewritten", stories[2].Title)
	assert.Equal(t, "Free", stories[0].Title)
}

func TestNavigateVersionClamps(t *testing.T) {
	ts := withStories(t)
	pe := ts.Pillars()
	require.NoError(t, pe.SaveStory(0, 0, nil))
	require.NoError(t, pe.SaveStory(0, 0, nil))

	idx, err := pe.NavigateVersion(0, 0, NavNext)
	require.NoError(t, err)
	assert.Equal(t, models.LatestVersion, idx)

	for _, want := range []int{1, 0, 0, 0} {
		idx, err = pe.NavigateVersion(0, 0, NavPrev)
		require.NoError(t, err)
		assert.Equal(t, want, idx)
	}
	for _, want := range []int{1, models.LatestVersion, models.LatestVersion} {
		idx, err = pe.NavigateVersion(0, 0, NavNext)
		require.NoError(t, err)
		assert.Equal(t, want, idx)
	}
}

func TestToggleViewOriginalForcesEditOff(t *testing.T) {
	ts := withStories(t)
	pe := ts.Pillars()

	on, err := pe.ToggleEditStory(0, 0)
	require.NoError(t, err)
	assert.True(t, on)

	on, err = pe.ToggleViewOriginal(0, 0)
	require.NoError(t, err)
	assert.True(t, on)

	s, _ := pe.Story(0, 0)
	assert.False(t, s.IsEditing)
	assert.True(t, s.IsViewingOriginal)
}

func TestUpdatePillarIsOptimistic(t *testing.T) {
	ts := withStories(t)
	pe := ts.Pillars()
	ts.webhook.fail(ActionUpdatePillar, errors.New("offline"))

	_, err := pe.ToggleEditPillar(0)
	require.NoError(t, err)
	name := "Serenity"
	require.NoError(t, pe.UpdatePillar(0, models.PillarPatch{PillarName: &name}))

	p := pe.Pillars()[0]
	assert.False(t, p.IsEditing, "edit mode ends before the save resolves")
	assert.Equal(t, "Serenity", p.Label())

	ts.Close()
	assert.Equal(t, "Serenity", pe.Pillars()[0].Label(), "a failed backend save keeps the local edit")
	var failed bool
	for _, ev := range ts.events.of(models.EventSync) {
		failed = failed || (ev.Topic == ActionUpdatePillar && ev.Status == "failed")
	}
	assert.True(t, failed)
}

func TestSavePillarsSendsSelectedOnly(t *testing.T) {
	ts := newTestStudio(t)
	ts.ready(t)
	ts.Pillars().Restore([]*models.AdPillar{{PillarID: "1"}, {PillarID: "2"}})
	on, err := ts.Pillars().TogglePillarSelected(1)
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, ts.Pillars().SavePillars())
	ts.Close()

	sent := ts.webhook.last(ActionSavePillars)["pillars"].([]*models.AdPillar)
	require.Len(t, sent, 1)
	assert.Equal(t, "2", sent[0].Identifier())
}

func TestCancelAllResetsStoryFlags(t *testing.T) {
	ts := withStories(t)
	entered := ts.webhook.holdAction(ActionGenerateStory)

	errc := make(chan error, 1)
	go func() { errc <- ts.Pillars().GenerateStories(context.Background(), 0) }()
	<-entered
	assert.True(t, ts.Pillars().Pillars()[0].IsGeneratingStories)
	assert.Contains(t, ts.State().ActiveOps, storiesScope("p1"))

	assert.Equal(t, 1, ts.Cancel(CancelAllOps))
	assert.False(t, ts.Pillars().Pillars()[0].IsGeneratingStories)
	assert.True(t, gateway.IsCancelled(<-errc))

	p := ts.Pillars().Pillars()[0]
	assert.Len(t, p.Stories, 2, "cancellation does not undo")
	assert.Empty(t, p.Error)
}
