package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brand-studio/server/internal/config"
	"brand-studio/server/internal/gateway"
	"brand-studio/server/internal/models"
	"brand-studio/server/internal/storage"
)

func TestStatePersistsAndRestores(t *testing.T) {
	ts := withStories(t)
	require.NoError(t, ts.Intake().SetLanguage("es"))
	ts.Intake().SetRegion("LATAM")
	require.NoError(t, ts.SetWebhookEnv(gateway.EnvTest))
	ts.webhook.SetSessionID("sess-9")
	ts.changed(storage.KeySessionID)
	ts.Worlds().Restore([]models.World{{ID: "w1", Title: "Harbor"}}, "")
	require.NoError(t, ts.Worlds().SelectWorld("w1"))
	require.NoError(t, ts.Pillars().SaveStory(0, 0, nil))
	ts.Close()

	wh := newFakeWebhook()
	restored := NewStudio(StudioDeps{ID: "ws-test", Webhook: wh, Model: &fakeModel{}, Store: ts.store, Pillars: config.Default().Pillars})
	require.NoError(t, restored.Restore(context.Background()))

	st := restored.State()
	assert.Equal(t, "es", st.Intake.Language)
	assert.Equal(t, models.CategoryFMCG, st.Intake.Category)
	assert.Equal(t, "LATAM", st.Intake.Region)
	assert.Equal(t, "Sol", st.Intake.Forms[models.CategoryFMCG].Get("brandName").Text)
	assert.Equal(t, gateway.EnvTest, st.WebhookEnv)
	assert.Equal(t, "sess-9", st.SessionID)
	assert.Equal(t, "Sunshine in a bottle", st.Positioning.Statement)
	assert.Equal(t, "w1", st.Worlds.SelectedWorldID)
	require.Len(t, st.Pillars.Pillars, 1)
	s := st.Pillars.Pillars[0].Stories[0]
	assert.Len(t, s.Versions, 1)
	assert.Equal(t, ts.Pillars().Pillars()[0].Stories[0].ID, s.ID)
	assert.NotNil(t, s.OriginalStory)
}

func TestResetPreservesLanguageAndEnvironment(t *testing.T) {
	ts := withStories(t)
	require.NoError(t, ts.Intake().SetLanguage("zh"))
	require.NoError(t, ts.SetWebhookEnv(gateway.EnvTest))
	ts.webhook.SetSessionID("sess-1")

	require.NoError(t, ts.Reset(context.Background()))

	st := ts.State()
	assert.Equal(t, "zh", st.Intake.Language)
	assert.Equal(t, gateway.EnvTest, st.WebhookEnv)
	assert.Empty(t, st.SessionID)
	assert.Empty(t, st.Intake.Category)
	assert.Empty(t, st.Pillars.Pillars)
	assert.Empty(t, st.Positioning.Statement)

	ctx := context.Background()
	_, ok, err := ts.store.Get(ctx, storage.KeyAdPillars)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = ts.store.Get(ctx, storage.KeyLanguage)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestChangingCategoryStartsNewBrief(t *testing.T) {
	ts := withStories(t)
	ts.Worlds().Restore([]models.World{{ID: "w1"}}, "w1")

	require.NoError(t, ts.SelectCategory("fmcg"))
	assert.Len(t, ts.Pillars().Pillars(), 1, "re-selecting the same category keeps everything")

	require.NoError(t, ts.SelectCategory("industrial"))
	st := ts.State()
	assert.Empty(t, st.Pillars.Pillars)
	assert.Empty(t, st.Worlds.Worlds)
	assert.Empty(t, st.Positioning.Statement)
	assert.Equal(t, "Sol", st.Intake.Forms[models.CategoryFMCG].Get("brandName").Text, "forms survive a category switch")

	assert.ErrorIs(t, ts.SelectCategory("toys"), ErrBadInput)
}

func TestSetWebhookEnvRejectsUnknown(t *testing.T) {
	ts := newTestStudio(t)
	assert.ErrorIs(t, ts.SetWebhookEnv("staging"), ErrBadInput)
	assert.Equal(t, gateway.EnvProd, ts.State().WebhookEnv)
}

func TestSessionAdoptionIsPersisted(t *testing.T) {
	ts := newTestStudio(t)
	ts.webhook.SetSessionID("adopted")
	ts.webhook.onSession("adopted")

	raw, ok, err := ts.store.Get(context.Background(), storage.KeySessionID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `"adopted"`, raw)
}

func TestStateEventsArePublished(t *testing.T) {
	ts := newTestStudio(t)
	require.NoError(t, ts.SelectCategory("apparel"))

	deadline := time.Now().Add(time.Second)
	var topics []string
	for _, ev := range ts.events.of(models.EventState) {
		assert.Equal(t, "ws-test", ev.Workspace)
		assert.True(t, ev.Time.Before(deadline))
		topics = append(topics, ev.Topic)
	}
	assert.Contains(t, topics, storage.KeySelectedCategory)
	assert.Contains(t, topics, storage.KeyWorlds)
}

func TestLoadSubmissionDropsWorkOnPreviousBrief(t *testing.T) {
	ts := withStories(t)
	ts.Worlds().Restore([]models.World{{ID: "w1", Title: "Harbor"}}, "w1")

	c, err := ts.LoadSubmission(map[string]any{"Brand Name": "Kiln", "Application Area": "Construction"})
	require.NoError(t, err)
	assert.Equal(t, models.CategoryIndustrial, c)

	st := ts.State()
	assert.Equal(t, models.CategoryIndustrial, st.Intake.Category)
	assert.Empty(t, st.Positioning.Statement)
	assert.Empty(t, st.Worlds.Worlds)
	assert.Empty(t, st.Worlds.SelectedWorldID)
	assert.Empty(t, st.Pillars.Pillars)
	assert.Equal(t, "Sol", st.Intake.Forms[models.CategoryFMCG].Get("brandName").Text, "other forms are kept")
}
