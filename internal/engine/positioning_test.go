package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brand-studio/server/internal/models"
)

func TestFindStatement(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"description":"Bold and bright"}`, "Bold and bright"},
		{`[{"output":{"positioning":"Calm care"}}]`, "Calm care"},
		{`{"output":"{\"brand_description\":\"Inner JSON\"}"}`, "Inner JSON"},
		{`{"result":{"text":"Deep"}}`, "Deep"},
		{`{"other":1}`, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, findStatement(decode(t, tc.in), 0), tc.in)
	}
}

func TestGeneratePositioning(t *testing.T) {
	ts := newTestStudio(t)
	_, err := ts.PositioningEngine().Generate(context.Background())
	assert.ErrorIs(t, err, ErrNoCategory)

	require.NoError(t, ts.SelectCategory("fmcg"))
	ts.webhook.respond(ActionGenerateDescription, []any{map[string]any{"output": "  For busy parents, Sol is the calm morning ritual.  "}})

	got, err := ts.PositioningEngine().Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "For busy parents, Sol is the calm morning ritual.", got)
	st := ts.PositioningEngine().State()
	assert.Equal(t, got, st.EditBuffer)
	assert.False(t, st.IsGenerating)
}

func TestGeneratePositioningFallsBackToRawText(t *testing.T) {
	ts := newTestStudio(t)
	require.NoError(t, ts.SelectCategory("fmcg"))
	ts.webhook.respond(ActionGenerateDescription, map[string]any{"answer": 42})

	got, err := ts.PositioningEngine().Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"answer":42}`, got)
}

func TestSavePositioningSyncsInBackground(t *testing.T) {
	ts := newTestStudio(t)
	require.NoError(t, ts.SelectCategory("fmcg"))
	pe := ts.PositioningEngine()

	pe.Edit("draft")
	assert.Empty(t, pe.Statement(), "editing does not change the statement")
	require.NoError(t, pe.Save(""))
	assert.Equal(t, "draft", pe.Statement())

	assert.ErrorIs(t, func() error {
		ts2 := newTestStudio(t)
		require.NoError(t, ts2.SelectCategory("fmcg"))
		return ts2.PositioningEngine().SaveEnhanced()
	}(), ErrNoPositioning)

	require.NoError(t, pe.SaveEnhanced())
	ts.Close()
	assert.Equal(t, "draft", ts.webhook.last(ActionSaveEditsPositioning)["positioning"])
	assert.Equal(t, "draft", ts.webhook.last(ActionSaveEnhancedPositioning)["positioning"])

	var ok int
	for _, ev := range ts.events.of(models.EventSync) {
		if ev.Status == "ok" {
			ok++
		}
	}
	assert.Equal(t, 2, ok)
}
