package engine

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brand-studio/server/internal/models"
	"brand-studio/server/internal/transcode"
)

func TestSetFieldValidatesAgainstSchema(t *testing.T) {
	ts := newTestStudio(t)
	in := ts.Intake()
	assert.ErrorIs(t, in.SetField("brandName", models.Text("x")), ErrNoCategory)

	require.NoError(t, ts.SelectCategory("Industrial"))
	assert.ErrorIs(t, in.SetField("nope", models.Text("x")), ErrBadInput)
	assert.ErrorIs(t, in.SetField("brandName", models.Keys("a")), ErrBadInput)
	assert.ErrorIs(t, in.SetField("household.type", models.Text("a")), ErrBadInput)

	require.NoError(t, in.SetField("household.type", models.FieldValue{
		Keys:    []string{"couple", "other"},
		Details: map[string]string{"other": "students, mostly"},
	}))
	form := in.Form(models.CategoryIndustrial)
	assert.Equal(t, []string{"couple", "other"}, form.Get("household.type").Keys)
}

func TestFullContextImageOnlyKeys(t *testing.T) {
	ts := newTestStudio(t)
	require.NoError(t, ts.SelectCategory("fmcg"))
	in := ts.Intake()
	for _, f := range transcode.SchemaFor(models.CategoryFMCG).Fields {
		v := models.Text("value of " + f.Path)
		if f.Kind != transcode.KindText {
			v = models.Keys("other")
		}
		require.NoError(t, in.SetField(f.Path, v))
	}
	require.NoError(t, in.SetPackImages([]string{"https://img.local/1.png", "data:image/png;base64,AA,BB"}))
	in.SetRegion("LATAM")
	ts.webhook.SetSessionID("sess-1")
	in.SetImageOnly(true)

	rec, err := ts.FullContext()
	require.NoError(t, err)
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"Customer ID", "Pack Images", "Product Pack Form", "Salesperson", "category", "language"}, keys)
	assert.Equal(t, []string{"https://img.local/1.png", "data:image/png;base64,AA,BB"}, rec["Pack Images"])

	in.SetImageOnly(false)
	rec, err = ts.FullContext()
	require.NoError(t, err)
	assert.Equal(t, "LATAM", rec["Region"])
	assert.Equal(t, "sess-1", rec["App Session ID"])
	assert.Equal(t, "value of brandName", rec["Brand Name"])
}

func TestSalespersonOverlay(t *testing.T) {
	ts := newTestStudio(t)
	require.NoError(t, ts.SelectCategory("apparel"))
	require.NoError(t, ts.Intake().SetField("salesperson", models.Text("From form")))

	rec, err := ts.FullContext()
	require.NoError(t, err)
	assert.Equal(t, "From form", rec["Salesperson"])

	ts.Intake().SetSalesperson("Ana")
	rec, err = ts.FullContext()
	require.NoError(t, err)
	assert.Equal(t, "Ana", rec["Salesperson"])
}

func TestLoadSubmissionDetectsCategory(t *testing.T) {
	ts := newTestStudio(t)
	rows := []any{map[string]any{
		"Brand Name":        "Loom",
		"Garment Type":      []any{"Tops", "Other: hand-dyed, small batch"},
		"Pack Images":       []any{"https://img.local/a.png"},
		"Consumer - Gender": `["Female"]`,
	}}

	c, err := ts.Intake().LoadSubmission(rows)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryApparel, c)
	assert.Equal(t, models.CategoryApparel, ts.Intake().Category())

	form := ts.Intake().Form(models.CategoryApparel)
	assert.Equal(t, "Loom", form.Get("brandName").Text)
	assert.Equal(t, []string{"tops", "other"}, form.Get("apparel.garmentType").Keys)
	assert.Equal(t, "hand-dyed, small batch", form.Get("apparel.garmentType").Details["other"])
	assert.Equal(t, []string{"female"}, form.Get("consumer.gender").Keys)
	assert.Equal(t, []string{"https://img.local/a.png"}, ts.Intake().State().PackImages[models.CategoryApparel])
}

func TestSuggestionsAreCached(t *testing.T) {
	ts := newTestStudio(t)
	ts.webhook.respond(ActionGetUsers, []any{map[string]any{"name": "Ana"}})
	ts.webhook.respond(ActionSearchDiscussions, []any{map[string]any{"id": "d1"}})
	ts.webhook.respond(ActionLoadDiscussion, []any{map[string]any{"executionID": "e1", "Brand Name": "Kiln", "Application Area": "Construction"}})

	_, err := ts.Intake().FetchUsers(context.Background())
	require.NoError(t, err)
	_, err = ts.Intake().SearchDiscussions(context.Background(), "Kiln")
	require.NoError(t, err)
	_, err = ts.Intake().SearchDiscussions(context.Background(), " ")
	assert.ErrorIs(t, err, ErrEmptyPrompt)

	sugg := ts.Intake().State().Suggestions
	assert.Contains(t, sugg, ActionGetUsers)
	assert.Contains(t, sugg, ActionSearchDiscussions+":kiln")

	c, err := ts.Intake().LoadDiscussion(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, models.CategoryIndustrial, c)
	assert.Equal(t, "Kiln", ts.Intake().Form(c).Get("brandName").Text)
	assert.Equal(t, "d1", ts.webhook.last(ActionLoadDiscussion)["id"])
}

func TestAddClipAppendsTranscript(t *testing.T) {
	ts := newTestStudio(t)
	in := ts.Intake()

	_, err := in.AddClip(models.TranscribedClip{Name: "a", TranscriptionStatus: models.TranscriptionDone, Transcript: "hi"})
	assert.ErrorIs(t, err, ErrNoCategory)
	require.NoError(t, ts.SelectCategory("fmcg"))

	_, err = in.AddClip(models.TranscribedClip{Name: "a", TranscriptionStatus: models.TranscriptionDone, Transcript: "  "})
	assert.ErrorIs(t, err, ErrEmptyTranscript)

	clip, err := in.AddClip(models.TranscribedClip{Name: "a"})
	require.NoError(t, err)
	assert.Equal(t, models.TranscriptionPending, clip.TranscriptionStatus)

	clip.TranscriptionStatus = models.TranscriptionDone
	clip.Transcript = "first part"
	_, err = in.AddClip(clip)
	require.NoError(t, err)
	_, err = in.AddClip(clip)
	require.NoError(t, err)
	_, err = in.AddClip(models.TranscribedClip{Name: "b", TranscriptionStatus: models.TranscriptionDone, Transcript: "second part"})
	require.NoError(t, err)

	assert.Equal(t, "first part\nsecond part", in.Form(models.CategoryFMCG).Get("fullTranscript").Text)
	assert.Len(t, in.State().Clips, 2)
}

type fakeTranscriber struct {
	calls atomic.Int32
}

func (f *fakeTranscriber) Transcribe(_ context.Context, clip models.TranscribedClip) (string, error) {
	f.calls.Add(1)
	if clip.Name == "broken" {
		return "", errors.New("codec")
	}
	return "text of " + clip.Name, nil
}

func TestRetryFailedClips(t *testing.T) {
	ts := newTestStudio(t)
	require.NoError(t, ts.SelectCategory("fmcg"))
	in := ts.Intake()
	for _, name := range []string{"one", "broken", "two"} {
		_, err := in.AddClip(models.TranscribedClip{Name: name, TranscriptionStatus: models.TranscriptionFailed})
		require.NoError(t, err)
	}
	_, err := in.AddClip(models.TranscribedClip{Name: "ok", TranscriptionStatus: models.TranscriptionDone, Transcript: "already"})
	require.NoError(t, err)

	tr := &fakeTranscriber{}
	n, err := in.RetryFailed(context.Background(), tr)
	assert.Equal(t, 2, n)
	assert.ErrorContains(t, err, "broken")
	assert.Equal(t, int32(3), tr.calls.Load())

	status := map[string]models.TranscriptionStatus{}
	for _, c := range in.State().Clips {
		status[c.Name] = c.TranscriptionStatus
	}
	assert.Equal(t, map[string]models.TranscriptionStatus{
		"one": models.TranscriptionDone, "broken": models.TranscriptionFailed,
		"two": models.TranscriptionDone, "ok": models.TranscriptionDone,
	}, status)
	assert.Equal(t, "already\ntext of one\ntext of two", in.Form(models.CategoryFMCG).Get("fullTranscript").Text)

	_, err = ts.RetryFailedClips(context.Background())
	assert.ErrorIs(t, err, ErrNoTranscriber)
}
