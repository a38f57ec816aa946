package engine

import (
	"github.com/google/uuid"

	"brand-studio/server/internal/models"
)

// newStory wraps freshly generated content. The original snapshot is taken
// here and nowhere else.
func newStory(content models.StoryContent) *models.Story {
	original := content.Clone()
	return &models.Story{
		ID:                  uuid.NewString(),
		StoryContent:        content,
		OriginalStory:       &original,
		CurrentVersionIndex: models.LatestVersion,
	}
}

// archiveThenApply is the single versioning transition behind save, update
// and translate: the current content goes to the end of Versions, next
// becomes the latest content, and the view returns to latest.
func archiveThenApply(s *models.Story, next func(current models.StoryContent) models.StoryContent) {
	current := s.StoryContent.Clone()
	s.Versions = append(s.Versions, current)
	s.StoryContent = next(current.Clone())
	s.CurrentVersionIndex = models.LatestVersion
	s.IsViewingOriginal = false
	s.IsEditing = false
	s.Error = ""
}

// mergeTranslation applies translated text onto the current content. Frame
// count and frame numbers always come from the current story; a field the
// model left empty keeps its current text.
func mergeTranslation(current, translated models.StoryContent, lang string) models.StoryContent {
	out := current.Clone()
	out.Title = pick(translated.Title, current.Title)
	out.Storyline = pick(translated.Storyline, current.Storyline)
	out.Logline = pick(translated.Logline, current.Logline)
	out.Overview = pick(translated.Overview, current.Overview)
	out.Story = pick(translated.Story, current.Story)
	out.EndingMoment = pick(translated.EndingMoment, current.EndingMoment)
	out.Tagline = pick(translated.Tagline, current.Tagline)
	out.Language = lang

	for i := range out.Frames {
		if i >= len(translated.Frames) {
			break
		}
		tf := translated.Frames[i]
		f := &out.Frames[i]
		f.Title = pick(tf.Title, f.Title)
		f.Visual = pick(tf.Visual, f.Visual)
		f.Action = pick(tf.Action, f.Action)
		f.Dialogue = pick(tf.Dialogue, f.Dialogue)
		f.Voiceover = pick(tf.Voiceover, f.Voiceover)
		f.Text = pick(tf.Text, f.Text)
	}
	return out
}

func pick(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// Navigation directions.
const (
	NavPrev = -1
	NavNext = 1
)

// navigate moves the version cursor one step. The index space is
// [0, len(Versions)] with len(Versions) stored as LatestVersion; both ends
// clamp.
func navigate(s *models.Story, dir int) {
	n := len(s.Versions)
	idx := s.CurrentVersionIndex
	if idx < 0 || idx > n {
		idx = n
	}
	switch {
	case dir < 0:
		idx--
	case dir > 0:
		idx++
	}
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = models.LatestVersion
	}
	s.CurrentVersionIndex = idx
	s.IsViewingOriginal = false
}

// ParseDirection accepts "prev"/"next" and their numeric forms.
func ParseDirection(s string) (int, bool) {
	switch s {
	case "prev", "previous", "back", "-1":
		return NavPrev, true
	case "next", "forward", "1", "+1":
		return NavNext, true
	}
	return 0, false
}
