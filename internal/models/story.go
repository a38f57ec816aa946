package models

// Frame is one storyboard panel.
type Frame struct {
	FrameNumber FlexText `json:"frame_number,omitempty"`
	Title       string   `json:"title,omitempty"`
	Visual      string   `json:"visual,omitempty"`
	Action      string   `json:"action,omitempty"`
	Dialogue    string   `json:"dialogue,omitempty"`
	Voiceover   string   `json:"voiceover,omitempty"`
	Text        string   `json:"text,omitempty"`
}

// StoryContent is the creative payload of a story. Versions and the original
// snapshot hold only this part, never the editing state.
type StoryContent struct {
	Title        string  `json:"title,omitempty"`
	Storyline    string  `json:"storyline,omitempty"`
	Logline      string  `json:"logline,omitempty"`
	Overview     string  `json:"overview,omitempty"`
	Frames       []Frame `json:"frames,omitempty"`
	Story        string  `json:"story,omitempty"`
	EndingMoment string  `json:"ending_moment,omitempty"`
	Tagline      string  `json:"tagline,omitempty"`
	Language     string  `json:"language,omitempty"`
}

// IsFrameBased reports whether this is a storyboard rather than a narrative.
func (c StoryContent) IsFrameBased() bool { return len(c.Frames) > 0 }

func (c StoryContent) Clone() StoryContent {
	out := c
	if c.Frames != nil {
		out.Frames = append([]Frame(nil), c.Frames...)
	}
	return out
}

// LatestVersion is the CurrentVersionIndex value meaning "viewing latest".
const LatestVersion = -1

// Story is a generated ad story plus its version history.
type Story struct {
	ID string `json:"id"`
	StoryContent

	IsEditing bool `json:"isEditing,omitempty"`
	// OriginalStory is captured once, at first generation, and never replaced.
	OriginalStory       *StoryContent  `json:"originalStory,omitempty"`
	Versions            []StoryContent `json:"versions,omitempty"`
	CurrentVersionIndex int            `json:"currentVersionIndex"`
	IsUpdating          bool           `json:"isUpdating,omitempty"`
	IsTranslating       bool           `json:"isTranslating,omitempty"`
	IsViewingOriginal   bool           `json:"isViewingOriginal,omitempty"`
	Error               string         `json:"error,omitempty"`
}

func (s *Story) Clone() *Story {
	if s == nil {
		return nil
	}
	c := *s
	c.StoryContent = s.StoryContent.Clone()
	if s.OriginalStory != nil {
		o := s.OriginalStory.Clone()
		c.OriginalStory = &o
	}
	if s.Versions != nil {
		c.Versions = make([]StoryContent, len(s.Versions))
		for i, v := range s.Versions {
			c.Versions[i] = v.Clone()
		}
	}
	return &c
}

// Busy reports whether a model operation is in flight for this story.
func (s *Story) Busy() bool { return s.IsUpdating || s.IsTranslating }

// Displayed is the content the UI shows: the original when viewing it, a
// historical version when navigated back, else the latest content.
func (s *Story) Displayed() StoryContent {
	if s.IsViewingOriginal && s.OriginalStory != nil {
		return s.OriginalStory.Clone()
	}
	if s.CurrentVersionIndex >= 0 && s.CurrentVersionIndex < len(s.Versions) {
		return s.Versions[s.CurrentVersionIndex].Clone()
	}
	return s.StoryContent.Clone()
}
