package models

type TranscriptionStatus string

const (
	TranscriptionPending      TranscriptionStatus = "pending"
	TranscriptionTranscribing TranscriptionStatus = "transcribing"
	TranscriptionDone         TranscriptionStatus = "done"
	TranscriptionFailed       TranscriptionStatus = "failed"
)

// TranscribedClip is an uploaded audio clip. The audio itself stays with the
// capture client; only its reference and transcript are held here.
type TranscribedClip struct {
	ID                  string              `json:"id"`
	Name                string              `json:"name"`
	URL                 string              `json:"url,omitempty"`
	Transcript          string              `json:"transcript,omitempty"`
	TranscriptionStatus TranscriptionStatus `json:"transcriptionStatus"`
}
