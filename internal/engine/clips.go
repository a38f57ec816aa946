package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"brand-studio/server/internal/interfaces"
	"brand-studio/server/internal/models"
	"brand-studio/server/internal/storage"
	"brand-studio/server/internal/transcode"
)

const maxRetryConcurrency = 4

// AddClip records a clip or updates the one with the same id. A clip that
// arrives as done has its transcript appended to the active form.
func (in *Intake) AddClip(clip models.TranscribedClip) (models.TranscribedClip, error) {
	if clip.TranscriptionStatus == "" {
		clip.TranscriptionStatus = models.TranscriptionPending
	}
	switch clip.TranscriptionStatus {
	case models.TranscriptionPending, models.TranscriptionTranscribing,
		models.TranscriptionDone, models.TranscriptionFailed:
	default:
		return clip, fmt.Errorf("transcription status %q: %w", clip.TranscriptionStatus, ErrBadInput)
	}
	done := clip.TranscriptionStatus == models.TranscriptionDone
	if done && strings.TrimSpace(clip.Transcript) == "" {
		return clip, ErrEmptyTranscript
	}
	if clip.ID == "" {
		clip.ID = uuid.NewString()
	}

	in.mu.Lock()
	if done && in.category == "" {
		in.mu.Unlock()
		return clip, ErrNoCategory
	}
	wasDone := false
	replaced := false
	for i := range in.clips {
		if in.clips[i].ID == clip.ID {
			wasDone = in.clips[i].TranscriptionStatus == models.TranscriptionDone
			in.clips[i] = clip
			replaced = true
			break
		}
	}
	if !replaced {
		in.clips = append(in.clips, clip)
	}
	c := in.category
	if done && !wasDone {
		in.appendTranscriptLocked(clip.Transcript)
	}
	in.mu.Unlock()

	in.deps.Hooks.changed(storage.KeyTranscribedClips)
	if done && !wasDone {
		in.deps.Hooks.changed(storage.FormKey(c))
	}
	return clip, nil
}

func (in *Intake) appendTranscriptLocked(text string) {
	form := in.forms[in.category]
	cur := form.Get(transcode.PathFullTranscript).Text
	text = strings.TrimSpace(text)
	if cur != "" {
		text = cur + "\n" + text
	}
	form.SetText(transcode.PathFullTranscript, text)
}

// RemoveClip drops a clip; text already appended to the form stays.
func (in *Intake) RemoveClip(id string) error {
	in.mu.Lock()
	idx := -1
	for i := range in.clips {
		if in.clips[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		in.mu.Unlock()
		return ErrNotFound
	}
	in.clips = append(in.clips[:idx], in.clips[idx+1:]...)
	in.mu.Unlock()
	in.deps.Hooks.changed(storage.KeyTranscribedClips)
	return nil
}

// RetryFailed re-transcribes every failed clip concurrently. Each success
// is appended like a freshly added clip; failures stay failed. The count of
// recovered clips is returned with the first error seen.
func (in *Intake) RetryFailed(ctx context.Context, tr interfaces.Transcriber) (int, error) {
	if tr == nil {
		return 0, ErrNoTranscriber
	}
	in.mu.Lock()
	if in.category == "" {
		in.mu.Unlock()
		return 0, ErrNoCategory
	}
	var failed []models.TranscribedClip
	for i := range in.clips {
		if in.clips[i].TranscriptionStatus == models.TranscriptionFailed {
			in.clips[i].TranscriptionStatus = models.TranscriptionTranscribing
			failed = append(failed, in.clips[i])
		}
	}
	in.mu.Unlock()
	if len(failed) == 0 {
		return 0, nil
	}
	in.deps.Hooks.changed(storage.KeyTranscribedClips)

	results := make([]models.TranscribedClip, len(failed))
	errs := make([]error, len(failed))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxRetryConcurrency)
	for i, clip := range failed {
		i, clip := i, clip
		g.Go(func() error {
			text, err := tr.Transcribe(gctx, clip)
			if err == nil && strings.TrimSpace(text) == "" {
				err = ErrEmptyTranscript
			}
			clip.Transcript = text
			clip.TranscriptionStatus = models.TranscriptionDone
			if err != nil {
				clip.TranscriptionStatus = models.TranscriptionFailed
				errs[i] = err
			}
			results[i] = clip
			return nil
		})
	}
	_ = g.Wait()

	recovered := 0
	var firstErr error
	for i, clip := range results {
		if errs[i] != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to transcribe %s: %w", clip.Name, errs[i])
			}
			clip.Transcript = ""
			in.setClipStatus(clip)
			continue
		}
		if _, err := in.AddClip(clip); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		recovered++
	}
	in.deps.Hooks.changed(storage.KeyTranscribedClips)
	return recovered, firstErr
}

func (in *Intake) setClipStatus(clip models.TranscribedClip) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for i := range in.clips {
		if in.clips[i].ID == clip.ID {
			in.clips[i].TranscriptionStatus = clip.TranscriptionStatus
			return
		}
	}
}
