package engine

import "errors"

// Precondition and input errors. Gateway errors (cancellation, malformed
// responses, HTTP failures) come from package gateway unchanged.
var (
	ErrNoCategory      = errors.New("select a product category first")
	ErrNoPositioning   = errors.New("generate a positioning statement first")
	ErrEmptyTranscript = errors.New("transcript is empty")
	ErrEmptyPrompt     = errors.New("request text is empty")
	ErrNotFound        = errors.New("not found")
	ErrInvalidRank     = errors.New("rank must be between 1 and 4")
	ErrStoryBusy       = errors.New("story is already being updated or translated")
	ErrImageBusy       = errors.New("image generation already running for this world")
	ErrNotEditing      = errors.New("item is not in edit mode")
	ErrBadInput        = errors.New("invalid input")
	ErrNoTranscriber   = errors.New("no transcriber configured")
)
