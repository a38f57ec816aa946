package interfaces

import (
	"context"

	"brand-studio/server/internal/models"
)

// ImageRequest represents a request to render a world's key visual
type ImageRequest struct {
	World    *models.World
	Context  models.ExternalRecord
	Language string
}

// ImageResponse represents the response from image generation
type ImageResponse struct {
	// URL is a fetchable image location or a data: URI.
	URL            string
	GenerationTime int64 // milliseconds
}

// ImageGenerator defines the interface for world image generation
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResponse, error)
}

// Transcriber turns a recorded clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, clip models.TranscribedClip) (string, error)
}
