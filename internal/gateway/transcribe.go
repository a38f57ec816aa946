package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"brand-studio/server/internal/config"
	"brand-studio/server/internal/models"
)

const maxClipBytes = 25 << 20

// Transcriber sends clip audio to an OpenAI-compatible transcription
// endpoint. Clip URLs may be http(s) locations or base64 data: URIs.
type Transcriber struct {
	client     *openai.Client
	model      string
	httpClient *http.Client
}

// NewTranscriber returns nil when no transcription model is configured.
func NewTranscriber(ep config.ModelEndpoint, timeout time.Duration) *Transcriber {
	if ep.Model == "" {
		return nil
	}
	cfg := openai.DefaultConfig(ep.APIKey)
	if ep.BaseURL != "" {
		cfg.BaseURL = ep.BaseURL
	}
	httpClient := &http.Client{Timeout: timeout}
	cfg.HTTPClient = httpClient
	return &Transcriber{
		client:     openai.NewClientWithConfig(cfg),
		model:      ep.Model,
		httpClient: httpClient,
	}
}

func (t *Transcriber) Transcribe(ctx context.Context, clip models.TranscribedClip) (string, error) {
	audio, err := t.open(ctx, clip.URL)
	if err != nil {
		return "", err
	}
	defer audio.Close()

	name := clip.Name
	if path.Ext(name) == "" {
		name += ".webm"
	}
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: name,
		Reader:   audio,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", ErrCancelled
		}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", &HTTPError{Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (t *Transcriber) open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if ref == "" {
		return nil, errors.New("clip has no audio reference")
	}
	if strings.HasPrefix(ref, "data:") {
		comma := strings.IndexByte(ref, ',')
		if comma < 0 || !strings.Contains(ref[:comma], ";base64") {
			return nil, errors.New("clip data URI is not base64")
		}
		raw, err := base64.StdEncoding.DecodeString(ref[comma+1:])
		if err != nil {
			return nil, fmt.Errorf("failed to decode clip audio: %w", err)
		}
		return io.NopCloser(strings.NewReader(string(raw))), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch clip audio: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(body)}
	}
	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, maxClipBytes), resp.Body}, nil
}
