package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sashabaranov/go-openai"

	"brand-studio/server/internal/config"
	"brand-studio/server/internal/interfaces"
	"brand-studio/server/internal/logger"
)

// GeminiModel speaks the generateContent contract:
// POST {endpoint}?key=K with {contents:[{parts:[{text}]}]}.
type GeminiModel struct {
	name       string
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func NewGeminiModel(name, endpoint, apiKey string, timeout time.Duration) *GeminiModel {
	return &GeminiModel{
		name:       name,
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (m *GeminiModel) Name() string { return m.name }

func (m *GeminiModel) AskModel(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	text, err := m.ask(ctx, prompt)
	modelRequestDuration.WithLabelValues(m.name).Observe(time.Since(start).Seconds())
	modelRequestsTotal.WithLabelValues(m.name, outcome(err)).Inc()
	return text, err
}

func (m *GeminiModel) ask(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	u, err := url.Parse(m.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid model endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", m.apiKey)
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", ErrCancelled
		}
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &HTTPError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var out geminiResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 || out.Candidates[0].Content.Parts[0].Text == "" {
		return "", ErrEmptyCompletion
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

// OpenAIModel targets any OpenAI-compatible chat completion API.
type OpenAIModel struct {
	name        string
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

func NewOpenAIModel(name string, ep config.ModelEndpoint, timeout time.Duration) *OpenAIModel {
	cfg := openai.DefaultConfig(ep.APIKey)
	if ep.BaseURL != "" {
		cfg.BaseURL = ep.BaseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIModel{
		name:        name,
		client:      openai.NewClientWithConfig(cfg),
		model:       ep.Model,
		maxTokens:   ep.MaxTokens,
		temperature: float32(ep.Temperature),
	}
}

func (m *OpenAIModel) Name() string { return m.name }

func (m *OpenAIModel) AskModel(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	text, err := m.ask(ctx, prompt)
	modelRequestDuration.WithLabelValues(m.name).Observe(time.Since(start).Seconds())
	modelRequestsTotal.WithLabelValues(m.name, outcome(err)).Inc()
	return text, err
}

func (m *OpenAIModel) ask(ctx context.Context, prompt string) (string, error) {
	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   m.maxTokens,
		Temperature: m.temperature,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", ErrCancelled
		}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", &HTTPError{Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

// NewModel builds the client for one configured endpoint, or nil when the
// endpoint is not configured.
func NewModel(name string, ep config.ModelEndpoint, timeout time.Duration) (interfaces.ModelGateway, error) {
	if ep.BaseURL == "" && ep.Model == "" {
		return nil, nil
	}
	switch ep.Kind {
	case "", "gemini":
		return NewGeminiModel(name, ep.BaseURL, ep.APIKey, timeout), nil
	case "openai":
		return NewOpenAIModel(name, ep, timeout), nil
	default:
		return nil, fmt.Errorf("unknown model endpoint kind %q", ep.Kind)
	}
}

// FallbackModel asks the primary endpoint and, on any failure other than
// cancellation, the secondary one.
type FallbackModel struct {
	primary   interfaces.ModelGateway
	secondary interfaces.ModelGateway
	log       *logger.Logger
}

func NewFallbackModel(primary, secondary interfaces.ModelGateway, log *logger.Logger) *FallbackModel {
	if log == nil {
		log = logger.Nop()
	}
	return &FallbackModel{primary: primary, secondary: secondary, log: log}
}

// NewModelFromConfig wires the primary/secondary pair from configuration.
func NewModelFromConfig(cfg config.AIConfig, log *logger.Logger) (*FallbackModel, error) {
	primary, err := NewModel("primary", cfg.Primary, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	secondary, err := NewModel("secondary", cfg.Secondary, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return NewFallbackModel(primary, secondary, log), nil
}

func (f *FallbackModel) AskModel(ctx context.Context, prompt string) (string, error) {
	if f.primary == nil && f.secondary == nil {
		return "", ErrNoEndpoint
	}
	if f.primary != nil {
		text, err := f.primary.AskModel(ctx, prompt)
		if err == nil {
			return text, nil
		}
		if IsCancelled(err) || errors.Is(ctx.Err(), context.Canceled) {
			return "", ErrCancelled
		}
		if f.secondary == nil {
			return "", err
		}
		f.log.Warn("primary model failed, falling back", "error", err)
		modelFallbacksTotal.Inc()
	}

	text, err := f.secondary.AskModel(ctx, prompt)
	if err != nil {
		if IsCancelled(err) {
			return "", ErrCancelled
		}
		return "", fmt.Errorf("secondary model failed: %w", err)
	}
	return text, nil
}
