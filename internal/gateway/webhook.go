package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/atomic"

	"brand-studio/server/internal/config"
	"brand-studio/server/internal/logger"
)

const (
	EnvProd = "prod"
	EnvTest = "test"
)

// Webhook submits actions to the workflow webhook on behalf of one workspace.
// It carries that workspace's session id and environment selection.
type Webhook struct {
	prodURL    string
	testURL    string
	env        *atomic.String
	sessionID  *atomic.String
	onSession  func(id string)
	httpClient *http.Client
	log        *logger.Logger
}

type webhookRequest struct {
	Action          string         `json:"action"`
	FormData        map[string]any `json:"form_data"`
	SessionID       string         `json:"session_id"`
	AppSessionTitle string         `json:"App Session ID"`
	AppSessionID    string         `json:"app_session_id"`
}

// NewWebhook creates a client. httpClient may be shared between workspaces;
// nil builds one from cfg.Timeout.
func NewWebhook(cfg config.WebhookConfig, httpClient *http.Client, log *logger.Logger) *Webhook {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = logger.Nop()
	}
	env := cfg.Environment
	if env != EnvTest {
		env = EnvProd
	}
	return &Webhook{
		prodURL:    cfg.ProdURL,
		testURL:    cfg.TestURL,
		env:        atomic.NewString(env),
		sessionID:  atomic.NewString(""),
		httpClient: httpClient,
		log:        log,
	}
}

func (w *Webhook) Environment() string { return w.env.Load() }

func (w *Webhook) SetEnvironment(env string) error {
	if env != EnvProd && env != EnvTest {
		return fmt.Errorf("webhook environment must be %s or %s, got %q", EnvProd, EnvTest, env)
	}
	w.env.Store(env)
	return nil
}

func (w *Webhook) SessionID() string { return w.sessionID.Load() }

func (w *Webhook) SetSessionID(id string) { w.sessionID.Store(id) }

// OnSessionAdopted registers a callback fired when a server-provided session
// id is adopted. Must be set before the first SubmitAction.
func (w *Webhook) OnSessionAdopted(fn func(id string)) { w.onSession = fn }

func (w *Webhook) url() string {
	if w.env.Load() == EnvTest {
		return w.testURL
	}
	return w.prodURL
}

// SubmitAction posts {action, form_data, session ids} and returns the decoded
// JSON body. An empty body decodes to an empty object.
func (w *Webhook) SubmitAction(ctx context.Context, action string, payload map[string]any) (any, error) {
	start := time.Now()
	result, err := w.submit(ctx, action, payload)
	webhookRequestDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
	webhookRequestsTotal.WithLabelValues(action, outcome(err)).Inc()

	switch {
	case err == nil:
		w.log.Debug("webhook action done", "action", action, "duration", time.Since(start))
	case IsCancelled(err):
		w.log.Info("webhook action cancelled", "action", action)
	default:
		w.log.Warn("webhook action failed", "action", action, "error", err)
	}
	return result, err
}

func (w *Webhook) submit(ctx context.Context, action string, payload map[string]any) (any, error) {
	target := w.url()
	if target == "" {
		return nil, fmt.Errorf("no webhook url configured for %s environment", w.env.Load())
	}
	if payload == nil {
		payload = map[string]any{}
	}
	sid := w.sessionID.Load()
	reqBody, err := json.Marshal(webhookRequest{
		Action:          action,
		FormData:        payload,
		SessionID:       sid,
		AppSessionTitle: sid,
		AppSessionID:    sid,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ErrCancelled
		}
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ErrCancelled
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(respBody)}
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return map[string]any{}, nil
	}
	var result any
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, snippet(respBody))
	}

	if id := sessionIDFrom(result); id != "" && w.sessionID.CompareAndSwap("", id) {
		w.log.Info("adopted server session", "session_id", id)
		if w.onSession != nil {
			w.onSession(id)
		}
	}
	return result, nil
}

func sessionIDFrom(v any) string {
	if arr, ok := v.([]any); ok {
		if len(arr) == 0 {
			return ""
		}
		v = arr[0]
	}
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	for _, k := range []string{"session_id", "sessionId", "app_session_id"} {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

const snippetLen = 120

// snippet shortens a body for error messages, cutting on a rune boundary.
func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= snippetLen {
		return s
	}
	cut := snippetLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
