package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brand-studio/server/internal/engine"
	"brand-studio/server/internal/gateway"
	"brand-studio/server/internal/generators"
	"brand-studio/server/internal/models"
	"brand-studio/server/internal/prompts"
)

type stubWebhook struct {
	mu        sync.Mutex
	responses map[string]any
	errs      map[string]error
	env       string
	session   string
	onSession func(string)
}

func (s *stubWebhook) SubmitAction(_ context.Context, action string, _ map[string]any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs[action]; err != nil {
		return nil, err
	}
	if v, ok := s.responses[action]; ok {
		return v, nil
	}
	return map[string]any{}, nil
}

func (s *stubWebhook) Environment() string { return s.env }

func (s *stubWebhook) SetEnvironment(env string) error {
	if env != gateway.EnvProd && env != gateway.EnvTest {
		return errors.New("bad env")
	}
	s.env = env
	return nil
}

func (s *stubWebhook) SessionID() string { return s.session }

func (s *stubWebhook) SetSessionID(id string) { s.session = id }

func (s *stubWebhook) OnSessionAdopted(fn func(string)) { s.onSession = fn }

type stubModel struct{}

func (stubModel) AskModel(context.Context, string) (string, error) {
	return `[]`, nil
}

type testServer struct {
	router  http.Handler
	hub     *EventHub
	webhook *stubWebhook
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	wh := &stubWebhook{
		responses: make(map[string]any),
		errs:      make(map[string]error),
		env:       gateway.EnvProd,
	}
	hub := NewEventHub(nil)
	go hub.Run()
	t.Cleanup(hub.Stop)

	queue := generators.NewImageQueue(2, 8, time.Second, nil)
	queue.Start(context.Background())
	t.Cleanup(queue.Stop)

	reg := NewRegistry(RegistryDeps{
		Model:      stubModel{},
		Prompts:    prompts.NewTemplateEngine(),
		Scheduler:  queue,
		Hub:        hub,
		NewWebhook: func(string) engine.SessionWebhook { return wh },
	})
	t.Cleanup(func() { reg.Close(context.Background()) })

	h := NewHandlers(reg, hub, prompts.NewTemplateEngine(), nil)
	return &testServer{router: NewRouter(h), hub: hub, webhook: wh}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	queue, ok := body["image_queue"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	assert.Equal(t, float64(2), queue["workers"])
	assert.Equal(t, float64(0), queue["pending"])
}

func TestInvalidWorkspaceID(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/workspaces/a.b", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateWorkspace(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/workspaces", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id, _ := decodeBody(t, rec)["workspace"].(string)
	assert.NotEmpty(t, id)

	rec = ts.do(t, http.MethodGet, "/api/v1/workspaces/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPreconditionsMapToConflict(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/workspaces/w1/positioning/generate", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/api/v1/workspaces/w1/category", map[string]string{"category": "fmcg"}).Code)
	rec = ts.do(t, http.MethodPost, "/api/v1/workspaces/w1/worlds/generate", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "positioning")
}

func TestBadInputAndNotFound(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPut, "/api/v1/workspaces/w1/category", map[string]string{"category": "toys"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/api/v1/workspaces/w1/category", map[string]string{"category": "apparel"}).Code)

	rec = ts.do(t, http.MethodPut, "/api/v1/workspaces/w1/worlds/nope/rank", map[string]int{"rank": 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/v1/workspaces/w1/worlds/nope/rank", map[string]int{"rank": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/workspaces/w1/pillars/x/stories/generate", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/workspaces/w1/pillars/3/stories/0/edit", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/workspaces/w1/pillars/0/stories/0/navigate", map[string]string{"direction": "sideways"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGeneratePositioningAndWorlds(t *testing.T) {
	ts := newTestServer(t)
	ts.webhook.responses[engine.ActionGenerateDescription] = map[string]any{"description": "  Sunshine in a bottle "}
	ts.webhook.responses[engine.ActionGenerateWorlds] = map[string]any{"worlds": []any{
		map[string]any{"id": "a", "title": "Beach", "description": "sand"},
		map[string]any{"id": "b", "title": "Market", "description": "noise"},
	}}

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/api/v1/workspaces/w1/category", map[string]string{"category": "fmcg"}).Code)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/api/v1/workspaces/w1/form/field", map[string]any{
		"path": "brandName", "value": map[string]string{"text": "Sol"},
	}).Code)

	rec := ts.do(t, http.MethodPost, "/api/v1/workspaces/w1/positioning/generate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Sunshine in a bottle", decodeBody(t, rec)["statement"])

	rec = ts.do(t, http.MethodPost, "/api/v1/workspaces/w1/worlds/generate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	worlds, _ := decodeBody(t, rec)["worlds"].([]any)
	assert.Len(t, worlds, 2)

	rec = ts.do(t, http.MethodPut, "/api/v1/workspaces/w1/worlds/b/rank", map[string]int{"rank": 1})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/workspaces/w1/context", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Sol", decodeBody(t, rec)["Brand Name"])
}

func TestUpstreamErrors(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/api/v1/workspaces/w1/category", map[string]string{"category": "fmcg"}).Code)

	ts.webhook.errs[engine.ActionGenerateDescription] = errors.Join(gateway.ErrMalformedResponse, errors.New("<html>"))
	rec := ts.do(t, http.MethodPost, "/api/v1/workspaces/w1/positioning/generate", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "server returned something we can't use", decodeBody(t, rec)["error"])

	ts.webhook.errs[engine.ActionGenerateDescription] = &gateway.HTTPError{Status: 500, Body: "boom"}
	rec = ts.do(t, http.MethodPost, "/api/v1/workspaces/w1/positioning/generate", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	ts.webhook.errs[engine.ActionGenerateDescription] = gateway.ErrCancelled
	rec = ts.do(t, http.MethodPost, "/api/v1/workspaces/w1/positioning/generate", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decodeBody(t, rec)["status"])
}

func TestSettingsAndReset(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPut, "/api/v1/workspaces/w1/settings", map[string]any{
		"language": "es", "region": "LATAM", "webhookEnv": "test",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/v1/workspaces/w1/settings", map[string]any{"webhookEnv": "staging"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/workspaces/w1/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "test", body["webhookEnv"])
	intake := body["intake"].(map[string]any)
	assert.Equal(t, "es", intake["language"])
	assert.Empty(t, intake["region"])
}

func TestCancelReportsCount(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/workspaces/w1/cancel/all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["cancelled"])
}

func TestPromptExport(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/prompts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	names, _ := decodeBody(t, rec)["templates"].([]any)
	require.NotEmpty(t, names)

	rec = ts.do(t, http.MethodGet, "/api/v1/prompts/"+names[0].(string), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/prompts/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventStream(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/workspaces/w1/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() models.Event {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var ev models.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	}

	assert.Equal(t, "connected", read().Topic)
	require.Eventually(t, func() bool { return ts.hub.ClientCount("w1") == 1 }, time.Second, 10*time.Millisecond)

	// Another workspace's events are not delivered.
	ts.do(t, http.MethodPut, "/api/v1/workspaces/w2/settings", map[string]any{"region": "EU"})
	ts.do(t, http.MethodPut, "/api/v1/workspaces/w1/settings", map[string]any{"region": "APAC"})

	ev := read()
	assert.Equal(t, models.EventState, ev.Type)
	assert.Equal(t, "w1", ev.Workspace)
	assert.Equal(t, "region", ev.Topic)
}
