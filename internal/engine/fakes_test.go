package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"brand-studio/server/internal/config"
	"brand-studio/server/internal/gateway"
	"brand-studio/server/internal/models"
	"brand-studio/server/internal/storage"
)

type webhookCall struct {
	action  string
	payload map[string]any
}

// fakeWebhook answers actions from canned responses. Actions listed in hold
// signal entry and then block until their context is cancelled.
type fakeWebhook struct {
	mu        sync.Mutex
	env       string
	session   string
	onSession func(string)
	responses map[string]any
	errs      map[string]error
	hold      map[string]chan struct{}
	calls     []webhookCall
}

func newFakeWebhook() *fakeWebhook {
	return &fakeWebhook{
		env:       gateway.EnvProd,
		responses: map[string]any{},
		errs:      map[string]error{},
		hold:      map[string]chan struct{}{},
	}
}

func (f *fakeWebhook) respond(action string, resp any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[action] = resp
}

func (f *fakeWebhook) fail(action string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[action] = err
}

func (f *fakeWebhook) holdAction(action string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{}, 1)
	f.hold[action] = ch
	return ch
}

func (f *fakeWebhook) SubmitAction(ctx context.Context, action string, payload map[string]any) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, webhookCall{action: action, payload: payload})
	resp, err, held := f.responses[action], f.errs[action], f.hold[action]
	f.mu.Unlock()

	if held != nil {
		held <- struct{}{}
		<-ctx.Done()
		return nil, gateway.ErrCancelled
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return map[string]any{}, nil
	}
	return resp, nil
}

func (f *fakeWebhook) count(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.action == action {
			n++
		}
	}
	return n
}

func (f *fakeWebhook) last(action string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].action == action {
			return f.calls[i].payload
		}
	}
	return nil
}

func (f *fakeWebhook) Environment() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.env
}

func (f *fakeWebhook) SetEnvironment(env string) error {
	if env != gateway.EnvProd && env != gateway.EnvTest {
		return errors.New("bad environment")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.env = env
	return nil
}

func (f *fakeWebhook) SessionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

func (f *fakeWebhook) SetSessionID(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = id
}

func (f *fakeWebhook) OnSessionAdopted(fn func(string)) { f.onSession = fn }

// fakeModel routes prompts to canned answers by substring. Held prompts
// signal entry and then block until their context is cancelled.
type fakeModel struct {
	mu      sync.Mutex
	answers []modelAnswer
	holds   []modelHold
	prompts []string
}

type modelHold struct {
	contains string
	entered  chan struct{}
}

type modelAnswer struct {
	contains string
	text     string
	err      error
}

func (m *fakeModel) on(contains, text string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, modelAnswer{contains: contains, text: text, err: err})
}

func (m *fakeModel) holdOn(contains string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan struct{}, 1)
	m.holds = append(m.holds, modelHold{contains: contains, entered: ch})
	return ch
}

func (m *fakeModel) AskModel(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	answers := append([]modelAnswer(nil), m.answers...)
	holds := append([]modelHold(nil), m.holds...)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", gateway.ErrCancelled
	}
	for _, h := range holds {
		if strings.Contains(prompt, h.contains) {
			h.entered <- struct{}{}
			<-ctx.Done()
			return "", gateway.ErrCancelled
		}
	}
	for i := len(answers) - 1; i >= 0; i-- {
		if strings.Contains(prompt, answers[i].contains) {
			return answers[i].text, answers[i].err
		}
	}
	return "", errors.New("no canned answer")
}

func (m *fakeModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

type eventLog struct {
	mu     sync.Mutex
	events []models.Event
}

func (l *eventLog) add(ev models.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) of(typ models.EventType) []models.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Event
	for _, ev := range l.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type testStudio struct {
	*Studio
	webhook *fakeWebhook
	model   *fakeModel
	store   *storage.MemoryStore
	events  *eventLog
}

func newTestStudio(t *testing.T) *testStudio {
	t.Helper()
	ts := &testStudio{
		webhook: newFakeWebhook(),
		model:   &fakeModel{},
		store:   storage.NewMemoryStore(),
		events:  &eventLog{},
	}
	ts.Studio = NewStudio(StudioDeps{
		ID:          "ws-test",
		Webhook:     ts.webhook,
		Model:       ts.model,
		Store:       ts.store,
		Pillars:     config.Default().Pillars,
		SyncTimeout: 5 * time.Second,
		Publish:     ts.events.add,
	})
	t.Cleanup(ts.Close)
	return ts
}

// ready selects a category, fills the brand name and sets a positioning
// statement.
func (ts *testStudio) ready(t *testing.T) {
	t.Helper()
	require.NoError(t, ts.SelectCategory("fmcg"))
	require.NoError(t, ts.Intake().SetField("brandName", models.Text("Sol")))
	require.NoError(t, ts.PositioningEngine().Save("Sunshine in a bottle"))
}
