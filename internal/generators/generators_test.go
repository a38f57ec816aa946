package generators

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brand-studio/server/internal/interfaces"
	"brand-studio/server/internal/models"
)

type fakeWebhook struct {
	mu      sync.Mutex
	action  string
	payload map[string]any
	resp    any
	err     error
}

func (f *fakeWebhook) SubmitAction(ctx context.Context, action string, payload map[string]any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.action, f.payload = action, payload
	return f.resp, f.err
}

func TestWorldImageGeneratorFindsNestedURL(t *testing.T) {
	wh := &fakeWebhook{resp: []any{map[string]any{"output": map[string]any{"image_url": "https://cdn/x.png"}}}}
	g := NewWorldImageGenerator(wh)

	resp, err := g.GenerateImage(context.Background(), &interfaces.ImageRequest{
		World:    &models.World{ID: "w1", Title: "Night Market"},
		Context:  models.ExternalRecord{"Brand Name": "Sol"},
		Language: "en",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/x.png", resp.URL)
	assert.Equal(t, ActionGenerateWorld, wh.action)
	assert.Equal(t, "Sol", wh.payload["Brand Name"])
	assert.Equal(t, "Night Market", wh.payload["world"].(map[string]any)["title"])
}

func TestWorldImageGeneratorBase64AndMissing(t *testing.T) {
	wh := &fakeWebhook{resp: map[string]any{"b64_json": "AAAA"}}
	resp, err := NewWorldImageGenerator(wh).GenerateImage(context.Background(), &interfaces.ImageRequest{World: &models.World{ID: "w"}})
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,AAAA", resp.URL)

	wh.resp = map[string]any{"status": "ok"}
	_, err = NewWorldImageGenerator(wh).GenerateImage(context.Background(), &interfaces.ImageRequest{World: &models.World{ID: "w"}})
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestImageCacheLoadingGuardAndFailure(t *testing.T) {
	c := NewImageCache(0)
	require.True(t, c.MarkLoading("w1"))
	assert.False(t, c.MarkLoading("w1"), "second generation must be refused while loading")

	c.Put("w1", "https://cdn/1.png")
	require.True(t, c.MarkLoading("w1"))
	c.Fail("w1", errors.New("boom"))

	img, ok := c.Get("w1")
	require.True(t, ok)
	assert.Equal(t, models.WorldImage{URL: "https://cdn/1.png", Error: "boom"}, img)

	c.Clear()
	_, ok = c.Get("w1")
	assert.False(t, ok)
}

func TestImageCacheInvalidateSparesLoading(t *testing.T) {
	c := NewImageCache(0)
	c.Put("done", "https://cdn/d.png")
	require.True(t, c.MarkLoading("busy"))

	c.Invalidate("done")
	c.Invalidate("busy")
	c.Invalidate("missing")

	_, ok := c.Get("done")
	assert.False(t, ok)
	img, ok := c.Get("busy")
	require.True(t, ok)
	assert.True(t, img.Loading)
}

func TestImageCacheEvictsOldest(t *testing.T) {
	c := NewImageCache(2)
	c.Put("a", "1")
	time.Sleep(time.Millisecond)
	c.Put("b", "2")
	time.Sleep(time.Millisecond)
	c.Put("c", "3")

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Len(t, c.Snapshot(), 2)
}

type stubGenerator struct {
	url   string
	delay time.Duration
}

func (s stubGenerator) GenerateImage(ctx context.Context, req *interfaces.ImageRequest) (*interfaces.ImageResponse, error) {
	select {
	case <-time.After(s.delay):
		return &interfaces.ImageResponse{URL: s.url}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestImageQueueRunsJobs(t *testing.T) {
	q := NewImageQueue(2, 10, time.Second, nil)
	q.Start(context.Background())
	assert.Equal(t, 2, q.GetWorkerCount())

	var mu sync.Mutex
	got := map[string]string{}
	var wg sync.WaitGroup
	for _, id := range []string{"w1", "w2", "w3"} {
		id := id
		wg.Add(1)
		require.NoError(t, q.Enqueue(&ImageJob{
			ID:        id,
			Generator: stubGenerator{url: "u-" + id},
			Request:   &interfaces.ImageRequest{World: &models.World{ID: id}},
			Done: func(resp *interfaces.ImageResponse, err error) {
				defer wg.Done()
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				got[id] = resp.URL
				mu.Unlock()
			},
		}))
	}
	wg.Wait()
	q.Stop()

	assert.Equal(t, map[string]string{"w1": "u-w1", "w2": "u-w2", "w3": "u-w3"}, got)
	assert.Equal(t, 0, q.Pending())
	assert.Equal(t, 0, q.GetWorkerCount())
	assert.ErrorIs(t, q.Enqueue(&ImageJob{ID: "late"}), ErrQueueStopped)
}

func TestImageQueueJobTimeout(t *testing.T) {
	q := NewImageQueue(1, 1, 20*time.Millisecond, nil)
	q.Start(context.Background())
	defer q.Stop()

	done := make(chan error, 1)
	require.NoError(t, q.Enqueue(&ImageJob{
		ID:        "slow",
		Generator: stubGenerator{delay: time.Second},
		Request:   &interfaces.ImageRequest{World: &models.World{ID: "slow"}},
		Done:      func(_ *interfaces.ImageResponse, err error) { done <- err },
	}))
	assert.ErrorIs(t, <-done, context.DeadlineExceeded)
}
