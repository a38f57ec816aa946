package engine

import (
	"context"
	"sync"
	"time"

	"brand-studio/server/internal/logger"
)

// Hooks connect an engine to persistence and the event stream. Nil funcs
// are skipped.
type Hooks struct {
	// Changed is called after a top-level piece of state changed, with its
	// persisted key.
	Changed func(key string)
	// Synced reports the outcome of a best-effort backend save.
	Synced func(action string, err error)
	// Notice surfaces an informational message or alert to the user.
	Notice func(msg string)
}

func (h Hooks) changed(keys ...string) {
	if h.Changed == nil {
		return
	}
	for _, k := range keys {
		h.Changed(k)
	}
}

func (h Hooks) synced(action string, err error) {
	if h.Synced != nil {
		h.Synced(action, err)
	}
}

func (h Hooks) notice(msg string) {
	if h.Notice != nil {
		h.Notice(msg)
	}
}

// Detached runs best-effort side effects outside the request that caused
// them. Local state is already final when they start.
type Detached struct {
	wg      sync.WaitGroup
	timeout time.Duration
	log     *logger.Logger
}

func NewDetached(timeout time.Duration, log *logger.Logger) *Detached {
	if log == nil {
		log = logger.Nop()
	}
	return &Detached{timeout: timeout, log: log}
}

// Go runs fn on its own goroutine with a fresh context.
func (d *Detached) Go(name string, fn func(ctx context.Context) error, done func(error)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx := context.Background()
		if d.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.timeout)
			defer cancel()
		}
		err := fn(ctx)
		if err != nil {
			d.log.Warn("background sync failed", "action", name, "error", err)
		}
		if done != nil {
			done(err)
		}
	}()
}

// Wait blocks until every started side effect has finished.
func (d *Detached) Wait() {
	d.wg.Wait()
}
