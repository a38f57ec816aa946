package engine

import (
	"context"
	"sort"
	"sync"
)

// Operation scope names.
const (
	ScopePositioning = "positioning"
	ScopeWorlds      = "worlds"
	ScopePillars     = "pillars"
)

func storyScope(storyID string) string { return "story:" + storyID }
func storiesScope(pillarKey string) string { return "stories:" + pillarKey }

type scope struct {
	cancel context.CancelFunc
	token  uint64
}

// Scopes tracks one cancellation scope per logical operation. Starting an
// operation whose scope is already active cancels the older call.
type Scopes struct {
	mu     sync.Mutex
	active map[string]scope
	next   uint64
}

func NewScopes() *Scopes {
	return &Scopes{active: make(map[string]scope)}
}

// Begin opens a scope. The returned end func must be called when the
// operation finishes; it only removes its own scope.
func (s *Scopes) Begin(parent context.Context, name string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	if prev, ok := s.active[name]; ok {
		prev.cancel()
	}
	s.next++
	token := s.next
	s.active[name] = scope{cancel: cancel, token: token}
	s.mu.Unlock()

	return ctx, func() {
		s.mu.Lock()
		if cur, ok := s.active[name]; ok && cur.token == token {
			delete(s.active, name)
		}
		s.mu.Unlock()
		cancel()
	}
}

// Cancel aborts one scope and reports whether it was active.
func (s *Scopes) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.active[name]
	if !ok {
		return false
	}
	sc.cancel()
	delete(s.active, name)
	return true
}

// CancelAll aborts every active scope and returns how many there were.
func (s *Scopes) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.active)
	for name, sc := range s.active {
		sc.cancel()
		delete(s.active, name)
	}
	return n
}

// Active lists the open scopes, sorted.
func (s *Scopes) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.active))
	for name := range s.active {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
