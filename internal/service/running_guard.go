package service

import (
	"context"
	"sync"
)

// ExportedRunGuard is an exported alias so _test packages can test the guard.
type ExportedRunGuard = runGuard

// ─────────────────────────────────────────────────────────────
// runGuard: one pipeline run per family at a time
// ─────────────────────────────────────────────────────────────

// runGuard ensures a scheduled run, a watch-triggered run and a manual run
// of the same family never overlap.
type runGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// TryLock marks family as running. It returns false if a run is in progress.
func (g *runGuard) TryLock(family string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	if _, ok := g.running[family]; ok {
		return false
	}
	g.running[family] = struct{}{}
	g.wg.Add(1)
	return true
}

// Unlock ends the run of family. Must follow a successful TryLock.
func (g *runGuard) Unlock(family string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, family)
	g.wg.Done()
}

// Running reports whether family has a run in progress.
func (g *runGuard) Running(family string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.running[family]
	return ok
}

// WaitAll blocks until every run in progress completes or ctx is cancelled.
func (g *runGuard) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
