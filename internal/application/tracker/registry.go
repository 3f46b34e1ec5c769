package tracker

import (
	"context"
	"sync"
	"time"
)

// Factory builds a fresh, uninitialized engine for userID.
type Factory func(userID string) *Engine

// Registry keeps one initialized Engine per user.
type Registry struct {
	mu      sync.Mutex
	engines map[string]*registered
	factory Factory
	now     func() time.Time
}

type registered struct {
	engine   *Engine
	lastUsed time.Time
}

// NewRegistry creates a registry that builds engines with factory.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		engines: make(map[string]*registered),
		factory: factory,
		now:     time.Now,
	}
}

// Get returns the engine of userID, creating and initializing it on first use.
func (r *Registry) Get(ctx context.Context, userID string) *Engine {
	r.mu.Lock()
	reg, ok := r.engines[userID]
	if !ok {
		reg = &registered{engine: r.factory(userID)}
		r.engines[userID] = reg
	}
	reg.lastUsed = r.now()
	e := reg.engine
	r.mu.Unlock()

	e.ensureInitialized(ctx)
	return e
}

// Release flushes the pending remote write of userID and forgets the engine.
// The next Get reloads the state from the stores.
func (r *Registry) Release(ctx context.Context, userID string) {
	r.mu.Lock()
	reg, ok := r.engines[userID]
	delete(r.engines, userID)
	r.mu.Unlock()

	if ok {
		reg.engine.Flush(ctx)
	}
}

// EvictIdle releases every engine not used for longer than idle and returns
// how many were released.
func (r *Registry) EvictIdle(ctx context.Context, idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	var evicted []*Engine
	for userID, reg := range r.engines {
		if reg.lastUsed.Before(cutoff) {
			evicted = append(evicted, reg.engine)
			delete(r.engines, userID)
		}
	}
	r.mu.Unlock()

	for _, e := range evicted {
		e.Flush(ctx)
	}
	return len(evicted)
}

// Len returns the number of live engines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}

// FlushAll flushes every live engine.
func (r *Registry) FlushAll(ctx context.Context) {
	r.mu.Lock()
	engines := make([]*Engine, 0, len(r.engines))
	for _, reg := range r.engines {
		engines = append(engines, reg.engine)
	}
	r.mu.Unlock()

	for _, e := range engines {
		e.Flush(ctx)
	}
}
