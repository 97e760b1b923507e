package resilience

import "sync"

// Registry holds one CircuitBreaker per operation key, created lazily with a
// shared Config the first time a key is seen. This is the "circuit-breaker
// state table, guarded per-key" the error recovery layer owns.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates a Registry that lazily constructs breakers from cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:      cfg,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for key, creating it on first use.
func (r *Registry) Get(key string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[key]; ok {
		return cb
	}
	cb := New(r.cfg)
	r.breakers[key] = cb
	return cb
}

// State returns the current state of the breaker for key, StateClosed if the
// key has never been used.
func (r *Registry) State(key string) State {
	r.mu.Lock()
	cb, ok := r.breakers[key]
	r.mu.Unlock()
	if !ok {
		return StateClosed
	}
	return cb.State()
}

// Keys returns every operation key with a registered breaker.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.breakers))
	for k := range r.breakers {
		keys = append(keys, k)
	}
	return keys
}
