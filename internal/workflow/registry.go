package workflow

import (
	"context"
	"errors"
	"sync"
)

type sessionKey struct{ scope, section string }

// Registry keeps one open Session per (engagement, section) so concurrent
// requests edit the same in-memory document.
type Registry struct {
	store SectionStore
	opts  Options
	cross map[string][]string

	mu       sync.Mutex
	sessions map[sessionKey]*Session
	opening  map[sessionKey]*pendingOpen
}

// pendingOpen lets concurrent callers for one key share a single Open.
type pendingOpen struct {
	done chan struct{}
	s    *Session
	err  error
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCrossSections sets, per section key, the sections whose answers are
// imported when the section is opened.
func WithCrossSections(m map[string][]string) RegistryOption {
	return func(r *Registry) { r.cross = m }
}

// NewRegistry returns a registry opening sessions from store with opts.
func NewRegistry(store SectionStore, opts Options, ro ...RegistryOption) *Registry {
	r := &Registry{
		store:    store,
		opts:     opts,
		sessions: map[sessionKey]*Session{},
		opening:  map[sessionKey]*pendingOpen{},
	}
	for _, o := range ro {
		o(r)
	}
	return r
}

// Get returns the open session, opening it on first use. The store is read
// outside the registry lock; callers racing on the same key wait for the one
// Open in flight.
func (r *Registry) Get(ctx context.Context, scopeID, sectionKey string) (*Session, error) {
	k := sessionKey{scopeID, sectionKey}
	r.mu.Lock()
	if s, ok := r.sessions[k]; ok {
		r.mu.Unlock()
		return s, nil
	}
	if p, ok := r.opening[k]; ok {
		r.mu.Unlock()
		select {
		case <-p.done:
			return p.s, p.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p := &pendingOpen{done: make(chan struct{})}
	r.opening[k] = p
	opts := r.opts
	if cs, ok := r.cross[sectionKey]; ok {
		opts.CrossSections = cs
	}
	r.mu.Unlock()

	p.s, p.err = Open(ctx, r.store, scopeID, sectionKey, opts)

	r.mu.Lock()
	delete(r.opening, k)
	if p.err == nil {
		r.sessions[k] = p.s
	}
	r.mu.Unlock()
	close(p.done)
	return p.s, p.err
}

// Lookup returns the session if it is already open.
func (r *Registry) Lookup(scopeID, sectionKey string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionKey{scopeID, sectionKey}]
	return s, ok
}

// Drop closes and forgets a session. The next Get reloads from the store.
func (r *Registry) Drop(scopeID, sectionKey string) error {
	k := sessionKey{scopeID, sectionKey}
	r.mu.Lock()
	s, ok := r.sessions[k]
	delete(r.sessions, k)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Close()
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close closes every session.
func (r *Registry) Close() error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = map[sessionKey]*Session{}
	r.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
