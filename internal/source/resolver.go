package source

import (
	"fmt"
	"sync"
)

// StaticResolver resolves references registered up front or at runtime.
type StaticResolver struct {
	mu      sync.RWMutex
	sources map[string]Source
}

var _ Resolver = (*StaticResolver)(nil)

// NewStaticResolver creates an empty StaticResolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{sources: make(map[string]Source)}
}

// Register binds ref to src, replacing any previous binding.
func (r *StaticResolver) Register(ref string, src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[ref] = src
}

// Len returns the number of registered references.
func (r *StaticResolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}

// Resolve implements Resolver.
func (r *StaticResolver) Resolve(ref string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[ref]
	if !ok || src == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, ref)
	}
	return src, nil
}
