// Package registry holds the process-wide anchor table: a map from anchor
// id to owned Anchor state, guarded by a single mutex so that per-fix work
// is atomic end-to-end (§5 of the design: the core is single-writer).
package registry

import (
	"context"
	"log"
	"sync"

	"cep95-engine/internal/anchor"
	"cep95-engine/internal/geometry"
)

// Resolver looks up an anchor's 3-D coordinates by id. Implemented by
// internal/resolver.HTTPResolver in production; tests supply a stub.
type Resolver interface {
	Resolve(ctx context.Context, anchorID string) (geometry.Point3, error)
}

// Registry is the thread-safe anchor table. The zero value is not usable;
// construct with New.
type Registry struct {
	mu       sync.Mutex
	anchors  map[string]*anchor.Anchor
	resolver Resolver
}

// New returns an empty registry backed by resolver for coordinate lookups.
func New(resolver Resolver) *Registry {
	return &Registry{
		anchors:  make(map[string]*anchor.Anchor),
		resolver: resolver,
	}
}

// Lock acquires the registry's single exclusive lock, returning an unlock
// function. Callers should process one fix entirely between Lock and the
// returned unlock.
func (r *Registry) Lock() func() {
	r.mu.Lock()
	return r.mu.Unlock
}

// missingLocked returns the ids not yet present in the table, without taking the
// lock (caller must already hold it).
func (r *Registry) missingLocked(ids []string) []string {
	var missing []string
	for _, id := range ids {
		if _, ok := r.anchors[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// EnsureAnchors guarantees that every id in ids has an entry in the
// registry, discovering and resolving any that are missing. Coordinate
// resolution happens outside the registry lock (§5a): the lock is taken
// briefly to find missing ids, released during the HTTP round trips, then
// re-taken to commit (or, on resolution failure, to skip) each one.
//
// Call EnsureAnchors before Lock/your own fix-processing critical section;
// it manages its own locking internally.
func (r *Registry) EnsureAnchors(ctx context.Context, ids []string) {
	r.mu.Lock()
	missing := r.missingLocked(ids)
	r.mu.Unlock()

	if len(missing) == 0 {
		return
	}

	type resolved struct {
		id    string
		coord geometry.Point3
		err   error
	}
	results := make([]resolved, len(missing))
	var wg sync.WaitGroup
	for i, id := range missing {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			coord, err := r.resolver.Resolve(ctx, id)
			results[i] = resolved{id: id, coord: coord, err: err}
		}(i, id)
	}
	wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range results {
		if res.err != nil {
			log.Printf("registry: anchor resolution failed for %s: %v", res.id, res.err)
			continue
		}
		if _, ok := r.anchors[res.id]; ok {
			// Raced with a concurrent discovery of the same id; keep the
			// existing entry.
			continue
		}
		r.anchors[res.id] = anchor.New(res.id, res.coord)
	}
}

// Get returns the anchor for id, or nil if unknown. Caller must hold the
// lock returned by Lock.
func (r *Registry) Get(id string) *anchor.Anchor {
	return r.anchors[id]
}

// All returns every anchor currently in the registry. Caller must hold the
// lock returned by Lock.
func (r *Registry) All() []*anchor.Anchor {
	out := make([]*anchor.Anchor, 0, len(r.anchors))
	for _, a := range r.anchors {
		out = append(out, a)
	}
	return out
}

// Len returns the number of registered anchors. Caller must hold the lock.
func (r *Registry) Len() int {
	return len(r.anchors)
}
