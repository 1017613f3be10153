package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"cep95-engine/internal/geometry"
)

type stubResolver struct {
	mu     sync.Mutex
	coords map[string]geometry.Point3
	fail   map[string]bool
	calls  int
}

func (s *stubResolver) Resolve(_ context.Context, id string) (geometry.Point3, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.fail[id] {
		return geometry.Point3{}, errors.New("resolution failed")
	}
	return s.coords[id], nil
}

func TestEnsureAnchorsDiscoversAndResolves(t *testing.T) {
	r := New(&stubResolver{coords: map[string]geometry.Point3{
		"a": {X: 1, Y: 2, Z: 3},
		"b": {X: 4, Y: 5, Z: 6},
	}})
	r.EnsureAnchors(context.Background(), []string{"a", "b"})

	unlock := r.Lock()
	defer unlock()
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	if got := r.Get("a").Coord; got != (geometry.Point3{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("unexpected coord for a: %+v", got)
	}
}

func TestEnsureAnchorsSkipsFailedResolutions(t *testing.T) {
	r := New(&stubResolver{
		coords: map[string]geometry.Point3{"a": {}},
		fail:   map[string]bool{"b": true},
	})
	r.EnsureAnchors(context.Background(), []string{"a", "b"})

	unlock := r.Lock()
	defer unlock()
	if r.Get("a") == nil {
		t.Fatalf("expected a to be registered")
	}
	if r.Get("b") != nil {
		t.Fatalf("expected b to be skipped after resolution failure")
	}
}

func TestEnsureAnchorsIsLazyOnRediscovery(t *testing.T) {
	stub := &stubResolver{coords: map[string]geometry.Point3{"a": {}, "b": {}}}
	r := New(stub)
	r.EnsureAnchors(context.Background(), []string{"a"})
	r.EnsureAnchors(context.Background(), []string{"a", "b"})

	stub.mu.Lock()
	calls := stub.calls
	stub.mu.Unlock()
	if calls != 2 {
		t.Fatalf("resolver called %d times, want 2 (a once, b once)", calls)
	}
}

func TestRegistryNeverEvicts(t *testing.T) {
	r := New(&stubResolver{coords: map[string]geometry.Point3{"a": {}}})
	r.EnsureAnchors(context.Background(), []string{"a"})
	r.EnsureAnchors(context.Background(), []string{"a"})

	unlock := r.Lock()
	defer unlock()
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}
