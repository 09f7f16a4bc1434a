package ingest

import (
	"context"
	"fmt"
	"sync"
)

// Fake serves canned items per source ref for tests and local runs.
type Fake struct {
	mu      sync.Mutex
	sources map[string][]RawItem
	err     error
}

func NewFake() *Fake {
	return &Fake{sources: make(map[string][]RawItem)}
}

func (f *Fake) SetItems(sourceRef string, items []RawItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources[sourceRef] = items
}

func (f *Fake) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *Fake) ReadItems(_ context.Context, sourceRef string) ([]RawItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	items, ok := f.sources[sourceRef]
	if !ok {
		return nil, fmt.Errorf("unknown source ref: %s", sourceRef)
	}
	out := make([]RawItem, len(items))
	copy(out, items)
	return out, nil
}
