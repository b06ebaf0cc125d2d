package capture

import (
	"sync"

	"mercator-hq/nettrace/pkg/telemetry/tracing"
)

// Registry maps in-flight request identities to their open spans.
// An identity appears at most once. Entries never expire.
type Registry struct {
	mu    sync.RWMutex
	spans map[TaskID]tracing.Span
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{spans: make(map[TaskID]tracing.Span)}
}

// Put stores span under id. If an entry already existed it is replaced and
// returned with replaced set to true.
func (r *Registry) Put(id TaskID, span tracing.Span) (displaced tracing.Span, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	displaced, replaced = r.spans[id]
	r.spans[id] = span
	return displaced, replaced
}

// TakeAndRemove removes and returns the span stored under id.
func (r *Registry) TakeAndRemove(id TaskID) (tracing.Span, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	span, ok := r.spans[id]
	if ok {
		delete(r.spans, id)
	}
	return span, ok
}

// Contains reports whether id has an open span.
func (r *Registry) Contains(id TaskID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.spans[id]
	return ok
}

// Len returns the number of open spans.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.spans)
}

// Drain removes and returns every entry.
func (r *Registry) Drain() map[TaskID]tracing.Span {
	r.mu.Lock()
	defer r.mu.Unlock()

	drained := r.spans
	r.spans = make(map[TaskID]tracing.Span)
	return drained
}
