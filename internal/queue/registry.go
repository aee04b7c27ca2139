package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrQueueNotFound is returned when looking up a queue that was never
// registered and no handler is supplied to create it.
var ErrQueueNotFound = errors.New("queue not found")

// Cleaner is the type-erased view of a queue used by the cleanup sweep.
type Cleaner interface {
	Name() string
	Cleanup(maxAge time.Duration) int
}

// Registry maps queue names to queue instances. Queues are created
// lazily, at most once per name; the first caller's handler and options
// win for the process lifetime.
type Registry struct {
	mu     sync.Mutex
	queues map[string]any
}

func NewRegistry() *Registry {
	return &Registry{queues: make(map[string]any)}
}

// GetQueue returns the queue registered under name, creating it from
// handler and opts on first use. Subsequent calls ignore both arguments
// and return the existing instance; two consumers can never drain the
// same name with different handlers. With a nil handler and no existing
// queue it fails with ErrQueueNotFound.
func GetQueue[P, R any](r *Registry, name string, handler Handler[P, R], opts Options) (*Queue[P, R], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.queues[name]; ok {
		q, ok := existing.(*Queue[P, R])
		if !ok {
			return nil, fmt.Errorf("queue %q is bound to different payload types", name)
		}
		return q, nil
	}

	if handler == nil {
		return nil, fmt.Errorf("%w: %s", ErrQueueNotFound, name)
	}

	q := New(name, handler, opts)
	r.queues[name] = q
	return q, nil
}

// Each calls fn for every registered queue.
func (r *Registry) Each(fn func(Cleaner)) {
	r.mu.Lock()
	cleaners := make([]Cleaner, 0, len(r.queues))
	for _, q := range r.queues {
		if c, ok := q.(Cleaner); ok {
			cleaners = append(cleaners, c)
		}
	}
	r.mu.Unlock()

	for _, c := range cleaners {
		fn(c)
	}
}
