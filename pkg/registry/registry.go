// Package registry implements the Request Registry (spec.md §4.B): a bounded
// table of in-flight JSON-RPC calls that assigns monotonically increasing
// ids, tracks each request's QUEUED→PENDING→{COMPLETED,TIMEOUT,ERROR}
// lifecycle, and enforces a per-request timeout. It is the single source of
// truth for "am I expecting this id?" — the Reconciliation Engine never
// tracks ids itself.
package registry

import (
	"sync"
	"time"

	"github.com/shellyfs/shellyfs/pkg/util"
)

// MaxPending is the bounded number of simultaneously outstanding entries
// (R=64, MAX_PENDING_REQUESTS in original_source/include/request_queue.h).
const MaxPending = 64

// Timeout is the duration after which a PENDING entry is reclaimed
// (T=30s, REQUEST_TIMEOUT_SEC in original_source/include/request_queue.h).
const Timeout = 30 * time.Second

// State is the lifecycle state of a registry entry.
type State int

const (
	StateQueued State = iota
	StatePending
	StateCompleted
	StateTimeout
	StateError
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StatePending:
		return "pending"
	case StateCompleted:
		return "completed"
	case StateTimeout:
		return "timeout"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// entry is one outstanding request's bookkeeping.
type entry struct {
	id          int
	state       State
	requestData []byte
	responseData []byte
	sentAt      time.Time
	cond        *sync.Cond
}

// Registry is the bounded, id-assigning table of in-flight requests. All
// methods are safe for concurrent use; the mutex guards a small fixed
// amount of work, never blocking I/O, per spec.md §5.
type Registry struct {
	mu         sync.Mutex
	nextID     int
	entries    map[int]*entry
	order      []int // insertion order, oldest first — for GetNextToSend's FIFO scan
	now        func() time.Time
	maxPending int
	timeout    time.Duration
}

// New creates an empty Registry using the default MaxPending/Timeout
// bounds. ids start at 1 and increase monotonically for the lifetime of
// the Registry, never reused even after entries free.
func New() *Registry {
	return NewWithLimits(MaxPending, Timeout)
}

// NewWithLimits creates an empty Registry with caller-supplied bounds,
// letting pkg/settings override the defaults (outbound queue size, request
// timeout) without changing the package-level constants every other
// consumer relies on.
func NewWithLimits(maxPending int, timeout time.Duration) *Registry {
	return &Registry{
		nextID:     1,
		entries:    make(map[int]*entry),
		now:        time.Now,
		maxPending: maxPending,
		timeout:    timeout,
	}
}

// PeekNextID returns the id that Add would assign next, without consuming
// it, so a caller can encode the id into the outgoing document before the
// payload is actually registered.
func (r *Registry) PeekNextID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextID
}

// Add allocates a new entry in state QUEUED, stores the owned payload, and
// returns its assigned id. It fails with a QueueFullError if MaxPending
// entries are already outstanding.
func (r *Registry) Add(payload []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) >= r.maxPending {
		return 0, util.NewQueueFullError(r.maxPending)
	}

	id := r.nextID
	r.nextID++

	e := &entry{
		id:          id,
		state:       StateQueued,
		requestData: payload,
		sentAt:      r.now(),
		cond:        sync.NewCond(&r.mu),
	}
	r.entries[id] = e
	r.order = append(r.order, id)
	return id, nil
}

// GetNextToSend returns the oldest QUEUED entry's id and request payload, or
// ok=false if no entry is queued. The caller must call MarkSent after the
// transport accepts the bytes.
func (r *Registry) GetNextToSend() (id int, payload []byte, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, candidateID := range r.order {
		e, exists := r.entries[candidateID]
		if !exists {
			continue
		}
		if e.state == StateQueued {
			return e.id, e.requestData, true
		}
	}
	return 0, nil, false
}

// MarkSent transitions an entry from QUEUED to PENDING and refreshes its
// timestamp, so the timeout is measured from wire send, not from enqueue.
func (r *Registry) MarkSent(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.state != StateQueued {
		return util.NewValidationError("no queued request with this id")
	}
	e.state = StatePending
	e.sentAt = r.now()
	return nil
}

// HandleResponse finds the PENDING entry matching id, stores the response
// payload, and transitions it to COMPLETED, waking any waiter. A second
// call for the same id (the entry is no longer PENDING) fails — spec.md §8
// property 2, "at-most-one matching".
func (r *Registry) HandleResponse(id int, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.state != StatePending {
		return util.NewValidationError("no pending request with this id")
	}
	e.responseData = payload
	e.state = StateCompleted
	e.cond.Broadcast()
	return nil
}

// GetRequestData returns a read-only view of the original request payload
// for id, used by the Reconciliation Engine to recover the method and
// params that produced a response.
func (r *Registry) GetRequestData(id int) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.requestData, true
}

// Wait blocks until entry id leaves PENDING (completed, timed out, or
// errored), or the deadline passes. It is not used by the fire-and-forget
// filesystem flush path, but is required by the interface contract (§5) for
// any future synchronous caller.
func (r *Registry) Wait(id int, deadline time.Time) (State, []byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return StateError, nil, false
	}
	if d := deadline.Sub(r.now()); d > 0 {
		timer := time.AfterFunc(d, func() {
			r.mu.Lock()
			e.cond.Broadcast()
			r.mu.Unlock()
		})
		defer timer.Stop()
	}
	for e.state == StatePending {
		if !r.now().Before(deadline) {
			return e.state, e.responseData, true
		}
		e.cond.Wait()
	}
	return e.state, e.responseData, true
}

// CleanupTimeouts scans PENDING entries older than Timeout and transitions
// them to TIMEOUT, waking any waiter. It returns the ids that timed out, so
// callers (and tests) can observe exactly what was reclaimed; the entries
// stay in the table until the caller frees them with Forget.
func (r *Registry) CleanupTimeouts(now time.Time) []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var freed []int
	for _, id := range r.order {
		e, ok := r.entries[id]
		if !ok || e.state != StatePending {
			continue
		}
		if now.Sub(e.sentAt) >= r.timeout {
			e.state = StateTimeout
			e.cond.Broadcast()
			freed = append(freed, id)
		}
	}
	if len(freed) > 0 {
		util.WithFields(map[string]interface{}{"count": len(freed)}).Debug("registry: reclaimed timed-out requests")
	}
	return freed
}

// Forget removes a terminal (COMPLETED, TIMEOUT, or ERROR) entry from the
// table, bounding its memory footprint. Forgetting does not affect id
// monotonicity: PeekNextID/Add never reuse a forgotten id.
func (r *Registry) Forget(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.state == StateQueued || e.state == StatePending {
		return
	}
	delete(r.entries, id)
	for i, candidateID := range r.order {
		if candidateID == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// State returns the current state of entry id, for tests and diagnostics.
func (r *Registry) State(id int) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return StateError, false
	}
	return e.state, true
}

// Len returns the number of entries currently tracked (any state).
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
