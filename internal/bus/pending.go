package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// DefaultRequestTimeout bounds how long a correlated request may stay pending.
const DefaultRequestTimeout = 30 * time.Second

// ErrRequestTimeout resolves a pending call whose reply never arrived.
var ErrRequestTimeout = errors.New("tool request timed out")

// Outcome carries one correlated reply.
type Outcome struct {
	Result json.RawMessage
	Err    error
}

// Call is the pending slot for one in-flight request. It completes exactly
// once, whether from a reply, a timeout or a cancellation.
type Call struct {
	id   string
	ch   chan struct{} // closed when the outcome is set
	once sync.Once
	mu   sync.Mutex
	out  Outcome
}

// ID returns the call's correlation ID.
func (c *Call) ID() string {
	return c.id
}

func (c *Call) complete(out Outcome) {
	c.once.Do(func() {
		c.mu.Lock()
		c.out = out
		c.mu.Unlock()
		close(c.ch)
	})
}

// wait blocks until the call completes or ctx expires.
func (c *Call) wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-c.ch:
		c.mu.Lock()
		out := c.out
		c.mu.Unlock()
		return out.Result, out.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Registry maps correlation IDs to pending outcome slots. Senders register a
// slot and transmit a request tagged with the ID; the receive path looks the
// ID up, resolves the slot and deregisters it.
type Registry struct {
	mu      sync.Mutex
	pending map[string]*Call
	timeout time.Duration
}

// NewRegistry creates a registry. A non-positive timeout selects the default
// thirty seconds.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Registry{
		pending: make(map[string]*Call),
		timeout: timeout,
	}
}

// Register creates and stores a pending slot for the given correlation ID.
// IDs are expected to be unique; re-registering an ID replaces the old slot.
func (r *Registry) Register(id string) *Call {
	call := &Call{id: id, ch: make(chan struct{})}
	r.mu.Lock()
	r.pending[id] = call
	r.mu.Unlock()
	return call
}

// Resolve completes and removes the slot for id. It returns false when the ID
// is not registered, which covers late replies after a timeout as well as
// duplicate replies; those are dropped by the caller.
func (r *Registry) Resolve(id string, result json.RawMessage, err error) bool {
	r.mu.Lock()
	call, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	call.complete(Outcome{Result: result, Err: err})
	return true
}

// Await blocks until the call resolves, enforcing the registry timeout. On
// expiry the slot is resolved with a timeout failure and removed, so a reply
// arriving afterwards finds nothing to complete. A reply that wins the race
// against the clock keeps its outcome.
func (r *Registry) Await(ctx context.Context, call *Call) (json.RawMessage, error) {
	waitCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := call.wait(waitCtx)
	select {
	case <-call.ch:
		return call.wait(context.Background())
	default:
	}

	// The wait ended on the clock or the caller's context, not on a reply.
	failure := err
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		failure = ErrRequestTimeout
	}
	if !r.Resolve(call.id, nil, failure) {
		return call.wait(context.Background())
	}
	return nil, failure
}

// ResolveResponse resolves the pending slot named by a bus response. Returns
// false when no slot is registered under the response's correlation ID.
func (r *Registry) ResolveResponse(resp ToolResponse) bool {
	if resp.Success {
		return r.Resolve(resp.CorrelationID, resp.Result, nil)
	}
	reason := resp.Error
	if reason == "" {
		reason = "tool call failed"
	}
	return r.Resolve(resp.CorrelationID, nil, errors.New(reason))
}

// Len reports how many calls are pending.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
