package transport

import "context"

// Coordinator serializes transport connection attempts process-wide. The
// underlying BLE stack is not reentrant for concurrent connect (or scan)
// sequences, so only one may be in flight anywhere in the process at a time.
// This is a transport-layer constraint, not a protocol requirement; once a
// link is up it is owned exclusively by its session and the coordinator is
// not involved.
type Coordinator struct {
	sem chan struct{}
}

// NewCoordinator creates an independent coordinator. Most callers should
// share Shared instead; separate coordinators only make sense with separate
// BLE adapters.
func NewCoordinator() *Coordinator {
	return &Coordinator{sem: make(chan struct{}, 1)}
}

// Shared is the process-wide coordinator used by default.
var Shared = NewCoordinator()

// Acquire blocks until the coordinator is free or ctx is done.
func (c *Coordinator) Acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the coordinator. It must follow a successful Acquire.
func (c *Coordinator) Release() {
	select {
	case <-c.sem:
	default:
		panic("transport: Release without Acquire")
	}
}
