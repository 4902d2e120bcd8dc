// Package ringchan provides a bounded channel with overwrite-oldest
// semantics. Producers never block: when the buffer is full the oldest
// element is dropped. Notification delivery uses it so a slow consumer can
// never back-pressure the BLE callback path.
package ringchan

// Ring wraps a buffered channel. Readers consume through C() like a normal
// Go channel; writers use Send, which always succeeds.
type Ring[T any] struct {
	ch chan T
}

// New creates a Ring with the given capacity. Capacity must be positive.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &Ring[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. Consumers may range over it until Close.
func (r *Ring[T]) C() <-chan T {
	return r.ch
}

// Send inserts v, discarding the oldest buffered element if the ring is
// full. It never blocks indefinitely.
func (r *Ring[T]) Send(v T) {
	select {
	case r.ch <- v:
	default:
		select {
		case <-r.ch: // drop oldest
		default:
		}
		r.ch <- v
	}
}

// TrySend inserts v only if there is room, reporting whether it did.
func (r *Ring[T]) TrySend(v T) bool {
	select {
	case r.ch <- v:
		return true
	default:
		return false
	}
}

// Len returns the number of buffered elements.
func (r *Ring[T]) Len() int {
	return len(r.ch)
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return cap(r.ch)
}

// Close closes the ring. Send after Close panics, like any closed channel.
func (r *Ring[T]) Close() {
	close(r.ch)
}
