package sigchan

// Chan is a non-blocking signal channel. It coalesces bursts: emitting while a
// signal is already queued is a no-op, which makes it the building block for
// debounced refresh loops.
type Chan struct {
	c chan struct{}
}

// New creates a signal channel with the given buffer size.
func New(bufferSize int) *Chan {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Chan{c: make(chan struct{}, bufferSize)}
}

// Emit queues a signal without blocking. A full buffer drops the signal.
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C exposes the underlying channel for select loops.
func (c *Chan) C() <-chan struct{} {
	return c.c
}

// Drain consumes any queued signals without blocking.
func (c *Chan) Drain() {
	for {
		select {
		case <-c.c:
		default:
			return
		}
	}
}
