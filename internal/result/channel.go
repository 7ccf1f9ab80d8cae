package result

import "sync"

// Channel holds at most one undelivered value. A posted value is handed out
// by the first Consume call only; observers that re-subscribe later get
// nothing until the next Post.
type Channel[T any] struct {
	mu       sync.Mutex
	value    T
	has      bool
	consumed bool
	ready    chan struct{}
}

// New returns an empty channel.
func New[T any]() *Channel[T] {
	return &Channel[T]{ready: make(chan struct{})}
}

// Post stores v, replacing any unconsumed value, and clears the consumed flag.
func (c *Channel[T]) Post(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	c.has = true
	c.consumed = false
	select {
	case <-c.ready:
	default:
		close(c.ready)
	}
}

// Consume returns the posted value the first time it is called after a Post.
func (c *Channel[T]) Consume() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	if !c.has || c.consumed {
		return zero, false
	}
	c.consumed = true
	v := c.value
	c.value = zero
	c.ready = make(chan struct{})
	return v, true
}

// Peek returns the last posted value without consuming it.
func (c *Channel[T]) Peek() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	if !c.has || c.consumed {
		return zero, false
	}
	return c.value, true
}

// Ready is closed while an unconsumed value is waiting. The returned channel
// is only valid until the next Consume.
func (c *Channel[T]) Ready() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}
