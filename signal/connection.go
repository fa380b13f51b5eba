package signal

import (
	"sync"
	"time"

	"github.com/daqkit/daqrun/internal/daqerr"
)

// DefaultConnectionCapacity is the bound this implementation chooses for a
// Connection's packet queue (the spec leaves the bound implementation
// defined, §9 Open Questions, mandating only observability and
// blocking-until-timeout semantics).
const DefaultConnectionCapacity = 1024

// Connection is the bounded FIFO rendezvous point between a signal (single
// producer) and the function block owning its input port (single consumer),
// per §4.7. Push and Dequeue are safe for their respective single callers to
// use concurrently with each other; a condition variable wakes a blocked
// consumer on push (§5 "Connection").
type Connection struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	capacity int
	queue    []Packet
	closed   bool
}

func NewConnection(capacity int) *Connection {
	if capacity <= 0 {
		capacity = DefaultConnectionCapacity
	}
	c := &Connection{capacity: capacity}
	c.notEmpty = sync.NewCond(&c.mu)
	return c
}

// Push enqueues p, dropping the oldest packet if the connection is at
// capacity (backpressure without unbounded growth of an unread connection,
// §3.6 — the owning reader/connection still retains whatever fits the
// chosen bound).
func (c *Connection) Push(p Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return daqerr.New(daqerr.InvalidState, "push on a closed connection")
	}
	if len(c.queue) >= c.capacity {
		c.queue = c.queue[1:]
	}
	c.queue = append(c.queue, p)
	c.notEmpty.Signal()
	return nil
}

// Dequeue removes and returns the head packet, blocking until one arrives
// or the connection is closed.
func (c *Connection) Dequeue() (Packet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.queue) == 0 && !c.closed {
		c.notEmpty.Wait()
	}
	if len(c.queue) == 0 {
		return nil, false
	}
	p := c.queue[0]
	c.queue = c.queue[1:]
	return p, true
}

// DequeueTimeout blocks until a packet arrives, the connection closes, or
// timeout elapses, whichever comes first (§5 "reader read calls with
// non-zero timeout may park on the connection's condition variable until
// deadline or packet arrival"). A non-positive timeout behaves like
// TryDequeue.
func (c *Connection) DequeueTimeout(timeout time.Duration) (Packet, bool) {
	if timeout <= 0 {
		return c.TryDequeue()
	}

	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		c.mu.Lock()
		c.notEmpty.Broadcast()
		c.mu.Unlock()
	})
	defer timer.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.queue) == 0 && !c.closed {
		if !time.Now().Before(deadline) {
			return nil, false
		}
		c.notEmpty.Wait()
	}
	if len(c.queue) == 0 {
		return nil, false
	}
	p := c.queue[0]
	c.queue = c.queue[1:]
	return p, true
}

// TryDequeue is Dequeue's non-blocking form, used by a scheduler-posted
// drain loop that must never park the scheduler thread.
func (c *Connection) TryDequeue() (Packet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, false
	}
	p := c.queue[0]
	c.queue = c.queue[1:]
	return p, true
}

// Peek is non-destructive: it returns the head packet without removing it,
// used by the reader layer to inspect a pending EventPacket before deciding
// whether to consume it (§4.7 "peek").
func (c *Connection) Peek() (Packet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, false
	}
	return c.queue[0], true
}

// GetAvailableSamples sums the sample counts of queued DataPackets.
func (c *Connection) GetAvailableSamples() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, p := range c.queue {
		if dp, ok := p.(*DataPacket); ok {
			total += dp.SampleCount
		}
	}
	return total
}

// GetAvailableCount returns the number of queued packets (data and event).
func (c *Connection) GetAvailableCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Close wakes any blocked Dequeue and marks the connection inert; used when
// the owning input port is released during subtree removal (§4.5 "remove
// ... releasing connections first").
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.notEmpty.Broadcast()
}
