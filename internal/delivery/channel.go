// Package delivery implements the bounded record channel between the capture
// producer and its consumer.
package delivery

import (
	"sync"

	"icc.tech/netscope/internal/core"
)

// DefaultCapacity is the delivery channel capacity used when none is configured.
const DefaultCapacity = 1000

// Channel is a bounded FIFO of PacketRecords with a drop-oldest overflow
// policy: when full, the oldest unread record is evicted to admit the newest,
// so the channel always holds the most recent records in arrival order.
//
// Publish never blocks. One producer and one consumer are supported; the
// consumer suspends in Next until a record arrives or the channel is closed.
type Channel struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []core.PacketRecord
	head   int
	length int
	closed bool
}

// NewChannel creates a channel with the given capacity.
// Capacity is fixed for the channel's lifetime; values < 1 use DefaultCapacity.
func NewChannel(capacity int) *Channel {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	c := &Channel{buf: make([]core.PacketRecord, capacity)}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Cap returns the fixed capacity of the channel.
func (c *Channel) Cap() int {
	return len(c.buf)
}

// Len returns the number of buffered records.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.length
}

// Publish appends rec, evicting the oldest buffered record when at capacity.
// It reports whether an eviction happened. Publishing to a closed channel is
// a no-op that reports false.
func (c *Channel) Publish(rec core.PacketRecord) (evicted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	if c.length == len(c.buf) {
		// Drop-oldest: overwrite the head slot and advance it.
		c.buf[c.head] = rec
		c.head = (c.head + 1) % len(c.buf)
		evicted = true
	} else {
		c.buf[(c.head+c.length)%len(c.buf)] = rec
		c.length++
	}

	c.cond.Signal()
	return evicted
}

// Next returns the oldest buffered record, blocking until one is available or
// the channel is closed. After close, buffered records continue to drain;
// once empty, Next reports ok=false forever.
func (c *Channel) Next() (rec core.PacketRecord, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.length == 0 && !c.closed {
		c.cond.Wait()
	}
	if c.length == 0 {
		return core.PacketRecord{}, false
	}

	rec = c.buf[c.head]
	c.head = (c.head + 1) % len(c.buf)
	c.length--
	return rec, true
}

// Drain removes and returns all currently buffered records without blocking.
func (c *Channel) Drain() []core.PacketRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]core.PacketRecord, 0, c.length)
	for c.length > 0 {
		out = append(out, c.buf[c.head])
		c.head = (c.head + 1) % len(c.buf)
		c.length--
	}
	return out
}

// Close marks the channel closed and wakes any blocked consumer.
// Closing twice is a no-op; no records are accepted after close.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.cond.Broadcast()
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
