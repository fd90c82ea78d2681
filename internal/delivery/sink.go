package delivery

import (
	"sync/atomic"

	"icc.tech/netscope/internal/core"
)

// Sink receives decoded records from the capture loop.
//
// Deliver is invoked on the producer goroutine once per successfully decoded
// frame and must not block: a slow consumer must never stall the capture loop.
// Implementations that need to hand records to another goroutine should do so
// through a bounded, non-blocking structure such as Channel.
type Sink interface {
	Deliver(core.PacketRecord)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(core.PacketRecord)

func (f SinkFunc) Deliver(rec core.PacketRecord) { f(rec) }

// ChannelSink delivers records into a Channel and counts overflow drops.
type ChannelSink struct {
	ch      *Channel
	dropped atomic.Uint64

	// OnDrop, when set before the first Deliver, is invoked once per evicted
	// record on the producer goroutine.
	OnDrop func()
}

// NewChannelSink creates a sink backed by ch.
func NewChannelSink(ch *Channel) *ChannelSink {
	return &ChannelSink{ch: ch}
}

// Deliver publishes rec without blocking; an eviction counts as one drop.
func (s *ChannelSink) Deliver(rec core.PacketRecord) {
	if s.ch.Publish(rec) {
		s.dropped.Add(1)
		if s.OnDrop != nil {
			s.OnDrop()
		}
	}
}

// Dropped returns the number of records evicted by overflow.
func (s *ChannelSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Channel returns the backing channel.
func (s *ChannelSink) Channel() *Channel {
	return s.ch
}

// Close closes the backing channel. Idempotent.
func (s *ChannelSink) Close() error {
	s.ch.Close()
	return nil
}
