package delivery

import (
	"sync"

	"icc.tech/netscope/internal/core"
)

// Broadcaster is the single consumer of a Channel, fanning records out to any
// number of subscribers. Subscriber sends are non-blocking: a subscriber that
// falls behind loses records rather than stalling the drain loop.
//
// The broadcaster exits when the channel closes and drains empty, closing all
// subscriber channels on the way out.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
	done chan struct{}
}

// Subscription is one subscriber's view of the record stream.
// C is closed when the subscriber cancels or the session's channel closes.
type Subscription struct {
	C <-chan core.PacketRecord

	b      *Broadcaster
	ch     chan core.PacketRecord
	cancel sync.Once
}

// Cancel detaches the subscription and closes C.
func (s *Subscription) Cancel() {
	s.cancel.Do(func() {
		s.b.mu.Lock()
		if _, ok := s.b.subs[s]; ok {
			delete(s.b.subs, s)
			close(s.ch)
		}
		s.b.mu.Unlock()
	})
}

// NewBroadcaster starts draining ch on a new goroutine.
func NewBroadcaster(ch *Channel) *Broadcaster {
	b := &Broadcaster{
		subs: make(map[*Subscription]struct{}),
		done: make(chan struct{}),
	}
	go b.run(ch)
	return b
}

// Subscribe attaches a new subscriber with the given buffer size.
func (b *Broadcaster) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 64
	}
	sub := &Subscription{b: b, ch: make(chan core.PacketRecord, buffer)}
	sub.C = sub.ch

	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		// Stream already ended; hand back a closed subscription.
		close(sub.ch)
	default:
		b.subs[sub] = struct{}{}
	}
	return sub
}

// Done is closed once the stream has ended and all subscribers are detached.
func (b *Broadcaster) Done() <-chan struct{} {
	return b.done
}

func (b *Broadcaster) run(ch *Channel) {
	for {
		rec, ok := ch.Next()
		if !ok {
			break
		}

		b.mu.Lock()
		for sub := range b.subs {
			select {
			case sub.ch <- rec:
			default:
				// Subscriber buffer full; it misses this record.
			}
		}
		b.mu.Unlock()
	}

	b.mu.Lock()
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
	close(b.done)
	b.mu.Unlock()
}
