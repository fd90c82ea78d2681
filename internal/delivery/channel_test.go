package delivery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icc.tech/netscope/internal/core"
)

func rec(n uint32) core.PacketRecord {
	return core.PacketRecord{
		SrcAddr: [4]byte{10, 0, 0, 1},
		DstAddr: [4]byte{10, 0, 0, 2},
		Proto:   core.ProtocolTCP,
		Length:  n,
	}
}

func TestChannelOrderPreserved(t *testing.T) {
	ch := NewChannel(10)

	for i := uint32(1); i <= 5; i++ {
		evicted := ch.Publish(rec(i))
		assert.False(t, evicted)
	}
	ch.Close()

	var got []uint32
	for {
		r, ok := ch.Next()
		if !ok {
			break
		}
		got = append(got, r.Length)
	}
	assert.Equal(t, []uint32{1, 2, 3, 4, 5}, got)
}

func TestChannelDropOldest(t *testing.T) {
	// Capacity 2, four records A,B,C,D: drained sequence is exactly [C, D]
	// and two evictions happened.
	ch := NewChannel(2)

	evictions := 0
	for i := uint32(1); i <= 4; i++ {
		if ch.Publish(rec(i)) {
			evictions++
		}
	}
	assert.Equal(t, 2, evictions)

	ch.Close()
	var got []uint32
	for {
		r, ok := ch.Next()
		if !ok {
			break
		}
		got = append(got, r.Length)
	}
	assert.Equal(t, []uint32{3, 4}, got)
}

func TestChannelNextBlocksUntilPublish(t *testing.T) {
	ch := NewChannel(4)

	got := make(chan core.PacketRecord, 1)
	go func() {
		r, ok := ch.Next()
		require.True(t, ok)
		got <- r
	}()

	// Give the consumer a moment to block.
	time.Sleep(20 * time.Millisecond)
	ch.Publish(rec(42))

	select {
	case r := <-got:
		assert.Equal(t, uint32(42), r.Length)
	case <-time.After(time.Second):
		t.Fatal("consumer did not wake up after publish")
	}
}

func TestChannelCloseWakesConsumer(t *testing.T) {
	ch := NewChannel(4)

	done := make(chan bool, 1)
	go func() {
		_, ok := ch.Next()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	ch.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("consumer did not wake up after close")
	}
}

func TestChannelCloseIdempotent(t *testing.T) {
	ch := NewChannel(2)
	ch.Publish(rec(1))

	ch.Close()
	ch.Close()

	assert.True(t, ch.Closed())

	// Buffered records still drain after close.
	r, ok := ch.Next()
	require.True(t, ok)
	assert.Equal(t, uint32(1), r.Length)

	_, ok = ch.Next()
	assert.False(t, ok)

	// No records accepted after close.
	assert.False(t, ch.Publish(rec(2)))
	assert.Equal(t, 0, ch.Len())
}

func TestChannelDrain(t *testing.T) {
	ch := NewChannel(8)
	for i := uint32(1); i <= 3; i++ {
		ch.Publish(rec(i))
	}

	got := ch.Drain()
	require.Len(t, got, 3)
	assert.Equal(t, uint32(1), got[0].Length)
	assert.Equal(t, uint32(3), got[2].Length)
	assert.Equal(t, 0, ch.Len())
}

func TestChannelSinkCountsDrops(t *testing.T) {
	ch := NewChannel(2)
	sink := NewChannelSink(ch)

	for i := uint32(1); i <= 4; i++ {
		sink.Deliver(rec(i))
	}

	assert.Equal(t, uint64(2), sink.Dropped())
	assert.Equal(t, 2, ch.Len())
}

func TestBroadcasterFanOut(t *testing.T) {
	ch := NewChannel(8)
	b := NewBroadcaster(ch)

	sub1 := b.Subscribe(8)
	sub2 := b.Subscribe(8)

	ch.Publish(rec(7))
	ch.Close()

	for _, sub := range []*Subscription{sub1, sub2} {
		select {
		case r, ok := <-sub.C:
			require.True(t, ok)
			assert.Equal(t, uint32(7), r.Length)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive record")
		}
	}

	select {
	case <-b.Done():
	case <-time.After(time.Second):
		t.Fatal("broadcaster did not finish after channel close")
	}

	// Subscriber channels are closed once the stream ends.
	_, ok := <-sub1.C
	assert.False(t, ok)
}

func TestBroadcasterSubscribeAfterEnd(t *testing.T) {
	ch := NewChannel(4)
	b := NewBroadcaster(ch)
	ch.Close()
	<-b.Done()

	sub := b.Subscribe(4)
	_, ok := <-sub.C
	assert.False(t, ok)
}

func TestBroadcasterCancel(t *testing.T) {
	ch := NewChannel(4)
	b := NewBroadcaster(ch)

	sub := b.Subscribe(4)
	sub.Cancel()
	sub.Cancel() // idempotent

	_, ok := <-sub.C
	assert.False(t, ok)

	ch.Close()
	<-b.Done()
}
