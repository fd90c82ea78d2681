package capture

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icc.tech/netscope/internal/capture/handle"
	"icc.tech/netscope/internal/core"
	"icc.tech/netscope/internal/delivery"
)

// fakeHandle replays a scripted sequence of reads. Once the script is
// exhausted every further read reports a timeout, which keeps the loop
// spinning until Stop.
type fakeHandle struct {
	mu     sync.Mutex
	frames [][]byte
	errs   []error // Interleaved before frames: errs drain first
	next   int
	closed bool
}

func (f *fakeHandle) ReadFrame() ([]byte, gopacket.CaptureInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, gopacket.CaptureInfo{}, err
	}
	if f.next < len(f.frames) {
		data := f.frames[f.next]
		f.next++
		return data, gopacket.CaptureInfo{Timestamp: time.Now()}, nil
	}
	// Script exhausted: behave like a quiet interface.
	time.Sleep(time.Millisecond)
	return nil, gopacket.CaptureInfo{}, core.ErrReadTimeout
}

func (f *fakeHandle) ApplyFilter(expr string) error {
	if expr == "not a filter ((" {
		return fmt.Errorf("%w: %q", core.ErrInvalidFilter, expr)
	}
	return nil
}

func (f *fakeHandle) Stats() (handle.Stats, error) {
	return handle.Stats{Received: uint64(f.next)}, nil
}

func (f *fakeHandle) LinkType() layers.LinkType { return layers.LinkTypeEthernet }

func (f *fakeHandle) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeHandle) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// installFake registers a handle kind that always opens the given fake.
func installFake(t *testing.T, fh *fakeHandle) string {
	t.Helper()
	kind := fmt.Sprintf("fake-%s", t.Name())
	handle.Register(kind, func(opts handle.Options) (handle.Handle, error) {
		return fh, nil
	})
	return kind
}

// tcpFrame builds a minimal Ethernet+IPv4+TCP frame.
func tcpFrame(srcPort, dstPort uint16, pad int) []byte {
	frame := make([]byte, 0, 64)
	frame = append(frame, make([]byte, 12)...)     // MACs
	frame = append(frame, 0x08, 0x00)              // IPv4
	ip := make([]byte, 20)
	ip[0] = 0x45
	ip[9] = 6 // TCP
	copy(ip[12:16], []byte{10, 0, 0, 1})
	copy(ip[16:20], []byte{10, 0, 0, 2})
	frame = append(frame, ip...)
	frame = append(frame, byte(srcPort>>8), byte(srcPort), byte(dstPort>>8), byte(dstPort))
	frame = append(frame, make([]byte, pad)...)
	return frame
}

func newTestController(t *testing.T, fh *fakeHandle, cap int) (*Controller, *delivery.Channel) {
	t.Helper()
	kind := installFake(t, fh)
	c := New(Config{HandleKind: kind, ReadTimeout: time.Millisecond})
	ch := delivery.NewChannel(cap)
	require.NoError(t, c.RegisterSink(delivery.NewChannelSink(ch)))
	return c, ch
}

func TestStartStopJoinsAndClosesHandle(t *testing.T) {
	fh := &fakeHandle{}
	c, _ := newTestController(t, fh, 8)

	require.NoError(t, c.Start("eth0", "tcp"))
	st := c.Status()
	assert.True(t, st.Running)
	assert.Equal(t, "eth0", st.Interface)
	assert.Equal(t, "tcp", st.Filter)

	require.NoError(t, c.Stop())
	assert.True(t, fh.isClosed())
	assert.False(t, c.Status().Running)
}

func TestStopIdempotent(t *testing.T) {
	fh := &fakeHandle{}
	c, _ := newTestController(t, fh, 8)

	require.NoError(t, c.Start("eth0", ""))
	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop())
}

func TestDoubleStartRejected(t *testing.T) {
	fh := &fakeHandle{}
	c, _ := newTestController(t, fh, 8)

	require.NoError(t, c.Start("eth0", ""))
	err := c.Start("eth1", "")
	require.ErrorIs(t, err, core.ErrSessionActive)
	require.NoError(t, c.Stop())
}

func TestStartWithoutSink(t *testing.T) {
	fh := &fakeHandle{}
	kind := installFake(t, fh)
	c := New(Config{HandleKind: kind, ReadTimeout: time.Millisecond})

	err := c.Start("eth0", "")
	require.ErrorIs(t, err, core.ErrNoSink)
}

func TestInvalidFilterClosesHandle(t *testing.T) {
	fh := &fakeHandle{}
	c, _ := newTestController(t, fh, 8)

	err := c.Start("eth0", "not a filter ((")
	require.ErrorIs(t, err, core.ErrInvalidFilter)
	assert.True(t, fh.isClosed())
	assert.False(t, c.Status().Running)

	// A later valid start is unaffected.
	fh2 := &fakeHandle{}
	c2, _ := newTestController(t, fh2, 8)
	require.NoError(t, c2.Start("eth0", "tcp"))
	require.NoError(t, c2.Stop())
}

func TestRegisterSinkWhileRunning(t *testing.T) {
	fh := &fakeHandle{}
	c, _ := newTestController(t, fh, 8)

	require.NoError(t, c.Start("eth0", ""))
	err := c.RegisterSink(delivery.NewChannelSink(delivery.NewChannel(8)))
	require.ErrorIs(t, err, core.ErrSessionActive)
	require.NoError(t, c.Stop())
}

func TestCaptureDecodesAndDelivers(t *testing.T) {
	// Two decodable frames and one runt: expect two records in order and one
	// decode failure counted.
	fh := &fakeHandle{frames: [][]byte{
		tcpFrame(443, 51000, 10),
		{0x01, 0x02, 0x03}, // Runt frame, fails decode
		tcpFrame(80, 52000, 20),
	}}
	c, ch := newTestController(t, fh, 8)

	require.NoError(t, c.Start("eth0", ""))

	waitFor(t, func() bool { return c.Status().Counters.RecordsDecoded == 2 })
	require.NoError(t, c.Stop())

	got := ch.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, uint16(443), got[0].SrcPort)
	assert.Equal(t, uint16(80), got[1].SrcPort)

	st := c.Status()
	assert.Equal(t, uint64(3), st.Counters.FramesCaptured)
	assert.Equal(t, uint64(1), st.Counters.DecodeFailures)
}

func TestOverflowDropsOldest(t *testing.T) {
	// Capacity 2 and four records: the channel keeps the newest two and the
	// sink counts two drops.
	fh := &fakeHandle{frames: [][]byte{
		tcpFrame(1001, 1, 0),
		tcpFrame(1002, 1, 0),
		tcpFrame(1003, 1, 0),
		tcpFrame(1004, 1, 0),
	}}
	kind := installFake(t, fh)
	c := New(Config{HandleKind: kind, ReadTimeout: time.Millisecond})
	ch := delivery.NewChannel(2)
	sink := delivery.NewChannelSink(ch)
	require.NoError(t, c.RegisterSink(sink))

	require.NoError(t, c.Start("eth0", ""))
	waitFor(t, func() bool { return c.Status().Counters.RecordsDecoded == 4 })
	require.NoError(t, c.Stop())

	got := ch.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, uint16(1003), got[0].SrcPort)
	assert.Equal(t, uint16(1004), got[1].SrcPort)
	assert.Equal(t, uint64(2), sink.Dropped())
}

func TestFatalDriverErrorFailsSession(t *testing.T) {
	fh := &fakeHandle{errs: []error{fmt.Errorf("%w: ring torn down", core.ErrDriver)}}
	c, _ := newTestController(t, fh, 8)

	require.NoError(t, c.Start("eth0", ""))

	waitFor(t, func() bool { return !c.Status().Running })
	st := c.Status()
	assert.Contains(t, st.LastError, "ring torn down")
	assert.True(t, fh.isClosed())

	// The slot is free again without an explicit Stop.
	fh2 := &fakeHandle{}
	kind2 := installFake(t, fh2)
	c.cfg.HandleKind = kind2
	require.NoError(t, c.Start("eth0", ""))
	require.NoError(t, c.Stop())
}

func TestFatalDriverErrorReleasesConsumers(t *testing.T) {
	// A session that dies on its own must still end the delivery stream,
	// otherwise a consumer blocked in Next waits forever.
	fh := &fakeHandle{errs: []error{fmt.Errorf("%w: device went away", core.ErrDriver)}}
	c, ch := newTestController(t, fh, 8)

	require.NoError(t, c.Start("eth0", ""))

	released := make(chan struct{})
	go func() {
		defer close(released)
		for {
			if _, ok := ch.Next(); !ok {
				return
			}
		}
	}()

	// Reaping the dead session must close the sink.
	waitFor(t, func() bool { return !c.Status().Running })
	assert.True(t, ch.Closed())

	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer still blocked after fatal session end")
	}

	// Stop after the reap is a no-op and the stream stays ended.
	require.NoError(t, c.Stop())
	_, ok := ch.Next()
	assert.False(t, ok)
}

func TestStopOnQuietInterface(t *testing.T) {
	// No frames at all: Stop must still return promptly via the timeout path.
	fh := &fakeHandle{}
	c, _ := newTestController(t, fh, 8)

	require.NoError(t, c.Start("eth0", ""))
	time.Sleep(10 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return on quiet interface")
	}
	assert.Greater(t, c.Status().Counters.ReadTimeouts, uint64(0))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
