// Package capture implements the live capture loop and its lifecycle control.
package capture

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"icc.tech/netscope/internal/capture/handle"
	"icc.tech/netscope/internal/core"
	"icc.tech/netscope/internal/core/decoder"
	"icc.tech/netscope/internal/delivery"
	"icc.tech/netscope/internal/metrics"
)

// Counters is a snapshot of per-session counters.
type Counters struct {
	FramesCaptured uint64 `json:"frames_captured"`
	RecordsDecoded uint64 `json:"records_decoded"`
	DecodeFailures uint64 `json:"decode_failures"`
	ReadTimeouts   uint64 `json:"read_timeouts"`
}

// session owns one capture goroutine and the handle it reads from.
// The loop is the only writer of the counters; Stop and Status only read
// them after observing done or through atomic loads.
type session struct {
	iface  string
	filter string
	h      handle.Handle
	sink   delivery.Sink

	stop atomic.Bool
	done chan struct{}

	framesCaptured atomic.Uint64
	recordsDecoded atomic.Uint64
	decodeFailures atomic.Uint64
	readTimeouts   atomic.Uint64

	startedAt time.Time

	mu      sync.Mutex
	termErr error // Fatal driver error that terminated the loop, nil for clean stop
}

func newSession(iface, filter string, h handle.Handle, sink delivery.Sink) *session {
	return &session{
		iface:     iface,
		filter:    filter,
		h:         h,
		sink:      sink,
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
}

// run is the capture loop. It owns the handle: the handle is closed on every
// exit path, clean or not.
func (s *session) run() {
	defer close(s.done)
	defer s.h.Close()

	slog.Info("capture loop started", "interface", s.iface, "filter", s.filter)

	for {
		if s.stop.Load() {
			slog.Info("capture loop stopping", "interface", s.iface)
			return
		}

		data, _, err := s.h.ReadFrame()
		if err != nil {
			if errors.Is(err, core.ErrReadTimeout) {
				// Timeout is the poll heartbeat: loop back to the stop check.
				s.readTimeouts.Add(1)
				continue
			}
			s.mu.Lock()
			s.termErr = err
			s.mu.Unlock()
			slog.Error("capture loop terminated by driver error", "interface", s.iface, "error", err)
			metrics.SessionStatus.Set(metrics.SessionStatusFailed)
			return
		}

		s.framesCaptured.Add(1)
		metrics.FramesCapturedTotal.WithLabelValues(s.iface).Inc()

		rec, err := decoder.Decode(data)
		if err != nil {
			s.decodeFailures.Add(1)
			metrics.DecodeFailuresTotal.WithLabelValues(s.iface).Inc()
			slog.Debug("frame decode failed", "interface", s.iface, "error", err, "len", len(data))
			continue
		}

		s.sink.Deliver(rec)
		s.recordsDecoded.Add(1)
		metrics.RecordsDeliveredTotal.WithLabelValues(s.iface).Inc()
	}
}

// requestStop flags the loop to exit and returns immediately.
func (s *session) requestStop() {
	s.stop.Store(true)
}

// join blocks until the loop goroutine has exited.
func (s *session) join() {
	<-s.done
}

// terminated reports whether the loop has exited on its own, and the fatal
// error that caused it.
func (s *session) terminated() (bool, error) {
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return true, s.termErr
	default:
		return false, nil
	}
}

func (s *session) counters() Counters {
	return Counters{
		FramesCaptured: s.framesCaptured.Load(),
		RecordsDecoded: s.recordsDecoded.Load(),
		DecodeFailures: s.decodeFailures.Load(),
		ReadTimeouts:   s.readTimeouts.Load(),
	}
}
