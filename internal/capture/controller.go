package capture

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"icc.tech/netscope/internal/capture/handle"
	"icc.tech/netscope/internal/core"
	"icc.tech/netscope/internal/delivery"
	"icc.tech/netscope/internal/metrics"
)

// Config holds the handle parameters shared by all sessions a controller
// starts.
type Config struct {
	HandleKind  string
	SnapLen     int
	Promiscuous bool
	ReadTimeout time.Duration
}

// Status is a point-in-time view of the controller.
type Status struct {
	Running     bool          `json:"running"`
	Interface   string        `json:"interface,omitempty"`
	Filter      string        `json:"filter,omitempty"`
	StartedAt   time.Time     `json:"started_at,omitempty"`
	Counters    Counters      `json:"counters"`
	KernelStats *handle.Stats `json:"kernel_stats,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
}

// Controller enforces the single-active-session rule: at most one capture
// loop runs at a time, and Stop joins the loop before returning.
type Controller struct {
	cfg Config

	mu        sync.Mutex
	sink      delivery.Sink
	active    *session
	lastError error
	last      Counters // Counters of the most recently ended session
}

// New creates a controller with no registered sink and no active session.
func New(cfg Config) *Controller {
	if cfg.HandleKind == "" {
		cfg.HandleKind = "pcap"
	}
	if cfg.SnapLen <= 0 {
		cfg.SnapLen = 65535
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	return &Controller{cfg: cfg}
}

// RegisterSink sets the destination for decoded records. The sink cannot be
// swapped while a session is running.
func (c *Controller) RegisterSink(sink delivery.Sink) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeLocked() {
		return fmt.Errorf("%w: cannot replace sink", core.ErrSessionActive)
	}
	c.sink = sink
	return nil
}

// Start opens a handle on iface, applies the filter when non-empty, and
// launches the capture loop. It is all or nothing: any failure closes the
// handle and leaves the controller idle.
func (c *Controller) Start(iface, filter string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeLocked() {
		return fmt.Errorf("%w: capturing on %s", core.ErrSessionActive, c.active.iface)
	}
	if c.sink == nil {
		return core.ErrNoSink
	}

	h, err := handle.Open(c.cfg.HandleKind, handle.Options{
		Interface:   iface,
		SnapLen:     c.cfg.SnapLen,
		Promiscuous: c.cfg.Promiscuous,
		TimeoutMs:   int(c.cfg.ReadTimeout / time.Millisecond),
	})
	if err != nil {
		c.lastError = err
		return err
	}

	if filter != "" {
		if err := h.ApplyFilter(filter); err != nil {
			h.Close()
			c.lastError = err
			return err
		}
	}

	s := newSession(iface, filter, h, c.sink)
	c.active = s
	c.lastError = nil
	metrics.SessionStatus.Set(metrics.SessionStatusRunning)
	go s.run()

	slog.Info("capture session started",
		"interface", iface, "filter", filter, "handle", c.cfg.HandleKind)
	return nil
}

// Stop flags the active loop, waits for it to exit, and closes the sink if it
// supports closing. Stopping an idle controller is a no-op.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.active
	if s == nil {
		return nil
	}

	s.requestStop()
	s.join()

	if _, err := s.terminated(); err != nil {
		c.lastError = err
	}
	c.last = s.counters()
	c.active = nil
	metrics.SessionStatus.Set(metrics.SessionStatusIdle)
	c.closeSinkLocked()

	slog.Info("capture session stopped", "interface", s.iface, "counters", s.counters())
	return nil
}

// closeSinkLocked closes the registered sink if it supports closing, so that
// consumers blocked on it are released. Sink Close is idempotent, so running
// this on both the Stop and the reap path is safe. Caller must hold mu.
func (c *Controller) closeSinkLocked() {
	if closer, ok := c.sink.(io.Closer); ok {
		closer.Close()
	}
}

// Status reports the controller state. A session that terminated on its own
// (fatal driver error) is reaped here so a new Start can succeed.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.active
	if s == nil {
		st := Status{Running: false, Counters: c.last}
		if c.lastError != nil {
			st.LastError = c.lastError.Error()
		}
		return st
	}

	if dead, err := s.terminated(); dead {
		// The loop exited without Stop. Record the failure and free the slot,
		// closing the sink so its consumers do not wait on a dead session.
		if err != nil {
			c.lastError = err
		}
		c.last = s.counters()
		c.active = nil
		c.closeSinkLocked()
		st := Status{Running: false, Counters: s.counters()}
		if c.lastError != nil {
			st.LastError = c.lastError.Error()
		}
		return st
	}

	st := Status{
		Running:   true,
		Interface: s.iface,
		Filter:    s.filter,
		StartedAt: s.startedAt,
		Counters:  s.counters(),
	}
	if ks, err := s.h.Stats(); err == nil {
		st.KernelStats = &ks
	}
	return st
}

// activeLocked reaps a self-terminated session and reports whether a live one
// remains. Caller must hold mu.
func (c *Controller) activeLocked() bool {
	if c.active == nil {
		return false
	}
	if dead, err := c.active.terminated(); dead {
		if err != nil {
			c.lastError = err
		}
		c.last = c.active.counters()
		c.active = nil
		metrics.SessionStatus.Set(metrics.SessionStatusIdle)
		c.closeSinkLocked()
		return false
	}
	return true
}
