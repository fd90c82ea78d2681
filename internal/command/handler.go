// Package command implements the local control plane: a JSON-RPC 2.0 handler
// and its transport over a Unix domain socket.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"icc.tech/netscope/internal/capture"
	"icc.tech/netscope/internal/core"
	"icc.tech/netscope/internal/delivery"
	"icc.tech/netscope/internal/metrics"
)

// Handler handles control plane commands against one capture controller.
type Handler struct {
	controller   *capture.Controller
	capacity     int
	shutdownFunc func() // Called by daemon_shutdown to trigger graceful stop
	startTime    int64  // Unix timestamp of daemon start for uptime calc

	mu    sync.Mutex
	sink  *delivery.ChannelSink
	bcast *delivery.Broadcaster
}

// NewHandler creates a command handler. capacity bounds the per-session
// delivery channel.
func NewHandler(controller *capture.Controller, capacity int) *Handler {
	if capacity <= 0 {
		capacity = delivery.DefaultCapacity
	}
	return &Handler{
		controller: controller,
		capacity:   capacity,
		startTime:  time.Now().Unix(),
	}
}

// SetShutdownFunc sets the callback invoked by the daemon_shutdown command.
func (h *Handler) SetShutdownFunc(fn func()) {
	h.shutdownFunc = fn
}

// Command represents a control plane command.
type Command struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     string          `json:"id"`
}

// Response represents a command response.
type Response struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo represents an error in the response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// JSON-RPC 2.0 error codes, plus application codes in the -32000 range.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603

	ErrCodeDeviceNotFound   = -32000
	ErrCodePermissionDenied = -32001
	ErrCodeDriver           = -32002
	ErrCodeInvalidFilter    = -32003
	ErrCodeSessionActive    = -32004
	ErrCodeNotRunning       = -32005
)

// RecordJSON is the wire form of one decoded record.
type RecordJSON struct {
	Src      string `json:"src"`
	Dst      string `json:"dst"`
	SrcPort  uint16 `json:"src_port"`
	DstPort  uint16 `json:"dst_port"`
	Protocol string `json:"protocol"`
	Length   uint32 `json:"length"`
}

// ToRecordJSON converts a record to its wire form.
func ToRecordJSON(rec core.PacketRecord) RecordJSON {
	return RecordJSON{
		Src:      rec.SrcIP().String(),
		Dst:      rec.DstIP().String(),
		SrcPort:  rec.SrcPort,
		DstPort:  rec.DstPort,
		Protocol: rec.Proto.String(),
		Length:   rec.Length,
	}
}

// Handle processes a command and returns a response.
func (h *Handler) Handle(ctx context.Context, cmd Command) Response {
	slog.Debug("handling command", "method", cmd.Method, "id", cmd.ID)

	switch cmd.Method {
	case "capture_start":
		return h.handleCaptureStart(ctx, cmd)
	case "capture_stop":
		return h.handleCaptureStop(ctx, cmd)
	case "capture_status":
		return h.handleCaptureStatus(ctx, cmd)
	case "devices_list":
		return h.handleDevicesList(ctx, cmd)
	case "daemon_status":
		return h.handleDaemonStatus(ctx, cmd)
	case "daemon_shutdown":
		return h.handleDaemonShutdown(ctx, cmd)
	default:
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeMethodNotFound,
				Message: fmt.Sprintf("method %q not found", cmd.Method),
			},
		}
	}
}

// errResponse maps capture sentinels onto application error codes.
func errResponse(id string, err error) Response {
	code := ErrCodeInternalError
	switch {
	case errors.Is(err, core.ErrDeviceNotFound):
		code = ErrCodeDeviceNotFound
	case errors.Is(err, core.ErrPermissionDenied):
		code = ErrCodePermissionDenied
	case errors.Is(err, core.ErrInvalidFilter):
		code = ErrCodeInvalidFilter
	case errors.Is(err, core.ErrSessionActive):
		code = ErrCodeSessionActive
	case errors.Is(err, core.ErrDriver):
		code = ErrCodeDriver
	}
	return Response{
		ID:    id,
		Error: &ErrorInfo{Code: code, Message: err.Error()},
	}
}

// CaptureStartParams represents parameters for the capture_start command.
type CaptureStartParams struct {
	Interface string `json:"interface"`
	Filter    string `json:"filter,omitempty"`
}

// handleCaptureStart wires a fresh delivery channel to the controller and
// starts a session on the requested interface.
func (h *Handler) handleCaptureStart(_ context.Context, cmd Command) Response {
	var params CaptureStartParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInvalidParams,
				Message: fmt.Sprintf("invalid params: %v", err),
			},
		}
	}
	if params.Interface == "" {
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInvalidParams,
				Message: "interface is required",
			},
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Each session gets its own channel so a restart never replays stale
	// records to new watchers.
	ch := delivery.NewChannel(h.capacity)
	sink := delivery.NewChannelSink(ch)
	sink.OnDrop = func() {
		metrics.RecordsDroppedTotal.WithLabelValues(params.Interface).Inc()
	}

	if err := h.controller.RegisterSink(sink); err != nil {
		ch.Close()
		return errResponse(cmd.ID, err)
	}
	if err := h.controller.Start(params.Interface, params.Filter); err != nil {
		ch.Close()
		return errResponse(cmd.ID, err)
	}

	h.sink = sink
	h.bcast = delivery.NewBroadcaster(ch)

	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"interface": params.Interface,
			"filter":    params.Filter,
			"status":    "started",
		},
	}
}

// handleCaptureStop stops the active session. Stopping when idle succeeds
// quietly.
func (h *Handler) handleCaptureStop(_ context.Context, cmd Command) Response {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.controller.Stop(); err != nil {
		return errResponse(cmd.ID, err)
	}

	result := map[string]interface{}{"status": "stopped"}
	if h.sink != nil {
		result["dropped"] = h.sink.Dropped()
	}
	h.sink = nil
	h.bcast = nil

	return Response{ID: cmd.ID, Result: result}
}

// handleCaptureStatus returns the controller status plus sink drop count.
func (h *Handler) handleCaptureStatus(_ context.Context, cmd Command) Response {
	st := h.controller.Status()

	h.mu.Lock()
	var dropped uint64
	if h.sink != nil {
		dropped = h.sink.Dropped()
	}
	h.mu.Unlock()

	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"capture": st,
			"dropped": dropped,
		},
	}
}

// handleDevicesList lists capturable interfaces.
func (h *Handler) handleDevicesList(_ context.Context, cmd Command) Response {
	devs, err := capture.Devices()
	if err != nil {
		return errResponse(cmd.ID, err)
	}
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"devices": devs,
			"count":   len(devs),
		},
	}
}

// handleDaemonStatus returns daemon status information.
func (h *Handler) handleDaemonStatus(_ context.Context, cmd Command) Response {
	st := h.controller.Status()
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"version":    Version,
			"uptime_sec": time.Now().Unix() - h.startTime,
			"capturing":  st.Running,
		},
	}
}

// handleDaemonShutdown triggers graceful daemon shutdown via the registered
// callback.
func (h *Handler) handleDaemonShutdown(_ context.Context, cmd Command) Response {
	if h.shutdownFunc == nil {
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInternalError,
				Message: "shutdown handler not registered",
			},
		}
	}

	slog.Info("daemon_shutdown command received, initiating graceful shutdown")
	go h.shutdownFunc() // Non-blocking: let the response be sent first

	return Response{
		ID:     cmd.ID,
		Result: map[string]interface{}{"status": "shutting_down"},
	}
}

// Watch subscribes to the live record stream of the active session.
func (h *Handler) Watch(buffer int) (*delivery.Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.bcast == nil || !h.controller.Status().Running {
		return nil, fmt.Errorf("no active capture session")
	}
	return h.bcast.Subscribe(buffer), nil
}

// Version is the daemon version reported by daemon_status.
const Version = "0.1.0"
