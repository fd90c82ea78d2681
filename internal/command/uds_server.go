package command

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
)

// UDSServer implements a JSON-RPC server over a Unix domain socket.
// Requests and responses are newline-delimited JSON. The capture_watch
// method upgrades the connection to a one-way record stream.
type UDSServer struct {
	socketPath string
	handler    *Handler
	listener   net.Listener

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	wg      sync.WaitGroup
	stopped bool
}

// NewUDSServer creates a new UDS server.
func NewUDSServer(socketPath string, handler *Handler) *UDSServer {
	return &UDSServer{
		socketPath: socketPath,
		handler:    handler,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Start starts the UDS server. Blocks until the context is cancelled.
func (s *UDSServer) Start(ctx context.Context) error {
	// Remove a stale socket file from a previous run.
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket %s: %w", s.socketPath, err)
	}
	s.listener = listener

	// Owner-only: the socket grants full capture control.
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	slog.Info("uds server started", "socket", s.socketPath)

	go s.acceptLoop(ctx)

	<-ctx.Done()
	slog.Info("uds server stopping", "reason", ctx.Err())

	return s.Stop()
}

// acceptLoop accepts incoming connections.
func (s *UDSServer) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()

			if stopped {
				return
			}

			slog.Error("failed to accept connection", "error", err)
			continue
		}

		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

// handleConnection handles a single connection.
func (s *UDSServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	slog.Debug("uds connection established")

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()

		var req JSONRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			slog.Error("failed to parse request", "error", err)
			encoder.Encode(JSONRPCResponse{
				JSONRPC: "2.0",
				ID:      nil,
				Error: &ErrorInfo{
					Code:    ErrCodeParseError,
					Message: fmt.Sprintf("parse error: %v", err),
				},
			})
			continue
		}

		if req.Method == "capture_watch" {
			// The stream takes over the connection; no further requests are
			// read from it.
			s.streamRecords(ctx, conn, encoder, req)
			return
		}

		cmd := Command{
			Method: req.Method,
			Params: req.Params,
			ID:     fmt.Sprintf("%v", req.ID),
		}

		resp := s.handler.Handle(ctx, cmd)

		if err := encoder.Encode(JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  resp.Result,
			Error:   resp.Error,
		}); err != nil {
			slog.Error("failed to send response", "error", err)
			return
		}
	}

	if err := scanner.Err(); err != nil {
		slog.Error("connection error", "error", err)
	}

	slog.Debug("uds connection closed")
}

// streamRecords answers capture_watch: one acknowledging response, then a
// capture_record notification per record until the session ends or the
// client hangs up.
func (s *UDSServer) streamRecords(ctx context.Context, conn net.Conn, encoder *json.Encoder, req JSONRPCRequest) {
	sub, err := s.handler.Watch(256)
	if err != nil {
		encoder.Encode(JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &ErrorInfo{Code: ErrCodeNotRunning, Message: err.Error()},
		})
		return
	}
	defer sub.Cancel()

	if err := encoder.Encode(JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  map[string]interface{}{"status": "watching"},
	}); err != nil {
		return
	}

	for {
		select {
		case rec, ok := <-sub.C:
			if !ok {
				// Session over: a normal end of stream for the client.
				encoder.Encode(JSONRPCNotification{
					JSONRPC: "2.0",
					Method:  "capture_end",
				})
				return
			}
			if err := encoder.Encode(JSONRPCNotification{
				JSONRPC: "2.0",
				Method:  "capture_record",
				Params:  ToRecordJSON(rec),
			}); err != nil {
				slog.Debug("watch client disconnected", "error", err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the UDS server.
func (s *UDSServer) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	os.RemoveAll(s.socketPath)

	slog.Info("uds server stopped")
	return nil
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// JSONRPCNotification is a server-to-client message without an ID.
type JSONRPCNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}
