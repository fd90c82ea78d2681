package command

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// UDSClient is a JSON-RPC client over a Unix domain socket.
type UDSClient struct {
	socketPath string
	timeout    time.Duration
}

// NewUDSClient creates a new UDS client.
func NewUDSClient(socketPath string, timeout time.Duration) *UDSClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &UDSClient{
		socketPath: socketPath,
		timeout:    timeout,
	}
}

// Call sends a command and waits for the response.
func (c *UDSClient) Call(ctx context.Context, method string, params interface{}) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	reqID := fmt.Sprintf("req-%d", time.Now().UnixNano())
	req, err := buildRequest(method, params, reqID)
	if err != nil {
		return nil, err
	}

	encoder := json.NewEncoder(conn)
	if err := encoder.Encode(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return nil, fmt.Errorf("connection closed without response")
	}

	var jsonrpcResp JSONRPCResponse
	if err := json.Unmarshal(scanner.Bytes(), &jsonrpcResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	respIDStr := fmt.Sprintf("%v", jsonrpcResp.ID)
	if respIDStr != reqID {
		return nil, fmt.Errorf("response ID mismatch: expected %v, got %v", reqID, respIDStr)
	}

	return &Response{
		ID:     respIDStr,
		Result: jsonrpcResp.Result,
		Error:  jsonrpcResp.Error,
	}, nil
}

func buildRequest(method string, params interface{}, reqID string) (JSONRPCRequest, error) {
	var paramsJSON json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return JSONRPCRequest{}, fmt.Errorf("failed to marshal params: %w", err)
		}
		paramsJSON = data
	}
	return JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  paramsJSON,
		ID:      reqID,
	}, nil
}

// CaptureStart is a convenience method for the capture_start command.
func (c *UDSClient) CaptureStart(ctx context.Context, iface, filter string) (*Response, error) {
	return c.Call(ctx, "capture_start", CaptureStartParams{Interface: iface, Filter: filter})
}

// CaptureStop is a convenience method for the capture_stop command.
func (c *UDSClient) CaptureStop(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "capture_stop", nil)
}

// CaptureStatus is a convenience method for the capture_status command.
func (c *UDSClient) CaptureStatus(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "capture_status", nil)
}

// DevicesList is a convenience method for the devices_list command.
func (c *UDSClient) DevicesList(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "devices_list", nil)
}

// DaemonStatus is a convenience method for the daemon_status command.
func (c *UDSClient) DaemonStatus(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "daemon_status", nil)
}

// DaemonShutdown is a convenience method for the daemon_shutdown command.
func (c *UDSClient) DaemonShutdown(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "daemon_shutdown", nil)
}

// Ping checks whether the daemon is alive.
func (c *UDSClient) Ping(ctx context.Context) error {
	_, err := c.DaemonStatus(ctx)
	return err
}

// Watch opens a capture_watch stream and invokes fn for every record until
// the stream ends, the context is cancelled, or fn returns an error.
func (c *UDSClient) Watch(ctx context.Context, fn func(RecordJSON) error) error {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to socket %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	// Tear the connection down when the context ends so the read below
	// unblocks.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	reqID := fmt.Sprintf("req-%d", time.Now().UnixNano())
	req, err := buildRequest("capture_watch", nil, reqID)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	scanner := bufio.NewScanner(conn)

	// First line is the acknowledging response.
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		return fmt.Errorf("connection closed without response")
	}
	var ack JSONRPCResponse
	if err := json.Unmarshal(scanner.Bytes(), &ack); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if ack.Error != nil {
		return fmt.Errorf("capture_watch rejected: %s", ack.Error.Message)
	}

	// Remaining lines are capture_record notifications.
	for scanner.Scan() {
		var note struct {
			Method string     `json:"method"`
			Params RecordJSON `json:"params"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &note); err != nil {
			return fmt.Errorf("failed to parse stream message: %w", err)
		}
		switch note.Method {
		case "capture_record":
			if err := fn(note.Params); err != nil {
				return err
			}
		case "capture_end":
			return nil
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stream error: %w", err)
	}
	return ctx.Err()
}
