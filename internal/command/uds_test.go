package command

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestUDSServerClientIntegration(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "test.sock")

	// Looping traffic so the watch subtest always has records to stream.
	h := newLoopingHandler(t, [][]byte{udpFrame(53, 9000)})
	server := NewUDSServer(socketPath, h)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	// Wait for the socket to appear.
	waitSocket(t, socketPath)

	client := NewUDSClient(socketPath, 5*time.Second)

	t.Run("daemon_status", func(t *testing.T) {
		resp, err := client.DaemonStatus(context.Background())
		if err != nil {
			t.Fatalf("DaemonStatus failed: %v", err)
		}
		if resp.Error != nil {
			t.Errorf("unexpected error: %v", resp.Error.Message)
		}
		result, ok := resp.Result.(map[string]interface{})
		if !ok {
			t.Fatal("result is not a map")
		}
		if _, exists := result["version"]; !exists {
			t.Error("result missing 'version' field")
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := client.Ping(context.Background()); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("capture_start_stop", func(t *testing.T) {
		resp, err := client.CaptureStart(context.Background(), "eth0", "udp")
		if err != nil {
			t.Fatalf("CaptureStart failed: %v", err)
		}
		if resp.Error != nil {
			t.Fatalf("unexpected error: %v", resp.Error.Message)
		}

		resp, err = client.CaptureStatus(context.Background())
		if err != nil {
			t.Fatalf("CaptureStatus failed: %v", err)
		}
		if resp.Error != nil {
			t.Fatalf("unexpected error: %v", resp.Error.Message)
		}

		resp, err = client.CaptureStop(context.Background())
		if err != nil {
			t.Fatalf("CaptureStop failed: %v", err)
		}
		if resp.Error != nil {
			t.Fatalf("unexpected error: %v", resp.Error.Message)
		}
	})

	t.Run("watch_stream", func(t *testing.T) {
		resp, err := client.CaptureStart(context.Background(), "eth0", "")
		if err != nil {
			t.Fatalf("CaptureStart failed: %v", err)
		}
		if resp.Error != nil {
			t.Fatalf("unexpected error: %v", resp.Error.Message)
		}

		watchCtx, watchCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer watchCancel()

		errEnough := errors.New("enough")
		var got []RecordJSON
		err = client.Watch(watchCtx, func(rec RecordJSON) error {
			got = append(got, rec)
			return errEnough // One record is enough.
		})
		if err != nil && err != errEnough {
			t.Fatalf("Watch failed: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 record, got %d", len(got))
		}
		if got[0].Protocol != "UDP" || got[0].SrcPort != 53 {
			t.Errorf("unexpected record: %+v", got[0])
		}

		client.CaptureStop(context.Background())
	})

	t.Run("watch_when_idle", func(t *testing.T) {
		err := client.Watch(context.Background(), func(RecordJSON) error { return nil })
		if err == nil {
			t.Fatal("expected error watching with no active session")
		}
	})

	t.Run("unknown_method", func(t *testing.T) {
		resp, err := client.Call(context.Background(), "unknown.method", nil)
		if err != nil {
			t.Fatalf("Call failed: %v", err)
		}
		if resp.Error == nil {
			t.Fatal("expected error for unknown method")
		}
		if resp.Error.Code != ErrCodeMethodNotFound {
			t.Errorf("error code = %d, want %d", resp.Error.Code, ErrCodeMethodNotFound)
		}
	})

	cancel()

	select {
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			t.Errorf("server error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("server didn't stop in time")
	}

	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Error("socket file not removed after server stop")
	}
}

func TestUDSClientConnectionError(t *testing.T) {
	client := NewUDSClient(filepath.Join(t.TempDir(), "missing.sock"), time.Second)

	if _, err := client.DaemonStatus(context.Background()); err == nil {
		t.Error("expected connection error for missing socket")
	}
}

func waitSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("socket %s did not appear", path)
}
