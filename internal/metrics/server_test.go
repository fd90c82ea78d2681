package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestServerServesScrape(t *testing.T) {
	s := NewServer("127.0.0.1:0", "")
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop(context.Background())

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/metrics", s.Addr()))
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "netscope_session_status") {
		t.Error("scrape output missing netscope_session_status")
	}
}

func TestServerStopWithoutStart(t *testing.T) {
	s := NewServer("127.0.0.1:0", "/metrics")
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop on unstarted server: %v", err)
	}
}
