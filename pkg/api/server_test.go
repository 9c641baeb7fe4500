package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/goclaw/manifest/pkg/api/handlers"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestNewHTTPServer(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = 8080

	server := NewHTTPServer(cfg, testLogger(), &Handlers{Health: handlers.NewHealthHandler()})

	if server == nil {
		t.Fatal("NewHTTPServer returned nil")
	}
	if server.server == nil {
		t.Error("HTTP server not initialized")
	}
	if server.router == nil {
		t.Error("Router not initialized")
	}
	if server.Addr() != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q", server.Addr())
	}
	if server.server.WriteTimeout != cfg.Server.HTTP.WriteTimeout {
		t.Errorf("WriteTimeout = %v, want %v", server.server.WriteTimeout, cfg.Server.HTTP.WriteTimeout)
	}
}

func TestHTTPServer_StartAndShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = freePort(t)

	server := NewHTTPServer(cfg, testLogger(), &Handlers{Health: handlers.NewHealthHandler()})

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	url := "http://127.0.0.1:" + strconv.Itoa(cfg.Server.Port) + "/health"
	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Failed to connect to server: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Health check status = %v, want %v", resp.StatusCode, http.StatusOK)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}

	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Error("Start() did not return after shutdown")
	}
}
