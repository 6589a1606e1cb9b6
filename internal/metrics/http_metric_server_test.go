package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"
)

func TestNewServer_ValidAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		addr string
	}{
		{"port only", ":9090"},
		{"localhost with port", "localhost:9090"},
		{"IPv4 wildcard", "0.0.0.0:9090"},
		{"IPv6 wildcard", "[::]:9090"},
		{"specific IP", "127.0.0.1:8080"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := NewServer(tt.addr)

			if server == nil {
				t.Fatal("NewServer returned nil")
			}
			if server.addr != tt.addr {
				t.Errorf("server.addr = %q, want %q", server.addr, tt.addr)
			}
			if server.server == nil {
				t.Fatal("server.server is nil")
			}
			if server.server.Handler == nil {
				t.Error("server.server.Handler is nil")
			}
			if server.server.ReadHeaderTimeout != 5*time.Second {
				t.Errorf("ReadHeaderTimeout = %v, want 5s", server.server.ReadHeaderTimeout)
			}
		})
	}
}

func TestValidateAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"empty", "", true},
		{"missing port", "127.0.0.1", true},
		{"port only", ":8000", false},
		{"wildcard", "0.0.0.0:8000", false},
		{"loopback", "127.0.0.1:8000", false},
		{"localhost", "localhost:8000", false},
		{"garbage host", "no.such.host.invalid:8000", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := validateAddress(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateAddress(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}

func TestServer_EndpointsAndShutdown(t *testing.T) {
	port := getFreePort(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	server := NewServer(addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	waitForServer(t, addr, 2*time.Second)

	for _, path := range []string{"/api/v1/metrics", "/api/v1/health"} {
		resp, err := http.Get(fmt.Sprintf("http://%s%s", addr, path))
		if err != nil {
			t.Fatalf("failed to GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start returned error after graceful shutdown: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after Shutdown")
	}
}

func TestServer_ShutdownWithoutStart(t *testing.T) {
	t.Parallel()

	server := &Server{}
	if err := server.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown on uninitialized server = %v, want nil", err)
	}
}

func getFreePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}

func waitForServer(t *testing.T, addr string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("server at %s did not start within %v", addr, timeout)
}
