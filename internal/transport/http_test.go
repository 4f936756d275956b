// Copyright 2025 Joseph Cumines
//
// HTTP transport unit tests

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func post(t *testing.T, h http.Handler, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Message {
	t.Helper()
	var m Message
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("invalid response %q: %v", w.Body.String(), err)
	}
	return m
}

func TestDefaultHTTPConfig(t *testing.T) {
	cfg := DefaultHTTPConfig()
	if cfg.Address != ":8080" || cfg.CORSOrigin != "*" || cfg.ReadTimeout != 30*time.Second || cfg.WriteTimeout != 0 {
		t.Errorf("DefaultHTTPConfig() = %+v", cfg)
	}
	tr := NewHTTPTransport(nil)
	if tr.IsAuthEnabled() || tr.IsTLSEnabled() || tr.IsRateLimitEnabled() {
		t.Error("defaults should enable nothing optional")
	}
}

func TestHTTP_RequestResponse(t *testing.T) {
	h := NewHTTPTransport(&HTTPTransportConfig{}).Routes(echoHandler)

	w := post(t, h, `{"jsonrpc":"2.0","id":42,"method":"tools/list"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	m := decode(t, w)
	if string(m.ID) != "42" || string(m.Result) != `"tools/list"` {
		t.Errorf("response = %+v", m)
	}
}

func TestHTTP_NotificationAccepted(t *testing.T) {
	h := NewHTTPTransport(&HTTPTransportConfig{}).Routes(echoHandler)
	w := post(t, h, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	if w.Code != http.StatusAccepted || w.Body.Len() != 0 {
		t.Errorf("status = %d, body = %q", w.Code, w.Body.String())
	}
}

func TestHTTP_ParseAndInvalidRequest(t *testing.T) {
	h := NewHTTPTransport(&HTTPTransportConfig{}).Routes(echoHandler)

	m := decode(t, post(t, h, `{nope`))
	if m.Error == nil || m.Error.Code != ErrCodeParseError || string(m.ID) != "null" {
		t.Errorf("parse error response = %+v", m)
	}

	m = decode(t, post(t, h, `{"jsonrpc":"2.0","id":1}`))
	if m.Error == nil || m.Error.Code != ErrCodeInvalidRequest || string(m.ID) != "1" {
		t.Errorf("invalid request response = %+v", m)
	}
}

func TestHTTP_HandlerError(t *testing.T) {
	h := NewHTTPTransport(&HTTPTransportConfig{}).Routes(func(context.Context, *Message) (*Message, error) {
		return nil, errors.New("kaput")
	})
	m := decode(t, post(t, h, `{"jsonrpc":"2.0","id":1,"method":"x"}`))
	if m.Error == nil || m.Error.Code != ErrCodeInternalError {
		t.Errorf("response = %+v", m)
	}
}

func TestHTTP_MethodNotAllowed(t *testing.T) {
	h := NewHTTPTransport(&HTTPTransportConfig{}).Routes(echoHandler)
	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", w.Code)
	}
}

func TestHTTP_Health(t *testing.T) {
	tr := NewHTTPTransport(&HTTPTransportConfig{})
	h := tr.Routes(echoHandler)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("status = %d, body = %q", w.Code, w.Body.String())
	}
}

func TestHTTP_CORS(t *testing.T) {
	h := NewHTTPTransport(&HTTPTransportConfig{CORSOrigin: "https://allowed.example.com"}).Routes(echoHandler)

	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	req.Header.Set("Origin", "https://allowed.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", w.Code)
	}
	if v := w.Header().Get("Access-Control-Allow-Origin"); v != "https://allowed.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", v)
	}
	if v := w.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(v, "Authorization") {
		t.Errorf("Access-Control-Allow-Headers = %q", v)
	}
}

func TestHTTP_ConcurrentRequestsAreSerialized(t *testing.T) {
	var (
		active  atomic.Int32
		overlap atomic.Bool
	)
	h := NewHTTPTransport(&HTTPTransportConfig{}).Routes(func(ctx context.Context, msg *Message) (*Message, error) {
		if active.Add(1) > 1 {
			overlap.Store(true)
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return echoHandler(ctx, msg)
	})

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			post(t, h, `{"jsonrpc":"2.0","id":1,"method":"x"}`)
		}()
	}
	wg.Wait()
	if overlap.Load() {
		t.Error("handler calls overlapped")
	}
}

// =============================================================================
// Authentication
// =============================================================================

func TestAuthMiddleware(t *testing.T) {
	tr := NewHTTPTransport(&HTTPTransportConfig{APIKey: "test-secret-key"})
	if !tr.IsAuthEnabled() {
		t.Fatal("IsAuthEnabled() = false")
	}
	called := false
	handler := tr.authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		path       string
		authHeader string
		wantCode   int
		wantError  string
	}{
		{"valid token", "/mcp", "Bearer test-secret-key", http.StatusOK, ""},
		{"missing header", "/mcp", "", http.StatusUnauthorized, "Authorization header required"},
		{"wrong key", "/mcp", "Bearer nope", http.StatusUnauthorized, "Invalid API key"},
		{"key prefix", "/mcp", "Bearer test-secret", http.StatusUnauthorized, "Invalid API key"},
		{"bearer without key", "/mcp", "Bearer", http.StatusUnauthorized, "Invalid authorization format"},
		{"extra spaces", "/mcp", "Bearer  test-secret-key", http.StatusUnauthorized, "Invalid API key"},
		{"basic scheme", "/mcp", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, "Invalid authorization format"},
		{"lowercase scheme", "/mcp", "bearer test-secret-key", http.StatusUnauthorized, "Invalid authorization format"},
		{"bare key", "/mcp", "test-secret-key", http.StatusUnauthorized, "Invalid authorization format"},
		{"health exempt", "/health", "", http.StatusOK, ""},
		{"health exempt with bad key", "/health", "Bearer nope", http.StatusOK, ""},
		{"metrics requires auth", "/metrics", "", http.StatusUnauthorized, "Authorization header required"},
		{"metrics with key", "/metrics", "Bearer test-secret-key", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called = false
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if called != (tt.wantCode == http.StatusOK) {
				t.Errorf("handler called = %v", called)
			}
			if tt.wantError != "" {
				if !strings.Contains(w.Body.String(), tt.wantError) {
					t.Errorf("body = %q, want %q", w.Body.String(), tt.wantError)
				}
				if w.Header().Get("WWW-Authenticate") == "" {
					t.Error("missing WWW-Authenticate")
				}
			}
		})
	}
}

func TestAuthMiddleware_NoAuthConfigured(t *testing.T) {
	h := NewHTTPTransport(&HTTPTransportConfig{}).Routes(echoHandler)
	if w := post(t, h, `{"jsonrpc":"2.0","id":1,"method":"x"}`); w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestAuthIntegration_PreflightNeedsNoKey(t *testing.T) {
	h := NewHTTPTransport(&HTTPTransportConfig{APIKey: "k", CORSOrigin: "https://a.example"}).Routes(echoHandler)
	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", w.Code)
	}
	if w := post(t, h, `{"jsonrpc":"2.0","id":1,"method":"x"}`); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated POST status = %d", w.Code)
	}
	if w := post(t, h, `{"jsonrpc":"2.0","id":1,"method":"x"}`, "Authorization", "Bearer k"); w.Code != http.StatusOK {
		t.Errorf("authenticated POST status = %d", w.Code)
	}
}

// =============================================================================
// Rate limiting and metrics through the full route stack
// =============================================================================

func TestHTTP_RateLimited(t *testing.T) {
	tr := NewHTTPTransport(&HTTPTransportConfig{RateLimit: 0.001, RateBurst: 2, Metrics: NewMetrics()})
	if !tr.IsRateLimitEnabled() {
		t.Fatal("IsRateLimitEnabled() = false")
	}
	h := tr.Routes(echoHandler)

	for i := range 2 {
		if w := post(t, h, `{"jsonrpc":"2.0","id":1,"method":"x"}`); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}
	w := post(t, h, `{"jsonrpc":"2.0","id":1,"method":"x"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	for _, path := range []string{"/health", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
}

func TestHTTP_MetricsEndpoint(t *testing.T) {
	h := NewHTTPTransport(&HTTPTransportConfig{Metrics: NewMetrics()}).Routes(echoHandler)
	post(t, h, `{"jsonrpc":"2.0","id":1,"method":"x"}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), `mcp_http_requests_total{code="200",path="/mcp"} 1`) {
		t.Errorf("metrics output missing request counter:\n%s", body)
	}
}

// =============================================================================
// Serving
// =============================================================================

func TestHTTP_ServeUnixSocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "mcp.sock")
	tr := NewHTTPTransport(&HTTPTransportConfig{SocketPath: sock})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	ln, err := tr.Listen()
	if err != nil {
		t.Fatal(err)
	}
	go func() { done <- tr.ServeListener(ctx, ln, echoHandler) }()

	client := &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", sock)
		},
	}}
	resp, err := client.Post("http://unix/mcp", "application/json", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	if err != nil {
		t.Fatal(err)
	}
	var m Message
	_ = json.NewDecoder(resp.Body).Decode(&m)
	resp.Body.Close()
	if string(m.Result) != `"ping"` {
		t.Errorf("response = %+v", m)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeListener() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	if !tr.IsClosed() {
		t.Error("transport should be closed after ctx ends")
	}
}

func TestHTTP_ReadWriteUnsupported(t *testing.T) {
	tr := NewHTTPTransport(nil)
	if _, err := tr.ReadMessage(); err == nil {
		t.Error("ReadMessage should fail")
	}
	if err := tr.WriteMessage(&Message{}); err == nil {
		t.Error("WriteMessage should fail")
	}
	if err := tr.Close(); err != nil {
		t.Error(err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := map[time.Duration]string{
		0:                       "1",
		300 * time.Millisecond:  "1",
		time.Second:             "1",
		1500 * time.Millisecond: "2",
		time.Minute:             "60",
	}
	for d, want := range tests {
		if got := retryAfterSeconds(d); got != want {
			t.Errorf("retryAfterSeconds(%v) = %s, want %s", d, got, want)
		}
	}
}
