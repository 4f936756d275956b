// Copyright 2025 Joseph Cumines
//
// HTTP transport for JSON-RPC 2.0 communication

package transport

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// HTTPTransportConfig holds configuration for HTTP transport.
// Address is the HTTP server address (e.g., ":8080" or "localhost:8080").
// SocketPath is an optional Unix domain socket path (takes precedence over Address).
// CORSOrigin is the allowed CORS origin (default: "*").
// APIKey, when set, is required as a Bearer token on every route but /health.
// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
// RateLimit is the sustained requests per second allowed on /mcp (0 disables).
// ReadTimeout and WriteTimeout for HTTP server (default: 30s and 0).
// WriteTimeout is left unset by default, as a tool call may legitimately wait
// for its whole timeout before responding.
type HTTPTransportConfig struct {
	Metrics      *Metrics
	Logger       *zap.Logger
	Address      string
	SocketPath   string
	CORSOrigin   string
	APIKey       string
	TLSCertFile  string
	TLSKeyFile   string
	RateLimit    float64
	RateBurst    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultHTTPConfig returns default HTTP transport configuration
func DefaultHTTPConfig() *HTTPTransportConfig {
	return &HTTPTransportConfig{
		Address:     ":8080",
		CORSOrigin:  "*",
		ReadTimeout: 30 * time.Second,
	}
}

// maxBodySize bounds a single POSTed request.
const maxBodySize = 16 << 20

// HTTPTransport serves MCP over HTTP: each POST to /mcp carries one JSON-RPC
// request and receives its response in the HTTP response body.
type HTTPTransport struct {
	config    *HTTPTransportConfig
	logger    *zap.Logger
	limiter   *RateLimiter
	server    *http.Server
	handler   Handler
	handlerMu sync.Mutex
	closed    atomic.Bool
}

// Ensure HTTPTransport implements Transport interface
var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a new HTTP transport. A nil config uses
// DefaultHTTPConfig.
func NewHTTPTransport(config *HTTPTransportConfig) *HTTPTransport {
	if config == nil {
		config = DefaultHTTPConfig()
	}
	if config.CORSOrigin == "" {
		config.CORSOrigin = "*"
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &HTTPTransport{
		config: config,
		logger: logger,
	}
	if config.RateLimit > 0 {
		t.limiter = NewRateLimiter(config.RateLimit, config.RateBurst)
	}
	t.server = &http.Server{
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      config.WriteTimeout,
		ErrorLog:          zap.NewStdLog(logger),
	}
	return t
}

// IsAuthEnabled reports whether an API key is required.
func (t *HTTPTransport) IsAuthEnabled() bool {
	return t.config.APIKey != ""
}

// IsTLSEnabled reports whether both a certificate and key are configured.
func (t *HTTPTransport) IsTLSEnabled() bool {
	return t.config.TLSCertFile != "" && t.config.TLSKeyFile != ""
}

// IsRateLimitEnabled reports whether /mcp is rate limited.
func (t *HTTPTransport) IsRateLimitEnabled() bool {
	return t.limiter != nil
}

// Routes returns the HTTP handler that dispatches requests to handler.
func (t *HTTPTransport) Routes(handler Handler) http.Handler {
	t.handlerMu.Lock()
	t.handler = handler
	t.handlerMu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", t.handleMessage)
	mux.HandleFunc("/health", t.handleHealth)
	if t.config.Metrics != nil {
		mux.Handle("/metrics", t.config.Metrics.Handler())
	}

	var h http.Handler = mux
	if t.limiter != nil {
		h = t.limiter.Middleware(h)
	}
	h = t.authMiddleware(h)
	h = t.corsMiddleware(h)
	return t.instrument(h)
}

func (t *HTTPTransport) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", t.config.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Type, Retry-After")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware enforces the Bearer API key. /health stays open so load
// balancers can probe without credentials; /metrics does not.
func (t *HTTPTransport) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.IsAuthEnabled() || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			t.unauthorized(w, "Authorization header required")
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			t.unauthorized(w, "Invalid authorization format, expected Bearer token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(t.config.APIKey)) != 1 {
			t.unauthorized(w, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (t *HTTPTransport) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="mcp"`)
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": message})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (t *HTTPTransport) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if m := t.config.Metrics; m != nil {
			m.ObserveHTTP(r.URL.Path, rec.status, time.Since(start))
		}
	})
}

func (t *HTTPTransport) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusRequestEntityTooLarge)
		return
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		writeJSON(w, http.StatusOK, ErrorResponse(nil, ErrCodeParseError, fmt.Sprintf("failed to parse JSON: %v", err)))
		return
	}
	if msg.JSONRPC != "2.0" || msg.Method == "" {
		writeJSON(w, http.StatusOK, ErrorResponse(msg.ID, ErrCodeInvalidRequest, "invalid JSON-RPC 2.0 request"))
		return
	}

	// one call at a time, in the order the lock is granted
	t.handlerMu.Lock()
	handler := t.handler
	var response *Message
	if handler == nil {
		err = errors.New("handler not set")
	} else {
		response, err = handler(r.Context(), &msg)
	}
	t.handlerMu.Unlock()

	if err != nil {
		t.logger.Error("error handling message", zap.String("method", msg.Method), zap.Error(err))
		if msg.IsNotification() {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		response = ErrorResponse(msg.ID, ErrCodeInternalError, err.Error())
	}
	if response == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (t *HTTPTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	status := "ok"
	if t.IsClosed() {
		status = "closing"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Listen opens the configured Unix socket or TCP address.
func (t *HTTPTransport) Listen() (net.Listener, error) {
	if t.config.SocketPath != "" {
		// remove a stale socket left by an unclean exit
		if err := os.Remove(t.config.SocketPath); err != nil && !os.IsNotExist(err) {
			t.logger.Warn("failed to remove stale socket", zap.String("path", t.config.SocketPath), zap.Error(err))
		}
		ln, err := net.Listen("unix", t.config.SocketPath)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on socket %s: %w", t.config.SocketPath, err)
		}
		return ln, nil
	}
	ln, err := net.Listen("tcp", t.config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", t.config.Address, err)
	}
	return ln, nil
}

// Serve listens on the configured address and serves until ctx ends or the
// transport is closed.
func (t *HTTPTransport) Serve(ctx context.Context, handler Handler) error {
	ln, err := t.Listen()
	if err != nil {
		return err
	}
	return t.ServeListener(ctx, ln, handler)
}

// ServeListener serves on ln until ctx ends or the transport is closed.
func (t *HTTPTransport) ServeListener(ctx context.Context, ln net.Listener, handler Handler) error {
	if t.IsTLSEnabled() {
		cert, err := tls.LoadX509KeyPair(t.config.TLSCertFile, t.config.TLSKeyFile)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
	}

	t.server.Handler = t.Routes(handler)

	stop := context.AfterFunc(ctx, func() { _ = t.Close() })
	defer stop()

	t.logger.Info("HTTP transport listening",
		zap.String("address", ln.Addr().String()),
		zap.Bool("tls", t.IsTLSEnabled()),
		zap.Bool("auth", t.IsAuthEnabled()),
	)
	if err := t.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ReadMessage is not supported: HTTPTransport delivers requests to the
// handler given to Serve.
func (t *HTTPTransport) ReadMessage() (*Message, error) {
	return nil, errors.New("ReadMessage is not supported by HTTPTransport: use Serve(ctx, handler) instead")
}

// WriteMessage is not supported: HTTP has no channel for unsolicited
// messages, and responses are written by Serve.
func (t *HTTPTransport) WriteMessage(*Message) error {
	return errors.New("WriteMessage is not supported by HTTPTransport: responses are written by Serve")
}

// Close shuts the server down, waiting briefly for in-flight requests.
func (t *HTTPTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := t.server.Shutdown(ctx)

	if t.config.SocketPath != "" {
		if rerr := os.Remove(t.config.SocketPath); rerr != nil && !os.IsNotExist(rerr) {
			t.logger.Warn("failed to remove socket file", zap.String("path", t.config.SocketPath), zap.Error(rerr))
		}
	}
	return err
}

// IsClosed returns whether the transport has been closed
func (t *HTTPTransport) IsClosed() bool {
	return t.closed.Load()
}

// retryAfterSeconds formats a Retry-After header value, rounding up.
func retryAfterSeconds(d time.Duration) string {
	s := int((d + time.Second - 1) / time.Second)
	return strconv.Itoa(max(s, 1))
}
