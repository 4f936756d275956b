// Copyright 2025 Joseph Cumines
//
// Configuration unit tests

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zaptest"
)

// clearEnv blanks every variable the loader reads. Empty values are ignored.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range settings {
		t.Setenv(s.env, "")
	}
	t.Setenv(configFileEnv, "")
}

func newCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	AddFlags(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags(%v) error = %v", args, err)
	}
	return cmd
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Backend != BackendRemote {
		t.Errorf("Backend = %s, want remote", cfg.Backend)
	}
	if cfg.ServerAddr != "localhost:50051" {
		t.Errorf("ServerAddr = %s, want localhost:50051", cfg.ServerAddr)
	}
	if cfg.ServerTLS {
		t.Errorf("ServerTLS = %v, want false", cfg.ServerTLS)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want 30s", cfg.RequestTimeout)
	}
	if cfg.PollInterval != 100*time.Millisecond {
		t.Errorf("PollInterval = %v, want 100ms", cfg.PollInterval)
	}
	if cfg.StubGrace != 5*time.Second {
		t.Errorf("StubGrace = %v, want 5s", cfg.StubGrace)
	}
	if cfg.Transport != TransportStdio {
		t.Errorf("Transport = %s, want stdio", cfg.Transport)
	}
	if cfg.HTTPAddress != ":8080" {
		t.Errorf("HTTPAddress = %s, want :8080", cfg.HTTPAddress)
	}
	if cfg.CORSOrigin != "*" {
		t.Errorf("CORSOrigin = %s, want *", cfg.CORSOrigin)
	}
	if cfg.HTTPReadTimeout != 30*time.Second || cfg.HTTPWriteTimeout != 30*time.Second {
		t.Errorf("HTTP timeouts = %v/%v, want 30s/30s", cfg.HTTPReadTimeout, cfg.HTTPWriteTimeout)
	}
	if cfg.RateLimit != 0 || cfg.RateBurst != 0 {
		t.Errorf("rate limit = %v/%d, want disabled", cfg.RateLimit, cfg.RateBurst)
	}
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("WINDOWS_USE_BACKEND", "SIM")
	t.Setenv("WINDOWS_USE_SERVER_ADDR", "agent:9000")
	t.Setenv("WINDOWS_USE_SERVER_TLS", "true")
	t.Setenv("WINDOWS_USE_REQUEST_TIMEOUT", "45")
	t.Setenv("WINDOWS_USE_POLL_INTERVAL", "250ms")
	t.Setenv("WINDOWS_USE_DEBUG", "1")
	t.Setenv("MCP_TRANSPORT", "http")
	t.Setenv("MCP_HTTP_SOCKET", "/tmp/mcp.sock")
	t.Setenv("MCP_API_KEY", "secret")
	t.Setenv("MCP_RATE_LIMIT", "2.5")
	t.Setenv("MCP_RATE_BURST", "5")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Backend != BackendSim {
		t.Errorf("Backend = %s, want sim", cfg.Backend)
	}
	if cfg.ServerAddr != "agent:9000" || !cfg.ServerTLS {
		t.Errorf("server = %s tls=%v, want agent:9000 tls=true", cfg.ServerAddr, cfg.ServerTLS)
	}
	if cfg.RequestTimeout != 45*time.Second {
		t.Errorf("RequestTimeout = %v, want 45s", cfg.RequestTimeout)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v, want 250ms", cfg.PollInterval)
	}
	if !cfg.Debug {
		t.Error("Debug = false, want true")
	}
	if cfg.Transport != TransportHTTP {
		t.Errorf("Transport = %s, want http", cfg.Transport)
	}
	if cfg.HTTPSocketPath != "/tmp/mcp.sock" {
		t.Errorf("HTTPSocketPath = %s, want /tmp/mcp.sock", cfg.HTTPSocketPath)
	}
	if cfg.APIKey != "secret" {
		t.Errorf("APIKey = %q, want secret", cfg.APIKey)
	}
	if cfg.RateLimit != 2.5 || cfg.RateBurst != 5 {
		t.Errorf("rate limit = %v/%d, want 2.5/5", cfg.RateLimit, cfg.RateBurst)
	}
}

func TestLoad_SSEIsHTTP(t *testing.T) {
	clearEnv(t)
	t.Setenv("MCP_TRANSPORT", "sse")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Transport != TransportHTTP {
		t.Errorf("Transport = %s, want http", cfg.Transport)
	}
}

func TestLoad_FlagsOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("MCP_HTTP_ADDRESS", ":9000")
	t.Setenv("WINDOWS_USE_STUB_GRACE", "2s")

	cmd := newCommand(t, "--http-address=:7000", "--backend=sim")
	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTPAddress != ":7000" {
		t.Errorf("HTTPAddress = %s, want :7000", cfg.HTTPAddress)
	}
	if cfg.Backend != BackendSim {
		t.Errorf("Backend = %s, want sim", cfg.Backend)
	}
	// unset flags fall through to the environment
	if cfg.StubGrace != 2*time.Second {
		t.Errorf("StubGrace = %v, want 2s", cfg.StubGrace)
	}
}

func TestAddFlags_NoAPIKeyFlag(t *testing.T) {
	cmd := newCommand(t)
	if cmd.Flags().Lookup("api-key") != nil {
		t.Error("api-key must not be settable on the command line")
	}
	if cmd.Flags().Lookup("config") == nil {
		t.Error("config flag missing")
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "backend: sim\nrequest_timeout: 12s\ncors_origin: https://example.com\n")
	t.Setenv("MCP_CORS_ORIGIN", "https://env.example.com")

	cmd := newCommand(t, "--config", path)
	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend != BackendSim {
		t.Errorf("Backend = %s, want sim", cfg.Backend)
	}
	if cfg.RequestTimeout != 12*time.Second {
		t.Errorf("RequestTimeout = %v, want 12s", cfg.RequestTimeout)
	}
	if cfg.CORSOrigin != "https://env.example.com" {
		t.Errorf("CORSOrigin = %s, want the environment to win over the file", cfg.CORSOrigin)
	}
}

func TestLoad_ConfigFileFromEnvironment(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "transport: http\n")
	t.Setenv(configFileEnv, path)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Transport != TransportHTTP {
		t.Errorf("Transport = %s, want http", cfg.Transport)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearEnv(t)
	cmd := newCommand(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := Load(cmd); err == nil {
		t.Error("Load() with a missing config file should fail")
	}
}

func TestLoad_Invalid(t *testing.T) {
	for _, tc := range []struct {
		name string
		env  map[string]string
		want string
	}{
		{"transport", map[string]string{"MCP_TRANSPORT": "websocket"}, "invalid transport type"},
		{"backend", map[string]string{"WINDOWS_USE_BACKEND": "uia"}, "invalid backend"},
		{"timeout", map[string]string{"WINDOWS_USE_REQUEST_TIMEOUT": "0"}, "request timeout must be positive"},
		{"duration", map[string]string{"WINDOWS_USE_POLL_INTERVAL": "soon"}, "invalid configuration"},
		{"rate", map[string]string{"MCP_RATE_LIMIT": "-1"}, "cannot be negative"},
		{"tls", map[string]string{"MCP_TLS_CERT_FILE": "cert.pem"}, "both a certificate and a key"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(nil)
			if err == nil {
				t.Fatal("Load() error = nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tc.want)
			}
		})
	}
}

func TestValidate_RemoteNeedsAddress(t *testing.T) {
	cfg := &Config{
		Backend:          BackendRemote,
		Transport:        TransportStdio,
		RequestTimeout:   time.Second,
		PollInterval:     time.Second,
		StubGrace:        time.Second,
		HTTPReadTimeout:  time.Second,
		HTTPWriteTimeout: time.Second,
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() with no server address should fail")
	}
	cfg.Backend = BackendSim
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() for sim = %v", err)
	}
}

// ============================================================================
// Watch
// ============================================================================

func TestWatch_Reloads(t *testing.T) {
	clearEnv(t)
	old := reloadDebounce
	reloadDebounce = 10 * time.Millisecond
	t.Cleanup(func() { reloadDebounce = old })

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "backend: sim\nrequest_timeout: 10s\n")

	l, err := NewLoader(newCommand(t, "--config", path))
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	if _, err := l.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen []time.Duration
	)
	changed := make(chan struct{}, 8)
	done := make(chan error, 1)
	started := make(chan struct{})
	go func() {
		close(started)
		done <- l.Watch(ctx, zaptest.NewLogger(t), func(cfg *Config) {
			mu.Lock()
			seen = append(seen, cfg.RequestTimeout)
			mu.Unlock()
			changed <- struct{}{}
		})
	}()
	<-started

	// The watcher registers asynchronously; keep rewriting until noticed.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	// an invalid edit is skipped
	writeFile(t, path, "backend: sim\nrequest_timeout: -1s\n")
loop:
	for {
		select {
		case <-changed:
			break loop
		case <-tick.C:
			writeFile(t, path, "backend: sim\nrequest_timeout: 20s\n")
		case <-deadline:
			t.Fatal("no reload within 5s")
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, d := range seen {
		if d != 20*time.Second {
			t.Errorf("reloaded RequestTimeout = %v, want 20s", d)
		}
	}
}

func TestWatch_NoFile(t *testing.T) {
	clearEnv(t)
	l, err := NewLoader(nil)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	if err := l.Watch(context.Background(), zaptest.NewLogger(t), func(*Config) {}); err == nil {
		t.Error("Watch() without a config file should fail")
	}
}

// writeFile replaces path atomically, so a watcher never reads it half
// written.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
}
