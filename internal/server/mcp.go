// Copyright 2025 Joseph Cumines
//
// MCP server implementation

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
	"github.com/joeycumines/WindowsUseSDK/internal/registry"
	"github.com/joeycumines/WindowsUseSDK/internal/transport"
	"github.com/joeycumines/WindowsUseSDK/internal/wait"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ServerName is reported to clients during initialization.
const ServerName = "windows-use-mcp"

// Version is set at build time.
var Version = "dev"

// DefaultRequestTimeout bounds a single tool invocation, before any wait
// budget the invocation asks for.
const DefaultRequestTimeout = 30 * time.Second

// supportedProtocolVersions lists the MCP revisions the server speaks, newest
// first.
var supportedProtocolVersions = []string{"2025-06-18", "2025-03-26", "2024-11-05"}

// MCPServer represents an MCP server
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type MCPServer struct {
	desk      desktop.Desktop
	registry  *registry.Registry
	waits     *wait.Engine
	logger    *zap.Logger
	audit     *AuditLogger
	metrics   *transport.Metrics
	tracer    trace.Tracer
	tools     map[string]*Tool
	catalog   []*Tool
	sessionID string
	timeout   atomic.Int64
	// callMu serializes tool invocations, whichever transport they arrive on.
	callMu sync.Mutex
}

// Option configures an MCPServer.
type Option func(*MCPServer)

// WithLogger sets the operational logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *MCPServer) { s.logger = logger }
}

// WithAuditLogger records every tool invocation to a.
func WithAuditLogger(a *AuditLogger) Option {
	return func(s *MCPServer) { s.audit = a }
}

// WithMetrics records request and tool metrics to m.
func WithMetrics(m *transport.Metrics) Option {
	return func(s *MCPServer) { s.metrics = m }
}

// WithTracerProvider replaces the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *MCPServer) { s.tracer = tp.Tracer(tracerName) }
}

// WithRequestTimeout sets the per-call timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *MCPServer) { s.SetRequestTimeout(d) }
}

// WithRegistry replaces the registry built over the desktop.
func WithRegistry(r *registry.Registry) Option {
	return func(s *MCPServer) { s.registry = r }
}

// WithWaitEngine replaces the default wait engine.
func WithWaitEngine(e *wait.Engine) Option {
	return func(s *MCPServer) { s.waits = e }
}

const tracerName = "github.com/joeycumines/WindowsUseSDK/internal/server"

// NewMCPServer creates a new MCP server driving desk.
func NewMCPServer(desk desktop.Desktop, opts ...Option) *MCPServer {
	s := &MCPServer{
		desk:      desk,
		logger:    zap.NewNop(),
		tracer:    otel.Tracer(tracerName),
		sessionID: uuid.NewString(),
	}
	s.SetRequestTimeout(DefaultRequestTimeout)
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = registry.New(desk, registry.WithLogger(s.logger.Named("registry")))
	}
	if s.waits == nil {
		s.waits = wait.NewEngine(wait.DefaultInterval, s.logger.Named("wait"))
	}

	s.registerTools()

	return s
}

// registerTools registers all available tools, in the order tools/list
// reports them.
func (s *MCPServer) registerTools() {
	s.catalog = []*Tool{
		newTool("app",
			"Launch an application from a program path or name (e.g. notepad.exe, calc.exe). "+
				"Returns the process id; set waitForWindow to also wait for its window and return the handle.",
			s.handleApp),
		newTool("window_management",
			"Manage top-level windows: list, find, activate, minimize, maximize, restore, close, move, resize, "+
				"move_and_activate, get_foreground, and wait_for / wait_for_state readiness waits. "+
				"Windows are named by handle (0x…), process id (pid:N) or a title substring.",
			s.handleWindowManagement),
		newTool("keyboard_control",
			"Send keyboard input to the foreground window: type text, press a key chord (e.g. ctrl+s, alt+f4, win+r), "+
				"or press a sequence of chords.",
			s.handleKeyboardControl),
		newTool("mouse_control",
			"Control the mouse in virtual screen coordinates: click, drag (press, move, release), move, get_position.",
			s.handleMouseControl),
		newTool("ui_find",
			"Find UI elements in a window's accessibility tree by control type and/or text.",
			s.handleUIFind),
		newTool("ui_read",
			"Read the name and value of UI elements in a window, or all text in the window when no filter is given.",
			s.handleUIRead),
		newTool("ui_click",
			"Click a UI element, resolving its current position immediately before clicking.",
			s.handleUIClick),
		newTool("ui_type",
			"Type text into an editable UI element, optionally replacing its contents.",
			s.handleUIType),
		newTool("screenshot_control",
			"Capture the screen, a monitor or a window (optionally annotated with labeled UI elements), "+
				"or list monitors.",
			s.handleScreenshotControl),
		newTool("file_save",
			"Save the document of an application window through its native Save As dialog.",
			s.handleFileSave),
	}
	s.tools = make(map[string]*Tool, len(s.catalog))
	for _, t := range s.catalog {
		s.tools[t.Name] = t
	}
}

// Tools returns the catalog in registration order.
func (s *MCPServer) Tools() []*Tool {
	return slices.Clone(s.catalog)
}

// Registry returns the window and process registry.
func (s *MCPServer) Registry() *registry.Registry { return s.registry }

// SessionID identifies this server instance in audit records.
func (s *MCPServer) SessionID() string { return s.sessionID }

// RequestTimeout returns the current per-call timeout.
func (s *MCPServer) RequestTimeout() time.Duration {
	return time.Duration(s.timeout.Load())
}

// SetRequestTimeout changes the per-call timeout for calls started
// afterwards. Non-positive values restore the default.
func (s *MCPServer) SetRequestTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultRequestTimeout
	}
	s.timeout.Store(int64(d))
}

// SetPollInterval changes the wait engine's poll interval.
func (s *MCPServer) SetPollInterval(d time.Duration) {
	s.waits.SetInterval(d)
}

// Shutdown releases the desktop backend and flushes the audit log.
func (s *MCPServer) Shutdown() error {
	s.logger.Info("shutting down MCP server", zap.String("session_id", s.sessionID))
	var err error
	if s.audit != nil {
		err = s.audit.Close()
	}
	if cerr := s.desk.Close(); err == nil {
		err = cerr
	}
	return err
}

// ============================================================================
// Protocol
// ============================================================================

// HandleMessage answers one JSON-RPC message. It implements
// transport.Handler, returning nil for notifications.
func (s *MCPServer) HandleMessage(ctx context.Context, msg *transport.Message) (*transport.Message, error) {
	if msg.IsNotification() {
		s.logger.Debug("notification", zap.String("method", msg.Method))
		return nil, nil
	}

	resp := s.handleRequest(ctx, msg)
	if s.metrics != nil {
		status := "ok"
		if resp.Error != nil {
			status = "error"
		}
		method := msg.Method
		if !knownMethod(method) {
			method = "other"
		}
		s.metrics.ObserveRequest(method, status)
	}
	return resp, nil
}

func knownMethod(m string) bool {
	switch m {
	case "initialize", "ping", "tools/list", "tools/call":
		return true
	}
	return false
}

func (s *MCPServer) handleRequest(ctx context.Context, msg *transport.Message) *transport.Message {
	switch msg.Method {
	case "initialize":
		var params struct {
			ClientInfo struct {
				Name    string `json:"name"`
				Version string `json:"version"`
			} `json:"clientInfo"`
			ProtocolVersion string `json:"protocolVersion"`
		}
		if len(msg.Params) != 0 {
			if err := json.Unmarshal(msg.Params, &params); err != nil {
				return transport.ErrorResponse(msg.ID, transport.ErrCodeInvalidParams, fmt.Sprintf("Invalid params: %v", err))
			}
		}
		version := supportedProtocolVersions[0]
		if slices.Contains(supportedProtocolVersions, params.ProtocolVersion) {
			version = params.ProtocolVersion
		}
		s.logger.Info("client initialized",
			zap.String("client", params.ClientInfo.Name),
			zap.String("client_version", params.ClientInfo.Version),
			zap.String("protocol_version", version))
		return result(msg.ID, map[string]any{
			"protocolVersion": version,
			"capabilities": map[string]any{
				"tools": map[string]any{"listChanged": false},
			},
			"serverInfo": map[string]any{
				"name":    ServerName,
				"version": Version,
			},
		})

	case "ping":
		return result(msg.ID, struct{}{})

	case "tools/list":
		tools := make([]map[string]any, 0, len(s.catalog))
		for _, t := range s.catalog {
			tools = append(tools, map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"inputSchema": t.InputSchema,
			})
		}
		return result(msg.ID, map[string]any{"tools": tools})

	case "tools/call":
		var params struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal(msg.Params, &params); err != nil || params.Name == "" {
			if err == nil {
				err = fmt.Errorf("missing tool name")
			}
			return transport.ErrorResponse(msg.ID, transport.ErrCodeInvalidParams, fmt.Sprintf("Invalid params: %v", err))
		}
		res := s.Invoke(ctx, ToolInvocation{ID: msg.ID, Name: params.Name, Arguments: params.Arguments})
		if f := res.Failure; f != nil {
			switch f.Kind {
			case desktop.KindUnknownTool:
				return failureResponse(msg.ID, transport.ErrCodeMethodNotFound, f)
			case desktop.KindInvalidArgument:
				return failureResponse(msg.ID, transport.ErrCodeInvalidParams, f)
			}
		}
		return result(msg.ID, res)
	}

	return transport.ErrorResponse(msg.ID, transport.ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", msg.Method))
}

func result(id json.RawMessage, v any) *transport.Message {
	b, err := json.Marshal(v)
	if err != nil {
		return transport.ErrorResponse(id, transport.ErrCodeInternalError, fmt.Sprintf("failed to encode result: %v", err))
	}
	return &transport.Message{JSONRPC: "2.0", ID: id, Result: b}
}

// failureResponse reports f as a JSON-RPC error, keeping its kind and field
// machine readable.
func failureResponse(id json.RawMessage, code int, f *Failure) *transport.Message {
	resp := transport.ErrorResponse(id, code, f.Message)
	resp.Error.Data, _ = json.Marshal(struct {
		Kind  desktop.ErrorKind `json:"kind"`
		Field string            `json:"field,omitempty"`
	}{f.Kind, f.Field})
	return resp
}
