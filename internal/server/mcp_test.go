// Copyright 2025 Joseph Cumines
//
// MCP server unit tests

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
	"github.com/joeycumines/WindowsUseSDK/internal/transport"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// fakeDesktop is a desktop.Desktop whose behaviour is set per test. Methods
// without a func fail with a "not implemented" error.
type fakeDesktop struct {
	listWindowsFunc      func(ctx context.Context) ([]desktop.Window, error)
	getWindowFunc        func(ctx context.Context, h desktop.Handle) (desktop.Window, error)
	foregroundWindowFunc func(ctx context.Context) (desktop.Window, error)
	setWindowStateFunc   func(ctx context.Context, h desktop.Handle, state desktop.WindowState) (desktop.Window, error)
	activateWindowFunc   func(ctx context.Context, h desktop.Handle) (desktop.Window, error)
	moveWindowFunc       func(ctx context.Context, h desktop.Handle, x, y int) (desktop.Window, error)
	resizeWindowFunc     func(ctx context.Context, h desktop.Handle, width, height int) (desktop.Window, error)
	closeWindowFunc      func(ctx context.Context, h desktop.Handle) error
	startProcessFunc     func(ctx context.Context, spec desktop.LaunchSpec) (desktop.Process, error)
	getProcessFunc       func(ctx context.Context, pid int) (desktop.Process, error)
	listProcessesFunc    func(ctx context.Context) ([]desktop.Process, error)
	moveMouseFunc        func(ctx context.Context, p desktop.Point) error
	mouseButtonFunc      func(ctx context.Context, button desktop.MouseButton, down bool) error
	cursorPositionFunc   func(ctx context.Context) (desktop.Point, error)
	pressKeysFunc        func(ctx context.Context, chord desktop.KeyChord) error
	typeTextFunc         func(ctx context.Context, text string) error
	elementTreeFunc      func(ctx context.Context, h desktop.Handle) (desktop.Element, error)
	setElementValueFunc  func(ctx context.Context, h desktop.Handle, elementID, value string) error
	monitorsFunc         func(ctx context.Context) ([]desktop.Monitor, error)
	captureFunc          func(ctx context.Context, r desktop.Rect) (image.Image, error)
}

var _ desktop.Desktop = (*fakeDesktop)(nil)

func (f *fakeDesktop) ListWindows(ctx context.Context) ([]desktop.Window, error) {
	if f.listWindowsFunc != nil {
		return f.listWindowsFunc(ctx)
	}
	return nil, errors.New("ListWindows not implemented")
}

func (f *fakeDesktop) GetWindow(ctx context.Context, h desktop.Handle) (desktop.Window, error) {
	if f.getWindowFunc != nil {
		return f.getWindowFunc(ctx, h)
	}
	return desktop.Window{}, errors.New("GetWindow not implemented")
}

func (f *fakeDesktop) ForegroundWindow(ctx context.Context) (desktop.Window, error) {
	if f.foregroundWindowFunc != nil {
		return f.foregroundWindowFunc(ctx)
	}
	return desktop.Window{}, errors.New("ForegroundWindow not implemented")
}

func (f *fakeDesktop) SetWindowState(ctx context.Context, h desktop.Handle, state desktop.WindowState) (desktop.Window, error) {
	if f.setWindowStateFunc != nil {
		return f.setWindowStateFunc(ctx, h, state)
	}
	return desktop.Window{}, errors.New("SetWindowState not implemented")
}

func (f *fakeDesktop) ActivateWindow(ctx context.Context, h desktop.Handle) (desktop.Window, error) {
	if f.activateWindowFunc != nil {
		return f.activateWindowFunc(ctx, h)
	}
	return desktop.Window{}, errors.New("ActivateWindow not implemented")
}

func (f *fakeDesktop) MoveWindow(ctx context.Context, h desktop.Handle, x, y int) (desktop.Window, error) {
	if f.moveWindowFunc != nil {
		return f.moveWindowFunc(ctx, h, x, y)
	}
	return desktop.Window{}, errors.New("MoveWindow not implemented")
}

func (f *fakeDesktop) ResizeWindow(ctx context.Context, h desktop.Handle, width, height int) (desktop.Window, error) {
	if f.resizeWindowFunc != nil {
		return f.resizeWindowFunc(ctx, h, width, height)
	}
	return desktop.Window{}, errors.New("ResizeWindow not implemented")
}

func (f *fakeDesktop) CloseWindow(ctx context.Context, h desktop.Handle) error {
	if f.closeWindowFunc != nil {
		return f.closeWindowFunc(ctx, h)
	}
	return errors.New("CloseWindow not implemented")
}

func (f *fakeDesktop) StartProcess(ctx context.Context, spec desktop.LaunchSpec) (desktop.Process, error) {
	if f.startProcessFunc != nil {
		return f.startProcessFunc(ctx, spec)
	}
	return desktop.Process{}, errors.New("StartProcess not implemented")
}

func (f *fakeDesktop) GetProcess(ctx context.Context, pid int) (desktop.Process, error) {
	if f.getProcessFunc != nil {
		return f.getProcessFunc(ctx, pid)
	}
	return desktop.Process{}, errors.New("GetProcess not implemented")
}

func (f *fakeDesktop) ListProcesses(ctx context.Context) ([]desktop.Process, error) {
	if f.listProcessesFunc != nil {
		return f.listProcessesFunc(ctx)
	}
	return nil, errors.New("ListProcesses not implemented")
}

func (f *fakeDesktop) MoveMouse(ctx context.Context, p desktop.Point) error {
	if f.moveMouseFunc != nil {
		return f.moveMouseFunc(ctx, p)
	}
	return errors.New("MoveMouse not implemented")
}

func (f *fakeDesktop) MouseButton(ctx context.Context, button desktop.MouseButton, down bool) error {
	if f.mouseButtonFunc != nil {
		return f.mouseButtonFunc(ctx, button, down)
	}
	return errors.New("MouseButton not implemented")
}

func (f *fakeDesktop) CursorPosition(ctx context.Context) (desktop.Point, error) {
	if f.cursorPositionFunc != nil {
		return f.cursorPositionFunc(ctx)
	}
	return desktop.Point{}, errors.New("CursorPosition not implemented")
}

func (f *fakeDesktop) PressKeys(ctx context.Context, chord desktop.KeyChord) error {
	if f.pressKeysFunc != nil {
		return f.pressKeysFunc(ctx, chord)
	}
	return errors.New("PressKeys not implemented")
}

func (f *fakeDesktop) TypeText(ctx context.Context, text string) error {
	if f.typeTextFunc != nil {
		return f.typeTextFunc(ctx, text)
	}
	return errors.New("TypeText not implemented")
}

func (f *fakeDesktop) ElementTree(ctx context.Context, h desktop.Handle) (desktop.Element, error) {
	if f.elementTreeFunc != nil {
		return f.elementTreeFunc(ctx, h)
	}
	return desktop.Element{}, errors.New("ElementTree not implemented")
}

func (f *fakeDesktop) SetElementValue(ctx context.Context, h desktop.Handle, elementID, value string) error {
	if f.setElementValueFunc != nil {
		return f.setElementValueFunc(ctx, h, elementID, value)
	}
	return errors.New("SetElementValue not implemented")
}

func (f *fakeDesktop) Monitors(ctx context.Context) ([]desktop.Monitor, error) {
	if f.monitorsFunc != nil {
		return f.monitorsFunc(ctx)
	}
	return nil, errors.New("Monitors not implemented")
}

func (f *fakeDesktop) Capture(ctx context.Context, r desktop.Rect) (image.Image, error) {
	if f.captureFunc != nil {
		return f.captureFunc(ctx, r)
	}
	return nil, errors.New("Capture not implemented")
}

func (f *fakeDesktop) Close() error { return nil }

// singleMonitor is a 1080p primary display.
func singleMonitor(context.Context) ([]desktop.Monitor, error) {
	r := desktop.Rect{Width: 1920, Height: 1080}
	return []desktop.Monitor{{Name: `\\.\DISPLAY1`, Bounds: r, WorkArea: r, Scale: 1, Primary: true}}, nil
}

func newTestServer(t *testing.T, fake *fakeDesktop, opts ...Option) *MCPServer {
	t.Helper()
	s := NewMCPServer(fake, opts...)
	s.SetPollInterval(5 * time.Millisecond)
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func request(id int, method string, params any) *transport.Message {
	msg := &transport.Message{JSONRPC: "2.0", Method: method, ID: json.RawMessage(fmt.Sprint(id))}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			panic(err)
		}
		msg.Params = b
	}
	return msg
}

func handle(t *testing.T, s *MCPServer, msg *transport.Message) *transport.Message {
	t.Helper()
	resp, err := s.HandleMessage(context.Background(), msg)
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	return resp
}

// invoke calls a tool directly, bypassing the protocol layer.
func invoke(t *testing.T, s *MCPServer, name string, args any) *ToolResult {
	t.Helper()
	var raw json.RawMessage
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			t.Fatalf("marshal args: %v", err)
		}
		raw = b
	}
	return s.Invoke(context.Background(), ToolInvocation{ID: json.RawMessage(`1`), Name: name, Arguments: raw})
}

func mustSucceed(t *testing.T, res *ToolResult) *ToolResult {
	t.Helper()
	if res.IsError {
		t.Fatalf("call failed: %s", res.Text())
	}
	return res
}

func mustFail(t *testing.T, res *ToolResult, kind desktop.ErrorKind) *Failure {
	t.Helper()
	if !res.IsError || res.Failure == nil {
		t.Fatalf("expected %s failure, got success: %s", kind, res.Text())
	}
	if res.Failure.Kind != kind {
		t.Fatalf("kind = %s, want %s (%s)", res.Failure.Kind, kind, res.Failure.Message)
	}
	return res.Failure
}

// structured decodes the structured content of res into T.
func structured[T any](t *testing.T, res *ToolResult) T {
	t.Helper()
	var v T
	b, err := json.Marshal(res.StructuredContent)
	if err != nil {
		t.Fatalf("marshal structured content: %v", err)
	}
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("unmarshal structured content %s: %v", b, err)
	}
	return v
}

// ============================================================================
// Protocol
// ============================================================================

func TestInitialize_EchoesSupportedVersion(t *testing.T) {
	s := newTestServer(t, &fakeDesktop{})
	for _, tc := range []struct {
		requested, want string
	}{
		{"2025-03-26", "2025-03-26"},
		{"2024-11-05", "2024-11-05"},
		{"1999-01-01", supportedProtocolVersions[0]},
		{"", supportedProtocolVersions[0]},
	} {
		resp := handle(t, s, request(1, "initialize", map[string]any{
			"protocolVersion": tc.requested,
			"clientInfo":      map[string]any{"name": "test", "version": "1"},
		}))
		if resp.Error != nil {
			t.Fatalf("initialize(%q): %+v", tc.requested, resp.Error)
		}
		var result struct {
			ServerInfo struct {
				Name string `json:"name"`
			} `json:"serverInfo"`
			ProtocolVersion string `json:"protocolVersion"`
		}
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			t.Fatal(err)
		}
		if result.ProtocolVersion != tc.want {
			t.Errorf("initialize(%q) version = %q, want %q", tc.requested, result.ProtocolVersion, tc.want)
		}
		if result.ServerInfo.Name != ServerName {
			t.Errorf("server name = %q", result.ServerInfo.Name)
		}
	}
}

func TestPing(t *testing.T) {
	s := newTestServer(t, &fakeDesktop{})
	resp := handle(t, s, request(7, "ping", nil))
	if resp.Error != nil || string(resp.Result) != "{}" || string(resp.ID) != "7" {
		t.Fatalf("unexpected ping response: %+v", resp)
	}
}

func TestNotification_NoResponse(t *testing.T) {
	s := newTestServer(t, &fakeDesktop{})
	resp := handle(t, s, &transport.Message{JSONRPC: "2.0", Method: "notifications/initialized"})
	if resp != nil {
		t.Fatalf("expected no response, got %+v", resp)
	}
}

func TestUnknownMethod(t *testing.T) {
	s := newTestServer(t, &fakeDesktop{})
	resp := handle(t, s, request(3, "resources/list", nil))
	if resp.Error == nil || resp.Error.Code != transport.ErrCodeMethodNotFound {
		t.Fatalf("expected -32601, got %+v", resp)
	}
	if resp.Error.Message != "Method not found: resources/list" {
		t.Errorf("message = %q", resp.Error.Message)
	}
}

func TestToolsList_CatalogOrderAndSchemas(t *testing.T) {
	s := newTestServer(t, &fakeDesktop{})
	resp := handle(t, s, request(1, "tools/list", nil))
	var result struct {
		Tools []struct {
			InputSchema map[string]any `json:"inputSchema"`
			Name        string         `json:"name"`
			Description string         `json:"description"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"app", "window_management", "keyboard_control", "mouse_control",
		"ui_find", "ui_read", "ui_click", "ui_type",
		"screenshot_control", "file_save",
	}
	if len(result.Tools) != len(want) {
		t.Fatalf("got %d tools, want %d", len(result.Tools), len(want))
	}
	for i, tool := range result.Tools {
		if tool.Name != want[i] {
			t.Errorf("tool %d = %q, want %q", i, tool.Name, want[i])
		}
		if tool.Description == "" {
			t.Errorf("%s has no description", tool.Name)
		}
		if tool.InputSchema["type"] != "object" {
			t.Errorf("%s schema type = %v", tool.Name, tool.InputSchema["type"])
		}
	}
}

func TestToolSchemas_RequiredFields(t *testing.T) {
	s := newTestServer(t, &fakeDesktop{})
	for name, required := range map[string][]string{
		"app":                {"programPath"},
		"window_management":  {"action"},
		"mouse_control":      {"action"},
		"ui_click":           {"target"},
		"ui_type":            {"target", "text"},
		"screenshot_control": {"action"},
		"file_save":          {"target", "path"},
	} {
		var schema struct {
			Required []string `json:"required"`
		}
		if err := json.Unmarshal(s.tools[name].InputSchema, &schema); err != nil {
			t.Fatal(err)
		}
		for _, r := range required {
			found := false
			for _, got := range schema.Required {
				found = found || got == r
			}
			if !found {
				t.Errorf("%s: %q is not required (required = %v)", name, r, schema.Required)
			}
		}
	}
}

func TestToolsCall_InvalidParams(t *testing.T) {
	s := newTestServer(t, &fakeDesktop{})
	for _, params := range []string{`[]`, `{}`, `{"name":""}`} {
		msg := request(1, "tools/call", nil)
		msg.Params = json.RawMessage(params)
		resp := handle(t, s, msg)
		if resp.Error == nil || resp.Error.Code != transport.ErrCodeInvalidParams {
			t.Errorf("params %s: expected -32602, got %+v", params, resp)
		}
	}
}

func TestToolsCall_UnknownTool(t *testing.T) {
	s := newTestServer(t, &fakeDesktop{})
	resp := handle(t, s, request(1, "tools/call", map[string]any{"name": "launch_rocket"}))
	if resp.Error == nil || resp.Error.Code != transport.ErrCodeMethodNotFound {
		t.Fatalf("expected -32601, got %+v", resp)
	}
	var data struct {
		Kind  string `json:"kind"`
		Field string `json:"field"`
	}
	if err := json.Unmarshal(resp.Error.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Kind != "UnknownTool" || data.Field != "name" {
		t.Errorf("data = %+v", data)
	}
}

func TestToolsCall_InvalidArgument(t *testing.T) {
	s := newTestServer(t, &fakeDesktop{})
	resp := handle(t, s, request(1, "tools/call", map[string]any{
		"name":      "mouse_control",
		"arguments": map[string]any{"action": "drag", "x": 1, "y": 2},
	}))
	if resp.Error == nil || resp.Error.Code != transport.ErrCodeInvalidParams {
		t.Fatalf("expected -32602, got %+v", resp)
	}
	var data struct {
		Kind  string `json:"kind"`
		Field string `json:"field"`
	}
	if err := json.Unmarshal(resp.Error.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Kind != "InvalidArgument" || data.Field != "endX" {
		t.Errorf("data = %+v", data)
	}
}

func TestToolsCall_FailureIsResult(t *testing.T) {
	s := newTestServer(t, &fakeDesktop{
		listWindowsFunc:   func(ctx context.Context) ([]desktop.Window, error) { return nil, nil },
		listProcessesFunc: func(ctx context.Context) ([]desktop.Process, error) { return nil, nil },
	})
	resp := handle(t, s, request(1, "tools/call", map[string]any{
		"name":      "window_management",
		"arguments": map[string]any{"action": "activate", "target": "No Such Window"},
	}))
	if resp.Error != nil {
		t.Fatalf("expected a result, got error %+v", resp.Error)
	}
	var result struct {
		StructuredContent struct {
			Error Failure `json:"error"`
		} `json:"structuredContent"`
		Content []Content `json:"content"`
		IsError bool      `json:"isError"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatal(err)
	}
	if !result.IsError || result.StructuredContent.Error.Kind != desktop.KindTargetNotFound {
		t.Fatalf("unexpected result: %s", resp.Result)
	}
	if len(result.Content) != 1 || !strings.HasPrefix(result.Content[0].Text, "TargetNotFound: ") {
		t.Errorf("content = %+v", result.Content)
	}
}

// TestHandleMessage_EchoesIDs checks, for arbitrary request sequences, that
// every request gets exactly one response carrying its own ID, in order,
// and that notifications get none.
func TestHandleMessage_EchoesIDs(t *testing.T) {
	s := newTestServer(t, &fakeDesktop{})
	methods := []string{"ping", "tools/list", "bogus", "notifications/initialized"}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("responses pair with requests", prop.ForAll(
		func(kinds []int) bool {
			var responses []*transport.Message
			var wantIDs []string
			for i, k := range kinds {
				method := methods[k]
				var msg *transport.Message
				if method == "notifications/initialized" {
					msg = &transport.Message{JSONRPC: "2.0", Method: method}
				} else {
					msg = request(i, method, nil)
					wantIDs = append(wantIDs, fmt.Sprint(i))
				}
				resp, err := s.HandleMessage(context.Background(), msg)
				if err != nil {
					return false
				}
				if resp != nil {
					responses = append(responses, resp)
				}
				if (resp == nil) != msg.IsNotification() {
					return false
				}
				if resp != nil && (resp.Error != nil) != (method == "bogus") {
					return false
				}
			}
			if len(responses) != len(wantIDs) {
				return false
			}
			for i, r := range responses {
				if string(r.ID) != wantIDs[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(methods)-1)),
	))

	properties.TestingRun(t)
}
