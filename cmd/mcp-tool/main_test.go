// Copyright 2025 Joseph Cumines

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/joeycumines/WindowsUseSDK/internal/server"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("WINDOWS_USE_CONFIG", "")
	var out bytes.Buffer
	cmd := newCommand(strings.NewReader(stdin), &out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decodeResults(t *testing.T, out string) []server.ToolResult {
	t.Helper()
	var results []server.ToolResult
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var res server.ToolResult
		if err := json.Unmarshal([]byte(line), &res); err != nil {
			t.Fatalf("bad output line %q: %v", line, err)
		}
		results = append(results, res)
	}
	return results
}

func TestList(t *testing.T) {
	out, err := execute(t, "", "list", "--backend=sim")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 10 {
		t.Fatalf("got %d tools, want 10:\n%s", len(lines), out)
	}
	var first struct {
		Name        string          `json:"name"`
		InputSchema json.RawMessage `json:"inputSchema"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first.Name != "app" || len(first.InputSchema) == 0 {
		t.Errorf("first tool = %s with schema %s", first.Name, first.InputSchema)
	}
}

func TestCall(t *testing.T) {
	out, err := execute(t, "", "call", "--backend=sim", "screenshot_control", `{"action":"list_monitors"}`)
	if err != nil {
		t.Fatalf("call: %v\n%s", err, out)
	}
	res := decodeResults(t, out)
	if len(res) != 1 || res[0].IsError {
		t.Fatalf("unexpected result: %s", out)
	}
}

func TestCall_Failure(t *testing.T) {
	out, err := execute(t, "", "call", "--backend=sim", "no_such_tool")
	if !errors.Is(err, errToolFailed) {
		t.Fatalf("call error = %v, want errToolFailed", err)
	}
	res := decodeResults(t, out)
	if len(res) != 1 || !res[0].IsError {
		t.Fatalf("unexpected result: %s", out)
	}
	if !strings.Contains(res[0].Content[0].Text, "UnknownTool") {
		t.Errorf("text = %q", res[0].Content[0].Text)
	}
}

func TestRun_SharesSession(t *testing.T) {
	script := strings.Join([]string{
		`{"name":"app","arguments":{"programPath":"notepad.exe","waitForWindow":true,"timeoutMs":5000}}`,
		``,
		`{"name":"window_management","arguments":{"action":"list","title":"Notepad"}}`,
	}, "\n")
	out, err := execute(t, script, "run", "--backend=sim", "--poll-interval=10ms")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	res := decodeResults(t, out)
	if len(res) != 2 {
		t.Fatalf("got %d results, want 2:\n%s", len(res), out)
	}
	if res[0].IsError || res[1].IsError {
		t.Fatalf("unexpected failure:\n%s", out)
	}
	if !strings.Contains(res[1].Content[0].Text, "Notepad") {
		t.Errorf("launched window not listed: %q", res[1].Content[0].Text)
	}
}

func TestRun_StopsAtFailure(t *testing.T) {
	script := `{"name":"nope"}` + "\n" + `{"name":"screenshot_control","arguments":{"action":"list_monitors"}}` + "\n"

	out, err := execute(t, script, "run", "--backend=sim")
	if !errors.Is(err, errToolFailed) {
		t.Fatalf("run error = %v", err)
	}
	if n := len(decodeResults(t, out)); n != 1 {
		t.Errorf("got %d results, want 1", n)
	}

	out, err = execute(t, script, "run", "--backend=sim", "--keep-going")
	if !errors.Is(err, errToolFailed) {
		t.Fatalf("run --keep-going error = %v", err)
	}
	if n := len(decodeResults(t, out)); n != 2 {
		t.Errorf("got %d results, want 2", n)
	}
}

func TestRun_BadLine(t *testing.T) {
	_, err := execute(t, "{not json\n", "run", "--backend=sim")
	if err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Errorf("run error = %v, want a line 1 error", err)
	}
}
