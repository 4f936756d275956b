// Copyright 2025 Joseph Cumines
//
// Application tool handlers

package server

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
	"github.com/joeycumines/WindowsUseSDK/internal/registry"
	"github.com/joeycumines/WindowsUseSDK/internal/wait"
)

// defaultLaunchTimeout bounds waitForWindow when no timeout is given.
const defaultLaunchTimeout = 10 * time.Second

// waitGrace is added to the budget of waiting calls, so a wait that times out
// reports its own Timeout rather than being cut off by the dispatcher.
const waitGrace = 2 * time.Second

type appArgs struct {
	ProgramPath      string   `json:"programPath" jsonschema:"minLength=1" jsonschema_description:"Program name or path, e.g. notepad.exe or C:\\Windows\\System32\\calc.exe"`
	WorkingDirectory string   `json:"workingDirectory,omitempty" jsonschema_description:"Working directory for the new process"`
	Args             []string `json:"args,omitempty" jsonschema_description:"Command line arguments"`
	TimeoutMs        int      `json:"timeoutMs,omitempty" jsonschema:"minimum=0,maximum=600000" jsonschema_description:"How long waitForWindow may wait, in milliseconds (default 10000)"`
	WaitForWindow    bool     `json:"waitForWindow,omitempty" jsonschema_description:"Wait until the launch resolves to a ready window and return its handle"`
}

func (a appArgs) Validate() error {
	if strings.TrimSpace(a.ProgramPath) == "" {
		return desktop.InvalidArgumentf("programPath", "programPath is required")
	}
	return nil
}

func (a appArgs) Budget() time.Duration {
	if !a.WaitForWindow {
		return 0
	}
	return milliseconds(a.TimeoutMs, defaultLaunchTimeout) + waitGrace
}

// appResult is the structured result of the app tool.
type appResult struct {
	Window     *desktop.Window `json:"window,omitempty"`
	Executable string          `json:"executable"`
	State      string          `json:"state"`
	Handle     string          `json:"handle,omitempty"`
	ProcessID  int             `json:"processId"`
}

// errLaunchExited stops a wait for a launch the registry has given up on.
var errLaunchExited = errors.New("launch exited without a window")

// handleApp handles the app tool
func (s *MCPServer) handleApp(ctx context.Context, args appArgs) (*Output, error) {
	program := strings.TrimSpace(args.ProgramPath)
	proc, err := s.desk.StartProcess(ctx, desktop.LaunchSpec{
		Program:    program,
		Args:       args.Args,
		WorkingDir: args.WorkingDirectory,
	})
	if err != nil {
		return nil, desktop.Wrap(desktop.KindDriverError, err, "failed to launch %s", program)
	}

	command := proc.CommandLine
	if command == "" {
		command = strings.Join(append([]string{program}, args.Args...), " ")
	}
	s.registry.Register(registry.ProcessRecord{
		PID:        proc.PID,
		Command:    command,
		Executable: proc.Executable,
		SpawnTime:  proc.StartTime,
	})

	res := appResult{
		ProcessID:  proc.PID,
		Executable: proc.Executable,
		State:      string(registry.StatePending),
	}
	if !args.WaitForWindow {
		return textOutput(res, "Launched %s (process id %d)", program, proc.PID), nil
	}

	ref := registry.Reference{PID: proc.PID}
	timeout := milliseconds(args.TimeoutMs, defaultLaunchTimeout)
	var w desktop.Window
	resolve := func(ctx context.Context) (desktop.Window, error) {
		found, err := s.registry.Resolve(ctx, ref)
		if err != nil {
			if rec, ok := s.registry.Record(proc.PID); ok && rec.State == registry.StateExited {
				return desktop.Window{}, errLaunchExited
			}
			return desktop.Window{}, err
		}
		w = found
		return found, nil
	}
	if _, err := s.waits.Wait(ctx, wait.WindowReady(ref.String(), resolve), timeout); err != nil {
		if errors.Is(err, errLaunchExited) {
			return nil, desktop.NotFoundf("%s (process %d) exited without showing a window", program, proc.PID)
		}
		return nil, err
	}

	if rec, ok := s.registry.Record(proc.PID); ok {
		res.State = string(rec.State)
	}
	res.Handle = w.Handle.String()
	res.Window = &w
	return textOutput(res, "Launched %s (process id %d); window %s is ready", program, proc.PID, windowSummary(w)), nil
}
