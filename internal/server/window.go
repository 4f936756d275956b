// Copyright 2025 Joseph Cumines
//
// Window tool handlers

package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
	"github.com/joeycumines/WindowsUseSDK/internal/registry"
	"github.com/joeycumines/WindowsUseSDK/internal/wait"
)

// Window actions.
const (
	actionList            = "list"
	actionFind            = "find"
	actionActivate        = "activate"
	actionMinimize        = "minimize"
	actionMaximize        = "maximize"
	actionRestore         = "restore"
	actionClose           = "close"
	actionMove            = "move"
	actionResize          = "resize"
	actionWaitFor         = "wait_for"
	actionWaitForState    = "wait_for_state"
	actionMoveAndActivate = "move_and_activate"
	actionGetForeground   = "get_foreground"
)

const (
	// defaultWaitTimeout bounds wait_for and wait_for_state when no timeout
	// is given.
	defaultWaitTimeout = 10 * time.Second
	// closeTimeout bounds how long close waits for the window to go away or
	// prompt.
	closeTimeout = 5 * time.Second
)

type windowArgs struct {
	X              *int    `json:"x,omitempty" jsonschema_description:"New left edge, for move and move_and_activate"`
	Y              *int    `json:"y,omitempty" jsonschema_description:"New top edge, for move and move_and_activate"`
	Action         string  `json:"action" jsonschema:"enum=list,enum=find,enum=activate,enum=minimize,enum=maximize,enum=restore,enum=close,enum=move,enum=resize,enum=wait_for,enum=wait_for_state,enum=move_and_activate,enum=get_foreground"`
	Target         string  `json:"target,omitempty" jsonschema_description:"Window handle (0x…), process id (pid:N), or title substring"`
	Handle         string  `json:"handle,omitempty" jsonschema_description:"Window handle, as returned by find or app"`
	Title          string  `json:"title,omitempty" jsonschema_description:"Title substring, case-insensitive; for list, a filter"`
	Predicate      string  `json:"predicate,omitempty" jsonschema:"enum=window_exists,enum=window_visible,enum=window_ready,enum=process_exited" jsonschema_description:"Condition for wait_for"`
	State          string  `json:"state,omitempty" jsonschema:"enum=normal,enum=restored,enum=minimized,enum=maximized,enum=visible,enum=hidden,enum=foreground" jsonschema_description:"State for wait_for_state"`
	Timeout        float64 `json:"timeout,omitempty" jsonschema:"minimum=0,maximum=600" jsonschema_description:"Wait timeout in seconds; timeoutMs takes precedence"`
	ProcessID      int     `json:"processId,omitempty" jsonschema:"minimum=0" jsonschema_description:"Process id of a launched application"`
	Width          int     `json:"width,omitempty" jsonschema:"minimum=0" jsonschema_description:"New width, for resize"`
	Height         int     `json:"height,omitempty" jsonschema:"minimum=0" jsonschema_description:"New height, for resize"`
	TimeoutMs      int     `json:"timeoutMs,omitempty" jsonschema:"minimum=0,maximum=600000" jsonschema_description:"Wait timeout in milliseconds (default 10000)"`
	DiscardChanges bool    `json:"discardChanges,omitempty" jsonschema_description:"For close: answer Don't Save if the application asks to save changes"`
	Discard        bool    `json:"discard,omitempty" jsonschema_description:"Alias of discardChanges"`
}

func (a windowArgs) Validate() error {
	switch a.Action {
	case actionList, actionGetForeground:
		return nil
	case actionMove, actionMoveAndActivate:
		if a.X == nil {
			return desktop.InvalidArgumentf("x", "x is required for %s", a.Action)
		}
		if a.Y == nil {
			return desktop.InvalidArgumentf("y", "y is required for %s", a.Action)
		}
	case actionResize:
		if a.Width <= 0 {
			return desktop.InvalidArgumentf("width", "a positive width is required for resize")
		}
		if a.Height <= 0 {
			return desktop.InvalidArgumentf("height", "a positive height is required for resize")
		}
	case actionWaitFor:
		p, err := wait.ParsePredicate(a.Predicate)
		if err != nil {
			return err
		}
		if p == wait.ProcessExitedPredicate {
			ref, err := a.reference()
			if err != nil {
				return err
			}
			if ref.PID == 0 {
				return desktop.InvalidArgumentf("processId", "process_exited needs a process id")
			}
			return nil
		}
	case actionWaitForState:
		if _, err := wait.ParseStatePredicate(a.State); err != nil {
			return err
		}
	}
	if _, err := a.reference(); err != nil {
		return err
	}
	return nil
}

func (a windowArgs) Budget() time.Duration {
	switch a.Action {
	case actionWaitFor, actionWaitForState:
		return a.waitTimeout() + waitGrace
	case actionClose:
		return 2*closeTimeout + waitGrace
	}
	return 0
}

func (a windowArgs) waitTimeout() time.Duration {
	if a.TimeoutMs > 0 {
		return time.Duration(a.TimeoutMs) * time.Millisecond
	}
	if a.Timeout > 0 {
		return time.Duration(a.Timeout * float64(time.Second))
	}
	return defaultWaitTimeout
}

// reference combines target with the explicit handle, processId and title
// arguments. Explicit arguments fill in what target leaves unset.
func (a windowArgs) reference() (registry.Reference, error) {
	var ref registry.Reference
	if strings.TrimSpace(a.Target) != "" {
		var err error
		if ref, err = parseTarget("target", a.Target); err != nil {
			return registry.Reference{}, err
		}
	}
	if a.Handle != "" && ref.Handle == 0 {
		h, err := desktop.ParseHandle(a.Handle)
		if err != nil {
			return registry.Reference{}, desktop.InvalidArgumentf("handle", "invalid window handle %q", a.Handle)
		}
		ref.Handle = h
	}
	if a.ProcessID != 0 && ref.PID == 0 {
		ref.PID = a.ProcessID
	}
	if a.Title != "" && ref.Title == "" {
		ref.Title = a.Title
	}
	if ref.IsZero() {
		return registry.Reference{}, desktop.InvalidArgumentf("target", "%s needs a target window (target, handle, processId or title)", a.Action)
	}
	return ref, nil
}

// handleWindowManagement handles the window_management tool
func (s *MCPServer) handleWindowManagement(ctx context.Context, args windowArgs) (*Output, error) {
	switch args.Action {
	case actionList:
		return s.listWindows(ctx, args)
	case actionGetForeground:
		w, err := s.desk.ForegroundWindow(ctx)
		if err != nil {
			return nil, err
		}
		return textOutput(map[string]any{"window": w}, "Foreground window: %s", windowSummary(w)), nil
	}

	ref, err := args.reference()
	if err != nil {
		return nil, err
	}

	switch args.Action {
	case actionWaitFor:
		return s.waitFor(ctx, ref, args)
	case actionWaitForState:
		return s.waitForState(ctx, ref, args)
	}

	w, err := s.registry.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	switch args.Action {
	case actionFind:
		matches, err := s.registry.Matches(ctx, ref)
		if err != nil {
			return nil, err
		}
		text := fmt.Sprintf("Found window %s at %s", windowSummary(matches[0]), boundsString(matches[0].Bounds))
		if len(matches) > 1 {
			lines := make([]string, 0, len(matches)-1)
			for _, m := range matches[1:] {
				lines = append(lines, windowLine(m))
			}
			text += fmt.Sprintf("\n%d other matches:\n%s", len(matches)-1, strings.Join(lines, "\n"))
		}
		return &Output{
			Text: text,
			Data: map[string]any{"window": matches[0], "handle": matches[0].Handle, "matches": matches},
		}, nil

	case actionActivate:
		aw, err := s.activate(ctx, w)
		if err != nil {
			return nil, err
		}
		return textOutput(map[string]any{"window": aw}, "Activated window %s", windowSummary(aw)), nil

	case actionMinimize, actionMaximize, actionRestore:
		state := map[string]desktop.WindowState{
			actionMinimize: desktop.StateMinimized,
			actionMaximize: desktop.StateMaximized,
			actionRestore:  desktop.StateNormal,
		}[args.Action]
		nw, err := s.desk.SetWindowState(ctx, w.Handle, state)
		if err != nil {
			return nil, err
		}
		return textOutput(map[string]any{"window": nw}, "Window %s is now %s at %s", windowSummary(nw), nw.State, boundsString(nw.Bounds)), nil

	case actionMove:
		nw, err := s.desk.MoveWindow(ctx, w.Handle, *args.X, *args.Y)
		if err != nil {
			return nil, err
		}
		return textOutput(map[string]any{"window": nw}, "Moved window %s to (%d, %d)", windowSummary(nw), nw.Bounds.X, nw.Bounds.Y), nil

	case actionMoveAndActivate:
		nw, err := s.desk.MoveWindow(ctx, w.Handle, *args.X, *args.Y)
		if err != nil {
			return nil, err
		}
		if nw, err = s.activate(ctx, nw); err != nil {
			return nil, err
		}
		return textOutput(map[string]any{"window": nw}, "Moved window %s to (%d, %d) and activated it", windowSummary(nw), nw.Bounds.X, nw.Bounds.Y), nil

	case actionResize:
		nw, err := s.desk.ResizeWindow(ctx, w.Handle, args.Width, args.Height)
		if err != nil {
			return nil, err
		}
		return textOutput(map[string]any{"window": nw}, "Resized window %s to %s", windowSummary(nw), sizeString(nw.Bounds)), nil

	case actionClose:
		return s.closeWindow(ctx, w, args.DiscardChanges || args.Discard)
	}

	return nil, desktop.InvalidArgumentf("action", "unknown action %q", args.Action)
}

func (s *MCPServer) listWindows(ctx context.Context, args windowArgs) (*Output, error) {
	all, err := s.desk.ListWindows(ctx)
	if err != nil {
		return nil, err
	}
	filter := strings.ToLower(args.Title)
	if filter == "" {
		filter = strings.ToLower(strings.TrimSpace(args.Target))
	}
	windows := make([]desktop.Window, 0, len(all))
	for _, w := range all {
		if !w.Visible || w.Title == "" {
			continue
		}
		if filter != "" && !strings.Contains(strings.ToLower(w.Title), filter) {
			continue
		}
		windows = append(windows, w)
	}
	if len(windows) == 0 {
		return textOutput(map[string]any{"windows": windows}, "No windows found"), nil
	}
	lines := make([]string, 0, len(windows))
	for _, w := range windows {
		lines = append(lines, windowLine(w))
	}
	return textOutput(map[string]any{"windows": windows}, "Found %d windows:\n%s", len(windows), strings.Join(lines, "\n")), nil
}

// waitResult is the structured result of wait_for and wait_for_state.
type waitResult struct {
	Window    *desktop.Window `json:"window,omitempty"`
	Condition string          `json:"condition"`
	State     wait.State      `json:"state"`
	Attempts  int             `json:"attempts"`
	ElapsedMs int64           `json:"elapsedMs"`
}

func (s *MCPServer) waitFor(ctx context.Context, ref registry.Reference, args windowArgs) (*Output, error) {
	p, err := wait.ParsePredicate(args.Predicate)
	if err != nil {
		return nil, err
	}
	var (
		last    desktop.Window
		resolve = func(ctx context.Context) (desktop.Window, error) {
			w, err := s.registry.Resolve(ctx, ref)
			if err == nil {
				last = w
			}
			return w, err
		}
		cond wait.Condition
	)
	switch p {
	case wait.WindowExistsPredicate:
		cond = wait.WindowExists(ref.String(), resolve)
	case wait.WindowVisiblePredicate:
		cond = wait.WindowVisible(ref.String(), resolve)
	case wait.WindowReadyPredicate:
		cond = wait.WindowReady(ref.String(), resolve)
	case wait.ProcessExitedPredicate:
		cond = wait.ProcessExited(s.desk, ref.PID)
	}
	return s.runWait(ctx, cond, args.waitTimeout(), &last)
}

func (s *MCPServer) waitForState(ctx context.Context, ref registry.Reference, args windowArgs) (*Output, error) {
	state, err := wait.ParseStatePredicate(args.State)
	if err != nil {
		return nil, err
	}
	var last desktop.Window
	cond := wait.WindowInState(ref.String(), func(ctx context.Context) (desktop.Window, error) {
		w, err := s.registry.Resolve(ctx, ref)
		if err == nil {
			last = w
		} else {
			last = desktop.Window{}
		}
		return w, err
	}, state)
	return s.runWait(ctx, cond, args.waitTimeout(), &last)
}

func (s *MCPServer) runWait(ctx context.Context, cond wait.Condition, timeout time.Duration, last *desktop.Window) (*Output, error) {
	out, err := s.waits.Wait(ctx, cond, timeout)
	if err != nil {
		return nil, err
	}
	res := waitResult{
		Condition: cond.Name,
		State:     out.State,
		Attempts:  out.Attempts,
		ElapsedMs: out.Elapsed.Milliseconds(),
	}
	text := fmt.Sprintf("Condition %s satisfied after %v (%d checks)", cond.Name, out.Elapsed.Round(time.Millisecond), out.Attempts)
	if last.Handle != 0 {
		w := *last
		res.Window = &w
		text += fmt.Sprintf(": window %s", windowSummary(w))
	}
	return textOutput(res, "%s", text), nil
}

// closeWindow posts a close request to w and waits for the outcome. When
// the application asks to save changes, the prompt is answered Don't Save
// if discard is set, and cancelled otherwise, leaving the window open.
func (s *MCPServer) closeWindow(ctx context.Context, w desktop.Window, discard bool) (*Output, error) {
	if err := s.desk.CloseWindow(ctx, w.Handle); err != nil {
		return nil, err
	}

	prompt, err := s.awaitCloseOrPrompt(ctx, w)
	if err != nil {
		return nil, err
	}
	data := map[string]any{"handle": w.Handle, "closed": true}
	if prompt == nil {
		return textOutput(data, "Closed window %s", windowSummary(w)), nil
	}

	if !discard {
		if err := s.pressDialogButton(ctx, *prompt, "Cancel"); err != nil {
			return nil, desktop.Wrap(desktop.KindDialogError, err, "failed to cancel the save prompt of %s", windowSummary(w))
		}
		return nil, desktop.DialogErrorf("%s has unsaved changes (%s); the window was left open. Save it with file_save, or close with discardChanges=true",
			windowSummary(w), truncateText(s.dialogText(ctx, *prompt)))
	}

	if err := s.pressDialogButton(ctx, *prompt, "Don't Save", "Don't save", "No"); err != nil {
		return nil, desktop.Wrap(desktop.KindDialogError, err, "failed to discard changes in %s", windowSummary(w))
	}
	again, err := s.awaitCloseOrPrompt(ctx, w)
	if err != nil {
		return nil, err
	}
	if again != nil {
		return nil, desktop.DialogErrorf("%s is still prompting (%q) after discarding changes", windowSummary(w), again.Title)
	}
	data["discarded"] = true
	return textOutput(data, "Closed window %s, discarding unsaved changes", windowSummary(w)), nil
}

// awaitCloseOrPrompt polls until w is destroyed, returning nil, or until it
// shows an owned dialog, returning that dialog.
func (s *MCPServer) awaitCloseOrPrompt(ctx context.Context, w desktop.Window) (*desktop.Window, error) {
	pctx, cancel := context.WithTimeout(ctx, closeTimeout)
	defer cancel()
	var prompt *desktop.Window
	err := wait.PollUntilContext(pctx, s.waits.Interval(), func(ctx context.Context) (bool, error) {
		if _, err := s.desk.GetWindow(ctx, w.Handle); err != nil {
			if desktop.IsNotFound(err) {
				return true, nil
			}
			return false, err
		}
		owned, err := s.ownedWindows(ctx, w.Handle)
		if err != nil {
			return false, err
		}
		if len(owned) > 0 {
			prompt = &owned[0]
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, desktop.Timeoutf("window %s did not close within %v", windowSummary(w), closeTimeout)
		}
		return nil, err
	}
	return prompt, nil
}
