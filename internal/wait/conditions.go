// Copyright 2025 Joseph Cumines

package wait

import (
	"context"
	"fmt"
	"strings"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
)

// Predicate names a readiness condition for wait_for.
type Predicate string

const (
	WindowExistsPredicate  Predicate = "window_exists"
	WindowVisiblePredicate Predicate = "window_visible"
	WindowReadyPredicate   Predicate = "window_ready"
	ProcessExitedPredicate Predicate = "process_exited"
)

// Predicates lists every Predicate.
var Predicates = []Predicate{
	WindowExistsPredicate,
	WindowVisiblePredicate,
	WindowReadyPredicate,
	ProcessExitedPredicate,
}

// StatePredicate names a window state for wait_for_state.
type StatePredicate string

const (
	StateNormal     StatePredicate = "normal"
	StateMinimized  StatePredicate = "minimized"
	StateMaximized  StatePredicate = "maximized"
	StateVisible    StatePredicate = "visible"
	StateHidden     StatePredicate = "hidden"
	StateForeground StatePredicate = "foreground"
)

// StatePredicates lists every StatePredicate.
var StatePredicates = []StatePredicate{
	StateNormal,
	StateMinimized,
	StateMaximized,
	StateVisible,
	StateHidden,
	StateForeground,
}

// WindowFunc looks up the window a condition is about. It should return a
// TargetNotFound error while the window does not exist.
type WindowFunc func(ctx context.Context) (desktop.Window, error)

// ProcessGetter is the part of desktop.Processes ProcessExited needs.
type ProcessGetter interface {
	GetProcess(ctx context.Context, pid int) (desktop.Process, error)
}

func windowCondition(name string, resolve WindowFunc, pred func(desktop.Window) bool) Condition {
	return Condition{
		Name: name,
		Check: func(ctx context.Context) (bool, error) {
			w, err := resolve(ctx)
			if err != nil {
				return false, err
			}
			return pred(w), nil
		},
	}
}

// WindowExists holds once the window can be resolved.
func WindowExists(target string, resolve WindowFunc) Condition {
	return windowCondition(fmt.Sprintf("%s(%s)", WindowExistsPredicate, target), resolve, func(desktop.Window) bool { return true })
}

// WindowVisible holds once the window is shown and not minimized.
func WindowVisible(target string, resolve WindowFunc) Condition {
	return windowCondition(fmt.Sprintf("%s(%s)", WindowVisiblePredicate, target), resolve, func(w desktop.Window) bool {
		return w.Visible && w.State != desktop.StateMinimized
	})
}

// WindowReady holds once the window accepts input (see desktop.Window.Ready).
func WindowReady(target string, resolve WindowFunc) Condition {
	return windowCondition(fmt.Sprintf("%s(%s)", WindowReadyPredicate, target), resolve, desktop.Window.Ready)
}

// ProcessExited holds once pid is no longer running.
func ProcessExited(procs ProcessGetter, pid int) Condition {
	return Condition{
		Name: fmt.Sprintf("%s(pid:%d)", ProcessExitedPredicate, pid),
		Check: func(ctx context.Context) (bool, error) {
			_, err := procs.GetProcess(ctx, pid)
			if desktop.IsNotFound(err) {
				return true, nil
			}
			return false, err
		},
	}
}

// WindowInState holds once the window is in state. A window that no longer
// exists counts as hidden.
func WindowInState(target string, resolve WindowFunc, state StatePredicate) Condition {
	name := fmt.Sprintf("state %s(%s)", state, target)
	if state == StateHidden {
		return Condition{
			Name: name,
			Check: func(ctx context.Context) (bool, error) {
				w, err := resolve(ctx)
				if desktop.IsNotFound(err) {
					return true, nil
				}
				if err != nil {
					return false, err
				}
				return !w.Visible || w.State == desktop.StateMinimized, nil
			},
		}
	}
	return windowCondition(name, resolve, func(w desktop.Window) bool {
		switch state {
		case StateNormal, StateMinimized, StateMaximized:
			return w.State == desktop.WindowState(state)
		case StateVisible:
			return w.Visible && w.State != desktop.StateMinimized
		case StateForeground:
			return w.Foreground
		}
		return false
	})
}

// ParsePredicate validates a wait_for predicate name.
func ParsePredicate(s string) (Predicate, error) {
	p := Predicate(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range Predicates {
		if p == v {
			return p, nil
		}
	}
	return "", desktop.InvalidArgumentf("predicate", "unknown predicate %q", s)
}

// ParseStatePredicate validates a wait_for_state state name. "restored" is
// accepted for normal.
func ParseStatePredicate(s string) (StatePredicate, error) {
	p := StatePredicate(strings.ToLower(strings.TrimSpace(s)))
	if p == "restored" {
		return StateNormal, nil
	}
	for _, v := range StatePredicates {
		if p == v {
			return p, nil
		}
	}
	return "", desktop.InvalidArgumentf("state", "unknown window state %q", s)
}
