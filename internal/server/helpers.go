// Copyright 2025 Joseph Cumines
//
// Helper functions for tool handlers

package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
	"github.com/joeycumines/WindowsUseSDK/internal/registry"
)

// maxDisplayTextLen is the maximum length for text shown in result summaries.
// Longer text is truncated with "..." suffix.
const maxDisplayTextLen = 50

// truncateText truncates text to maxDisplayTextLen characters with "..." suffix if needed.
func truncateText(s string) string {
	if r := []rune(s); len(r) > maxDisplayTextLen {
		return string(r[:maxDisplayTextLen]) + "..."
	}
	return s
}

// textOutput creates an Output with a single text content.
func textOutput(data any, format string, args ...any) *Output {
	return &Output{Data: data, Text: fmt.Sprintf(format, args...)}
}

// windowSummary describes a window for result text, e.g.
// 0x1A2B "Untitled - Notepad" (process 1234).
func windowSummary(w desktop.Window) string {
	return fmt.Sprintf("%v %q (process %d)", w.Handle, w.Title, w.PID)
}

// windowLine is one line of a window listing.
func windowLine(w desktop.Window) string {
	var flags []string
	flags = append(flags, string(w.State))
	if w.Foreground {
		flags = append(flags, "foreground")
	}
	if !w.Visible {
		flags = append(flags, "hidden")
	}
	if w.Owner != 0 {
		flags = append(flags, "owned by "+w.Owner.String())
	}
	if w.Elevated {
		flags = append(flags, "elevated")
	}
	return fmt.Sprintf("- %s at %s [%s]", windowSummary(w), boundsString(w.Bounds), strings.Join(flags, ", "))
}

// boundsString returns a formatted string representation of bounds.
func boundsString(r desktop.Rect) string {
	return fmt.Sprintf("(%d, %d) %dx%d", r.X, r.Y, r.Width, r.Height)
}

// sizeString returns a formatted size string, e.g. 1920x1080.
func sizeString(r desktop.Rect) string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// milliseconds converts an optional timeout in milliseconds, falling back to
// def when unset.
func milliseconds(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// parseTarget parses a required window target argument.
func parseTarget(field, target string) (registry.Reference, error) {
	ref, err := registry.ParseReference(target)
	if err != nil {
		var de *desktop.Error
		if errors.As(err, &de) {
			de.Field = field
		}
		return registry.Reference{}, err
	}
	return ref, nil
}

// targetReference parses the required target argument of element and file
// tools.
func targetReference(target string) (registry.Reference, error) {
	if strings.TrimSpace(target) == "" {
		return registry.Reference{}, desktop.InvalidArgumentf("target", "target is required")
	}
	return parseTarget("target", target)
}

// activate brings w to the foreground and records the activation, so later
// title lookups prefer it.
func (s *MCPServer) activate(ctx context.Context, w desktop.Window) (desktop.Window, error) {
	aw, err := s.desk.ActivateWindow(ctx, w.Handle)
	if err != nil {
		return desktop.Window{}, err
	}
	s.registry.NoteActivated(aw.Handle)
	return aw, nil
}

// ownedWindows returns the shown windows owned by owner, top-most first.
func (s *MCPServer) ownedWindows(ctx context.Context, owner desktop.Handle) ([]desktop.Window, error) {
	ws, err := s.desk.ListWindows(ctx)
	if err != nil {
		return nil, err
	}
	var out []desktop.Window
	for _, w := range ws {
		if w.Owner == owner && w.Visible {
			out = append(out, w)
		}
	}
	return out, nil
}

// click presses and releases button at p, count times. The button is
// released even if the context ends mid-click, so no press is left held.
func (s *MCPServer) click(ctx context.Context, p desktop.Point, button desktop.MouseButton, count int) error {
	if count < 1 {
		count = 1
	}
	if err := s.desk.MoveMouse(ctx, p); err != nil {
		return err
	}
	for range count {
		if err := s.desk.MouseButton(ctx, button, true); err != nil {
			return err
		}
		if err := s.desk.MouseButton(context.WithoutCancel(ctx), button, false); err != nil {
			return err
		}
	}
	return nil
}

// findElement returns the first element under root that match accepts, in
// tree order.
func findElement(root desktop.Element, match func(desktop.Element) bool) (desktop.Element, bool) {
	var (
		found desktop.Element
		ok    bool
	)
	root.Walk(func(el desktop.Element, _ int) bool {
		if match(el) {
			found, ok = el, true
			return false
		}
		return true
	})
	return found, ok
}

// buttonNamed matches a button by name or automation id, ignoring case.
func buttonNamed(names ...string) func(desktop.Element) bool {
	return func(el desktop.Element) bool {
		if !strings.EqualFold(el.ControlType, "Button") {
			return false
		}
		for _, n := range names {
			if strings.EqualFold(el.Name, n) || (el.AutomationID != "" && el.AutomationID == n) {
				return true
			}
		}
		return false
	}
}

// pressDialogButton activates dlg and clicks the named button, re-reading
// the dialog's element tree so the click lands where the button is now.
func (s *MCPServer) pressDialogButton(ctx context.Context, dlg desktop.Window, names ...string) error {
	if _, err := s.activate(ctx, dlg); err != nil {
		return err
	}
	root, err := s.desk.ElementTree(ctx, dlg.Handle)
	if err != nil {
		return err
	}
	b, ok := findElement(root, buttonNamed(names...))
	if !ok {
		return desktop.DialogErrorf("dialog %q has no %s button", dlg.Title, strings.Join(names, "/"))
	}
	if !b.Enabled {
		return desktop.DialogErrorf("the %s button of dialog %q is disabled", b.Name, dlg.Title)
	}
	return s.click(ctx, b.Bounds.Center(), desktop.ButtonLeft, 1)
}

// dialogText joins the static text of a dialog, e.g. the message of a
// message box.
func (s *MCPServer) dialogText(ctx context.Context, dlg desktop.Window) string {
	root, err := s.desk.ElementTree(ctx, dlg.Handle)
	if err != nil {
		return ""
	}
	var parts []string
	root.Walk(func(el desktop.Element, _ int) bool {
		if strings.EqualFold(el.ControlType, "Text") {
			t := el.Value
			if t == "" {
				t = el.Name
			}
			if t = strings.TrimSpace(t); t != "" {
				parts = append(parts, strings.Join(strings.Fields(t), " "))
			}
		}
		return true
	})
	return strings.Join(parts, " ")
}
