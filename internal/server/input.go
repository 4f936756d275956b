// Copyright 2025 Joseph Cumines
//
// Input tool handlers

package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
)

// defaultDragSteps is the number of intermediate moves in a drag.
const defaultDragSteps = 12

type keyboardArgs struct {
	Action string   `json:"action" jsonschema:"enum=type,enum=press,enum=sequence"`
	Text   string   `json:"text,omitempty" jsonschema_description:"Text to type, for type"`
	Key    string   `json:"key,omitempty" jsonschema_description:"Key chord to press, e.g. enter, ctrl+s, alt+f4, win+r"`
	Target string   `json:"target,omitempty" jsonschema_description:"Window to activate before sending input (handle, pid:N or title)"`
	Keys   []string `json:"keys,omitempty" jsonschema_description:"Key chords to press in order, for sequence"`
	Repeat int      `json:"repeat,omitempty" jsonschema:"minimum=0,maximum=100" jsonschema_description:"Number of times to press key (default 1)"`
}

func (a keyboardArgs) Validate() error {
	switch a.Action {
	case "type":
		if a.Text == "" {
			return desktop.InvalidArgumentf("text", "text is required for type")
		}
	case "press":
		if strings.TrimSpace(a.Key) == "" {
			return desktop.InvalidArgumentf("key", "key is required for press")
		}
		if _, err := desktop.ParseKeyChord(a.Key); err != nil {
			return desktop.InvalidArgumentf("key", "%v", err)
		}
	case "sequence":
		if len(a.Keys) == 0 {
			return desktop.InvalidArgumentf("keys", "keys is required for sequence")
		}
		for i, k := range a.Keys {
			if _, err := desktop.ParseKeyChord(k); err != nil {
				return desktop.InvalidArgumentf(fmt.Sprintf("keys.%d", i), "%v", err)
			}
		}
	}
	if a.Target != "" {
		if _, err := parseTarget("target", a.Target); err != nil {
			return err
		}
	}
	return nil
}

// focusTarget activates the window named by target, if any.
func (s *MCPServer) focusTarget(ctx context.Context, target string) (*desktop.Window, error) {
	if target == "" {
		return nil, nil
	}
	ref, err := parseTarget("target", target)
	if err != nil {
		return nil, err
	}
	w, err := s.registry.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	aw, err := s.activate(ctx, w)
	if err != nil {
		return nil, err
	}
	return &aw, nil
}

// handleKeyboardControl handles the keyboard_control tool
func (s *MCPServer) handleKeyboardControl(ctx context.Context, args keyboardArgs) (*Output, error) {
	w, err := s.focusTarget(ctx, args.Target)
	if err != nil {
		return nil, err
	}
	suffix := ""
	if w != nil {
		suffix = " to " + windowSummary(*w)
	}

	switch args.Action {
	case "type":
		if err := s.desk.TypeText(ctx, args.Text); err != nil {
			return nil, err
		}
		return textOutput(map[string]any{"typed": args.Text, "length": len([]rune(args.Text))},
			"Typed %q%s", truncateText(args.Text), suffix), nil

	case "press":
		chord, err := desktop.ParseKeyChord(args.Key)
		if err != nil {
			return nil, desktop.InvalidArgumentf("key", "%v", err)
		}
		n := max(args.Repeat, 1)
		for range n {
			if err := s.desk.PressKeys(ctx, chord); err != nil {
				return nil, err
			}
		}
		times := ""
		if n > 1 {
			times = fmt.Sprintf(" %d times", n)
		}
		return textOutput(map[string]any{"key": chord.String(), "count": n},
			"Pressed %s%s%s", chord, times, suffix), nil

	case "sequence":
		pressed := make([]string, 0, len(args.Keys))
		for _, k := range args.Keys {
			chord, err := desktop.ParseKeyChord(k)
			if err != nil {
				return nil, desktop.InvalidArgumentf("keys", "%v", err)
			}
			if err := s.desk.PressKeys(ctx, chord); err != nil {
				return nil, fmt.Errorf("pressed %d of %d keys: %w", len(pressed), len(args.Keys), err)
			}
			pressed = append(pressed, chord.String())
		}
		return textOutput(map[string]any{"keys": pressed},
			"Pressed %s%s", strings.Join(pressed, ", "), suffix), nil
	}
	return nil, desktop.InvalidArgumentf("action", "unknown action %q", args.Action)
}

type mouseArgs struct {
	X          *int   `json:"x,omitempty" jsonschema_description:"Screen x; for drag, the start"`
	Y          *int   `json:"y,omitempty" jsonschema_description:"Screen y; for drag, the start"`
	EndX       *int   `json:"endX,omitempty" jsonschema_description:"Drag end x"`
	EndY       *int   `json:"endY,omitempty" jsonschema_description:"Drag end y"`
	Action     string `json:"action" jsonschema:"enum=click,enum=drag,enum=move,enum=get_position"`
	Button     string `json:"button,omitempty" jsonschema:"enum=left,enum=right,enum=middle" jsonschema_description:"Mouse button (default left)"`
	ClickCount int    `json:"clickCount,omitempty" jsonschema:"minimum=0,maximum=3" jsonschema_description:"1 for a click, 2 for a double click"`
	Steps      int    `json:"steps,omitempty" jsonschema:"minimum=0,maximum=500" jsonschema_description:"Intermediate moves in a drag"`
}

func (a mouseArgs) Validate() error {
	switch a.Action {
	case "move":
		if a.X == nil {
			return desktop.InvalidArgumentf("x", "x is required for move")
		}
		if a.Y == nil {
			return desktop.InvalidArgumentf("y", "y is required for move")
		}
	case "click":
		if (a.X == nil) != (a.Y == nil) {
			if a.X == nil {
				return desktop.InvalidArgumentf("x", "x and y must be given together")
			}
			return desktop.InvalidArgumentf("y", "x and y must be given together")
		}
	case "drag":
		for _, f := range []struct {
			v    *int
			name string
		}{{a.X, "x"}, {a.Y, "y"}, {a.EndX, "endX"}, {a.EndY, "endY"}} {
			if f.v == nil {
				return desktop.InvalidArgumentf(f.name, "%s is required for drag", f.name)
			}
		}
	}
	return nil
}

func (a mouseArgs) button() desktop.MouseButton {
	if a.Button == "" {
		return desktop.ButtonLeft
	}
	return desktop.MouseButton(a.Button)
}

// screenBounds returns the virtual screen, which bounds every coordinate the
// mouse can reach.
func (s *MCPServer) screenBounds(ctx context.Context) (desktop.Rect, error) {
	monitors, err := s.desk.Monitors(ctx)
	if err != nil {
		return desktop.Rect{}, err
	}
	return desktop.VirtualScreen(monitors), nil
}

// handleMouseControl handles the mouse_control tool
func (s *MCPServer) handleMouseControl(ctx context.Context, args mouseArgs) (*Output, error) {
	if args.Action == "get_position" {
		p, err := s.desk.CursorPosition(ctx)
		if err != nil {
			return nil, err
		}
		return textOutput(p, "Mouse position: %s", p), nil
	}

	screen, err := s.screenBounds(ctx)
	if err != nil {
		return nil, err
	}

	switch args.Action {
	case "move":
		p := screen.Clamp(desktop.Point{X: *args.X, Y: *args.Y})
		if err := s.desk.MoveMouse(ctx, p); err != nil {
			return nil, err
		}
		return textOutput(p, "Moved mouse to %s", p), nil

	case "click":
		var p desktop.Point
		if args.X != nil {
			p = screen.Clamp(desktop.Point{X: *args.X, Y: *args.Y})
		} else if p, err = s.desk.CursorPosition(ctx); err != nil {
			return nil, err
		}
		count := max(args.ClickCount, 1)
		if err := s.click(ctx, p, args.button(), count); err != nil {
			return nil, err
		}
		verb := "Clicked"
		if count == 2 {
			verb = "Double-clicked"
		} else if count > 2 {
			verb = fmt.Sprintf("Clicked %d times", count)
		}
		return textOutput(map[string]any{"x": p.X, "y": p.Y, "button": args.button(), "clickCount": count},
			"%s %s at %s", verb, args.button(), p), nil

	case "drag":
		from := screen.Clamp(desktop.Point{X: *args.X, Y: *args.Y})
		to := screen.Clamp(desktop.Point{X: *args.EndX, Y: *args.EndY})
		steps := args.Steps
		if steps <= 0 {
			steps = defaultDragSteps
		}
		if err := s.drag(ctx, from, to, args.button(), steps); err != nil {
			return nil, err
		}
		return textOutput(map[string]any{"start": from, "end": to, "button": args.button()},
			"Dragged %s from %s to %s", args.button(), from, to), nil
	}
	return nil, desktop.InvalidArgumentf("action", "unknown action %q", args.Action)
}

// drag performs one continuous gesture: press at from, move through steps
// interpolated points, release at to. The button is released even when a
// move fails or the context ends, so no button is left held down.
func (s *MCPServer) drag(ctx context.Context, from, to desktop.Point, button desktop.MouseButton, steps int) (err error) {
	if err := s.desk.MoveMouse(ctx, from); err != nil {
		return err
	}
	if err := s.desk.MouseButton(ctx, button, true); err != nil {
		return err
	}
	defer func() {
		if rerr := s.desk.MouseButton(context.WithoutCancel(ctx), button, false); err == nil {
			err = rerr
		}
	}()
	for i := 1; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := desktop.Point{
			X: from.X + (to.X-from.X)*i/steps,
			Y: from.Y + (to.Y-from.Y)*i/steps,
		}
		if err := s.desk.MoveMouse(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
