// Copyright 2025 Joseph Cumines
//
// Simulated keyboard and mouse input

package sim

import (
	"context"
	"strings"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
	"go.uber.org/zap"
)

// MoveMouse implements desktop.Input. The cursor is confined to the virtual
// screen, and moving with the left button held on a canvas draws.
func (d *Desktop) MoveMouse(ctx context.Context, p desktop.Point) error {
	if err := d.lock(ctx); err != nil {
		return err
	}
	defer d.mu.Unlock()
	d.cursor = d.virtualScreen().Clamp(p)
	if pr := d.press; pr != nil && pr.stroke != nil {
		if w, err := d.window(pr.window); err == nil {
			pr.stroke.points = append(pr.stroke.points, canvasPoint(w, pr.node, d.cursor))
		}
	}
	return nil
}

// CursorPosition implements desktop.Input.
func (d *Desktop) CursorPosition(ctx context.Context) (desktop.Point, error) {
	if err := d.lock(ctx); err != nil {
		return desktop.Point{}, err
	}
	defer d.mu.Unlock()
	return d.cursor, nil
}

// windowAt returns the top-most shown window under p.
func (d *Desktop) windowAt(p desktop.Point) *window {
	for _, w := range d.windows {
		if w.visible && w.state != desktop.StateMinimized && w.bounds.Contains(p) {
			return w
		}
	}
	return nil
}

func canvasPoint(w *window, n *node, p desktop.Point) desktop.Point {
	r := w.abs(n.rel)
	return desktop.Point{X: p.X - r.X, Y: p.Y - r.Y}
}

// MouseButton implements desktop.Input. A left press activates the window
// under the cursor and focuses editable elements; a left release over the
// same button that was pressed invokes it. Input to elevated windows and to
// windows disabled by a modal dialog is dropped.
func (d *Desktop) MouseButton(ctx context.Context, button desktop.MouseButton, down bool) error {
	if err := d.lock(ctx); err != nil {
		return err
	}
	defer d.mu.Unlock()
	switch button {
	case desktop.ButtonLeft, desktop.ButtonRight, desktop.ButtonMiddle:
	default:
		return desktop.InvalidArgumentf("button", "unknown mouse button %q", button)
	}
	if d.buttons[button] == down {
		return nil
	}
	d.buttons[button] = down

	if down {
		w := d.windowAt(d.cursor)
		if w == nil || w.elevated {
			return nil
		}
		if !w.enabled {
			// clicking an owner brings its modal dialog forward instead
			d.raise(w)
			return nil
		}
		if d.fg != w.handle {
			d.raise(w)
		}
		if button != desktop.ButtonLeft {
			return nil
		}
		n := w.hit(d.cursor)
		pr := &press{window: w.handle, node: n, button: button}
		if n != nil {
			switch {
			case n.editable && !n.disabled:
				w.focus = n
				w.selectAll = false
			case n.canvas && w.doc != nil:
				pr.stroke = &stroke{
					tool:   w.doc.tool,
					color:  w.doc.color,
					points: []desktop.Point{canvasPoint(w, n, d.cursor)},
				}
			}
		}
		d.press = pr
		return nil
	}

	pr := d.press
	if pr == nil || pr.button != button {
		return nil
	}
	d.press = nil
	w, err := d.window(pr.window)
	if err != nil || pr.node == nil {
		return nil
	}
	if pr.stroke != nil && w.doc != nil {
		w.doc.strokes = append(w.doc.strokes, *pr.stroke)
		w.doc.dirty = true
		w.retitle()
		return nil
	}
	if n := w.hit(d.cursor); n == pr.node && n.action != nil && !n.disabled {
		d.logger.Debug("button invoked", zap.Stringer("window", w.handle), zap.String("button", n.name))
		n.action()
	}
	return nil
}

// TypeText implements desktop.Input. Text goes to the focused editable
// element of the foreground window, replacing any select-all selection.
func (d *Desktop) TypeText(ctx context.Context, text string) error {
	if err := d.lock(ctx); err != nil {
		return err
	}
	defer d.mu.Unlock()
	w := d.foreground()
	if w == nil || w.elevated || !w.enabled {
		return nil
	}
	d.insert(w, text)
	return nil
}

func (d *Desktop) insert(w *window, text string) {
	n := w.focus
	if n == nil || !n.editable || n.disabled {
		return
	}
	cur := n.text(w)
	if w.selectAll {
		cur = ""
		w.selectAll = false
	}
	n.setText(w, cur+text)
	w.retitle()
}

// PressKeys implements desktop.Input against the foreground window.
func (d *Desktop) PressKeys(ctx context.Context, chord desktop.KeyChord) error {
	if err := d.lock(ctx); err != nil {
		return err
	}
	defer d.mu.Unlock()

	if chord.Is("win+r") {
		d.openRun()
		return nil
	}
	w := d.foreground()
	if w == nil || w.elevated || !w.enabled {
		return nil
	}
	switch {
	case chord.Is("alt+f4"):
		d.requestClose(w)
	case chord.Is("escape"):
		if w.cancel != nil {
			w.cancel()
		}
	case chord.Is("enter"):
		if w.role != roleMain {
			d.defaultButton(w)
		} else {
			d.insert(w, "\n")
		}
	case chord.Is("ctrl+s"):
		if w.role == roleMain && w.doc != nil {
			d.save(w, false, nil)
		}
	case chord.Is("ctrl+shift+s"):
		if w.role == roleMain && w.doc != nil {
			d.save(w, true, nil)
		}
	case chord.Is("ctrl+a"):
		if w.focus != nil && w.focus.editable {
			w.selectAll = true
		}
	case chord.Is("ctrl+c"), chord.Is("ctrl+x"):
		if w.focus != nil && w.focus.editable && w.selectAll {
			d.clipboard = w.focus.text(w)
			if chord.Key == "x" {
				w.focus.setText(w, "")
				w.selectAll = false
				w.retitle()
			}
		}
	case chord.Is("ctrl+v"):
		d.insert(w, d.clipboard)
	case chord.Is("backspace"), chord.Is("delete"):
		if n := w.focus; n != nil && n.editable {
			cur := n.text(w)
			switch {
			case w.selectAll:
				cur = ""
				w.selectAll = false
			case chord.Key == "backspace" && cur != "":
				r := []rune(cur)
				cur = string(r[:len(r)-1])
			}
			n.setText(w, cur)
			w.retitle()
		}
	case chord.Is("tab"):
		d.cycleFocus(w)
	case chord.Is("space"):
		if n := w.focus; n != nil && n.action != nil && !n.disabled {
			n.action()
		} else {
			d.insert(w, " ")
		}
	case len(chord.Modifiers) == 0 && len([]rune(chord.Key)) == 1:
		d.insert(w, chord.Key)
	case chord.Is("shift+"+chord.Key) && len([]rune(chord.Key)) == 1:
		d.insert(w, strings.ToUpper(chord.Key))
	case chord.Key == "home", chord.Key == "end", chord.Key == "left", chord.Key == "right",
		chord.Key == "up", chord.Key == "down":
		w.selectAll = false
	}
	return nil
}

// cycleFocus moves keyboard focus to the next editable element or button.
func (d *Desktop) cycleFocus(w *window) {
	var stops []*node
	w.root.walk(func(n *node) bool {
		if !n.disabled && (n.editable || n.action != nil) {
			stops = append(stops, n)
		}
		return true
	})
	if len(stops) == 0 {
		return
	}
	next := stops[0]
	for i, n := range stops {
		if n == w.focus {
			next = stops[(i+1)%len(stops)]
			break
		}
	}
	w.focus = next
	w.selectAll = false
}
