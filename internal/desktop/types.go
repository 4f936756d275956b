// Copyright 2025 Joseph Cumines
//
// Desktop data model

package desktop

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Handle identifies a top-level window. It is only valid while the window
// exists, and the OS may reuse it afterwards.
type Handle uint64

// String formats the handle the way Windows tooling does, e.g. 0x1A2B.
func (h Handle) String() string {
	return fmt.Sprintf("0x%X", uint64(h))
}

// MarshalText encodes the handle as a hex string, so handles survive JSON
// number precision limits.
func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText accepts anything ParseHandle accepts.
func (h *Handle) UnmarshalText(b []byte) error {
	v, err := ParseHandle(string(b))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// ParseHandle parses a handle in 0x-prefixed hex or decimal form.
func ParseHandle(s string) (Handle, error) {
	s = strings.TrimSpace(s)
	var (
		v   uint64
		err error
	)
	if rest, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		v, err = strconv.ParseUint(rest, 16, 64)
	} else {
		v, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid window handle %q", s)
	}
	return Handle(v), nil
}

// Point is a position in virtual screen space.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}

// Size is a width and height in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect is an axis-aligned rectangle in virtual screen space.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d, %d) %dx%d", r.X, r.Y, r.Width, r.Height)
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Center returns the middle of the rectangle, rounded down.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Contains reports whether p lies inside r. The right and bottom edges are
// exclusive.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.Width && p.Y >= r.Y && p.Y < r.Y+r.Height
}

// Intersect returns the overlap of r and o, which may be empty.
func (r Rect) Intersect(o Rect) Rect {
	x0, y0 := max(r.X, o.X), max(r.Y, o.Y)
	x1, y1 := min(r.X+r.Width, o.X+o.Width), min(r.Y+r.Height, o.Y+o.Height)
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Union returns the smallest rectangle containing both r and o. An empty
// operand is ignored.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	x0, y0 := min(r.X, o.X), min(r.Y, o.Y)
	x1, y1 := max(r.X+r.Width, o.X+o.Width), max(r.Y+r.Height, o.Y+o.Height)
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Clamp returns the point inside r nearest to p.
func (r Rect) Clamp(p Point) Point {
	if r.Empty() {
		return p
	}
	return Point{
		X: min(max(p.X, r.X), r.X+r.Width-1),
		Y: min(max(p.Y, r.Y), r.Y+r.Height-1),
	}
}

// WindowState is the show state of a top-level window.
type WindowState string

const (
	StateNormal    WindowState = "normal"
	StateMinimized WindowState = "minimized"
	StateMaximized WindowState = "maximized"
)

// ParseWindowState validates a show state name.
func ParseWindowState(s string) (WindowState, error) {
	switch ws := WindowState(strings.ToLower(strings.TrimSpace(s))); ws {
	case StateNormal, StateMinimized, StateMaximized:
		return ws, nil
	case "restored":
		return StateNormal, nil
	default:
		return "", fmt.Errorf("unknown window state %q", s)
	}
}

// Window is a snapshot of a top-level window, valid at the time it was read.
type Window struct {
	CreatedAt  time.Time   `json:"createdAt"`
	Title      string      `json:"title"`
	ClassName  string      `json:"className"`
	AppID      string      `json:"appId,omitempty"`
	State      WindowState `json:"state"`
	Bounds     Rect        `json:"bounds"`
	Handle     Handle      `json:"handle"`
	Owner      Handle      `json:"owner,omitempty"`
	PID        int         `json:"processId"`
	Visible    bool        `json:"visible"`
	Enabled    bool        `json:"enabled"`
	Responsive bool        `json:"responsive"`
	Foreground bool        `json:"foreground"`
	Elevated   bool        `json:"elevated,omitempty"`
}

// Ready reports whether the window can accept input: shown, enabled,
// responding to messages, and laid out with a non-empty area.
func (w Window) Ready() bool {
	return w.Visible && w.Enabled && w.Responsive && w.State != StateMinimized && !w.Bounds.Empty()
}

// Process is a snapshot of a running process.
type Process struct {
	StartTime   time.Time `json:"startTime"`
	Executable  string    `json:"executable"`
	CommandLine string    `json:"commandLine,omitempty"`
	PID         int       `json:"processId"`
	ParentPID   int       `json:"parentProcessId,omitempty"`
}

// Monitor describes one display. It is read on demand and never cached, as
// the display configuration can change between calls.
type Monitor struct {
	Name     string  `json:"name"`
	Bounds   Rect    `json:"bounds"`
	WorkArea Rect    `json:"workArea"`
	Index    int     `json:"index"`
	Scale    float64 `json:"scale"`
	Primary  bool    `json:"primary"`
}

// VirtualScreen returns the union of all monitor bounds.
func VirtualScreen(monitors []Monitor) Rect {
	var r Rect
	for _, m := range monitors {
		r = r.Union(m.Bounds)
	}
	return r
}

// Element is a node in a window's accessibility tree.
type Element struct {
	ID           string    `json:"id"`
	ControlType  string    `json:"controlType"`
	Name         string    `json:"name,omitempty"`
	Value        string    `json:"value,omitempty"`
	AutomationID string    `json:"automationId,omitempty"`
	Children     []Element `json:"children,omitempty"`
	Bounds       Rect      `json:"bounds"`
	Enabled      bool      `json:"enabled"`
	Focused      bool      `json:"focused,omitempty"`
}

// Walk visits e and its descendants depth-first in tree order, stopping
// early when fn returns false.
func (e Element) Walk(fn func(el Element, depth int) bool) {
	e.walk(fn, 0)
}

func (e Element) walk(fn func(Element, int) bool, depth int) bool {
	if !fn(e, depth) {
		return false
	}
	for _, c := range e.Children {
		if !c.walk(fn, depth+1) {
			return false
		}
	}
	return true
}

// Find returns the element with the given ID.
func (e Element) Find(id string) (Element, bool) {
	var (
		found Element
		ok    bool
	)
	e.Walk(func(el Element, _ int) bool {
		if el.ID == id {
			found, ok = el, true
			return false
		}
		return true
	})
	return found, ok
}

// MouseButton names a mouse button.
type MouseButton string

const (
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

// LaunchSpec describes a process to start.
type LaunchSpec struct {
	Program    string   `json:"program"`
	WorkingDir string   `json:"workingDirectory,omitempty"`
	Args       []string `json:"args,omitempty"`
}
