// Copyright 2025 Joseph Cumines
//
// Simulated top-level windows

package sim

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
)

type role int

const (
	roleMain role = iota
	roleSaveAs
	roleConfirmClose
	roleConfirmOverwrite
	roleMessage
	roleRun
)

type window struct {
	created      time.Time
	responsiveAt time.Time
	app          *AppProfile
	doc          *document
	root         *node
	focus        *node
	// cancel dismisses a dialog as if its Cancel button was pressed.
	cancel  func()
	title   string
	class   string
	appID   string
	state   desktop.WindowState
	bounds  desktop.Rect
	restore desktop.Rect
	handle  desktop.Handle
	owner   desktop.Handle
	pid     int
	// worker is the app process behind a packaged app's host window.
	worker    int
	nodeSeq   int
	role      role
	visible   bool
	enabled   bool
	elevated  bool
	destroyed bool
	selectAll bool
}

type node struct {
	action       func()
	parent       *node
	id           string
	controlType  string
	name         string
	automationID string
	value        string
	children     []*node
	rel          desktop.Rect
	editable     bool
	document     bool
	canvas       bool
	disabled     bool
}

type document struct {
	strokes []stroke
	text    string
	path    string
	tool    string
	color   string
	dirty   bool
	// saveAsPending is set while a requested Save As dialog has yet to
	// appear.
	saveAsPending bool
	calc          calculator
}

type stroke struct {
	tool   string
	color  string
	points []desktop.Point // relative to the canvas node
}

func (w *window) snapshot(d *Desktop) desktop.Window {
	return desktop.Window{
		Handle:     w.handle,
		Title:      w.title,
		ClassName:  w.class,
		PID:        w.pid,
		Owner:      w.owner,
		AppID:      w.appID,
		Bounds:     w.bounds,
		State:      w.state,
		Visible:    w.visible,
		Enabled:    w.enabled,
		Responsive: !d.clock().Before(w.responsiveAt),
		Foreground: d.fg == w.handle,
		Elevated:   w.elevated,
		CreatedAt:  w.created,
	}
}

// newNode allocates a node with a window-unique id. Ids are assigned in
// creation order, so a window's tree has stable ids across reads.
func (w *window) newNode(controlType, name string, rel desktop.Rect) *node {
	w.nodeSeq++
	return &node{
		id:          fmt.Sprintf("%v.%d", w.handle, w.nodeSeq),
		controlType: controlType,
		name:        name,
		rel:         rel,
	}
}

func (w *window) appendNode(parent, n *node) *node {
	n.parent = parent
	parent.children = append(parent.children, n)
	return n
}

// walk visits nodes depth-first in tree order.
func (n *node) walk(fn func(*node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.children {
		if !c.walk(fn) {
			return false
		}
	}
	return true
}

func (w *window) find(fn func(*node) bool) *node {
	var found *node
	w.root.walk(func(n *node) bool {
		if fn(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

func (w *window) nodeByID(id string) *node {
	return w.find(func(n *node) bool { return n.id == id })
}

func (w *window) button(name string) *node {
	return w.find(func(n *node) bool { return n.controlType == "Button" && n.name == name })
}

func (w *window) abs(r desktop.Rect) desktop.Rect {
	return desktop.Rect{X: w.bounds.X + r.X, Y: w.bounds.Y + r.Y, Width: r.Width, Height: r.Height}
}

// hit returns the deepest node containing the screen point p.
func (w *window) hit(p desktop.Point) *node {
	var found *node
	w.root.walk(func(n *node) bool {
		if w.abs(n.rel).Contains(p) {
			found = n
		}
		return true
	})
	return found
}

func (n *node) text(w *window) string {
	if n.document && w.doc != nil {
		return w.doc.text
	}
	return n.value
}

func (n *node) setText(w *window, v string) {
	if n.document && w.doc != nil {
		if w.doc.text != v {
			w.doc.text = v
			w.doc.dirty = true
		}
		return
	}
	n.value = v
}

// documentName is the name the title bar and save prompts use.
func (w *window) documentName() string {
	if w.doc == nil || w.doc.path == "" {
		return "Untitled"
	}
	return strings.TrimSuffix(filepath.Base(w.doc.path), filepath.Ext(w.doc.path))
}

func (w *window) retitle() {
	if w.app == nil || w.app.TitleFormat == "" {
		return
	}
	title := fmt.Sprintf(w.app.TitleFormat, w.documentName())
	if w.doc != nil && w.doc.dirty && w.app.Document == docText {
		title = "*" + title
	}
	w.title = title
}

// openApp creates the main window of an application.
func (d *Desktop) openApp(app *AppProfile, pid, worker int, args []string) *window {
	w := &window{
		app:          app,
		title:        app.Title,
		class:        app.Class,
		bounds:       app.Bounds,
		pid:          pid,
		worker:       worker,
		role:         roleMain,
		visible:      true,
		enabled:      true,
		elevated:     app.Elevated,
		responsiveAt: d.now().Add(app.Warmup),
	}
	if app.Stub != nil {
		w.appID = app.Stub.AppID
	}
	if app.Document != "" {
		w.doc = &document{tool: "pencil", color: "black"}
	}
	d.add(w)
	w.root = w.newNode("Window", w.title, desktop.Rect{Width: w.bounds.Width, Height: w.bounds.Height})
	for _, ep := range app.Elements {
		d.buildNode(w, w.root, ep)
	}
	if w.doc != nil && app.Document == docText {
		for _, a := range args {
			if strings.HasPrefix(a, "-") || strings.HasPrefix(a, "/") && !filepath.IsAbs(a) {
				continue
			}
			if b, err := readFile(a); err == nil {
				w.doc.text = string(b)
				w.doc.path = a
				break
			}
		}
		w.retitle()
	}
	if ed := w.find(func(n *node) bool { return n.editable }); ed != nil {
		w.focus = ed
	}
	return w
}

func (d *Desktop) buildNode(w *window, parent *node, ep ElementProfile) {
	n := w.appendNode(parent, w.newNode(ep.Type, ep.Name, ep.Bounds))
	n.automationID = ep.AutomationID
	n.value = ep.Value
	n.editable = ep.Editable
	n.document = ep.Document
	n.canvas = ep.Canvas
	n.disabled = ep.Disabled
	if ep.Action != "" {
		n.action = d.profileAction(w, ep.Action)
	}
	for _, c := range ep.Children {
		d.buildNode(w, n, c)
	}
}

// profileAction binds a button action named in a profile.
func (d *Desktop) profileAction(w *window, action string) func() {
	verb, arg, _ := strings.Cut(action, ":")
	switch verb {
	case "tool":
		return func() {
			if w.doc != nil {
				w.doc.tool = arg
			}
		}
	case "color":
		return func() {
			if w.doc != nil {
				w.doc.color = arg
			}
		}
	case "calc":
		return func() {
			if w.doc == nil {
				w.doc = &document{}
			}
			w.doc.calc.press(arg)
			if disp := w.find(func(n *node) bool { return n.automationID == "CalculatorResults" }); disp != nil {
				disp.value = w.doc.calc.display()
				disp.name = "Display is " + disp.value
			}
		}
	case "save":
		return func() { d.save(w, false, nil) }
	case "saveas":
		return func() { d.save(w, true, nil) }
	case "close":
		return func() { d.requestClose(w) }
	default:
		d.logger.Sugar().Warnf("ignoring unknown action %q in profile", action)
		return nil
	}
}

// ListWindows implements desktop.Windows.
func (d *Desktop) ListWindows(ctx context.Context) ([]desktop.Window, error) {
	if err := d.lock(ctx); err != nil {
		return nil, err
	}
	defer d.mu.Unlock()
	out := make([]desktop.Window, 0, len(d.windows))
	for _, w := range d.windows {
		out = append(out, w.snapshot(d))
	}
	return out, nil
}

// GetWindow implements desktop.Windows.
func (d *Desktop) GetWindow(ctx context.Context, h desktop.Handle) (desktop.Window, error) {
	if err := d.lock(ctx); err != nil {
		return desktop.Window{}, err
	}
	defer d.mu.Unlock()
	w, err := d.window(h)
	if err != nil {
		return desktop.Window{}, err
	}
	return w.snapshot(d), nil
}

// ForegroundWindow implements desktop.Windows.
func (d *Desktop) ForegroundWindow(ctx context.Context) (desktop.Window, error) {
	if err := d.lock(ctx); err != nil {
		return desktop.Window{}, err
	}
	defer d.mu.Unlock()
	w := d.foreground()
	if w == nil {
		return desktop.Window{}, desktop.NotFoundf("no window is in the foreground")
	}
	return w.snapshot(d), nil
}

// SetWindowState implements desktop.Windows.
func (d *Desktop) SetWindowState(ctx context.Context, h desktop.Handle, state desktop.WindowState) (desktop.Window, error) {
	if err := d.lock(ctx); err != nil {
		return desktop.Window{}, err
	}
	defer d.mu.Unlock()
	w, err := d.window(h)
	if err != nil {
		return desktop.Window{}, err
	}
	switch state {
	case desktop.StateMinimized:
		if w.state != desktop.StateMinimized {
			if w.state == desktop.StateNormal {
				w.restore = w.bounds
			}
			w.state = desktop.StateMinimized
		}
		d.lower(w)
	case desktop.StateMaximized:
		if w.state == desktop.StateNormal {
			w.restore = w.bounds
		}
		w.state = desktop.StateMaximized
		w.bounds = d.monitorFor(w.restore).WorkArea
		d.raise(w)
	case desktop.StateNormal:
		if w.state != desktop.StateNormal {
			w.state = desktop.StateNormal
			w.bounds = w.restore
		}
		d.raise(w)
	default:
		return desktop.Window{}, desktop.InvalidArgumentf("state", "unknown window state %q", state)
	}
	return w.snapshot(d), nil
}

// ActivateWindow implements desktop.Windows. A minimized window is restored.
// Windows of elevated processes refuse activation.
func (d *Desktop) ActivateWindow(ctx context.Context, h desktop.Handle) (desktop.Window, error) {
	if err := d.lock(ctx); err != nil {
		return desktop.Window{}, err
	}
	defer d.mu.Unlock()
	w, err := d.window(h)
	if err != nil {
		return desktop.Window{}, err
	}
	if w.elevated {
		return desktop.Window{}, desktop.PermissionDeniedf("cannot activate %s: the window belongs to an elevated process", d.describe(w))
	}
	if w.state == desktop.StateMinimized {
		w.state = desktop.StateNormal
		w.bounds = w.restore
	}
	d.raise(w)
	return w.snapshot(d), nil
}

// MoveWindow implements desktop.Windows. Moving a maximized window restores
// it first.
func (d *Desktop) MoveWindow(ctx context.Context, h desktop.Handle, x, y int) (desktop.Window, error) {
	if err := d.lock(ctx); err != nil {
		return desktop.Window{}, err
	}
	defer d.mu.Unlock()
	w, err := d.window(h)
	if err != nil {
		return desktop.Window{}, err
	}
	if w.state != desktop.StateNormal {
		w.state = desktop.StateNormal
		w.bounds = w.restore
	}
	w.bounds.X, w.bounds.Y = x, y
	w.restore = w.bounds
	return w.snapshot(d), nil
}

// ResizeWindow implements desktop.Windows.
func (d *Desktop) ResizeWindow(ctx context.Context, h desktop.Handle, width, height int) (desktop.Window, error) {
	if err := d.lock(ctx); err != nil {
		return desktop.Window{}, err
	}
	defer d.mu.Unlock()
	if width <= 0 {
		return desktop.Window{}, desktop.InvalidArgumentf("width", "width must be positive")
	}
	if height <= 0 {
		return desktop.Window{}, desktop.InvalidArgumentf("height", "height must be positive")
	}
	w, err := d.window(h)
	if err != nil {
		return desktop.Window{}, err
	}
	if w.state != desktop.StateNormal {
		w.state = desktop.StateNormal
		w.bounds = w.restore
	}
	w.bounds.Width, w.bounds.Height = width, height
	w.restore = w.bounds
	w.root.rel.Width, w.root.rel.Height = width, height
	return w.snapshot(d), nil
}

// CloseWindow implements desktop.Windows. Dialogs are cancelled, and a main
// window with unsaved changes prompts instead of closing.
func (d *Desktop) CloseWindow(ctx context.Context, h desktop.Handle) error {
	if err := d.lock(ctx); err != nil {
		return err
	}
	defer d.mu.Unlock()
	w, err := d.window(h)
	if err != nil {
		return err
	}
	if w.elevated {
		return desktop.PermissionDeniedf("cannot close %s: the window belongs to an elevated process", d.describe(w))
	}
	d.requestClose(w)
	return nil
}

func (d *Desktop) requestClose(w *window) {
	switch {
	case w.cancel != nil:
		w.cancel()
	case !w.enabled && d.hasOwned(w.handle):
		// a modal dialog is showing; the close request is ignored
	case w.role == roleMain && w.doc != nil && w.doc.dirty && w.app.Document != "":
		d.confirmClose(w)
	default:
		d.destroy(w)
	}
}
