// Copyright 2025 Joseph Cumines

// Package sim implements desktop.Desktop entirely in memory.
//
// The simulator models the parts of Windows that the automation tools depend
// on: z-ordered top-level windows with foreground activation, processes with
// parent links, packaged apps whose launcher exits after handing off to a
// host process, delayed window creation and dialogs, modal owner disabling,
// keyboard focus, mouse hit-testing, and the Notepad and Paint save flows
// (which write real files). Time-based effects are evaluated lazily against
// an injectable clock whenever the desktop is observed, so tests can drive
// the desktop deterministically.
package sim

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
	"go.uber.org/zap"
)

const (
	docText   = "text"
	docCanvas = "canvas"

	pidSystem   = 4
	pidServices = 700
	pidSvchost  = 900
	pidExplorer = 1200
	firstPID    = 4000

	firstHandle = 0x10010
	handleStep  = 0x1A
)

// Desktop is an in-memory desktop.Desktop.
type Desktop struct {
	clock     func() time.Time
	logger    *zap.Logger
	profile   *Profile
	procs     map[int]*process
	pending   []scheduled
	windows   []*window // z-order, top-most first
	clipboard string
	press     *press
	mu        sync.Mutex
	nextPID   int
	seq       int
	nextWin   uint64
	cursor    desktop.Point
	fg        desktop.Handle
	// firing is the due time of the effect being applied, if any.
	firing  time.Time
	buttons map[desktop.MouseButton]bool
	closed  bool
}

type scheduled struct {
	at  time.Time
	fn  func()
	seq int
}

type process struct {
	start   time.Time
	app     *AppProfile
	exe     string
	cmdline string
	pid     int
	ppid    int
	exited  bool
	// persistent processes outlive their windows (shell and app hosts).
	persistent bool
}

// press is an in-progress mouse button press.
type press struct {
	stroke *stroke
	node   *node
	window desktop.Handle
	button desktop.MouseButton
}

var _ desktop.Desktop = (*Desktop)(nil)

// Option configures a Desktop.
type Option func(*Desktop)

// WithClock sets the time source used for delayed effects.
func WithClock(clock func() time.Time) Option {
	return func(d *Desktop) { d.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Desktop) { d.logger = logger }
}

// New creates a desktop from a profile. A nil profile uses DefaultProfile.
func New(profile *Profile, opts ...Option) (*Desktop, error) {
	if profile == nil {
		var err error
		if profile, err = DefaultProfile(); err != nil {
			return nil, err
		}
	}
	d := &Desktop{
		clock:   time.Now,
		logger:  zap.NewNop(),
		profile: profile,
		procs:   make(map[int]*process),
		buttons: make(map[desktop.MouseButton]bool),
		nextPID: firstPID,
		nextWin: firstHandle,
	}
	for _, opt := range opts {
		opt(d)
	}
	now := d.clock()
	boot := now.Add(-time.Hour)
	for _, p := range []*process{
		{pid: pidSystem, exe: "System", start: boot, persistent: true},
		{pid: pidServices, ppid: pidSystem, exe: "services.exe", start: boot, persistent: true},
		{pid: pidSvchost, ppid: pidServices, exe: "svchost.exe", start: boot, persistent: true},
		{pid: pidExplorer, exe: "explorer.exe", start: boot, persistent: true},
	} {
		d.procs[p.pid] = p
	}
	primary := d.primaryMonitor()
	d.cursor = primary.Bounds.Center()
	return d, nil
}

// Close implements io.Closer. Later calls fail with a driver error.
func (d *Desktop) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.pending = nil
	return nil
}

// lock acquires the desktop and applies every effect that is due.
func (d *Desktop) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return desktop.DriverErrorf("desktop is closed")
	}
	d.advance()
	return nil
}

// now is the current desktop time. While a scheduled effect is applied it is
// the effect's due time, so chained effects keep their relative timing.
func (d *Desktop) now() time.Time {
	if !d.firing.IsZero() {
		return d.firing
	}
	return d.clock()
}

// after schedules fn to run once delay has elapsed. Callers hold d.mu.
func (d *Desktop) after(delay time.Duration, fn func()) {
	d.seq++
	d.pending = append(d.pending, scheduled{at: d.now().Add(delay), fn: fn, seq: d.seq})
}

func (d *Desktop) advance() {
	for {
		now := d.clock()
		sort.SliceStable(d.pending, func(i, j int) bool {
			if d.pending[i].at.Equal(d.pending[j].at) {
				return d.pending[i].seq < d.pending[j].seq
			}
			return d.pending[i].at.Before(d.pending[j].at)
		})
		if len(d.pending) == 0 || d.pending[0].at.After(now) {
			return
		}
		next := d.pending[0]
		d.pending = d.pending[1:]
		d.firing = next.at
		next.fn()
		d.firing = time.Time{}
	}
}

func (d *Desktop) spawn(exe, cmdline string, ppid int, app *AppProfile) *process {
	p := &process{
		pid:     d.nextPID,
		ppid:    ppid,
		exe:     exe,
		cmdline: cmdline,
		start:   d.now(),
		app:     app,
	}
	d.nextPID += 4
	d.procs[p.pid] = p
	d.logger.Debug("process started", zap.Int("pid", p.pid), zap.String("executable", exe))
	return p
}

func (d *Desktop) exit(p *process) {
	if p == nil || p.exited {
		return
	}
	p.exited = true
	d.logger.Debug("process exited", zap.Int("pid", p.pid), zap.String("executable", p.exe))
	for _, w := range slices.Clone(d.windows) {
		if w.pid == p.pid {
			d.destroy(w)
		}
	}
}

func (d *Desktop) liveProcess(pid int) (*process, bool) {
	p, ok := d.procs[pid]
	if !ok || p.exited {
		return nil, false
	}
	return p, true
}

// host returns the live host process for a packaged app, starting one when
// none is running.
func (d *Desktop) host(exe string) *process {
	for _, p := range d.procs {
		if !p.exited && p.exe == exe {
			return p
		}
	}
	p := d.spawn(exe, exe+" -Embedding", pidSvchost, nil)
	p.persistent = true
	return p
}

func (d *Desktop) newHandle() desktop.Handle {
	h := desktop.Handle(d.nextWin)
	d.nextWin += handleStep
	return h
}

func (d *Desktop) window(h desktop.Handle) (*window, error) {
	for _, w := range d.windows {
		if w.handle == h {
			return w, nil
		}
	}
	return nil, desktop.NotFoundf("window %v does not exist", h)
}

// top returns the top-most window that is shown on screen.
func (d *Desktop) top() *window {
	for _, w := range d.windows {
		if w.visible && w.state != desktop.StateMinimized {
			return w
		}
	}
	return nil
}

func (d *Desktop) foreground() *window {
	w, err := d.window(d.fg)
	if err != nil || !w.visible || w.state == desktop.StateMinimized {
		return nil
	}
	return w
}

// raise moves w to the top of the z-order and gives it the foreground. Its
// owner is raised beneath it, and any dialog w owns is raised above it and
// takes the foreground instead, as a modal dialog would.
func (d *Desktop) raise(w *window) {
	if w.owner != 0 {
		if o, err := d.window(w.owner); err == nil {
			d.bringUp(o)
		}
	}
	d.bringUp(w)
	target := w
	for {
		owned := d.lastOwned(target.handle)
		if owned == nil {
			break
		}
		d.bringUp(owned)
		target = owned
	}
	d.fg = target.handle
}

func (d *Desktop) bringUp(w *window) {
	d.windows = slices.DeleteFunc(d.windows, func(o *window) bool { return o == w })
	d.windows = append([]*window{w}, d.windows...)
}

// lastOwned returns the most recently created window owned by h.
func (d *Desktop) lastOwned(h desktop.Handle) *window {
	var last *window
	for _, o := range d.windows {
		if o.owner == h && (last == nil || o.handle > last.handle) {
			last = o
		}
	}
	return last
}

// lower moves w to the bottom of the z-order, passing the foreground on.
func (d *Desktop) lower(w *window) {
	d.windows = slices.DeleteFunc(d.windows, func(o *window) bool { return o == w })
	d.windows = append(d.windows, w)
	if d.fg == w.handle {
		d.fg = 0
		if t := d.top(); t != nil {
			d.fg = t.handle
		}
	}
}

// add creates a top-level window above the others and activates it.
func (d *Desktop) add(w *window) {
	w.handle = d.newHandle()
	w.created = d.now()
	if w.state == "" {
		w.state = desktop.StateNormal
	}
	w.restore = w.bounds
	d.windows = append([]*window{w}, d.windows...)
	d.fg = w.handle
	if w.owner != 0 {
		if o, err := d.window(w.owner); err == nil {
			o.enabled = false
		}
	}
	d.logger.Debug("window created",
		zap.Stringer("handle", w.handle),
		zap.String("title", w.title),
		zap.Int("pid", w.pid))
}

// destroy removes w and everything it owns. A non-persistent process exits
// once its last window is gone.
func (d *Desktop) destroy(w *window) {
	if w.destroyed {
		return
	}
	w.destroyed = true
	for _, o := range slices.Clone(d.windows) {
		if o.owner == w.handle {
			d.destroy(o)
		}
	}
	d.windows = slices.DeleteFunc(d.windows, func(o *window) bool { return o == w })
	if d.press != nil && d.press.window == w.handle {
		d.press = nil
	}
	if w.owner != 0 {
		if o, err := d.window(w.owner); err == nil {
			if !d.hasOwned(o.handle) {
				o.enabled = true
			}
			if d.fg == w.handle {
				d.fg = o.handle
			}
		}
	}
	if d.fg == w.handle {
		d.fg = 0
		if t := d.top(); t != nil {
			d.fg = t.handle
		}
	}
	d.logger.Debug("window destroyed", zap.Stringer("handle", w.handle), zap.String("title", w.title))

	if w.worker != 0 {
		if p, ok := d.liveProcess(w.worker); ok {
			d.exit(p)
		}
	}
	if p, ok := d.liveProcess(w.pid); ok && !p.persistent {
		for _, o := range d.windows {
			if o.pid == p.pid {
				return
			}
		}
		d.exit(p)
	}
}

func (d *Desktop) hasOwned(h desktop.Handle) bool {
	for _, o := range d.windows {
		if o.owner == h {
			return true
		}
	}
	return false
}

func (d *Desktop) primaryMonitor() MonitorProfile {
	for _, m := range d.profile.Monitors {
		if m.Primary {
			return m
		}
	}
	return d.profile.Monitors[0]
}

func (d *Desktop) virtualScreen() desktop.Rect {
	var r desktop.Rect
	for _, m := range d.profile.Monitors {
		r = r.Union(m.Bounds)
	}
	return r
}

// monitorFor returns the monitor containing the centre of r, falling back to
// the primary monitor.
func (d *Desktop) monitorFor(r desktop.Rect) MonitorProfile {
	c := r.Center()
	for _, m := range d.profile.Monitors {
		if m.Bounds.Contains(c) {
			return m
		}
	}
	return d.primaryMonitor()
}

func (d *Desktop) describe(w *window) string {
	return fmt.Sprintf("%v %q", w.handle, w.title)
}
