// Copyright 2025 Joseph Cumines

// Package registry resolves caller references to live windows and tracks the
// processes the server launched.
//
// Nothing about windows is cached: every resolution re-reads the desktop. The
// only state kept is the bookkeeping for launched processes (so that a
// packaged app whose launcher exits straight away can still be followed to
// the window its host process opened) and the time each window was last
// activated through the server, which breaks ties between title matches.
package registry

import (
	"context"
	"path"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
	"go.uber.org/zap"
)

// RecordState is the lifecycle state of a launched process.
type RecordState string

const (
	// StatePending is a launch whose window has not been identified yet.
	StatePending RecordState = "Pending"
	// StateResolved is a launch that has been tied to a top-level window.
	StateResolved RecordState = "ResolvedToWindow"
	// StateExited is a launch that ended without a window, or whose window
	// closed after its process exited.
	StateExited RecordState = "Exited"
)

// ProcessRecord is the bookkeeping for one launch.
type ProcessRecord struct {
	SpawnTime  time.Time
	Command    string
	Executable string
	State      RecordState
	PID        int
	// Window is set once State is StateResolved.
	Window desktop.Handle
}

// Source is the live desktop state the registry reads.
type Source interface {
	ListWindows(ctx context.Context) ([]desktop.Window, error)
	GetWindow(ctx context.Context, h desktop.Handle) (desktop.Window, error)
	ListProcesses(ctx context.Context) ([]desktop.Process, error)
}

// Config tunes stub detection.
type Config struct {
	// Aliases maps an executable base name (e.g. "calc") to other names its
	// window may carry (e.g. "calculator").
	Aliases map[string][]string
	// Grace is how long after spawn a host window may appear for a launch.
	Grace time.Duration
	// Skew tolerates windows stamped slightly before the recorded spawn.
	Skew time.Duration
}

// DefaultConfig returns the stub-detection settings used by the server.
func DefaultConfig() Config {
	return Config{
		Grace: 5 * time.Second,
		Skew:  250 * time.Millisecond,
		Aliases: map[string][]string{
			"calc":     {"calculator"},
			"mspaint":  {"paint"},
			"taskmgr":  {"task manager"},
			"explorer": {"file explorer"},
		},
	}
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source used for spawn times and activation order.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) { r.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(r *Registry) { r.cfg = cfg }
}

// Registry is safe for concurrent use.
type Registry struct {
	src       Source
	clock     func() time.Time
	logger    *zap.Logger
	records   map[int]*ProcessRecord
	activated map[desktop.Handle]time.Time
	cfg       Config
	mu        sync.Mutex
}

// New creates a registry over src.
func New(src Source, opts ...Option) *Registry {
	r := &Registry{
		src:       src,
		clock:     time.Now,
		logger:    zap.NewNop(),
		records:   make(map[int]*ProcessRecord),
		activated: make(map[desktop.Handle]time.Time),
		cfg:       DefaultConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register starts tracking a launch. A zero SpawnTime is set to now.
func (r *Registry) Register(rec ProcessRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.SpawnTime.IsZero() {
		rec.SpawnTime = r.clock()
	}
	if rec.State == "" {
		rec.State = StatePending
	}
	r.records[rec.PID] = &rec
	r.logger.Debug("process registered",
		zap.Int("pid", rec.PID),
		zap.String("executable", rec.Executable),
		zap.Time("spawn_time", rec.SpawnTime))
}

// Record returns the bookkeeping for pid.
func (r *Registry) Record(pid int) (ProcessRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[pid]
	if !ok {
		return ProcessRecord{}, false
	}
	return *rec, true
}

// Records returns every launch in spawn order.
func (r *Registry) Records() []ProcessRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ProcessRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SpawnTime.Equal(out[j].SpawnTime) {
			return out[i].PID < out[j].PID
		}
		return out[i].SpawnTime.Before(out[j].SpawnTime)
	})
	return out
}

// NoteActivated records that h was brought to the foreground by the server.
func (r *Registry) NoteActivated(h desktop.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activated[h] = r.clock()
}

// snapshot is one consistent read of the desktop.
type snapshot struct {
	windows []desktop.Window
	procs   map[int]desktop.Process
}

func (r *Registry) observe(ctx context.Context) (*snapshot, error) {
	windows, err := r.src.ListWindows(ctx)
	if err != nil {
		return nil, desktop.Wrap(desktop.KindDriverError, err, "enumerate windows")
	}
	procs, err := r.src.ListProcesses(ctx)
	if err != nil {
		return nil, desktop.Wrap(desktop.KindDriverError, err, "enumerate processes")
	}
	s := &snapshot{windows: windows, procs: make(map[int]desktop.Process, len(procs))}
	for _, p := range procs {
		s.procs[p.PID] = p
	}
	return s, nil
}

// descends reports whether pid is ancestor or a descendant of it.
func (s *snapshot) descends(pid, ancestor int) bool {
	for i := 0; i < 64 && pid > 0; i++ {
		if pid == ancestor {
			return true
		}
		p, ok := s.procs[pid]
		if !ok || p.ParentPID == pid {
			return false
		}
		pid = p.ParentPID
	}
	return false
}

// Refresh advances every pending launch against the current desktop. It
// implements the observation step of stub detection and is called before
// every process-based resolution.
func (r *Registry) Refresh(ctx context.Context) error {
	s, err := r.observe(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refresh(s)
	return nil
}

func (r *Registry) refresh(s *snapshot) {
	now := r.clock()
	live := make(map[desktop.Handle]bool, len(s.windows))
	for _, w := range s.windows {
		live[w.Handle] = true
	}
	for h := range r.activated {
		if !live[h] {
			delete(r.activated, h)
		}
	}
	claimed := make(map[desktop.Handle]int)
	for _, rec := range r.records {
		if rec.State == StateResolved && live[rec.Window] {
			claimed[rec.Window] = rec.PID
		}
	}

	for _, rec := range r.sortedRecords() {
		_, alive := s.procs[rec.PID]
		switch rec.State {
		case StateResolved:
			if live[rec.Window] {
				continue
			}
			if !alive {
				rec.State, rec.Window = StateExited, 0
				r.logger.Debug("launch window closed",
					zap.Int("pid", rec.PID),
					zap.String("executable", rec.Executable))
				continue
			}
			// the window went away; the launch may have opened another
			rec.State, rec.Window = StatePending, 0
		case StateExited:
			continue
		}

		if w, ok := r.ownWindow(s, rec, claimed); ok {
			r.resolve(rec, w, claimed, "owned by launch")
			continue
		}
		if alive {
			continue
		}
		if w, ok := r.hostWindow(s, rec, claimed); ok {
			r.resolve(rec, w, claimed, "host window")
			continue
		}
		if now.After(rec.SpawnTime.Add(r.cfg.Grace)) {
			rec.State = StateExited
			r.logger.Debug("launch exited without a window",
				zap.Int("pid", rec.PID),
				zap.String("executable", rec.Executable))
		}
	}
}

func (r *Registry) sortedRecords() []*ProcessRecord {
	out := make([]*ProcessRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SpawnTime.Equal(out[j].SpawnTime) {
			return out[i].PID < out[j].PID
		}
		return out[i].SpawnTime.Before(out[j].SpawnTime)
	})
	return out
}

func (r *Registry) resolve(rec *ProcessRecord, w desktop.Window, claimed map[desktop.Handle]int, how string) {
	rec.State = StateResolved
	rec.Window = w.Handle
	claimed[w.Handle] = rec.PID
	r.logger.Debug("launch resolved to window",
		zap.Int("pid", rec.PID),
		zap.Stringer("handle", w.Handle),
		zap.String("title", w.Title),
		zap.Int("window_pid", w.PID),
		zap.String("via", how))
}

// ownWindow finds a top-level window belonging to the launched process or
// one of its children.
func (r *Registry) ownWindow(s *snapshot, rec *ProcessRecord, claimed map[desktop.Handle]int) (desktop.Window, bool) {
	for _, w := range s.windows {
		if !w.Visible || w.Owner != 0 {
			continue
		}
		if by, ok := claimed[w.Handle]; ok && by != rec.PID {
			continue
		}
		if s.descends(w.PID, rec.PID) {
			return w, true
		}
	}
	return desktop.Window{}, false
}

// hostWindow looks for the window a host process opened on behalf of an
// exited launcher: created around the launch, not claimed by another launch,
// and carrying the launcher's identity.
func (r *Registry) hostWindow(s *snapshot, rec *ProcessRecord, claimed map[desktop.Handle]int) (desktop.Window, bool) {
	lo := rec.SpawnTime.Add(-r.cfg.Skew)
	hi := rec.SpawnTime.Add(r.cfg.Grace)
	var best desktop.Window
	found := false
	for _, w := range s.windows {
		if !w.Visible || w.Owner != 0 || w.CreatedAt.Before(lo) || w.CreatedAt.After(hi) {
			continue
		}
		if _, ok := claimed[w.Handle]; ok {
			continue
		}
		if !r.sameIdentity(s, rec, w) {
			continue
		}
		// the earliest window after the launch is the one it produced
		if !found || w.CreatedAt.Before(best.CreatedAt) {
			best, found = w, true
		}
	}
	return best, found
}

func (r *Registry) sameIdentity(s *snapshot, rec *ProcessRecord, w desktop.Window) bool {
	host, ok := s.procs[w.PID]
	if ok && strings.EqualFold(host.Executable, rec.Executable) {
		return true
	}
	if s.descends(w.PID, rec.PID) {
		return true
	}
	hay := strings.ToLower(w.AppID + "\x00" + w.Title)
	if ok {
		hay += "\x00" + strings.ToLower(host.Executable)
	}
	for _, tok := range r.identityTokens(rec.Executable) {
		if strings.Contains(hay, tok) {
			return true
		}
	}
	return false
}

// identityTokens returns the lower-case names an executable may appear under.
// Tokens shorter than three characters match too much to be useful.
func (r *Registry) identityTokens(executable string) []string {
	base := strings.ToLower(path.Base(strings.ReplaceAll(executable, `\`, "/")))
	base = strings.TrimSuffix(base, ".exe")
	var out []string
	for _, tok := range append([]string{base}, r.cfg.Aliases[base]...) {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if len(tok) >= 3 && !slices.Contains(out, tok) {
			out = append(out, tok)
		}
	}
	return out
}

// Resolve returns the live window ref names, or a TargetNotFound error.
func (r *Registry) Resolve(ctx context.Context, ref Reference) (desktop.Window, error) {
	ws, err := r.Matches(ctx, ref)
	if err != nil {
		return desktop.Window{}, err
	}
	return ws[0], nil
}

// Matches returns every live window ref names, best match first. It never
// returns an empty slice without an error.
func (r *Registry) Matches(ctx context.Context, ref Reference) ([]desktop.Window, error) {
	if ref.IsZero() {
		return nil, desktop.InvalidArgumentf("target", "no window reference given")
	}

	if ref.Handle != 0 {
		w, err := r.src.GetWindow(ctx, ref.Handle)
		if err == nil {
			return []desktop.Window{w}, nil
		}
		if !desktop.IsNotFound(err) {
			return nil, err
		}
		if ref.PID == 0 && ref.Title == "" {
			return nil, desktop.NotFoundf("window %v no longer exists", ref.Handle)
		}
	}

	s, err := r.observe(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if ref.PID != 0 {
		r.refresh(s)
		if ws := r.byProcess(s, ref.PID); len(ws) > 0 {
			return ws, nil
		}
		if ref.Title == "" {
			if rec, ok := r.records[ref.PID]; ok && rec.State == StatePending {
				return nil, desktop.NotFoundf("process %d has no window yet", ref.PID)
			}
			return nil, desktop.NotFoundf("no window found for process %d", ref.PID)
		}
	}

	if ws := r.byTitle(s, ref.Title); len(ws) > 0 {
		return ws, nil
	}
	return nil, desktop.NotFoundf("no window matching %s", ref)
}

func (r *Registry) byProcess(s *snapshot, pid int) []desktop.Window {
	var out []desktop.Window
	if rec, ok := r.records[pid]; ok && rec.State == StateResolved {
		for _, w := range s.windows {
			if w.Handle == rec.Window {
				out = append(out, w)
			}
		}
	}
	var rest []desktop.Window
	for _, w := range s.windows {
		if len(out) > 0 && w.Handle == out[0].Handle {
			continue
		}
		if w.Visible && s.descends(w.PID, pid) {
			rest = append(rest, w)
		}
	}
	return append(out, r.rank(s, rest)...)
}

func (r *Registry) byTitle(s *snapshot, title string) []desktop.Window {
	if title == "" {
		return nil
	}
	needle := strings.ToLower(title)
	var out []desktop.Window
	for _, w := range s.windows {
		if w.Visible && w.Title != "" && strings.Contains(strings.ToLower(w.Title), needle) {
			out = append(out, w)
		}
	}
	return r.rank(s, out)
}

// rank orders ws by most recent activation through the server, then the
// foreground window, then z-order (the enumeration order of s).
func (r *Registry) rank(s *snapshot, ws []desktop.Window) []desktop.Window {
	z := make(map[desktop.Handle]int, len(s.windows))
	for i, w := range s.windows {
		z[w.Handle] = i
	}
	sort.SliceStable(ws, func(i, j int) bool {
		ai, aj := r.activated[ws[i].Handle], r.activated[ws[j].Handle]
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		if ws[i].Foreground != ws[j].Foreground {
			return ws[i].Foreground
		}
		return z[ws[i].Handle] < z[ws[j].Handle]
	})
	return ws
}
