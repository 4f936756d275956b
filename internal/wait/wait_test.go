// Copyright 2025 Joseph Cumines

package wait

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
	"github.com/joeycumines/WindowsUseSDK/internal/desktop/sim"
	"github.com/joeycumines/WindowsUseSDK/internal/registry"
)

func TestPollUntilContext_ChecksImmediately(t *testing.T) {
	calls := 0
	err := PollUntilContext(context.Background(), time.Hour, func(context.Context) (bool, error) {
		calls++
		return true, nil
	})
	if err != nil || calls != 1 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestPollUntilContext_ConditionSucceeds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	callCount := 0
	err := PollUntilContext(ctx, 10*time.Millisecond, func(context.Context) (bool, error) {
		callCount++
		// Succeed on third call
		return callCount >= 3, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestPollUntilContext_ConditionFails(t *testing.T) {
	err := PollUntilContext(context.Background(), 10*time.Millisecond, func(context.Context) (bool, error) {
		return false, errors.New("intentional failure")
	})
	if err == nil || err.Error() != "intentional failure" {
		t.Errorf("expected 'intentional failure', got: %v", err)
	}
}

func TestPollUntilContext_ContextTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := PollUntilContext(ctx, 10*time.Millisecond, func(context.Context) (bool, error) {
		return false, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got: %v", err)
	}
}

func TestPollUntilContext_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := PollUntilContext(ctx, 10*time.Millisecond, func(context.Context) (bool, error) {
		called = true
		return true, nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Errorf("err = %v, called = %v", err, called)
	}
}

// ============================================================================
// Engine
// ============================================================================

func TestEngine_Satisfied(t *testing.T) {
	e := NewEngine(5*time.Millisecond, nil)
	n := 0
	out, err := e.Wait(context.Background(), Condition{
		Name: "third time",
		Check: func(context.Context) (bool, error) {
			n++
			return n == 3, nil
		},
	}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if out.State != StateSatisfied || out.Attempts != 3 {
		t.Errorf("outcome = %+v", out)
	}
}

func TestEngine_NotFoundMeansNotYet(t *testing.T) {
	e := NewEngine(5*time.Millisecond, nil)
	n := 0
	out, err := e.Wait(context.Background(), Condition{
		Name: "appears",
		Check: func(context.Context) (bool, error) {
			n++
			if n < 4 {
				return false, desktop.NotFoundf("not there")
			}
			return true, nil
		},
	}, time.Second)
	if err != nil || out.State != StateSatisfied {
		t.Errorf("outcome = %+v, err = %v", out, err)
	}
}

func TestEngine_TimedOut(t *testing.T) {
	e := NewEngine(5*time.Millisecond, nil)
	out, err := e.Wait(context.Background(), Condition{
		Name:  "never",
		Check: func(context.Context) (bool, error) { return false, nil },
	}, 40*time.Millisecond)
	if out.State != StateTimedOut {
		t.Errorf("state = %s", out.State)
	}
	if desktop.KindOf(err) != desktop.KindTimeout || !strings.Contains(err.Error(), "never") {
		t.Errorf("err = %v", err)
	}
	if out.Attempts < 2 || out.Elapsed < 40*time.Millisecond {
		t.Errorf("outcome = %+v", out)
	}
}

func TestEngine_OtherErrorsSurface(t *testing.T) {
	e := NewEngine(5*time.Millisecond, nil)
	out, err := e.Wait(context.Background(), Condition{
		Name: "denied",
		Check: func(context.Context) (bool, error) {
			return false, desktop.PermissionDeniedf("elevated")
		},
	}, time.Second)
	if desktop.KindOf(err) != desktop.KindPermissionDenied || out.State != StatePending || out.Attempts != 1 {
		t.Errorf("outcome = %+v, err = %v", out, err)
	}
}

func TestEngine_ParentCancelled(t *testing.T) {
	e := NewEngine(5*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	out, err := e.Wait(ctx, Condition{
		Name:  "never",
		Check: func(context.Context) (bool, error) { return false, nil },
	}, time.Minute)
	if !errors.Is(err, context.Canceled) || out.State != StatePending {
		t.Errorf("outcome = %+v, err = %v", out, err)
	}
}

func TestEngine_SetInterval(t *testing.T) {
	e := NewEngine(0, nil)
	if e.Interval() != DefaultInterval {
		t.Errorf("default interval = %v", e.Interval())
	}
	e.SetInterval(time.Second)
	if e.Interval() != time.Second {
		t.Errorf("interval = %v", e.Interval())
	}
}

// ============================================================================
// Conditions
// ============================================================================

func fixed(w desktop.Window, err error) WindowFunc {
	return func(context.Context) (desktop.Window, error) { return w, err }
}

func check(t *testing.T, c Condition) bool {
	t.Helper()
	ok, err := c.Check(context.Background())
	if err != nil {
		t.Fatalf("%s: %v", c.Name, err)
	}
	return ok
}

func TestWindowConditions(t *testing.T) {
	ready := desktop.Window{
		Visible: true, Enabled: true, Responsive: true,
		State:  desktop.StateNormal,
		Bounds: desktop.Rect{Width: 10, Height: 10},
	}
	warming := ready
	warming.Responsive = false
	minimized := ready
	minimized.State = desktop.StateMinimized

	if !check(t, WindowExists("x", fixed(warming, nil))) {
		t.Error("exists")
	}
	if !check(t, WindowVisible("x", fixed(warming, nil))) || check(t, WindowVisible("x", fixed(minimized, nil))) {
		t.Error("visible")
	}
	if !check(t, WindowReady("x", fixed(ready, nil))) || check(t, WindowReady("x", fixed(warming, nil))) {
		t.Error("ready")
	}
	if !check(t, WindowInState("x", fixed(minimized, nil), StateMinimized)) {
		t.Error("minimized")
	}
	if !check(t, WindowInState("x", fixed(minimized, nil), StateHidden)) {
		t.Error("minimized windows are hidden")
	}
	if !check(t, WindowInState("x", fixed(desktop.Window{}, desktop.NotFoundf("gone")), StateHidden)) {
		t.Error("missing windows are hidden")
	}
	if check(t, WindowInState("x", fixed(ready, nil), StateForeground)) {
		t.Error("foreground")
	}
}

type fakeProcesses struct {
	getProcessFunc func(ctx context.Context, pid int) (desktop.Process, error)
}

func (f *fakeProcesses) GetProcess(ctx context.Context, pid int) (desktop.Process, error) {
	if f.getProcessFunc != nil {
		return f.getProcessFunc(ctx, pid)
	}
	return desktop.Process{}, errors.New("GetProcess not implemented")
}

func TestProcessExited(t *testing.T) {
	running := &fakeProcesses{getProcessFunc: func(_ context.Context, pid int) (desktop.Process, error) {
		return desktop.Process{PID: pid}, nil
	}}
	gone := &fakeProcesses{getProcessFunc: func(_ context.Context, pid int) (desktop.Process, error) {
		return desktop.Process{}, desktop.NotFoundf("process %d is not running", pid)
	}}
	if check(t, ProcessExited(running, 10)) || !check(t, ProcessExited(gone, 10)) {
		t.Error("process_exited")
	}
	if _, err := ProcessExited(&fakeProcesses{}, 10).Check(context.Background()); err == nil {
		t.Error("driver errors should surface")
	}
}

func TestParsePredicates(t *testing.T) {
	if p, err := ParsePredicate(" Window_Ready "); err != nil || p != WindowReadyPredicate {
		t.Errorf("ParsePredicate = %q, %v", p, err)
	}
	if _, err := ParsePredicate("window_gone"); desktop.FieldOf(err) != "predicate" {
		t.Errorf("err = %v", err)
	}
	if s, err := ParseStatePredicate("restored"); err != nil || s != StateNormal {
		t.Errorf("ParseStatePredicate = %q, %v", s, err)
	}
	if _, err := ParseStatePredicate("fullscreen"); desktop.FieldOf(err) != "state" {
		t.Errorf("err = %v", err)
	}
}

// ============================================================================
// Against the simulated desktop
// ============================================================================

func TestWaitForNotepadReady(t *testing.T) {
	d, err := sim.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	ctx := context.Background()
	reg := registry.New(d)
	resolve := func(ctx context.Context) (desktop.Window, error) {
		return reg.Resolve(ctx, registry.Reference{Title: "Notepad"})
	}
	e := NewEngine(10*time.Millisecond, nil)

	out, err := e.Wait(ctx, WindowReady("Notepad", resolve), 100*time.Millisecond)
	if out.State != StateTimedOut || desktop.KindOf(err) != desktop.KindTimeout {
		t.Fatalf("before launch: %+v, %v", out, err)
	}

	if _, err := d.StartProcess(ctx, desktop.LaunchSpec{Program: "notepad.exe"}); err != nil {
		t.Fatal(err)
	}
	out, err = e.Wait(ctx, WindowReady("Notepad", resolve), 5*time.Second)
	if err != nil || out.State != StateSatisfied {
		t.Fatalf("after launch: %+v, %v", out, err)
	}
	if out.Elapsed >= 5*time.Second || out.Attempts < 2 {
		t.Errorf("outcome = %+v", out)
	}
}
