// Copyright 2025 Joseph Cumines

package server

import (
	"strings"
	"testing"
	"time"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
)

func TestTruncateText(t *testing.T) {
	if got := truncateText("short"); got != "short" {
		t.Errorf("got %q", got)
	}
	long := strings.Repeat("é", maxDisplayTextLen+5)
	got := truncateText(long)
	if !strings.HasSuffix(got, "...") || len([]rune(got)) != maxDisplayTextLen+3 {
		t.Errorf("got %q", got)
	}
}

func TestWindowLine(t *testing.T) {
	w := desktop.Window{
		Handle:     0x1A2B,
		Owner:      0x10,
		Title:      "Save As",
		PID:        1234,
		State:      desktop.StateNormal,
		Bounds:     desktop.Rect{X: 10, Y: 20, Width: 300, Height: 200},
		Visible:    true,
		Foreground: true,
	}
	want := `- 0x1A2B "Save As" (process 1234) at (10, 20) 300x200 [normal, foreground, owned by 0x10]`
	if got := windowLine(w); got != want {
		t.Errorf("windowLine =\n%s\nwant\n%s", got, want)
	}
}

func TestMonitorLine(t *testing.T) {
	m := desktop.Monitor{Index: 1, Name: `\\.\DISPLAY2`, Bounds: desktop.Rect{X: 1920, Width: 1280, Height: 1024}, Scale: 1.25}
	want := `- Monitor 1: \\.\DISPLAY2 1280x1024 at (1920, 0), scale 125%`
	if got := monitorLine(m); got != want {
		t.Errorf("got %q", got)
	}
}

func TestMonitorAt(t *testing.T) {
	ms, _ := singleMonitor(t.Context())
	if m, err := monitorAt(ms, 0); err != nil || !m.Primary {
		t.Errorf("monitorAt(0) = %+v, %v", m, err)
	}
	_, err := monitorAt(ms, 3)
	if desktop.KindOf(err) != desktop.KindInvalidArgument || desktop.FieldOf(err) != "monitorIndex" {
		t.Errorf("monitorAt(3) error = %v", err)
	}
}

func TestMilliseconds(t *testing.T) {
	if got := milliseconds(0, time.Second); got != time.Second {
		t.Errorf("default = %v", got)
	}
	if got := milliseconds(-5, time.Second); got != time.Second {
		t.Errorf("negative = %v", got)
	}
	if got := milliseconds(250, time.Second); got != 250*time.Millisecond {
		t.Errorf("explicit = %v", got)
	}
}

func TestTargetReference(t *testing.T) {
	for _, target := range []string{"", "   "} {
		_, err := targetReference(target)
		if desktop.FieldOf(err) != "target" {
			t.Errorf("targetReference(%q) error = %v", target, err)
		}
	}
	ref, err := targetReference("pid:42")
	if err != nil || ref.PID != 42 {
		t.Errorf("pid ref = %+v, %v", ref, err)
	}
	if _, err := targetReference("pid:abc"); desktop.FieldOf(err) != "target" {
		t.Errorf("bad pid error = %v", err)
	}
}

func TestButtonNamed(t *testing.T) {
	match := buttonNamed("Yes", "6")
	for _, tc := range []struct {
		el   desktop.Element
		want bool
	}{
		{desktop.Element{ControlType: "Button", Name: "yes"}, true},
		{desktop.Element{ControlType: "Button", Name: "&Yes", AutomationID: "6"}, true},
		{desktop.Element{ControlType: "Text", Name: "Yes"}, false},
		{desktop.Element{ControlType: "Button", Name: "No", AutomationID: "7"}, false},
	} {
		if got := match(tc.el); got != tc.want {
			t.Errorf("buttonNamed(%+v) = %v", tc.el, got)
		}
	}
}

func TestCovered(t *testing.T) {
	above := []desktop.Rect{{X: 0, Y: 0, Width: 100, Height: 100}}
	if !covered(desktop.Point{X: 50, Y: 50}, above) {
		t.Error("point inside a higher window should be covered")
	}
	if covered(desktop.Point{X: 150, Y: 50}, above) {
		t.Error("point outside should not be covered")
	}
}
