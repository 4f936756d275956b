// Copyright 2025 Joseph Cumines
//
// Desktop model unit tests

package desktop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestParseHandle(t *testing.T) {
	tests := []struct {
		in      string
		want    Handle
		wantErr bool
	}{
		{in: "0x1A2B", want: 0x1A2B},
		{in: "0x1a2b", want: 0x1A2B},
		{in: "6699", want: 6699},
		{in: " 0X10 ", want: 16},
		{in: "0x", wantErr: true},
		{in: "0", wantErr: true},
		{in: "notepad", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseHandle(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseHandle(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseHandle(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHandle_JSONRoundTrip(t *testing.T) {
	w := Window{Handle: 0xFFFFFFFFFFFF0001, Title: "Untitled - Notepad"}
	b, err := json.Marshal(w)
	if err != nil {
		t.Fatal(err)
	}
	var got Window
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got.Handle != w.Handle {
		t.Errorf("handle = %v, want %v (json %s)", got.Handle, w.Handle, b)
	}
}

func TestRect(t *testing.T) {
	r := Rect{X: 10, Y: 20, Width: 100, Height: 50}
	if c := r.Center(); c != (Point{X: 60, Y: 45}) {
		t.Errorf("Center = %v", c)
	}
	if !r.Contains(Point{X: 10, Y: 20}) || r.Contains(Point{X: 110, Y: 20}) {
		t.Error("Contains edge handling is wrong")
	}
	u := r.Union(Rect{X: -50, Y: 0, Width: 10, Height: 10})
	if u != (Rect{X: -50, Y: 0, Width: 160, Height: 70}) {
		t.Errorf("Union = %v", u)
	}
	if got := r.Intersect(Rect{X: 200, Y: 200, Width: 5, Height: 5}); !got.Empty() {
		t.Errorf("Intersect of disjoint rects = %v", got)
	}
	if got := r.Clamp(Point{X: 500, Y: -5}); got != (Point{X: 109, Y: 20}) {
		t.Errorf("Clamp = %v", got)
	}
}

func TestRect_ClampProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("clamped point lies inside the rectangle", prop.ForAll(
		func(x, y, w, h, px, py int) bool {
			r := Rect{X: x, Y: y, Width: w, Height: h}
			return r.Contains(r.Clamp(Point{X: px, Y: py}))
		},
		gen.IntRange(-4000, 4000),
		gen.IntRange(-4000, 4000),
		gen.IntRange(1, 4000),
		gen.IntRange(1, 4000),
		gen.IntRange(-10000, 10000),
		gen.IntRange(-10000, 10000),
	))

	properties.Property("points inside are unchanged", prop.ForAll(
		func(w, h, dx, dy int) bool {
			r := Rect{X: 0, Y: 0, Width: w, Height: h}
			p := Point{X: dx % w, Y: dy % h}
			return r.Clamp(p) == p
		},
		gen.IntRange(1, 4000),
		gen.IntRange(1, 4000),
		gen.IntRange(0, 10000),
		gen.IntRange(0, 10000),
	))

	properties.TestingRun(t)
}

func TestVirtualScreen(t *testing.T) {
	got := VirtualScreen([]Monitor{
		{Bounds: Rect{X: 0, Y: 0, Width: 1920, Height: 1080}, Primary: true},
		{Bounds: Rect{X: 1920, Y: 0, Width: 1280, Height: 1024}},
	})
	if got != (Rect{X: 0, Y: 0, Width: 3200, Height: 1080}) {
		t.Errorf("VirtualScreen = %v", got)
	}
}

func TestParseKeyChord(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "ctrl+a", want: "ctrl+a"},
		{in: "Ctrl+Shift+S", want: "ctrl+shift+s"},
		{in: "shift+ctrl+s", want: "ctrl+shift+s"},
		{in: "control+c", want: "ctrl+c"},
		{in: "alt+F4", want: "alt+f4"},
		{in: "win+r", want: "win+r"},
		{in: "Enter", want: "enter"},
		{in: "return", want: "enter"},
		{in: "esc", want: "escape"},
		{in: "win", want: "win"},
		{in: "ctrl++", want: "ctrl++"},
		{in: "ctrl+plus", want: "ctrl++"},
		{in: "f24", want: "f24"},
		{in: "f25", wantErr: true},
		{in: "f01", wantErr: true},
		{in: "ctrl+", wantErr: true},
		{in: "a+ctrl", wantErr: true},
		{in: "hyper+x", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseKeyChord(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseKeyChord(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got.String() != tt.want {
			t.Errorf("ParseKeyChord(%q) = %q, want %q", tt.in, got.String(), tt.want)
		}
	}
}

func TestParseKeyChord_CanonicalFormIsStable(t *testing.T) {
	properties := gopter.NewProperties(nil)

	mods := []string{"ctrl", "alt", "shift", "win"}
	properties.Property("String output parses back to itself", prop.ForAll(
		func(mask int, key rune) bool {
			s := ""
			for i, m := range mods {
				if mask&(1<<i) != 0 {
					s += m + "+"
				}
			}
			s += string(key)
			c, err := ParseKeyChord(s)
			if err != nil {
				return false
			}
			again, err := ParseKeyChord(c.String())
			return err == nil && again.String() == c.String()
		},
		gen.IntRange(0, 15),
		gen.RuneRange('a', 'z'),
	))

	properties.TestingRun(t)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{err: NotFoundf("window %v", Handle(1)), want: KindTargetNotFound},
		{err: fmt.Errorf("wrapped: %w", PermissionDeniedf("elevated")), want: KindPermissionDenied},
		{err: context.DeadlineExceeded, want: KindTimeout},
		{err: fmt.Errorf("poll: %w", context.DeadlineExceeded), want: KindTimeout},
		{err: errors.New("boom"), want: KindDriverError},
		{err: nil, want: ""},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestWrap_PreservesClassification(t *testing.T) {
	inner := InvalidArgumentf("x", "must be positive")
	err := Wrap(KindDriverError, inner, "move failed")
	if KindOf(err) != KindInvalidArgument || FieldOf(err) != "x" {
		t.Errorf("Wrap reclassified: %v", err)
	}
	err = Wrap(KindDialogError, errors.New("denied"), "save")
	if KindOf(err) != KindDialogError {
		t.Errorf("KindOf = %v", KindOf(err))
	}
	if got := err.Error(); got != "DialogError: save: denied" {
		t.Errorf("Error() = %q", got)
	}
}

func TestElement_WalkAndFind(t *testing.T) {
	root := Element{ID: "1", ControlType: "Window", Children: []Element{
		{ID: "2", ControlType: "ToolBar", Children: []Element{
			{ID: "3", ControlType: "Button", Name: "Pencil"},
		}},
		{ID: "4", ControlType: "Pane"},
	}}
	var order []string
	root.Walk(func(el Element, _ int) bool {
		order = append(order, el.ID)
		return true
	})
	if fmt.Sprint(order) != "[1 2 3 4]" {
		t.Errorf("walk order = %v", order)
	}
	if el, ok := root.Find("3"); !ok || el.Name != "Pencil" {
		t.Errorf("Find(3) = %v, %v", el, ok)
	}
	if _, ok := root.Find("9"); ok {
		t.Error("Find(9) should fail")
	}
}
