// Copyright 2025 Joseph Cumines
//
// Simulated monitors and screen capture

package sim

import (
	"context"
	"image"
	"image/color"
	"slices"
	"strings"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	colorDesktop    = color.RGBA{R: 0, G: 99, B: 177, A: 255}
	colorFrame      = color.RGBA{R: 240, G: 240, B: 240, A: 255}
	colorCaption    = color.RGBA{R: 0, G: 120, B: 215, A: 255}
	colorCaptionOff = color.RGBA{R: 204, G: 204, B: 204, A: 255}
	colorEdit       = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	colorButton     = color.RGBA{R: 225, G: 225, B: 225, A: 255}
	colorText       = color.RGBA{A: 255}

	inkColors = map[string]color.RGBA{
		"black":  {A: 255},
		"white":  {R: 255, G: 255, B: 255, A: 255},
		"red":    {R: 237, G: 28, B: 36, A: 255},
		"green":  {R: 34, G: 177, B: 76, A: 255},
		"blue":   {R: 63, G: 72, B: 204, A: 255},
		"yellow": {R: 255, G: 242, B: 0, A: 255},
	}
)

const captionHeight = 32

// Monitors implements desktop.Screen.
func (d *Desktop) Monitors(ctx context.Context) ([]desktop.Monitor, error) {
	if err := d.lock(ctx); err != nil {
		return nil, err
	}
	defer d.mu.Unlock()
	out := make([]desktop.Monitor, 0, len(d.profile.Monitors))
	for i, m := range d.profile.Monitors {
		wa := m.WorkArea
		if wa.Empty() {
			wa = m.Bounds
		}
		scale := m.Scale
		if scale == 0 {
			scale = 1
		}
		out = append(out, desktop.Monitor{
			Index:    i,
			Name:     m.Name,
			Bounds:   m.Bounds,
			WorkArea: wa,
			Primary:  m.Primary,
			Scale:    scale,
		})
	}
	return out, nil
}

// Capture implements desktop.Screen, rendering each shown window as a framed
// rectangle with its caption and controls.
func (d *Desktop) Capture(ctx context.Context, r desktop.Rect) (image.Image, error) {
	if err := d.lock(ctx); err != nil {
		return nil, err
	}
	defer d.mu.Unlock()
	if r.Empty() {
		return nil, desktop.InvalidArgumentf("region", "capture region %v is empty", r)
	}
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(colorDesktop), image.Point{}, draw.Src)

	// paint bottom-most first
	for _, w := range slices.Backward(d.windows) {
		if !w.visible || w.state == desktop.StateMinimized {
			continue
		}
		d.paintWindow(img, r, w)
	}
	return img, nil
}

func toImage(origin, r desktop.Rect) image.Rectangle {
	return image.Rect(r.X-origin.X, r.Y-origin.Y, r.X-origin.X+r.Width, r.Y-origin.Y+r.Height)
}

func (d *Desktop) paintWindow(img *image.RGBA, origin desktop.Rect, w *window) {
	fill(img, toImage(origin, w.bounds), colorFrame)
	caption := colorCaptionOff
	if d.fg == w.handle {
		caption = colorCaption
	}
	capRect := w.bounds
	capRect.Height = captionHeight
	fill(img, toImage(origin, capRect), caption)
	label(img, toImage(origin, capRect).Min.Add(image.Pt(8, 20)), w.title)

	w.root.walk(func(n *node) bool {
		if n == w.root {
			return true
		}
		ir := toImage(origin, w.abs(n.rel))
		switch {
		case n.canvas && w.doc != nil:
			c := canvasImage(w, n)
			draw.Draw(img, ir, c, image.Point{}, draw.Over)
		case n.editable:
			fill(img, ir, colorEdit)
			label(img, ir.Min.Add(image.Pt(4, 16)), firstLine(n.text(w)))
		case n.controlType == "Button":
			if ink, ok := inkColors[colorAction(n)]; ok {
				fill(img, ir, ink)
			} else {
				fill(img, ir, colorButton)
			}
			label(img, ir.Min.Add(image.Pt(4, 16)), n.name)
		case n.controlType == "Text":
			label(img, ir.Min.Add(image.Pt(4, 16)), firstLine(n.text(w)))
		}
		return true
	})
}

// colorAction returns the palette color a Paint color button selects.
func colorAction(n *node) string {
	if n.parent != nil && n.parent.name == "Colors" {
		return strings.ToLower(n.name)
	}
	return ""
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' || c == '\r' {
			return s[:i]
		}
	}
	return s
}

func fill(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r.Intersect(img.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}

func label(img *image.RGBA, at image.Point, text string) {
	if text == "" {
		return
	}
	dr := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(colorText),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(at.X, at.Y),
	}
	dr.DrawString(text)
}

// renderCanvas returns the pixels of the main window's canvas, which is what
// Paint writes when saving.
func renderCanvas(w *window) image.Image {
	n := w.find(func(n *node) bool { return n.canvas })
	if n == nil {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	return canvasImage(w, n)
}

func canvasImage(w *window, n *node) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, n.rel.Width, n.rel.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(colorEdit), image.Point{}, draw.Src)
	if w.doc == nil {
		return img
	}
	for _, s := range w.doc.strokes {
		ink, ok := inkColors[s.color]
		if !ok || s.tool == "eraser" {
			ink = inkColors["white"]
		}
		width := 1
		switch s.tool {
		case "brush":
			width = 4
		case "eraser":
			width = 8
		}
		for i := range s.points {
			a := s.points[i]
			b := a
			if i+1 < len(s.points) {
				b = s.points[i+1]
			}
			line(img, a, b, width, ink)
		}
	}
	return img
}

// line draws a thick segment by stamping squares along it.
func line(img *image.RGBA, a, b desktop.Point, width int, c color.RGBA) {
	dx, dy := b.X-a.X, b.Y-a.Y
	steps := max(abs(dx), abs(dy), 1)
	half := width / 2
	for i := 0; i <= steps; i++ {
		x := a.X + dx*i/steps
		y := a.Y + dy*i/steps
		fill(img, image.Rect(x-half, y-half, x-half+width, y-half+width), c)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
