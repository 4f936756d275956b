// Copyright 2025 Joseph Cumines

// Package annotate draws numbered element boxes onto screenshots, and
// scales and encodes them for transport.
package annotate

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strconv"
	"strings"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Label ties a number drawn on a screenshot to the element it marks.
type Label struct {
	ElementID   string       `json:"elementId"`
	ControlType string       `json:"controlType"`
	Name        string       `json:"name,omitempty"`
	Bounds      desktop.Rect `json:"bounds"`
	Label       int          `json:"label"`
}

var palette = []color.RGBA{
	{R: 230, G: 25, B: 75, A: 255},
	{R: 60, G: 180, B: 75, A: 255},
	{R: 0, G: 130, B: 200, A: 255},
	{R: 245, G: 130, B: 48, A: 255},
	{R: 145, G: 30, B: 180, A: 255},
	{R: 240, G: 50, B: 230, A: 255},
}

// structural control types are containers, never labeled on their own.
var structural = map[string]bool{
	"Window":    true,
	"Group":     true,
	"ToolBar":   true,
	"MenuBar":   true,
	"StatusBar": true,
	"TitleBar":  true,
}

// Discoverable returns the elements of the trees worth labeling, in tree
// order: named or identified, with an area, and not a pure container.
func Discoverable(roots ...desktop.Element) []desktop.Element {
	var out []desktop.Element
	for _, root := range roots {
		root.Walk(func(el desktop.Element, depth int) bool {
			if depth == 0 || structural[el.ControlType] || el.Bounds.Empty() {
				return true
			}
			if el.Name != "" || el.AutomationID != "" {
				out = append(out, el)
			}
			return true
		})
	}
	return out
}

// Draw copies img, whose top-left pixel is at origin in screen space, and
// marks each element that is at least partly visible with a numbered box.
// Labels run from 1 in the order given.
func Draw(img image.Image, origin desktop.Point, elements []desktop.Element) (*image.RGBA, []Label) {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)

	view := desktop.Rect{X: origin.X, Y: origin.Y, Width: b.Dx(), Height: b.Dy()}
	var labels []Label
	for _, el := range elements {
		if el.Bounds.Intersect(view).Empty() {
			continue
		}
		n := len(labels) + 1
		c := palette[(n-1)%len(palette)]
		r := image.Rect(
			el.Bounds.X-origin.X,
			el.Bounds.Y-origin.Y,
			el.Bounds.X-origin.X+el.Bounds.Width,
			el.Bounds.Y-origin.Y+el.Bounds.Height,
		)
		outline(out, r, c, 2)
		tag(out, r.Min, strconv.Itoa(n), c)
		labels = append(labels, Label{
			Label:       n,
			ElementID:   el.ID,
			ControlType: el.ControlType,
			Name:        el.Name,
			Bounds:      el.Bounds,
		})
	}
	return out, labels
}

func outline(img *image.RGBA, r image.Rectangle, c color.Color, width int) {
	src := image.NewUniform(c)
	for _, edge := range []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width),
		image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y),
		image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y),
	} {
		draw.Draw(img, edge.Intersect(img.Bounds()), src, image.Point{}, draw.Src)
	}
}

// tag draws text in white on a filled box whose top-left corner is at, kept
// inside the image.
func tag(img *image.RGBA, at image.Point, text string, bg color.Color) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil() + 4
	h := face.Height + 2
	box := image.Rect(at.X, at.Y, at.X+w, at.Y+h)
	bounds := img.Bounds()
	if box.Max.X > bounds.Max.X {
		box = box.Sub(image.Pt(box.Max.X-bounds.Max.X, 0))
	}
	if box.Max.Y > bounds.Max.Y {
		box = box.Sub(image.Pt(0, box.Max.Y-bounds.Max.Y))
	}
	if box.Min.X < bounds.Min.X {
		box = box.Add(image.Pt(bounds.Min.X-box.Min.X, 0))
	}
	if box.Min.Y < bounds.Min.Y {
		box = box.Add(image.Pt(0, bounds.Min.Y-box.Min.Y))
	}
	draw.Draw(img, box.Intersect(bounds), image.NewUniform(bg), image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(box.Min.X+2, box.Min.Y+face.Ascent+1),
	}
	d.DrawString(text)
}

// Scale shrinks img so it is at most maxWidth pixels wide, keeping its aspect
// ratio, and returns the factor applied. Images that already fit, and a
// non-positive maxWidth, are returned unchanged with factor 1.
func Scale(img image.Image, maxWidth int) (image.Image, float64) {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img, 1
	}
	factor := float64(maxWidth) / float64(b.Dx())
	h := max(int(float64(b.Dy())*factor+0.5), 1)
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst, factor
}

// Format is an image encoding.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
)

// ParseFormat accepts png, jpeg and jpg, case-insensitively. Empty means PNG.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png":
		return PNG, nil
	case "jpeg", "jpg":
		return JPEG, nil
	}
	return "", desktop.InvalidArgumentf("format", "unsupported image format %q", s)
}

// MIMEType returns the media type of f.
func (f Format) MIMEType() string {
	if f == JPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// Encode encodes img in format f. Quality applies to JPEG only; zero uses 85.
func Encode(img image.Image, f Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	switch f {
	case JPEG:
		if quality <= 0 || quality > 100 {
			quality = 85
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, desktop.Wrap(desktop.KindDriverError, err, "encode jpeg")
		}
	default:
		if err := png.Encode(&buf, img); err != nil {
			return nil, desktop.Wrap(desktop.KindDriverError, err, "encode png")
		}
	}
	return buf.Bytes(), nil
}
