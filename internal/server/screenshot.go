// Copyright 2025 Joseph Cumines
//
// Screenshot tool handlers

package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/joeycumines/WindowsUseSDK/internal/annotate"
	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
)

type screenshotArgs struct {
	MonitorIndex *int   `json:"monitorIndex,omitempty" jsonschema:"minimum=0" jsonschema_description:"Monitor to capture, for target=monitor (default 0)"`
	Action       string `json:"action" jsonschema:"enum=capture,enum=list_monitors"`
	Target       string `json:"target,omitempty" jsonschema:"enum=screen,enum=window,enum=monitor" jsonschema_description:"What to capture (default screen)"`
	Window       string `json:"window,omitempty" jsonschema_description:"Window to capture, for target=window (handle, pid:N or title)"`
	Format       string `json:"format,omitempty" jsonschema:"enum=png,enum=jpeg,enum=jpg" jsonschema_description:"Image format (default png)"`
	Quality      int    `json:"quality,omitempty" jsonschema:"minimum=0,maximum=100" jsonschema_description:"JPEG quality (default 85)"`
	MaxWidth     int    `json:"maxWidth,omitempty" jsonschema:"minimum=0,maximum=10000" jsonschema_description:"Downscale to at most this many pixels wide"`
	Annotate     bool   `json:"annotate,omitempty" jsonschema_description:"Draw numbered boxes around interactive elements"`
}

func (a screenshotArgs) Validate() error {
	if a.Action != "capture" {
		return nil
	}
	if _, err := annotate.ParseFormat(a.Format); err != nil {
		return err
	}
	if a.Target == "window" {
		if strings.TrimSpace(a.Window) == "" {
			return desktop.InvalidArgumentf("window", "window is required for target=window")
		}
		if _, err := parseTarget("window", a.Window); err != nil {
			return err
		}
	}
	return nil
}

// capture is a resolved capture request.
type capture struct {
	description string
	elements    []desktop.Element
	region      desktop.Rect
}

// handleScreenshotControl handles the screenshot_control tool
func (s *MCPServer) handleScreenshotControl(ctx context.Context, args screenshotArgs) (*Output, error) {
	if args.Action == "list_monitors" {
		return s.listMonitors(ctx)
	}

	var (
		c   capture
		err error
	)
	switch args.Target {
	case "window":
		c, err = s.windowCapture(ctx, args)
	case "monitor":
		c, err = s.monitorCapture(ctx, args)
	default:
		c, err = s.screenCapture(ctx, args)
	}
	if err != nil {
		return nil, err
	}

	img, err := s.desk.Capture(ctx, c.region)
	if err != nil {
		return nil, err
	}
	var labels []annotate.Label
	if args.Annotate {
		img, labels = annotate.Draw(img, desktop.Point{X: c.region.X, Y: c.region.Y}, c.elements)
	}
	img, scale := annotate.Scale(img, args.MaxWidth)

	format, err := annotate.ParseFormat(args.Format)
	if err != nil {
		return nil, err
	}
	data, err := annotate.Encode(img, format, args.Quality)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	lines := []string{fmt.Sprintf("Captured %s: %dx%d %s", c.description, b.Dx(), b.Dy(), format)}
	if scale != 1 {
		lines[0] += fmt.Sprintf(" (scaled %.2fx from %s)", scale, sizeString(c.region))
	}
	if args.Annotate {
		lines = append(lines, fmt.Sprintf("%d labeled element(s):", len(labels)))
		for _, l := range labels {
			lines = append(lines, fmt.Sprintf("[%d] %s %s %q", l.Label, l.ElementID, l.ControlType, l.Name))
		}
	}

	return &Output{
		Data: map[string]any{
			"width":  b.Dx(),
			"height": b.Dy(),
			"format": format,
			"region": c.region,
			"scale":  scale,
			"labels": labels,
		},
		Text:   strings.Join(lines, "\n"),
		Images: []Image{{MIMEType: format.MIMEType(), Data: data}},
	}, nil
}

func (s *MCPServer) windowCapture(ctx context.Context, args screenshotArgs) (capture, error) {
	ref, err := parseTarget("window", args.Window)
	if err != nil {
		return capture{}, err
	}
	w, err := s.registry.Resolve(ctx, ref)
	if err != nil {
		return capture{}, err
	}
	if w.State == desktop.StateMinimized {
		return capture{}, desktop.DriverErrorf("window %s is minimized; restore it before capturing", windowSummary(w))
	}
	screen, err := s.screenBounds(ctx)
	if err != nil {
		return capture{}, err
	}
	c := capture{
		description: "window " + windowSummary(w),
		region:      w.Bounds.Intersect(screen),
	}
	if c.region.Empty() {
		return capture{}, desktop.DriverErrorf("window %s is off screen", windowSummary(w))
	}
	if args.Annotate {
		root, err := s.desk.ElementTree(ctx, w.Handle)
		if err != nil {
			return capture{}, err
		}
		c.elements = annotate.Discoverable(root)
	}
	return c, nil
}

func (s *MCPServer) monitorCapture(ctx context.Context, args screenshotArgs) (capture, error) {
	monitors, err := s.desk.Monitors(ctx)
	if err != nil {
		return capture{}, err
	}
	index := 0
	if args.MonitorIndex != nil {
		index = *args.MonitorIndex
	}
	m, err := monitorAt(monitors, index)
	if err != nil {
		return capture{}, err
	}
	c := capture{description: fmt.Sprintf("monitor %d (%s)", m.Index, m.Name), region: m.Bounds}
	if args.Annotate {
		if c.elements, err = s.visibleElements(ctx, c.region); err != nil {
			return capture{}, err
		}
	}
	return c, nil
}

func (s *MCPServer) screenCapture(ctx context.Context, args screenshotArgs) (capture, error) {
	screen, err := s.screenBounds(ctx)
	if err != nil {
		return capture{}, err
	}
	c := capture{description: "screen", region: screen}
	if args.Annotate {
		if c.elements, err = s.visibleElements(ctx, c.region); err != nil {
			return capture{}, err
		}
	}
	return c, nil
}

// visibleElements returns the discoverable elements of every shown window
// whose center lies in region and is not covered by a window above it.
// Windows whose UI cannot be read, such as elevated ones, are skipped.
func (s *MCPServer) visibleElements(ctx context.Context, region desktop.Rect) ([]desktop.Element, error) {
	ws, err := s.desk.ListWindows(ctx)
	if err != nil {
		return nil, err
	}
	var (
		out   []desktop.Element
		above []desktop.Rect
	)
	for _, w := range ws {
		if !w.Visible || w.State == desktop.StateMinimized || w.Bounds.Empty() {
			continue
		}
		root, err := s.desk.ElementTree(ctx, w.Handle)
		if err == nil {
			for _, el := range annotate.Discoverable(root) {
				p := el.Bounds.Center()
				if region.Contains(p) && !covered(p, above) {
					out = append(out, el)
				}
			}
		} else if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		above = append(above, w.Bounds)
	}
	return out, nil
}

func covered(p desktop.Point, rs []desktop.Rect) bool {
	for _, r := range rs {
		if r.Contains(p) {
			return true
		}
	}
	return false
}
