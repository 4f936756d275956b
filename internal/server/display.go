// Copyright 2025 Joseph Cumines
//
// Monitor listing for screenshot_control

package server

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
)

// monitorLine is one line of a monitor listing, e.g.
// - Monitor 0: \\.\DISPLAY1 1920x1080 at (0, 0) (primary), scale 100%
func monitorLine(m desktop.Monitor) string {
	primary := ""
	if m.Primary {
		primary = " (primary)"
	}
	return fmt.Sprintf("- Monitor %d: %s %s at (%d, %d)%s, scale %d%%",
		m.Index, m.Name, sizeString(m.Bounds), m.Bounds.X, m.Bounds.Y, primary, int(math.Round(m.Scale*100)))
}

// listMonitors reads the current display configuration.
func (s *MCPServer) listMonitors(ctx context.Context) (*Output, error) {
	monitors, err := s.desk.Monitors(ctx)
	if err != nil {
		return nil, err
	}
	if len(monitors) == 0 {
		return nil, desktop.DriverErrorf("no monitors are attached")
	}
	lines := make([]string, 0, len(monitors)+1)
	lines = append(lines, fmt.Sprintf("Found %d monitor(s), virtual screen %s:",
		len(monitors), boundsString(desktop.VirtualScreen(monitors))))
	for _, m := range monitors {
		lines = append(lines, monitorLine(m))
	}
	return &Output{
		Data: map[string]any{"monitors": monitors, "virtualScreen": desktop.VirtualScreen(monitors)},
		Text: strings.Join(lines, "\n"),
	}, nil
}

// monitorAt returns the monitor with the given index.
func monitorAt(monitors []desktop.Monitor, index int) (desktop.Monitor, error) {
	for _, m := range monitors {
		if m.Index == index {
			return m, nil
		}
	}
	return desktop.Monitor{}, desktop.InvalidArgumentf("monitorIndex", "monitor %d does not exist (%d attached)", index, len(monitors))
}
