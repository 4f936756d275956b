// Copyright 2025 Joseph Cumines

// Package desktop defines the capability interfaces through which the MCP
// server drives a Windows desktop, along with the data model shared by every
// backend (the in-memory simulator, and the gRPC agent client).
//
// Backends are split per capability so that drivers and tests depend only on
// what they use:
//   - Windows: enumerate and control top-level windows
//   - Processes: launch and inspect processes
//   - Input: synthesize mouse and keyboard input
//   - Elements: read and edit the accessibility tree of a window
//   - Screen: enumerate monitors and capture pixels
//
// Every method reads live state. Implementations must not cache window or
// process state across calls, and must report a stale handle or exited
// process as an error of kind KindTargetNotFound.
package desktop

import (
	"context"
	"image"
	"io"
)

// Windows enumerates and controls top-level windows.
type Windows interface {
	// ListWindows returns all top-level windows in z-order, top-most first.
	ListWindows(ctx context.Context) ([]Window, error)
	// GetWindow returns the current state of a single window.
	GetWindow(ctx context.Context, h Handle) (Window, error)
	// ForegroundWindow returns the window currently receiving input.
	ForegroundWindow(ctx context.Context) (Window, error)
	SetWindowState(ctx context.Context, h Handle, state WindowState) (Window, error)
	ActivateWindow(ctx context.Context, h Handle) (Window, error)
	MoveWindow(ctx context.Context, h Handle, x, y int) (Window, error)
	ResizeWindow(ctx context.Context, h Handle, width, height int) (Window, error)
	// CloseWindow posts a close request and returns without waiting for the
	// window to be destroyed. The application may respond by showing a
	// confirmation dialog instead.
	CloseWindow(ctx context.Context, h Handle) error
}

// Processes launches and inspects processes.
type Processes interface {
	// StartProcess spawns a process and returns as soon as it has a PID. It
	// does not wait for any window to appear.
	StartProcess(ctx context.Context, spec LaunchSpec) (Process, error)
	GetProcess(ctx context.Context, pid int) (Process, error)
	ListProcesses(ctx context.Context) ([]Process, error)
}

// Input synthesizes mouse and keyboard input. Coordinates are in virtual
// screen space.
type Input interface {
	MoveMouse(ctx context.Context, p Point) error
	MouseButton(ctx context.Context, button MouseButton, down bool) error
	CursorPosition(ctx context.Context) (Point, error)
	PressKeys(ctx context.Context, chord KeyChord) error
	TypeText(ctx context.Context, text string) error
}

// Elements reads and edits the accessibility tree of a window.
type Elements interface {
	// ElementTree returns the root element of the window, with screen space
	// bounds resolved at the time of the call.
	ElementTree(ctx context.Context, h Handle) (Element, error)
	SetElementValue(ctx context.Context, h Handle, elementID, value string) error
}

// Screen enumerates monitors and captures pixels.
type Screen interface {
	Monitors(ctx context.Context) ([]Monitor, error)
	// Capture returns the pixels of the given virtual screen rectangle. The
	// returned image bounds start at (0, 0).
	Capture(ctx context.Context, r Rect) (image.Image, error)
}

// Desktop is the full set of capabilities a backend provides.
type Desktop interface {
	Windows
	Processes
	Input
	Elements
	Screen
	io.Closer
}
