// Copyright 2025 Joseph Cumines

package registry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
)

// Reference identifies a window the way a caller names it: by handle, by the
// process id of a launch, or by a title substring. Only the first non-zero
// field in that order is authoritative; later fields are fallbacks.
type Reference struct {
	Title  string
	Handle desktop.Handle
	PID    int
}

// ParseReference interprets a target string: "0x…" is a window handle,
// "pid:1234" a process id, and anything else a title substring. A "0x…"
// target that is not a valid handle is a title too.
func ParseReference(target string) (Reference, error) {
	s := strings.TrimSpace(target)
	if s == "" {
		return Reference{}, desktop.InvalidArgumentf("target", "target is empty")
	}
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "0x"):
		if h, err := desktop.ParseHandle(s); err == nil {
			return Reference{Handle: h}, nil
		}
	case strings.HasPrefix(lower, "pid:"):
		pid, err := strconv.Atoi(strings.TrimSpace(s[len("pid:"):]))
		if err != nil || pid <= 0 {
			return Reference{}, desktop.InvalidArgumentf("target", "invalid process id in %q", s)
		}
		return Reference{PID: pid}, nil
	}
	return Reference{Title: s}, nil
}

// IsZero reports whether the reference names nothing.
func (r Reference) IsZero() bool {
	return r.Handle == 0 && r.PID == 0 && r.Title == ""
}

func (r Reference) String() string {
	var parts []string
	if r.Handle != 0 {
		parts = append(parts, r.Handle.String())
	}
	if r.PID != 0 {
		parts = append(parts, fmt.Sprintf("pid:%d", r.PID))
	}
	if r.Title != "" {
		parts = append(parts, strconv.Quote(r.Title))
	}
	if len(parts) == 0 {
		return "<none>"
	}
	return strings.Join(parts, " or ")
}
