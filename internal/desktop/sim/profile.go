// Copyright 2025 Joseph Cumines
//
// Simulated desktop profiles

package sim

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultProfile []byte

// Profile describes the monitors and installed applications of a simulated
// desktop.
type Profile struct {
	// DocumentsDir is where relative save paths are resolved. Defaults to the
	// OS temp directory.
	DocumentsDir string           `yaml:"documentsDir"`
	Monitors     []MonitorProfile `yaml:"monitors"`
	Apps         []AppProfile     `yaml:"apps"`
	// DialogDelay is how long a dialog takes to appear after it is requested.
	DialogDelay time.Duration `yaml:"dialogDelay"`
}

// MonitorProfile describes one display.
type MonitorProfile struct {
	Name     string       `yaml:"name"`
	Bounds   desktop.Rect `yaml:"bounds"`
	WorkArea desktop.Rect `yaml:"workArea"`
	Scale    float64      `yaml:"scale"`
	Primary  bool         `yaml:"primary"`
}

// AppProfile describes an installed application.
type AppProfile struct {
	Stub *StubProfile `yaml:"stub"`
	// Executable is the image name, e.g. notepad.exe.
	Executable string `yaml:"executable"`
	Name       string `yaml:"name"`
	Title      string `yaml:"title"`
	// TitleFormat renders the title once a document has a name, e.g.
	// "%s - Notepad".
	TitleFormat string `yaml:"titleFormat"`
	Class       string `yaml:"class"`
	// Document is "text", "canvas" or empty.
	Document  string           `yaml:"document"`
	Extension string           `yaml:"extension"`
	Aliases   []string         `yaml:"aliases"`
	Elements  []ElementProfile `yaml:"elements"`
	Bounds    desktop.Rect     `yaml:"bounds"`
	// Startup is the delay between process start and window creation.
	Startup time.Duration `yaml:"startup"`
	// Warmup is how long a new window stays unresponsive.
	Warmup   time.Duration `yaml:"warmup"`
	Elevated bool          `yaml:"elevated"`
}

// StubProfile describes a packaged app whose launcher process exits after
// handing off to a host process that owns the real window.
type StubProfile struct {
	Host      string        `yaml:"host"`
	Worker    string        `yaml:"worker"`
	AppID     string        `yaml:"appId"`
	ExitAfter time.Duration `yaml:"exitAfter"`
}

// ElementProfile describes an accessibility node. Bounds are relative to the
// window origin.
type ElementProfile struct {
	Type         string `yaml:"type"`
	Name         string `yaml:"name"`
	AutomationID string `yaml:"automationId"`
	Value        string `yaml:"value"`
	// Action is run when a button is clicked, e.g. "tool:pencil",
	// "color:red", "calc:7", "save", "saveas" or "close".
	Action   string           `yaml:"action"`
	Children []ElementProfile `yaml:"children"`
	Bounds   desktop.Rect     `yaml:"bounds"`
	Editable bool             `yaml:"editable"`
	// Document binds the node's value to the window's document text.
	Document bool `yaml:"document"`
	Canvas   bool `yaml:"canvas"`
	Disabled bool `yaml:"disabled"`
}

// DefaultProfile returns the embedded profile: two monitors, Notepad, Paint,
// Calculator (packaged), and an elevated Task Manager.
func DefaultProfile() (*Profile, error) {
	return ParseProfile(defaultProfile)
}

// LoadProfile reads a YAML profile from disk.
func LoadProfile(path string) (*Profile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	return ParseProfile(b)
}

// ParseProfile decodes and validates a YAML profile.
func ParseProfile(b []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Profile) validate() error {
	if len(p.Monitors) == 0 {
		return fmt.Errorf("profile has no monitors")
	}
	primaries := 0
	for i, m := range p.Monitors {
		if m.Bounds.Empty() {
			return fmt.Errorf("monitor %d has empty bounds", i)
		}
		if m.Primary {
			primaries++
		}
	}
	if primaries != 1 {
		return fmt.Errorf("profile must have exactly one primary monitor, has %d", primaries)
	}
	seen := make(map[string]bool)
	for i := range p.Apps {
		a := &p.Apps[i]
		a.Executable = strings.ToLower(a.Executable)
		if a.Executable == "" {
			return fmt.Errorf("app %d has no executable", i)
		}
		if seen[a.Executable] {
			return fmt.Errorf("duplicate app %s", a.Executable)
		}
		seen[a.Executable] = true
		if a.Bounds.Empty() {
			return fmt.Errorf("app %s has empty bounds", a.Executable)
		}
		if a.Name == "" {
			a.Name = strings.TrimSuffix(a.Executable, filepath.Ext(a.Executable))
		}
		if a.Title == "" {
			a.Title = a.Name
		}
		switch a.Document {
		case "", docText, docCanvas:
		default:
			return fmt.Errorf("app %s has unknown document kind %q", a.Executable, a.Document)
		}
		if a.Stub != nil && a.Stub.Host == "" {
			return fmt.Errorf("app %s stub has no host", a.Executable)
		}
	}
	if p.DialogDelay < 0 {
		return fmt.Errorf("dialogDelay must not be negative")
	}
	return nil
}

// app finds an installed application by image name or alias.
func (p *Profile) app(name string) *AppProfile {
	name = strings.ToLower(name)
	base := strings.TrimSuffix(name, ".exe")
	for i := range p.Apps {
		a := &p.Apps[i]
		if a.Executable == name || strings.TrimSuffix(a.Executable, ".exe") == base {
			return a
		}
		for _, alias := range a.Aliases {
			if strings.ToLower(alias) == base || strings.ToLower(alias) == name {
				return a
			}
		}
	}
	return nil
}
