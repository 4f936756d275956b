// Copyright 2025 Joseph Cumines
//
// Key chord parsing

package desktop

import (
	"fmt"
	"slices"
	"strings"
)

// Modifier is a modifier key held while the chord's main key is pressed.
type Modifier string

const (
	ModCtrl  Modifier = "ctrl"
	ModAlt   Modifier = "alt"
	ModShift Modifier = "shift"
	ModWin   Modifier = "win"
)

// modifierOrder is the canonical press order.
var modifierOrder = []Modifier{ModCtrl, ModAlt, ModShift, ModWin}

var modifierAliases = map[string]Modifier{
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"alt":     ModAlt,
	"menu":    ModAlt,
	"shift":   ModShift,
	"win":     ModWin,
	"windows": ModWin,
	"meta":    ModWin,
	"super":   ModWin,
	"cmd":     ModWin,
}

// keyAliases maps accepted spellings to canonical key names.
var keyAliases = map[string]string{
	"enter":       "enter",
	"return":      "enter",
	"tab":         "tab",
	"escape":      "escape",
	"esc":         "escape",
	"space":       "space",
	"spacebar":    "space",
	"backspace":   "backspace",
	"back":        "backspace",
	"delete":      "delete",
	"del":         "delete",
	"insert":      "insert",
	"ins":         "insert",
	"home":        "home",
	"end":         "end",
	"pageup":      "pageup",
	"pgup":        "pageup",
	"pagedown":    "pagedown",
	"pgdn":        "pagedown",
	"up":          "up",
	"down":        "down",
	"left":        "left",
	"right":       "right",
	"capslock":    "capslock",
	"numlock":     "numlock",
	"scrolllock":  "scrolllock",
	"printscreen": "printscreen",
	"prtsc":       "printscreen",
	"pause":       "pause",
	"apps":        "apps",
	"plus":        "+",
	"minus":       "-",
	"comma":       ",",
	"period":      ".",
}

// KeyChord is a main key pressed while holding zero or more modifiers. A
// chord with no key presses and releases the modifiers alone (e.g. "win").
type KeyChord struct {
	Key       string     `json:"key,omitempty"`
	Modifiers []Modifier `json:"modifiers,omitempty"`
}

// String returns the canonical form, e.g. "ctrl+shift+s".
func (c KeyChord) String() string {
	parts := make([]string, 0, len(c.Modifiers)+1)
	for _, m := range c.Modifiers {
		parts = append(parts, string(m))
	}
	if c.Key != "" {
		parts = append(parts, c.Key)
	}
	return strings.Join(parts, "+")
}

// Has reports whether the chord holds modifier m.
func (c KeyChord) Has(m Modifier) bool {
	return slices.Contains(c.Modifiers, m)
}

// Is reports whether c equals the chord described by s. Unparseable s never
// matches.
func (c KeyChord) Is(s string) bool {
	o, err := ParseKeyChord(s)
	if err != nil {
		return false
	}
	return c.String() == o.String()
}

// ParseKeyChord parses chords such as "ctrl+a", "alt+f4", "win+r", "enter"
// or "ctrl+shift+s". Names are case-insensitive. A literal plus key is
// written "plus" or as a trailing "+" (e.g. "ctrl++").
func ParseKeyChord(s string) (KeyChord, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	if raw == "" {
		return KeyChord{}, fmt.Errorf("empty key")
	}

	var parts []string
	if raw == "+" {
		parts = []string{"+"}
	} else if strings.HasSuffix(raw, "++") {
		parts = append(strings.Split(strings.TrimSuffix(raw, "++"), "+"), "+")
	} else {
		parts = strings.Split(raw, "+")
	}

	var (
		chord KeyChord
		mods  = make(map[Modifier]bool)
	)
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return KeyChord{}, fmt.Errorf("invalid key %q", s)
		}
		// a trailing modifier makes a modifier-only chord, e.g. "ctrl+shift"
		if m, ok := modifierAliases[p]; ok {
			mods[m] = true
			continue
		}
		if i != len(parts)-1 {
			return KeyChord{}, fmt.Errorf("invalid key %q: %q is not a modifier", s, p)
		}
		key, err := canonicalKey(p)
		if err != nil {
			return KeyChord{}, fmt.Errorf("invalid key %q: %w", s, err)
		}
		chord.Key = key
	}

	for _, m := range modifierOrder {
		if mods[m] {
			chord.Modifiers = append(chord.Modifiers, m)
		}
	}
	return chord, nil
}

func canonicalKey(p string) (string, error) {
	if k, ok := keyAliases[p]; ok {
		return k, nil
	}
	if len([]rune(p)) == 1 {
		r := []rune(p)[0]
		if r > ' ' && r < 0x7f {
			return p, nil
		}
	}
	if len(p) >= 2 && p[0] == 'f' {
		var n int
		if _, err := fmt.Sscanf(p[1:], "%d", &n); err == nil && fmt.Sprint(n) == p[1:] && n >= 1 && n <= 24 {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown key name %q", p)
}
