package hotkey

import (
	"fmt"
	"strings"
)

// Manager defines the interface for global hotkey management
type Manager interface {
	Register(accel string, callback func(pressed bool)) error
	Unregister(accel string) error
	Close() error
}

// Modifier is a bit set of modifier keys.
type Modifier uint8

const (
	ModShift Modifier = 1 << iota
	ModCtrl
	ModAlt
	ModSuper
)

// Accelerator is a parsed hotkey such as "Ctrl+Shift+S".
type Accelerator struct {
	Modifiers Modifier
	// Key is the canonical key name: a single upper-case letter or digit,
	// or one of Space, Enter, Tab, Escape, F1-F12.
	Key string
}

var modifierNames = map[string]Modifier{
	"shift":   ModShift,
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"alt":     ModAlt,
	"option":  ModAlt,
	"super":   ModSuper,
	"cmd":     ModSuper,
	"command": ModSuper,
	"meta":    ModSuper,
}

var namedKeys = map[string]string{
	"space":  "Space",
	"enter":  "Enter",
	"return": "Enter",
	"tab":    "Tab",
	"esc":    "Escape",
	"escape": "Escape",
}

// ParseAccelerator parses "Mod+Mod+Key". Names are case-insensitive and
// exactly one non-modifier key is required.
func ParseAccelerator(accel string) (Accelerator, error) {
	var a Accelerator

	parts := strings.Split(accel, "+")
	for i, raw := range parts {
		part := strings.ToLower(strings.TrimSpace(raw))
		if part == "" {
			return Accelerator{}, fmt.Errorf("invalid accelerator %q", accel)
		}

		if mod, ok := modifierNames[part]; ok && i < len(parts)-1 {
			a.Modifiers |= mod
			continue
		}
		if i != len(parts)-1 {
			return Accelerator{}, fmt.Errorf("unknown modifier %q in %q", raw, accel)
		}

		key, err := canonicalKey(part)
		if err != nil {
			return Accelerator{}, fmt.Errorf("accelerator %q: %w", accel, err)
		}
		a.Key = key
	}

	return a, nil
}

func canonicalKey(name string) (string, error) {
	if key, ok := namedKeys[name]; ok {
		return key, nil
	}
	if len(name) == 1 && (name[0] >= 'a' && name[0] <= 'z' || name[0] >= '0' && name[0] <= '9') {
		return strings.ToUpper(name), nil
	}
	if len(name) >= 2 && name[0] == 'f' {
		var n int
		if _, err := fmt.Sscanf(name[1:], "%d", &n); err == nil && n >= 1 && n <= 12 && fmt.Sprint(n) == name[1:] {
			return fmt.Sprintf("F%d", n), nil
		}
	}
	return "", fmt.Errorf("unsupported key %q", name)
}

// String formats the accelerator back into its canonical form.
func (a Accelerator) String() string {
	var parts []string
	if a.Modifiers&ModCtrl != 0 {
		parts = append(parts, "Ctrl")
	}
	if a.Modifiers&ModAlt != 0 {
		parts = append(parts, "Alt")
	}
	if a.Modifiers&ModShift != 0 {
		parts = append(parts, "Shift")
	}
	if a.Modifiers&ModSuper != 0 {
		parts = append(parts, "Super")
	}
	return strings.Join(append(parts, a.Key), "+")
}
