//go:build !linux && !darwin

package hotkey

import "fmt"

// New reports that global hotkeys are unavailable on this platform.
func New() (Manager, error) {
	return nil, fmt.Errorf("global hotkeys are not supported on this platform")
}
