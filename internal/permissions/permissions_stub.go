//go:build !darwin

package permissions

// EnsureCapture is a no-op on non-macOS platforms; device open reports
// access problems there.
func EnsureCapture() error {
	return nil
}

// EnsureHotkeys is a no-op on non-macOS platforms.
func EnsureHotkeys() error {
	return nil
}
