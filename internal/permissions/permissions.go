package permissions

import "errors"

// ErrCameraDenied and ErrMicrophoneDenied report a capture device the user
// has not authorized.
var (
	ErrCameraDenied     = errors.New("camera permission not granted")
	ErrMicrophoneDenied = errors.New("microphone permission not granted")
)
