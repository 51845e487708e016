package camera

import (
	"image"
	"time"
)

// MIMEType is the descriptor sent with every snapshot.
const MIMEType = "image/jpeg"

// Camera is a continuously readable video source.
type Camera interface {
	Open(deviceID string) error
	// Snapshot returns the current image. The image is only valid until
	// release is called.
	Snapshot() (img image.Image, release func(), err error)
	Close() error
}

// Frame is one encoded still. Data MUST NOT be modified after the frame is
// emitted.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Timestamp time.Time
	Seq       uint64
}

// MIMEType describes the frame for the inference endpoint.
func (f Frame) MIMEType() string {
	return MIMEType
}
