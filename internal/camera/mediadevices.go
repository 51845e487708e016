package camera

import (
	"fmt"
	"image"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"

	// Registers the platform camera driver.
	_ "github.com/pion/mediadevices/pkg/driver/camera"
)

type mediaDevicesCamera struct {
	width  int
	height int

	mu     sync.Mutex
	track  *mediadevices.VideoTrack
	reader video.Reader
}

// New creates a camera backed by pion/mediadevices. width and height are the
// preferred capture resolution; snapshots are rescaled by the Encoder anyway.
func New(width, height int) Camera {
	return &mediaDevicesCamera{width: width, height: height}
}

func (c *mediaDevicesCamera) Open(deviceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.track != nil {
		return fmt.Errorf("camera already open")
	}

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(constraint *mediadevices.MediaTrackConstraints) {
			if deviceID != "" {
				constraint.DeviceID = prop.StringExact(deviceID)
			}
			constraint.Width = prop.Int(c.width)
			constraint.Height = prop.Int(c.height)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to open camera: %w", err)
	}

	track, err := firstVideoTrack(stream.GetTracks())
	if err != nil {
		return err
	}

	c.track = track
	c.reader = track.NewReader(false)
	return nil
}

// firstVideoTrack keeps the first video track and closes every other track.
// On error all tracks are closed.
func firstVideoTrack(tracks []mediadevices.Track) (*mediadevices.VideoTrack, error) {
	var keep *mediadevices.VideoTrack
	for _, t := range tracks {
		if vt, ok := t.(*mediadevices.VideoTrack); ok && keep == nil {
			keep = vt
			continue
		}
		t.Close()
	}
	if keep == nil {
		return nil, fmt.Errorf("no video track available")
	}
	return keep, nil
}

func (c *mediaDevicesCamera) Snapshot() (image.Image, func(), error) {
	c.mu.Lock()
	reader := c.reader
	c.mu.Unlock()

	if reader == nil {
		return nil, nil, fmt.Errorf("camera not open")
	}

	img, release, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read frame: %w", err)
	}
	if release == nil {
		release = func() {}
	}
	return img, release, nil
}

func (c *mediaDevicesCamera) Close() error {
	c.mu.Lock()
	track := c.track
	c.track = nil
	c.reader = nil
	c.mu.Unlock()

	if track == nil {
		return nil
	}
	return track.Close()
}
