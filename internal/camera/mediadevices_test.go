package camera

import (
	"image"
	"testing"

	"github.com/pion/mediadevices"
)

type fakeSource struct {
	closed int
}

func (s *fakeSource) ID() string { return "fake" }

func (s *fakeSource) Close() error {
	s.closed++
	return nil
}

func (s *fakeSource) Read() (image.Image, func(), error) {
	return image.NewRGBA(image.Rect(0, 0, 2, 2)), func() {}, nil
}

// otherTrack stands in for a non-video track; only Close is exercised.
type otherTrack struct {
	mediadevices.Track
	closed int
}

func (t *otherTrack) Close() error {
	t.closed++
	return nil
}

func TestFirstVideoTrackKeepsFirstAndClosesRest(t *testing.T) {
	first := &fakeSource{}
	second := &fakeSource{}
	other := &otherTrack{}

	tracks := []mediadevices.Track{
		other,
		mediadevices.NewVideoTrack(first, nil),
		mediadevices.NewVideoTrack(second, nil),
	}

	got, err := firstVideoTrack(tracks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != tracks[1] {
		t.Fatal("expected the first video track to be kept")
	}
	if first.closed != 0 {
		t.Fatal("kept track should stay open")
	}
	if second.closed != 1 || other.closed != 1 {
		t.Fatalf("expected extra tracks closed, got video=%d other=%d", second.closed, other.closed)
	}
}

func TestFirstVideoTrackClosesAllWhenNoVideo(t *testing.T) {
	a := &otherTrack{}
	b := &otherTrack{}

	if _, err := firstVideoTrack([]mediadevices.Track{a, b}); err == nil {
		t.Fatal("expected error without a video track")
	}
	if a.closed != 1 || b.closed != 1 {
		t.Fatalf("expected every track closed, got %d and %d", a.closed, b.closed)
	}
}

func TestFirstVideoTrackEmpty(t *testing.T) {
	if _, err := firstVideoTrack(nil); err == nil {
		t.Fatal("expected error for an empty stream")
	}
}
