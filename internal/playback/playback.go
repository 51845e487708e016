// Package playback schedules synthesized audio for gapless sequential output.
package playback

// Buffer is decoded audio ready to be scheduled, one sample slice per channel.
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// NewBuffer wraps de-interleaved samples.
func NewBuffer(channels [][]float32, sampleRate int) *Buffer {
	return &Buffer{SampleRate: sampleRate, Channels: channels}
}

// Frames returns the number of sample frames in the buffer.
func (b *Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playing time in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Source is a scheduled or playing buffer.
type Source interface {
	// Stop cancels the source. A stopped source never renders again and
	// its completion callback does not fire.
	Stop()
}

// Context is an audio output with its own clock.
type Context interface {
	// CurrentTime returns seconds of audio rendered since the context opened.
	CurrentTime() float64
	// Start schedules buf to begin at the absolute context time at. onEnded
	// runs once after the last frame has been rendered.
	Start(buf *Buffer, at float64, onEnded func()) Source
	Close() error
}
