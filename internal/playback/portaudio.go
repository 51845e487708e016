package playback

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Output is a Mixer rendered to the default output device.
type Output struct {
	*Mixer

	stream *portaudio.Stream
	once   sync.Once
	err    error
}

// OpenOutput opens and starts a mono PortAudio output stream whose callback
// pulls frames from a fresh Mixer.
func OpenOutput(sampleRate, framesPerBuffer int) (*Output, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	mixer := NewMixer(sampleRate)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), framesPerBuffer, mixer.Render)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start output stream: %w", err)
	}

	return &Output{Mixer: mixer, stream: stream}, nil
}

// Close stops the stream and releases the device. Safe to call repeatedly.
func (o *Output) Close() error {
	o.once.Do(func() {
		o.Mixer.Close()
		if err := o.stream.Stop(); err != nil {
			o.err = fmt.Errorf("failed to stop output stream: %w", err)
		}
		if err := o.stream.Close(); err != nil && o.err == nil {
			o.err = fmt.Errorf("failed to close output stream: %w", err)
		}
		portaudio.Terminate()
	})
	return o.err
}
