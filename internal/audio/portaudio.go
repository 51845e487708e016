package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/petems/freshscan/internal/config"
)

// maxInputChannels caps the device channel count; stereo mics are downmixed.
const maxInputChannels = 2

type portAudioCapture struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	seq    uint64
}

// New creates a new PortAudio-based audio capture
func New(cfg config.AudioConfig) (Capture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &portAudioCapture{}, nil
}

func (p *portAudioCapture) Start(deviceID string, sampleRate, blockSize int, onBlock func(Chunk)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		return fmt.Errorf("capture already started")
	}

	device, err := findInputDevice(deviceID)
	if err != nil {
		return err
	}

	if device.MaxInputChannels < 1 {
		return fmt.Errorf("device %s has no input channels", device.Name)
	}
	channels := min(device.MaxInputChannels, maxInputChannels)

	p.seq = 0

	// The callback runs on the PortAudio thread; it must copy out of the
	// device buffer before returning.
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: blockSize,
	}, p.blockHandler(channels, sampleRate, onBlock))
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	p.stream = stream
	return nil
}

// blockHandler converts interleaved device buffers into mono PCM16 chunks
// numbered from 1 within one Start.
func (p *portAudioCapture) blockHandler(channels, sampleRate int, onBlock func(Chunk)) func([]float32) {
	return func(in []float32) {
		frames := len(in) / channels
		mono := downmixInterleaved(in, channels, frames)
		p.seq++
		onBlock(Chunk{
			Data:       EncodePCM16(mono),
			SampleRate: sampleRate,
			Channels:   1,
			Seq:        p.seq,
		})
	}
}

func (p *portAudioCapture) Stop() error {
	p.mu.Lock()
	stream := p.stream
	p.stream = nil
	p.mu.Unlock()

	if stream == nil {
		return nil
	}
	stopErr := stream.Stop()
	if err := stream.Close(); err != nil && stopErr == nil {
		stopErr = err
	}
	return stopErr
}

func (p *portAudioCapture) ListDevices() ([]AudioDevice, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]AudioDevice, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, AudioDevice{
				ID:      d.Name,
				Name:    d.Name,
				Default: d == defaultDevice,
			})
		}
	}

	return result, nil
}

func (p *portAudioCapture) Close() error {
	err := p.Stop()
	portaudio.Terminate()
	return err
}

func findInputDevice(deviceID string) (*portaudio.DeviceInfo, error) {
	if deviceID == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == deviceID {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", deviceID)
}
