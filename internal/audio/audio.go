package audio

// Capture defines the interface for microphone capture. Blocks are delivered
// through the callback passed to Start, one call per device buffer.
type Capture interface {
	Start(deviceID string, sampleRate, blockSize int, onBlock func(Chunk)) error
	Stop() error
	ListDevices() ([]AudioDevice, error)
	Close() error
}

// AudioDevice represents an audio input device
type AudioDevice struct {
	ID      string
	Name    string
	Default bool
}

// Chunk is a block of PCM16 little-endian samples. Chunks are immutable once
// produced; Seq is the arrival-order position within one session.
type Chunk struct {
	Data       []byte
	SampleRate int
	Channels   int
	Seq        uint64
}

// Samples returns the number of samples per channel in the chunk.
func (c Chunk) Samples() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Data) / 2 / c.Channels
}

// MIMEType describes the chunk for the inference endpoint.
func (c Chunk) MIMEType() string {
	return PCMMimeType(c.SampleRate)
}
