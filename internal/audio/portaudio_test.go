package audio

import (
	"encoding/binary"
	"testing"
)

func collectChunks(t *testing.T, channels int, blocks ...[]float32) []Chunk {
	t.Helper()

	p := &portAudioCapture{}
	var got []Chunk
	handle := p.blockHandler(channels, CaptureSampleRate, func(c Chunk) {
		got = append(got, c)
	})
	for _, b := range blocks {
		handle(b)
	}
	return got
}

func sampleAt(c Chunk, i int) int16 {
	return int16(binary.LittleEndian.Uint16(c.Data[i*2:]))
}

func TestBlockHandlerMonoChunk(t *testing.T) {
	block := []float32{0, 0.5, -0.5, 1}
	chunks := collectChunks(t, 1, block)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.SampleRate != CaptureSampleRate || c.Channels != 1 || c.Seq != 1 {
		t.Fatalf("unexpected chunk header: rate=%d channels=%d seq=%d", c.SampleRate, c.Channels, c.Seq)
	}
	if c.Samples() != len(block) {
		t.Fatalf("expected %d samples, got %d", len(block), c.Samples())
	}

	want := []int16{0, 16384, -16384, 32767}
	for i, w := range want {
		if got := sampleAt(c, i); got != w {
			t.Fatalf("sample %d: expected %d, got %d", i, w, got)
		}
	}
	if c.MIMEType() != "audio/pcm;rate=16000" {
		t.Fatalf("unexpected mime type %q", c.MIMEType())
	}
}

func TestBlockHandlerDownmixesStereo(t *testing.T) {
	block := []float32{
		0.0, 1.0,
		0.5, 0.5,
		-0.5, 0.5,
	}
	chunks := collectChunks(t, 2, block)

	c := chunks[0]
	if c.Channels != 1 || c.Samples() != 3 {
		t.Fatalf("expected 3 mono samples, got channels=%d samples=%d", c.Channels, c.Samples())
	}
	want := []int16{16384, 16384, 0}
	for i, w := range want {
		if got := sampleAt(c, i); got != w {
			t.Fatalf("frame %d: expected %d, got %d", i, w, got)
		}
	}
}

func TestBlockHandlerNumbersChunks(t *testing.T) {
	chunks := collectChunks(t, 1, []float32{0.1}, []float32{0.2}, []float32{0.3})

	for i, c := range chunks {
		if c.Seq != uint64(i+1) {
			t.Fatalf("chunk %d: expected seq %d, got %d", i, i+1, c.Seq)
		}
	}
}

func TestBlockHandlerCopiesDeviceBuffer(t *testing.T) {
	block := []float32{0.25, 0.25}
	chunks := collectChunks(t, 1, block)

	block[0] = -1
	if got := sampleAt(chunks[0], 0); got != 8192 {
		t.Fatalf("chunk changed with device buffer: got %d", got)
	}
}
