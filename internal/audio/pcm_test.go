package audio

import (
	"math"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	input := []float32{0, 0.5, -0.5, 0.25, -1, 0.999, 0.123456, -0.987654}

	got := DecodePCM16(EncodePCM16(input))
	if len(got) != len(input) {
		t.Fatalf("expected %d samples, got %d", len(input), len(got))
	}

	step := 1.0 / 32768
	for i := range input {
		if diff := math.Abs(float64(got[i] - input[i])); diff > step {
			t.Errorf("sample %d: expected %f within %g, got %f", i, input[i], step, got[i])
		}
	}
}

func TestEncodePCM16Clamps(t *testing.T) {
	got := DecodePCM16(EncodePCM16([]float32{1.0, 2.5, -3}))

	if got[0] != float32(math.MaxInt16)/32768 {
		t.Errorf("expected +1.0 to clamp to max, got %f", got[0])
	}
	if got[1] != got[0] {
		t.Errorf("expected 2.5 to clamp to max, got %f", got[1])
	}
	if got[2] != -1 {
		t.Errorf("expected -3 to clamp to -1, got %f", got[2])
	}
}

func TestEncodePCM16LittleEndian(t *testing.T) {
	data := EncodePCM16([]float32{0.5})
	if len(data) != 2 {
		t.Fatalf("expected 2 bytes, got %d", len(data))
	}
	// 0.5 * 32768 = 16384 = 0x4000
	if data[0] != 0x00 || data[1] != 0x40 {
		t.Errorf("expected [0x00 0x40], got %#v", data)
	}
}

func TestDecodePCM16IgnoresTrailingByte(t *testing.T) {
	got := DecodePCM16([]byte{0x00, 0x80, 0x7f})
	if len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
	if got[0] != -1 {
		t.Errorf("expected -1, got %f", got[0])
	}
}

func TestDeinterleaveStereo(t *testing.T) {
	got := Deinterleave([]float32{1, -1, 2, -2, 3, -3, 9}, 2)

	if len(got) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(got))
	}
	left := []float32{1, 2, 3}
	right := []float32{-1, -2, -3}
	for i := range left {
		if got[0][i] != left[i] || got[1][i] != right[i] {
			t.Fatalf("frame %d mismatch: got %f/%f", i, got[0][i], got[1][i])
		}
	}
}

func TestChunkSamplesAndMime(t *testing.T) {
	c := Chunk{Data: make([]byte, 8192), SampleRate: CaptureSampleRate, Channels: 1}

	if c.Samples() != 4096 {
		t.Errorf("expected 4096 samples, got %d", c.Samples())
	}
	if c.MIMEType() != "audio/pcm;rate=16000" {
		t.Errorf("unexpected mime type %q", c.MIMEType())
	}
}
