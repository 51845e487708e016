package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// CaptureSampleRate is the rate microphone audio is sent at.
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the rate synthesized audio arrives at.
	PlaybackSampleRate = 24000

	pcmScale = 32768
)

// PCMMimeType returns the MIME descriptor for raw PCM16 at the given rate.
func PCMMimeType(sampleRate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}

// EncodePCM16 converts float samples in [-1, 1] to little-endian PCM16.
// Out of range input is clamped.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Round(float64(s) * pcmScale)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// DecodePCM16 converts little-endian PCM16 bytes to normalized floats.
// A trailing odd byte is ignored.
func DecodePCM16(data []byte) []float32 {
	out := make([]float32, len(data)/2)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(s) / pcmScale
	}
	return out
}

// Deinterleave splits interleaved samples into one slice per channel. Samples
// that do not make up a whole frame are dropped.
func Deinterleave(samples []float32, channels int) [][]float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(samples) / channels
	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, frames)
	}
	for f := 0; f < frames; f++ {
		for ch := 0; ch < channels; ch++ {
			out[ch][f] = samples[f*channels+ch]
		}
	}
	return out
}

// downmixInterleaved averages interleaved channels down to mono. Mono input is
// copied so callers may reuse the device buffer.
func downmixInterleaved(input []float32, channels, frames int) []float32 {
	out := make([]float32, frames)
	if channels <= 1 {
		copy(out, input[:frames])
		return out
	}
	for f := 0; f < frames; f++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += input[f*channels+ch]
		}
		out[f] = sum / float32(channels)
	}
	return out
}
