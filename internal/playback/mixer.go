package playback

import (
	"math"
	"sync"
)

// Mixer is a sample-accurate software timeline. Its clock advances only as
// Render is called, so it can be driven by a device callback or by tests.
type Mixer struct {
	sampleRate int

	mu       sync.Mutex
	position int64 // frames rendered
	sources  []*mixSource
	closed   bool
}

type mixSource struct {
	mixer   *Mixer
	start   int64
	samples []float32
	stopped bool
	onEnded func()
}

// NewMixer returns a mono mixer running at sampleRate.
func NewMixer(sampleRate int) *Mixer {
	return &Mixer{sampleRate: sampleRate}
}

// CurrentTime returns seconds rendered so far.
func (m *Mixer) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.position) / float64(m.sampleRate)
}

// Start implements Context. Multi-channel buffers are averaged to mono and a
// start time in the past plays immediately.
func (m *Mixer) Start(buf *Buffer, at float64, onEnded func()) Source {
	src := &mixSource{
		mixer:   m,
		start:   int64(math.Round(at * float64(m.sampleRate))),
		samples: downmix(buf),
		onEnded: onEnded,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		src.stopped = true
		return src
	}
	if src.start < m.position {
		src.start = m.position
	}
	m.sources = append(m.sources, src)
	return src
}

// Render fills out with the next len(out) frames of the timeline.
func (m *Mixer) Render(out []float32) {
	for i := range out {
		out[i] = 0
	}

	m.mu.Lock()
	from := m.position
	to := from + int64(len(out))

	var ended []func()
	live := m.sources[:0]
	for _, src := range m.sources {
		if src.stopped {
			continue
		}

		end := src.start + int64(len(src.samples))
		lo := max(src.start, from)
		hi := min(end, to)
		for f := lo; f < hi; f++ {
			out[f-from] += src.samples[f-src.start]
		}

		if end <= to {
			if src.onEnded != nil {
				ended = append(ended, src.onEnded)
			}
			continue
		}
		live = append(live, src)
	}
	for i := len(live); i < len(m.sources); i++ {
		m.sources[i] = nil
	}
	m.sources = live
	m.position = to
	m.mu.Unlock()

	for i, s := range out {
		if s > 1 {
			out[i] = 1
		} else if s < -1 {
			out[i] = -1
		}
	}

	for _, fn := range ended {
		fn()
	}
}

// Scheduled returns the number of sources waiting or playing.
func (m *Mixer) Scheduled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sources)
}

// Close stops every source. Later Start calls return stopped sources.
func (m *Mixer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, src := range m.sources {
		src.stopped = true
	}
	m.sources = nil
	m.closed = true
	return nil
}

func (s *mixSource) Stop() {
	s.mixer.mu.Lock()
	s.stopped = true
	s.mixer.mu.Unlock()
}

func downmix(buf *Buffer) []float32 {
	frames := buf.Frames()
	switch len(buf.Channels) {
	case 0:
		return nil
	case 1:
		out := make([]float32, frames)
		copy(out, buf.Channels[0])
		return out
	}

	out := make([]float32, frames)
	scale := 1 / float32(len(buf.Channels))
	for _, ch := range buf.Channels {
		for i := 0; i < frames && i < len(ch); i++ {
			out[i] += ch[i] * scale
		}
	}
	return out
}
