package playback

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/petems/freshscan/internal/audio"
	"github.com/petems/freshscan/internal/metrics"
	"github.com/rs/zerolog"
)

// ErrNoOutput is returned when audio arrives while no output is attached.
var ErrNoOutput = errors.New("no audio output attached")

type Config struct {
	SampleRate int
	Channels   int
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
}

// Scheduler plays buffers back to back in arrival order. It owns the attached
// output context and every source it has started on it.
type Scheduler struct {
	sampleRate int
	channels   int
	metrics    *metrics.Metrics
	log        zerolog.Logger

	mu       sync.Mutex
	output   Context
	cursor   float64
	inflight map[uint64]Source
	nextID   uint64
}

func NewScheduler(cfg Config) *Scheduler {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.PlaybackSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &Scheduler{
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		metrics:    cfg.Metrics,
		log:        cfg.Logger,
		inflight:   make(map[uint64]Source),
	}
}

// Attach hands the scheduler the output context for a new session. The
// cursor starts at zero.
func (s *Scheduler) Attach(output Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output = output
	s.cursor = 0
}

// ScheduleBase64 decodes a base64 PCM16 payload and schedules it.
func (s *Scheduler) ScheduleBase64(payload string) (float64, error) {
	pcm, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to decode audio payload: %w", err)
	}
	return s.Schedule(pcm)
}

// Schedule decodes little-endian PCM16 and starts it at
// max(cursor, current output time), returning the start time. The cursor
// then advances by the buffer duration.
func (s *Scheduler) Schedule(pcm []byte) (float64, error) {
	samples := audio.DecodePCM16(pcm)
	buf := NewBuffer(audio.Deinterleave(samples, s.channels), s.sampleRate)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.output == nil {
		return 0, ErrNoOutput
	}

	now := s.output.CurrentTime()
	start := s.cursor
	if now > start {
		if s.cursor > 0 && s.metrics != nil {
			s.metrics.PlaybackUnderrun.Inc()
		}
		start = now
	}

	if buf.Frames() == 0 {
		return start, nil
	}

	s.nextID++
	id := s.nextID
	src := s.output.Start(buf, start, func() { s.finished(id) })
	s.inflight[id] = src
	s.cursor = start + buf.Duration()

	if s.metrics != nil {
		s.metrics.ChunksScheduled.Inc()
		s.metrics.PlaybackBacklog.Set(s.cursor - now)
	}
	s.log.Debug().
		Float64("start", start).
		Float64("duration", buf.Duration()).
		Int("in_flight", len(s.inflight)).
		Msg("Scheduled audio")

	return start, nil
}

func (s *Scheduler) finished(id uint64) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

// Reset stops every scheduled or playing source, forgets them and rewinds
// the cursor. It is the only way queued audio is cancelled.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, src := range s.inflight {
		src.Stop()
		delete(s.inflight, id)
	}
	s.cursor = 0
	if s.metrics != nil {
		s.metrics.PlaybackBacklog.Set(0)
	}
}

// Release detaches and closes the output context.
func (s *Scheduler) Release() error {
	s.mu.Lock()
	output := s.output
	s.output = nil
	s.mu.Unlock()

	if output == nil {
		return nil
	}
	return output.Close()
}

// Cursor returns the next free start time.
func (s *Scheduler) Cursor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Pending returns the number of sources scheduled or playing.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// Backlog returns the seconds of audio queued ahead of the output clock.
func (s *Scheduler) Backlog() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.output == nil {
		return 0
	}
	if b := s.cursor - s.output.CurrentTime(); b > 0 {
		return b
	}
	return 0
}
