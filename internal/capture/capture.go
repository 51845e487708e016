// Package capture samples the camera and microphone for a scan session.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petems/freshscan/internal/audio"
	"github.com/petems/freshscan/internal/camera"
	"github.com/petems/freshscan/internal/metrics"
	"github.com/petems/freshscan/internal/permissions"
	"github.com/rs/zerolog"
)

// ErrDeviceUnavailable is returned by Open when a capture device is missing,
// busy, or not authorized.
var ErrDeviceUnavailable = errors.New("capture device unavailable")

type Config struct {
	Camera  camera.Camera
	Mic     audio.Capture
	Encoder *camera.Encoder

	CameraDevice  string
	MicDevice     string
	SampleRate    int
	BlockSize     int
	FrameInterval time.Duration

	// Gate reports whether frames may be emitted right now.
	Gate    func() bool
	OnFrame func(f camera.Frame, release func())
	OnAudio func(audio.Chunk)

	// Authorize runs before any device is touched. Defaults to
	// permissions.EnsureCapture.
	Authorize func() error

	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// Manager owns the camera and microphone handles between Open and Close. At
// most one frame is outstanding at a time.
type Manager struct {
	cfg Config
	log zerolog.Logger

	mu     sync.Mutex
	open   bool
	cancel context.CancelFunc
	loop   chan struct{}

	pending  atomic.Uint64 // seq of the unreleased frame, 0 when none
	frameSeq atomic.Uint64
}

func New(cfg Config) *Manager {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = 2 * time.Second
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.CaptureSampleRate
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = 4096
	}
	if cfg.Encoder == nil {
		cfg.Encoder = camera.NewEncoder(640, 480, 60)
	}
	if cfg.Authorize == nil {
		cfg.Authorize = permissions.EnsureCapture
	}
	return &Manager{cfg: cfg, log: cfg.Logger}
}

// Open acquires both devices and starts sampling. Anything acquired before a
// failure is released again.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open {
		return nil
	}

	if err := m.cfg.Authorize(); err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	if err := m.cfg.Camera.Open(m.cfg.CameraDevice); err != nil {
		return fmt.Errorf("%w: camera: %w", ErrDeviceUnavailable, err)
	}

	if err := m.cfg.Mic.Start(m.cfg.MicDevice, m.cfg.SampleRate, m.cfg.BlockSize, m.onBlock); err != nil {
		if cerr := m.cfg.Camera.Close(); cerr != nil {
			m.log.Warn().Err(cerr).Msg("Failed to release camera after microphone error")
		}
		return fmt.Errorf("%w: microphone: %w", ErrDeviceUnavailable, err)
	}

	m.pending.Store(0)
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.loop = make(chan struct{})
	m.open = true

	go m.run(loopCtx, m.loop)

	m.log.Info().
		Dur("frame_interval", m.cfg.FrameInterval).
		Int("sample_rate", m.cfg.SampleRate).
		Msg("Capture started")
	return nil
}

// Close stops sampling and releases both devices. It is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return nil
	}
	m.open = false

	m.cancel()
	<-m.loop

	var errs []error
	if err := m.cfg.Mic.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("microphone: %w", err))
	}
	if err := m.cfg.Camera.Close(); err != nil {
		errs = append(errs, fmt.Errorf("camera: %w", err))
	}
	m.pending.Store(0)

	m.log.Info().Msg("Capture stopped")
	return errors.Join(errs...)
}

// SetMicDevice selects the microphone used by the next Open.
func (m *Manager) SetMicDevice(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.MicDevice = id
}

// ListDevices lists the available microphones.
func (m *Manager) ListDevices() ([]audio.AudioDevice, error) {
	return m.cfg.Mic.ListDevices()
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Manager) tick() {
	if m.cfg.Gate != nil && !m.cfg.Gate() {
		m.skip("inactive")
		return
	}

	seq := m.frameSeq.Add(1)
	if !m.pending.CompareAndSwap(0, seq) {
		m.skip("pending")
		return
	}

	img, release, err := m.cfg.Camera.Snapshot()
	if err != nil {
		m.pending.CompareAndSwap(seq, 0)
		m.log.Warn().Err(err).Msg("Snapshot failed")
		m.skip("snapshot_error")
		return
	}
	data, err := m.cfg.Encoder.Encode(img)
	if release != nil {
		release()
	}
	if err != nil {
		m.pending.CompareAndSwap(seq, 0)
		m.log.Warn().Err(err).Msg("JPEG encode failed")
		m.skip("encode_error")
		return
	}

	w, h := m.cfg.Encoder.Size()
	frame := camera.Frame{
		Data:      data,
		Width:     w,
		Height:    h,
		Timestamp: time.Now(),
		Seq:       seq,
	}
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.FramesCaptured.Inc()
	}
	m.log.Debug().Uint64("seq", seq).Int("bytes", len(data)).Msg("Frame captured")

	var once sync.Once
	m.cfg.OnFrame(frame, func() {
		once.Do(func() { m.pending.CompareAndSwap(seq, 0) })
	})
}

func (m *Manager) onBlock(c audio.Chunk) {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.AudioChunksCapture.Inc()
	}
	if m.cfg.OnAudio != nil {
		m.cfg.OnAudio(c)
	}
}

func (m *Manager) skip(reason string) {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.FrameTicksSkipped.WithLabelValues(reason).Inc()
	}
}
