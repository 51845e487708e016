package live

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/petems/freshscan/internal/audio"
	"github.com/petems/freshscan/internal/camera"
	"github.com/petems/freshscan/internal/metrics"
	"github.com/rs/zerolog"
)

const writeWait = 10 * time.Second

type Config struct {
	Endpoint string
	Session  SessionOptions
	// APIKey is consulted on every dial so a refreshed credential takes
	// effect on retry.
	APIKey      func() string
	SendQueue   int
	DialTimeout time.Duration
	CloseGrace  time.Duration
	Dialer      *websocket.Dialer
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
}

type outbound struct {
	kind    string
	blob    Blob
	release func()
}

// Controller owns at most one open channel at a time. Media sent while the
// channel is not Active is dropped.
type Controller struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	current *session
}

func NewController(cfg Config) *Controller {
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = 32
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.CloseGrace <= 0 {
		cfg.CloseGrace = 250 * time.Millisecond
	}
	if cfg.Dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = cfg.DialTimeout
		cfg.Dialer = &d
	}
	if cfg.APIKey == nil {
		cfg.APIKey = func() string { return "" }
	}
	return &Controller{cfg: cfg, log: cfg.Logger}
}

// Start opens a new channel. It returns once the dial is under way; the
// outcome arrives through h.
func (c *Controller) Start(ctx context.Context, h Handlers) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s := c.current; s != nil && !s.stopped.Load() {
		switch s.State() {
		case Connecting, Active:
			return ErrBusy
		}
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &session{
		cfg:      c.cfg,
		log:      c.log,
		handlers: h,
		ctx:      sctx,
		cancel:   cancel,
		queue:    make(chan outbound, c.cfg.SendQueue),
		done:     make(chan struct{}),
	}
	s.setState(Connecting)
	c.current = s

	go s.run()
	return nil
}

// Stop closes the current channel. It is idempotent, bounded by the close
// grace period, and suppresses every later callback from that channel.
func (c *Controller) Stop() {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s != nil {
		s.stop()
	}
}

// State reports the current channel's state, Idle when there is none.
func (c *Controller) State() State {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil {
		return Idle
	}
	return s.State()
}

// Done is closed once the current channel's goroutines have exited. A new
// channel may be started before the previous one has fully wound down.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.done
}

// SendFrame queues a JPEG snapshot. release runs exactly once, after the
// frame is written or dropped.
func (c *Controller) SendFrame(f camera.Frame, release func()) {
	c.send(outbound{
		kind:    "frame",
		blob:    Blob{MIMEType: f.MIMEType(), Data: f.Data},
		release: release,
	})
}

// SendAudio queues one microphone block. It never blocks.
func (c *Controller) SendAudio(chunk audio.Chunk) {
	c.send(outbound{
		kind: "audio",
		blob: Blob{MIMEType: chunk.MIMEType(), Data: chunk.Data},
	})
}

func (c *Controller) send(m outbound) {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()

	if s == nil || !s.enqueue(m) {
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.MessagesDropped.WithLabelValues(m.kind).Inc()
		}
		m.done()
	}
}

func (m outbound) done() {
	if m.release != nil {
		m.release()
	}
}

type session struct {
	cfg      Config
	log      zerolog.Logger
	handlers Handlers

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan outbound
	done   chan struct{}

	state    atomic.Int32
	stopped  atomic.Bool
	terminal sync.Once

	connMu sync.Mutex
	conn   *websocket.Conn
}

func (s *session) State() State { return State(s.state.Load()) }

func (s *session) setState(st State) {
	s.state.Store(int32(st))
}

func (s *session) enqueue(m outbound) bool {
	if s.stopped.Load() || s.State() != Active {
		return false
	}
	select {
	case s.queue <- m:
		return true
	default:
		return false
	}
}

func (s *session) run() {
	defer close(s.done)
	defer s.drain()
	defer func() {
		if s.stopped.Load() {
			s.setState(Closed)
		}
	}()

	conn, err := s.dial()
	if err != nil {
		if !s.stopped.Load() {
			s.fail(err)
		}
		return
	}

	s.connMu.Lock()
	if s.stopped.Load() {
		s.connMu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.connMu.Unlock()

	setupMsg, err := encodeSetup(s.cfg.Session)
	if err != nil {
		s.fail(fmt.Errorf("%w: %w", ErrTransport, err))
		conn.Close()
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, setupMsg); err != nil {
		s.fail(fmt.Errorf("%w: failed to send setup: %w", ErrTransport, err))
		conn.Close()
		return
	}
	s.log.Debug().Str("model", s.cfg.Session.Model).Msg("Setup sent")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(conn)
	}()

	s.readLoop(conn)
	s.cancel()
	<-writerDone
	conn.Close()
}

func (s *session) dial() (*websocket.Conn, error) {
	key := s.cfg.APIKey()
	if key == "" {
		return nil, fmt.Errorf("%w: no API key configured", ErrPermissionDenied)
	}

	u, err := url.Parse(s.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid endpoint: %w", ErrTransport, err)
	}
	q := u.Query()
	q.Set("key", key)
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.DialTimeout)
	defer cancel()

	s.log.Info().Str("host", u.Host).Msg("Dialing inference endpoint")
	conn, resp, err := s.cfg.Dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, classifyDial(err, resp)
	}
	return conn, nil
}

func classifyDial(err error, resp *http.Response) error {
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: handshake rejected with %s", ErrPermissionDenied, resp.Status)
		}
	}
	return fmt.Errorf("%w: dial failed: %w", ErrTransport, err)
}

// classifyClose maps a read error to nil for an orderly close or to the
// error reported to the caller.
func classifyClose(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			return nil
		case websocket.ClosePolicyViolation:
			return fmt.Errorf("%w: %s", ErrPermissionDenied, ce.Text)
		}
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

func (s *session) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.stopped.Load() {
				return
			}
			if cerr := classifyClose(err); cerr != nil {
				s.fail(cerr)
			} else {
				s.closed()
			}
			return
		}

		in, err := ParseServerMessage(data)
		if err != nil {
			s.log.Warn().Err(err).Msg("Ignoring malformed server message")
			s.countRecv("malformed")
			continue
		}
		s.dispatch(in)
	}
}

func (s *session) dispatch(in Inbound) {
	if in.SetupComplete {
		s.countRecv("setup")
		if s.state.CompareAndSwap(int32(Connecting), int32(Active)) {
			s.log.Info().Msg("Channel open")
			s.emit(func() {
				if s.handlers.OnOpen != nil {
					s.handlers.OnOpen()
				}
			})
		}
	}
	if in.GoAway {
		s.countRecv("go_away")
		s.log.Warn().Msg("Endpoint announced it will close the channel")
	}

	if s.State() != Active {
		if len(in.Audio) > 0 || len(in.Transcripts) > 0 {
			s.log.Debug().Msg("Dropping content received before setup completed")
		}
		return
	}

	for _, pcm := range in.Audio {
		s.countRecv("audio")
		pcm := pcm
		s.emit(func() {
			if s.handlers.OnAudio != nil {
				s.handlers.OnAudio(pcm)
			}
		})
	}
	for _, t := range in.Transcripts {
		s.countRecv("transcript")
		t := t
		s.emit(func() {
			if s.handlers.OnTranscript != nil {
				s.handlers.OnTranscript(t)
			}
		})
	}
	if in.Interrupted {
		s.countRecv("interrupted")
		s.log.Debug().Msg("Model turn interrupted")
	}
}

func (s *session) writeLoop(conn *websocket.Conn) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case m := <-s.queue:
			s.write(conn, m)
		}
	}
}

func (s *session) write(conn *websocket.Conn, m outbound) {
	defer m.done()

	payload, err := encodeRealtimeInput(m.blob)
	if err != nil {
		s.log.Error().Err(err).Str("kind", m.kind).Msg("Failed to encode realtime input")
		s.countDrop(m.kind)
		return
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		s.countDrop(m.kind)
		if !s.stopped.Load() {
			s.fail(fmt.Errorf("%w: write failed: %w", ErrTransport, err))
			conn.Close()
		}
		return
	}

	if mt := s.cfg.Metrics; mt != nil {
		mt.MessagesSent.WithLabelValues(m.kind).Inc()
		mt.BytesSent.Add(float64(len(payload)))
	}
}

// drain releases everything still queued once the session is over.
func (s *session) drain() {
	for {
		select {
		case m := <-s.queue:
			s.countDrop(m.kind)
			m.done()
		default:
			return
		}
	}
}

func (s *session) stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	if st := s.State(); st == Connecting || st == Active {
		s.setState(Closing)
	}
	s.cancel()

	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.CloseGrace)); err != nil {
			s.log.Debug().Err(err).Msg("Close frame not delivered")
		}
		conn.Close()
	}
	s.log.Info().Msg("Channel stopped")
}

func (s *session) fail(err error) {
	s.terminal.Do(func() {
		s.setState(Errored)
		s.log.Error().Err(err).Msg("Channel failed")
		s.emit(func() {
			if s.handlers.OnError != nil {
				s.handlers.OnError(err)
			}
		})
	})
}

func (s *session) closed() {
	s.terminal.Do(func() {
		s.setState(Closed)
		s.log.Info().Msg("Channel closed by endpoint")
		s.emit(func() {
			if s.handlers.OnClose != nil {
				s.handlers.OnClose()
			}
		})
	})
}

func (s *session) emit(fn func()) {
	if s.stopped.Load() {
		return
	}
	fn()
}

func (s *session) countRecv(kind string) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.MessagesRecv.WithLabelValues(kind).Inc()
	}
}

func (s *session) countDrop(kind string) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.MessagesDropped.WithLabelValues(kind).Inc()
	}
}
