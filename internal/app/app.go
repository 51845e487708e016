package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/petems/freshscan/internal/alert"
	"github.com/petems/freshscan/internal/audio"
	"github.com/petems/freshscan/internal/camera"
	"github.com/petems/freshscan/internal/capture"
	"github.com/petems/freshscan/internal/config"
	"github.com/petems/freshscan/internal/live"
	"github.com/petems/freshscan/internal/metrics"
	"github.com/petems/freshscan/internal/notify"
	"github.com/petems/freshscan/internal/playback"
	"github.com/rs/zerolog"
)

// ErrSessionActive is returned by Start when a session is already running.
var ErrSessionActive = errors.New("session already active")

// ErrShutdown is returned once the app has shut down.
var ErrShutdown = errors.New("app is shut down")

var errNoConfig = errors.New("no config loaded")

type State int32

const (
	Idle State = iota
	Connecting
	Active
	Closing
	Closed
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// StatusUpdater is an interface for updating status (e.g., tray icon)
type StatusUpdater interface {
	SetIdle()
	SetConnecting()
	SetActive()
	SetError(msg string)
	SetAlert(hazard bool)
}

type Capture interface {
	Open(ctx context.Context) error
	Close() error
	ListDevices() ([]audio.AudioDevice, error)
	SetMicDevice(id string)
}

type Controller interface {
	Start(ctx context.Context, h live.Handlers) error
	Stop()
	SendFrame(f camera.Frame, release func())
	SendAudio(chunk audio.Chunk)
}

type Scheduler interface {
	Attach(output playback.Context)
	Schedule(pcm []byte) (float64, error)
	Reset()
	Release() error
}

type Credentials interface {
	HasActiveCredential() bool
	PromptForCredential(ctx context.Context) (bool, error)
}

type Config struct {
	Capture     Capture
	Controller  Controller
	Scheduler   Scheduler
	OpenOutput  func() (playback.Context, error)
	Classifier  *alert.Classifier
	Credentials Credentials
	Notifier    notify.Notifier // Optional
	Config      *config.Config
	Metrics     *metrics.Metrics // Optional
	Logger      zerolog.Logger

	StatusUpdater StatusUpdater // Optional - can be nil
}

// App coordinates one scan session at a time. Every state change happens on
// a single loop goroutine; device and network callbacks are posted to it
// tagged with the generation they belong to, and stale ones are dropped.
type App struct {
	capture    Capture
	ctrl       Controller
	sched      Scheduler
	openOutput func() (playback.Context, error)
	classifier *alert.Classifier
	creds      Credentials
	notifier   notify.Notifier
	cfg        *config.Config
	metrics    *metrics.Metrics
	log        zerolog.Logger
	status     StatusUpdater

	ctx     context.Context
	cancel  context.CancelFunc
	mailbox chan func()
	done    chan struct{}
	closing sync.Once

	state atomic.Int32

	// Owned by the loop goroutine.
	gen        uint64
	sessCtx    context.Context
	sessCancel context.CancelFunc
	retried   bool
	hazard    bool
	sessionID string
	slog      zerolog.Logger
	turn      []string
	turnDone  bool
	exiting   bool

	mu         sync.Mutex
	transcript string
}

func New(cfg Config) *App {
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		capture:    cfg.Capture,
		ctrl:       cfg.Controller,
		sched:      cfg.Scheduler,
		openOutput: cfg.OpenOutput,
		classifier: cfg.Classifier,
		creds:      cfg.Credentials,
		notifier:   cfg.Notifier,
		cfg:        cfg.Config,
		metrics:    cfg.Metrics,
		log:        cfg.Logger,
		status:     cfg.StatusUpdater,
		ctx:        ctx,
		cancel:     cancel,
		mailbox:    make(chan func(), 256),
		done:       make(chan struct{}),
	}
	if a.classifier == nil {
		a.classifier = alert.New(nil)
	}
	if a.notifier == nil {
		a.notifier = notify.Nop{}
	}
	a.slog = a.log
	go a.run()
	return a
}

func (a *App) run() {
	defer close(a.done)
	for fn := range a.mailbox {
		fn()
		if a.exiting {
			return
		}
	}
}

// post queues fn on the loop. It is dropped once the loop has exited.
func (a *App) post(fn func()) bool {
	select {
	case <-a.done:
		return false
	default:
	}
	select {
	case a.mailbox <- fn:
		return true
	case <-a.done:
		return false
	}
}

// postGen queues fn unless the session generation has moved on by the time
// it runs.
func (a *App) postGen(gen uint64, fn func()) {
	a.post(func() {
		if gen != a.gen {
			a.log.Debug().Uint64("gen", gen).Uint64("current", a.gen).Msg("Dropping stale session event")
			return
		}
		fn()
	})
}

// do runs fn on the loop and waits for it.
func (a *App) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	if !a.post(func() { reply <- fn() }) {
		return ErrShutdown
	}
	select {
	case err := <-reply:
		return err
	case <-a.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrShutdown
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current session state. Safe from any goroutine.
func (a *App) State() State {
	return State(a.state.Load())
}

// IsActive reports whether media may flow. Capture uses it to gate frames.
func (a *App) IsActive() bool {
	return a.State() == Active
}

func (a *App) setState(s State) {
	prev := State(a.state.Swap(int32(s)))
	if a.metrics != nil {
		a.metrics.SessionState.Set(float64(s))
	}
	if prev != s {
		a.slog.Debug().Stringer("from", prev).Stringer("to", s).Msg("State changed")
	}
}

// Start begins a session. Device failures are returned directly; everything
// after the dial is reported through the status updater.
func (a *App) Start(ctx context.Context) error {
	return a.do(ctx, func() error {
		if a.State() != Idle {
			return ErrSessionActive
		}
		a.retried = false
		a.sessionID = uuid.NewString()
		a.slog = a.log.With().Str("session", a.sessionID).Logger()
		a.slog.Info().Msg("Starting scan session")
		if a.metrics != nil {
			a.metrics.SessionsStarted.Inc()
		}

		if err := a.begin(); err != nil {
			a.reject(err)
			return err
		}
		return nil
	})
}

// reject reports a session that never got past begin.
func (a *App) reject(err error) {
	a.slog.Error().Err(err).Msg("Failed to start session")
	a.countError(errorKind(err))
	if a.status != nil {
		a.status.SetError(userMessage(err))
	}
}

// begin acquires output and capture devices and dials. On error nothing is
// left held and the state is Idle.
func (a *App) begin() error {
	a.gen++
	gen := a.gen
	a.resetTurn()
	ctx := a.newSessionContext()

	out, err := a.openOutput()
	if err != nil {
		a.cancelSession()
		return fmt.Errorf("%w: audio output: %w", capture.ErrDeviceUnavailable, err)
	}
	a.sched.Attach(out)

	if err := a.capture.Open(ctx); err != nil {
		if rerr := a.sched.Release(); rerr != nil {
			a.slog.Warn().Err(rerr).Msg("Failed to release audio output")
		}
		a.cancelSession()
		return err
	}

	a.setState(Connecting)
	if a.status != nil {
		a.status.SetConnecting()
	}

	if !a.creds.HasActiveCredential() {
		a.slog.Info().Msg("No API key configured, prompting")
		go a.prompt(ctx, gen, a.connect)
		return nil
	}
	return a.connect()
}

// connect starts the controller. If it refuses synchronously the session is
// torn down and the error returned with the state back at Idle.
func (a *App) connect() error {
	if err := a.ctrl.Start(a.sessCtx, a.handlers(a.gen)); err != nil {
		a.gen++
		a.teardown()
		a.setState(Idle)
		return fmt.Errorf("%w: %w", live.ErrTransport, err)
	}
	return nil
}

// newSessionContext replaces the session context. It is cancelled by
// teardown, which ends any credential prompt still waiting.
func (a *App) newSessionContext() context.Context {
	a.cancelSession()
	a.sessCtx, a.sessCancel = context.WithCancel(a.ctx)
	return a.sessCtx
}

func (a *App) cancelSession() {
	if a.sessCancel != nil {
		a.sessCancel()
		a.sessCancel = nil
	}
}

// prompt asks for a credential off the loop and continues with next when
// one was entered.
func (a *App) prompt(ctx context.Context, gen uint64, next func() error) {
	ok, err := a.creds.PromptForCredential(ctx)
	a.postGen(gen, func() {
		if a.State() != Connecting {
			return
		}
		if err != nil {
			a.slog.Warn().Err(err).Msg("Credential prompt failed")
		}
		if !ok {
			a.fail(fmt.Errorf("%w: no credential selected", live.ErrPermissionDenied))
			return
		}
		if err := next(); err != nil {
			a.reject(err)
		}
	})
}

func (a *App) handlers(gen uint64) live.Handlers {
	return live.Handlers{
		OnOpen: func() {
			a.postGen(gen, a.handleOpen)
		},
		OnAudio: func(pcm []byte) {
			a.postGen(gen, func() { a.handleAudio(pcm) })
		},
		OnTranscript: func(t live.Transcript) {
			a.postGen(gen, func() { a.handleTranscript(t) })
		},
		OnError: func(err error) {
			a.postGen(gen, func() { a.handleError(err) })
		},
		OnClose: func() {
			a.postGen(gen, a.handleClose)
		},
	}
}

func (a *App) handleOpen() {
	if a.State() != Connecting {
		return
	}
	a.setState(Active)
	a.slog.Info().Msg("Session active")
	if a.status != nil {
		a.status.SetActive()
	}
}

func (a *App) handleAudio(pcm []byte) {
	if a.State() != Active {
		return
	}
	if _, err := a.sched.Schedule(pcm); err != nil {
		a.slog.Warn().Err(err).Msg("Failed to schedule audio")
	}
}

func (a *App) handleTranscript(t live.Transcript) {
	if a.State() != Active {
		return
	}
	if a.metrics != nil {
		a.metrics.TranscriptEvents.Inc()
	}

	if t.Speaker == live.User {
		a.slog.Debug().Str("text", t.Text).Msg("User speech")
		return
	}

	a.appendTurn(t)

	hazard := a.classifier.Classify(t.Text)
	if a.status != nil {
		a.status.SetAlert(hazard)
	}
	if hazard == a.hazard {
		return
	}
	a.hazard = hazard

	matches := a.classifier.Matches(t.Text)
	if hazard {
		a.slog.Warn().Strs("keywords", matches).Str("text", t.Text).Msg("Hazard detected")
		if a.metrics != nil {
			a.metrics.HazardRaised.Inc()
		}
	} else {
		a.slog.Info().Msg("Hazard cleared")
	}
	a.publish(hazard, matches, a.LastTranscript())
}

func (a *App) handleError(err error) {
	switch a.State() {
	case Connecting, Active:
	default:
		return
	}

	if errors.Is(err, live.ErrPermissionDenied) && !a.retried {
		a.retried = true
		a.slog.Warn().Err(err).Msg("Endpoint rejected the credential, prompting once")
		a.countError("permission")
		a.teardown()
		a.resetSession()
		a.gen++
		gen := a.gen
		ctx := a.newSessionContext()
		a.setState(Connecting)
		if a.status != nil {
			a.status.SetConnecting()
		}
		go a.prompt(ctx, gen, a.restart)
		return
	}

	a.fail(err)
}

// restart repeats the start sequence after a credential retry.
func (a *App) restart() error {
	a.slog.Info().Msg("Retrying session with new credential")
	return a.begin()
}

func (a *App) handleClose() {
	switch a.State() {
	case Connecting, Active:
	default:
		return
	}
	a.slog.Info().Msg("Session closed by endpoint")
	a.setState(Closed)
	a.end()
	if a.status != nil {
		a.status.SetIdle()
	}
}

// fail tears the session down and shows a terse message.
func (a *App) fail(err error) {
	a.slog.Error().Err(err).Msg("Session failed")
	a.countError(errorKind(err))
	a.setState(Errored)
	a.end()
	if a.status != nil {
		a.status.SetError(userMessage(err))
	}
}

// Stop ends the current session. It does not wait for teardown, is safe in
// any state and does nothing when there is no session.
func (a *App) Stop() {
	a.post(a.stop)
}

func (a *App) stop() {
	if a.State() == Idle {
		return
	}
	a.slog.Info().Msg("Stopping scan session")
	a.setState(Closing)
	a.end()
	if a.status != nil {
		a.status.SetIdle()
	}
}

// end invalidates the generation, tears everything down and returns to Idle.
func (a *App) end() {
	a.gen++
	a.teardown()
	a.resetSession()
	a.setState(Idle)
}

// resetSession clears per-session alert and turn state. A raised hazard is
// cleared on the status updater and the notifier.
func (a *App) resetSession() {
	a.resetTurn()
	if a.hazard {
		a.hazard = false
		a.publish(false, nil, a.LastTranscript())
		if a.status != nil {
			a.status.SetAlert(false)
		}
	}
}

// teardown runs every release step in order. A failing or panicking step
// does not prevent the next.
func (a *App) teardown() error {
	var errs []error
	step := func(name string, fn func() error) {
		defer func() {
			if r := recover(); r != nil {
				errs = append(errs, fmt.Errorf("%s: panic: %v", name, r))
			}
		}()
		if err := fn(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	step("controller", func() error {
		defer func() {
			if r := recover(); r != nil {
				a.slog.Debug().Interface("panic", r).Msg("Ignoring controller stop panic")
			}
		}()
		a.ctrl.Stop()
		return nil
	})
	step("playback", func() error {
		a.sched.Reset()
		return nil
	})
	step("capture", a.capture.Close)
	step("output", a.sched.Release)
	a.cancelSession()

	err := errors.Join(errs...)
	if err != nil {
		a.slog.Warn().Err(err).Msg("Teardown finished with errors")
	}
	return err
}

// Shutdown stops any session and waits for the loop to exit.
func (a *App) Shutdown(ctx context.Context) error {
	a.closing.Do(func() {
		a.post(func() {
			a.stop()
			a.cancel()
			a.notifier.Close()
			a.exiting = true
		})
	})
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Toggle starts a session when idle and stops it otherwise.
func (a *App) Toggle() {
	if a.State() == Idle {
		if err := a.Start(context.Background()); err != nil && !errors.Is(err, ErrSessionActive) {
			a.log.Error().Err(err).Msg("Failed to start from toggle")
		}
		return
	}
	a.Stop()
}

func (a *App) OnHotkey(pressed bool) {
	mode := config.ModeToggle
	if a.cfg != nil {
		mode = a.cfg.Mode
	}

	switch mode {
	case config.ModePushToTalk:
		if pressed {
			if err := a.Start(context.Background()); err != nil && !errors.Is(err, ErrSessionActive) {
				a.log.Error().Err(err).Msg("Failed to start from hotkey")
			}
		} else {
			a.Stop()
		}
	default:
		if pressed {
			a.Toggle()
		}
	}
}

// LastTranscript returns the model's most recent turn as text.
func (a *App) LastTranscript() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transcript
}

func (a *App) appendTurn(t live.Transcript) {
	if a.turnDone {
		a.turn = nil
		a.turnDone = false
	}
	a.turn = append(a.turn, t.Text)
	a.turnDone = t.Final

	text := strings.TrimSpace(strings.Join(a.turn, ""))
	a.mu.Lock()
	a.transcript = text
	a.mu.Unlock()
}

func (a *App) resetTurn() {
	a.turn = nil
	a.turnDone = false
}

func (a *App) publish(hazard bool, keywords []string, text string) {
	err := a.notifier.Publish(notify.Event{
		SessionID:  a.sessionID,
		Hazard:     hazard,
		Keywords:   keywords,
		Transcript: text,
		Timestamp:  time.Now(),
	})
	if err != nil {
		a.slog.Warn().Err(err).Msg("Failed to publish alert")
	}
}

func (a *App) countError(kind string) {
	if a.metrics != nil {
		a.metrics.SessionErrors.WithLabelValues(kind).Inc()
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, live.ErrPermissionDenied):
		return "permission"
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return "device"
	default:
		return "transport"
	}
}

// userMessage maps an error to the terse text shown to the user.
func userMessage(err error) string {
	switch {
	case errors.Is(err, live.ErrPermissionDenied):
		return "Permission denied"
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return "Camera or microphone unavailable"
	default:
		return "Connection failed"
	}
}

// Tray actions

func (a *App) SetMode(mode string) error {
	return a.do(context.Background(), func() error {
		if a.cfg == nil {
			return errNoConfig
		}
		a.cfg.Mode = mode
		return a.cfg.Save()
	})
}

func (a *App) SetDevice(id string) error {
	return a.do(context.Background(), func() error {
		if a.State() != Idle {
			return fmt.Errorf("cannot change device during a session")
		}
		a.capture.SetMicDevice(id)
		if a.cfg == nil {
			return errNoConfig
		}
		a.cfg.Audio.DeviceID = id
		return a.cfg.Save()
	})
}

func (a *App) ListDevices() ([]audio.AudioDevice, error) {
	return a.capture.ListDevices()
}
