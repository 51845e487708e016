package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/petems/freshscan/internal/alert"
	"github.com/petems/freshscan/internal/app"
	"github.com/petems/freshscan/internal/audio"
	"github.com/petems/freshscan/internal/camera"
	"github.com/petems/freshscan/internal/capture"
	"github.com/petems/freshscan/internal/config"
	"github.com/petems/freshscan/internal/credential"
	"github.com/petems/freshscan/internal/hotkey"
	"github.com/petems/freshscan/internal/live"
	"github.com/petems/freshscan/internal/logging"
	"github.com/petems/freshscan/internal/metrics"
	"github.com/petems/freshscan/internal/notify"
	"github.com/petems/freshscan/internal/permissions"
	"github.com/petems/freshscan/internal/playback"
	"github.com/petems/freshscan/internal/tray"
	"github.com/rs/zerolog"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (default: platform config dir)")
	headless := flag.Bool("headless", false, "Run without the tray and start scanning immediately")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("freshscan %s (%s)\n", Version, Commit)
		return
	}

	// Load config from XDG/Library/AppData
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		// Use default logger if config fails to load
		log := logging.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger with configured level
	log := logging.NewWithLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Address, m, log)
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start metrics server")
		}
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer scancel()
			srv.Shutdown(sctx)
		}()
	}

	creds := credential.New(credential.DefaultPath(config.Dir()), log)
	if err := creds.Load(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load credentials")
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.MQTT.Enabled {
		mq := notify.NewMQTT(cfg.MQTT, log)
		cctx, ccancel := context.WithTimeout(ctx, 5*time.Second)
		if err := mq.Connect(cctx); err != nil {
			log.Warn().Err(err).Msg("MQTT broker unreachable, will keep retrying")
		}
		ccancel()
		notifier = mq
	}

	// Initialize audio capture
	mic, err := audio.New(cfg.Audio)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audio")
	}
	defer mic.Close()

	controller := live.NewController(live.Config{
		Endpoint: cfg.Live.Endpoint,
		Session: live.SessionOptions{
			Model:             cfg.Live.Model,
			Voice:             cfg.Live.Voice,
			SystemInstruction: cfg.Live.SystemInstruction,
		},
		APIKey:      creds.APIKey,
		SendQueue:   cfg.Live.SendQueue,
		DialTimeout: cfg.Live.DialTimeout,
		CloseGrace:  cfg.Live.CloseGrace,
		Metrics:     m,
		Logger:      log.With().Str("component", "live").Logger(),
	})

	scheduler := playback.NewScheduler(playback.Config{
		SampleRate: cfg.Audio.PlaybackSampleRate,
		Channels:   1,
		Metrics:    m,
		Logger:     log.With().Str("component", "playback").Logger(),
	})

	// The capture gate reads the coordinator's state, which exists only
	// after the coordinator is built from the capture manager.
	var application *app.App

	captureMgr := capture.New(capture.Config{
		Camera:        camera.New(cfg.Camera.Width, cfg.Camera.Height),
		Mic:           mic,
		Encoder:       camera.NewEncoder(cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.JPEGQuality),
		CameraDevice:  cfg.Camera.DeviceID,
		MicDevice:     cfg.Audio.DeviceID,
		SampleRate:    cfg.Audio.CaptureSampleRate,
		BlockSize:     cfg.Audio.BlockSize,
		FrameInterval: cfg.Camera.FrameInterval,
		Gate:          func() bool { return application != nil && application.IsActive() },
		OnFrame:       controller.SendFrame,
		OnAudio:       controller.SendAudio,
		Metrics:       m,
		Logger:        log.With().Str("component", "capture").Logger(),
	})

	var trayUI *tray.UI
	var status app.StatusUpdater
	if !*headless {
		// Create tray UI first (we'll pass it to app)
		trayUI = tray.New(nil, cfg, log, Version, Commit, cancel) // App reference set below
		status = trayUI
	}

	application = app.New(app.Config{
		Capture:    captureMgr,
		Controller: controller,
		Scheduler:  scheduler,
		OpenOutput: func() (playback.Context, error) {
			out, err := playback.OpenOutput(cfg.Audio.PlaybackSampleRate, cfg.Audio.PlaybackBufferSize)
			if err != nil {
				return nil, err
			}
			return out, nil
		},
		Classifier:    alert.New(cfg.Alert.Keywords),
		Credentials:   creds,
		Notifier:      notifier,
		Config:        cfg,
		Metrics:       m,
		Logger:        log,
		StatusUpdater: status,
	})

	if trayUI != nil {
		// Set app reference in tray
		trayUI.SetApp(application)
	}

	hkManager := registerHotkey(cfg, application, log, *headless)
	if hkManager != nil {
		defer hkManager.Close()
	}

	log.Info().Str("version", Version).Bool("headless", *headless).Msg("freshscan starting...")

	// Setup shutdown signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			log.Info().Msg("Shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	if *headless {
		if err := application.Start(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to start scan")
		}
		<-ctx.Done()
	} else {
		// Start tray UI - MUST run on main thread
		if err := trayUI.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Tray error")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
	controller.Stop()
	select {
	case <-controller.Done():
	case <-shutdownCtx.Done():
	}
}

// registerHotkey binds the configured accelerator to the coordinator. A
// hotkey is optional in headless mode.
func registerHotkey(cfg *config.Config, application *app.App, log zerolog.Logger, headless bool) hotkey.Manager {
	fail := log.Fatal
	if headless {
		fail = log.Warn
	}

	// macOS requires explicit accessibility approval before hotkeys work
	if err := permissions.EnsureHotkeys(); err != nil {
		fail().Err(err).Msg("Hotkey permission not granted")
		return nil
	}

	accel := cfg.PlatformHotkey()
	if _, err := hotkey.ParseAccelerator(accel); err != nil {
		fail().Err(err).Str("hotkey", accel).Msg("Invalid hotkey")
		return nil
	}

	hkManager, err := hotkey.New()
	if err != nil {
		fail().Err(err).Msg("Failed to initialize hotkeys")
		return nil
	}

	// Register global hotkey
	if err := hkManager.Register(accel, application.OnHotkey); err != nil {
		hkManager.Close()
		fail().Err(err).Str("hotkey", accel).Msg("Failed to register hotkey")
		return nil
	}
	return hkManager
}
