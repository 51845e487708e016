package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ModeToggle     = "Toggle"
	ModePushToTalk = "PushToTalk"
)

type Config struct {
	LogLevel     string        `yaml:"log_level"`
	Hotkey       string        `yaml:"hotkey"`
	HotkeyDarwin string        `yaml:"hotkey_darwin"`
	Mode         string        `yaml:"mode"` // "Toggle" or "PushToTalk"
	Audio        AudioConfig   `yaml:"audio"`
	Camera       CameraConfig  `yaml:"camera"`
	Live         LiveConfig    `yaml:"live"`
	Alert        AlertConfig   `yaml:"alert"`
	MQTT         MQTTConfig    `yaml:"mqtt"`
	Metrics      MetricsConfig `yaml:"metrics"`

	path string
}

type AudioConfig struct {
	DeviceID           string `yaml:"device_id"`
	CaptureSampleRate  int    `yaml:"capture_sample_rate"`
	BlockSize          int    `yaml:"block_size"` // samples per microphone callback
	PlaybackSampleRate int    `yaml:"playback_sample_rate"`
	PlaybackBufferSize int    `yaml:"playback_buffer_size"`
}

type CameraConfig struct {
	DeviceID      string        `yaml:"device_id"`
	Width         int           `yaml:"width"`
	Height        int           `yaml:"height"`
	JPEGQuality   int           `yaml:"jpeg_quality"`
	FrameInterval time.Duration `yaml:"frame_interval"`
}

type LiveConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	Model             string        `yaml:"model"`
	Voice             string        `yaml:"voice"`
	SystemInstruction string        `yaml:"system_instruction"`
	SendQueue         int           `yaml:"send_queue"`
	DialTimeout       time.Duration `yaml:"dial_timeout"`
	CloseGrace        time.Duration `yaml:"close_grace"`
}

type AlertConfig struct {
	Keywords []string `yaml:"keywords"`
}

type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

const defaultInstruction = "You are a food safety assistant looking through the user's camera at their " +
	"fridge and pantry. Describe what you see briefly. Call out mould, mold, spoiled or fuzzy food clearly."

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:     "info",
		Hotkey:       "Alt+Space",
		HotkeyDarwin: "Ctrl+Space",
		Mode:         ModeToggle,
		Audio: AudioConfig{
			CaptureSampleRate:  16000,
			BlockSize:          4096,
			PlaybackSampleRate: 24000,
			PlaybackBufferSize: 512,
		},
		Camera: CameraConfig{
			Width:         640,
			Height:        480,
			JPEGQuality:   60,
			FrameInterval: 2 * time.Second,
		},
		Live: LiveConfig{
			Endpoint:          "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent",
			Model:             "models/gemini-2.0-flash-live-001",
			Voice:             "Puck",
			SystemInstruction: defaultInstruction,
			SendQueue:         32,
			DialTimeout:       10 * time.Second,
			CloseGrace:        250 * time.Millisecond,
		},
		Alert: AlertConfig{
			Keywords: []string{"mould", "mold", "spoil", "fuzzy"},
		},
		MQTT: MQTTConfig{
			Broker:   "localhost:1883",
			ClientID: "freshscan",
			Topic:    "freshscan/alerts",
			QoS:      1,
		},
		Metrics: MetricsConfig{
			Address: "127.0.0.1:9464",
		},
	}
}

// Load reads the config from the default location or returns defaults
func Load() (*Config, error) {
	return LoadFile(configPath())
}

// LoadFile reads the config at path over the defaults. A missing file is not
// an error.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		path = configPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	if c.path == "" {
		return configPath()
	}
	return c.path
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Mode != ModeToggle && c.Mode != ModePushToTalk {
		return fmt.Errorf("mode must be %s or %s, got %q", ModeToggle, ModePushToTalk, c.Mode)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Camera.Validate(); err != nil {
		return fmt.Errorf("camera config: %w", err)
	}
	if err := c.Live.Validate(); err != nil {
		return fmt.Errorf("live config: %w", err)
	}
	if err := c.Alert.Validate(); err != nil {
		return fmt.Errorf("alert config: %w", err)
	}
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt config: %w", err)
	}
	return nil
}

func (a *AudioConfig) Validate() error {
	if a.CaptureSampleRate <= 0 {
		return fmt.Errorf("capture_sample_rate must be positive")
	}
	if a.BlockSize <= 0 {
		return fmt.Errorf("block_size must be positive")
	}
	if a.PlaybackSampleRate <= 0 {
		return fmt.Errorf("playback_sample_rate must be positive")
	}
	if a.PlaybackBufferSize <= 0 {
		return fmt.Errorf("playback_buffer_size must be positive")
	}
	return nil
}

func (c *CameraConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("resolution must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", c.JPEGQuality)
	}
	if c.FrameInterval <= 0 {
		return fmt.Errorf("frame_interval must be positive")
	}
	return nil
}

func (l *LiveConfig) Validate() error {
	if l.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if l.Model == "" {
		return fmt.Errorf("model is required")
	}
	if l.SendQueue <= 0 {
		return fmt.Errorf("send_queue must be positive")
	}
	return nil
}

func (a *AlertConfig) Validate() error {
	if len(a.Keywords) == 0 {
		return fmt.Errorf("at least one keyword is required")
	}
	return nil
}

func (m *MQTTConfig) Validate() error {
	if !m.Enabled {
		return nil
	}
	if m.Broker == "" {
		return fmt.Errorf("broker is required when mqtt is enabled")
	}
	if m.Topic == "" {
		return fmt.Errorf("topic is required when mqtt is enabled")
	}
	if m.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", m.QoS)
	}
	return nil
}

// PlatformHotkey returns the appropriate hotkey for the current platform
func (c *Config) PlatformHotkey() string {
	if runtime.GOOS == "darwin" && c.HotkeyDarwin != "" {
		return c.HotkeyDarwin
	}
	return c.Hotkey
}

// configPath returns the platform-specific config file path
func configPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Dir returns the platform-specific config directory. The credential .env
// file lives here too.
func Dir() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "freshscan")
}
