package logging

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

// New creates a new zerolog logger with console and file output at info level
func New() zerolog.Logger {
	return NewWithLevel("info")
}

// NewWithLevel creates a console + file logger at the named level. An unknown
// level falls back to info. If the log file cannot be opened the logger
// writes to the console only.
func NewWithLevel(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	var out io.Writer = console
	if logFile, err := openLogFile(LogPath()); err == nil {
		out = zerolog.MultiLevelWriter(console, logFile)
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Caller().Logger()
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
}

// LogPath returns platform-specific log file path
func LogPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Logs"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/state"
		}
	}

	return filepath.Join(base, "freshscan", "freshscan.log")
}
