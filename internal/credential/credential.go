// Package credential holds the inference API key. The key comes from the
// environment or from a .env file in the config directory, and can be
// entered interactively when missing or rejected.
package credential

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// EnvKey is the variable the API key is read from.
const EnvKey = "GEMINI_API_KEY"

// ErrNoTerminal is returned by PromptForCredential when there is nowhere to
// ask.
var ErrNoTerminal = errors.New("no terminal available for credential prompt")

type Store struct {
	path string
	log  zerolog.Logger

	// ReadSecret reads one hidden line from the user.
	ReadSecret func() (string, error)

	mu  sync.RWMutex
	key string

	// pending is the terminal read in progress. Prompts share it so that at
	// most one goroutine reads stdin.
	readMu  sync.Mutex
	pending chan promptResult
}

type promptResult struct {
	ok  bool
	err error
}

// New creates a store backed by the .env file at path.
func New(path string, logger zerolog.Logger) *Store {
	return &Store{
		path:       path,
		log:        logger,
		ReadSecret: readFromTerminal,
	}
}

// DefaultPath is the .env file next to the config file.
func DefaultPath(configDir string) string {
	return filepath.Join(configDir, ".env")
}

// Load reads the key. The environment wins over the file; a missing file is
// not an error.
func (s *Store) Load() error {
	key := strings.TrimSpace(os.Getenv(EnvKey))
	source := "environment"

	if key == "" {
		env, err := godotenv.Read(s.path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return fmt.Errorf("failed to read %s: %w", s.path, err)
		default:
			key = strings.TrimSpace(env[EnvKey])
			source = s.path
		}
	}

	s.mu.Lock()
	s.key = key
	s.mu.Unlock()

	if key != "" {
		s.log.Debug().Str("source", source).Msg("API key loaded")
	}
	return nil
}

// APIKey returns the current key, empty when none is set.
func (s *Store) APIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key
}

// HasActiveCredential reports whether a key is available.
func (s *Store) HasActiveCredential() bool {
	return s.APIKey() != ""
}

// PromptForCredential asks the user for a new key and persists it. It
// reports false when the user entered nothing. A cancelled prompt leaves its
// read running; the next prompt waits on that read instead of starting
// another, and a key entered meanwhile is still stored.
func (s *Store) PromptForCredential(ctx context.Context) (bool, error) {
	ch := s.read()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case r := <-ch:
		return r.ok, r.err
	}
}

func (s *Store) read() chan promptResult {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	if s.pending != nil {
		return s.pending
	}

	ch := make(chan promptResult, 1)
	s.pending = ch
	go func() {
		key, err := s.ReadSecret()
		ok, err := s.accept(strings.TrimSpace(key), err)

		s.readMu.Lock()
		s.pending = nil
		s.readMu.Unlock()
		ch <- promptResult{ok: ok, err: err}
	}()
	return ch
}

func (s *Store) accept(key string, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	if key == "" {
		s.log.Info().Msg("Credential prompt dismissed")
		return false, nil
	}

	if err := s.save(key); err != nil {
		return false, err
	}

	s.mu.Lock()
	s.key = key
	s.mu.Unlock()

	s.log.Info().Str("path", s.path).Msg("API key updated")
	return true, nil
}

func (s *Store) save(key string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	env, err := godotenv.Read(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	if env == nil {
		env = map[string]string{}
	}
	env[EnvKey] = key

	if err := godotenv.Write(env, s.path); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	return os.Chmod(s.path, 0o600)
}

func readFromTerminal() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", ErrNoTerminal
	}
	fmt.Fprint(os.Stderr, "Gemini API key: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	return string(b), nil
}
