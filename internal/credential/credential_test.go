package credential

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	t.Setenv(EnvKey, "")
	return New(filepath.Join(t.TempDir(), "freshscan", ".env"), zerolog.Nop())
}

func TestLoadMissingFile(t *testing.T) {
	s := newTestStore(t)
	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.HasActiveCredential() {
		t.Error("HasActiveCredential() = true, want false")
	}
}

func TestLoadFromFile(t *testing.T) {
	s := newTestStore(t)
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := godotenv.Write(map[string]string{EnvKey: "from-file"}, s.path); err != nil {
		t.Fatal(err)
	}

	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := s.APIKey(); got != "from-file" {
		t.Errorf("APIKey() = %q, want from-file", got)
	}
}

func TestEnvironmentWins(t *testing.T) {
	s := newTestStore(t)
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := godotenv.Write(map[string]string{EnvKey: "from-file"}, s.path); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvKey, "from-env")

	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := s.APIKey(); got != "from-env" {
		t.Errorf("APIKey() = %q, want from-env", got)
	}
}

func TestPromptPersistsKey(t *testing.T) {
	s := newTestStore(t)
	s.ReadSecret = func() (string, error) { return "  new-key \n", nil }

	ok, err := s.PromptForCredential(context.Background())
	if err != nil || !ok {
		t.Fatalf("PromptForCredential() = %v, %v; want true, nil", ok, err)
	}
	if got := s.APIKey(); got != "new-key" {
		t.Errorf("APIKey() = %q, want new-key", got)
	}

	info, err := os.Stat(s.path)
	if err != nil {
		t.Fatalf("credential file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %v, want 0600", perm)
	}

	reloaded := New(s.path, zerolog.Nop())
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	if got := reloaded.APIKey(); got != "new-key" {
		t.Errorf("reloaded APIKey() = %q, want new-key", got)
	}
}

func TestPromptKeepsOtherEntries(t *testing.T) {
	s := newTestStore(t)
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := godotenv.Write(map[string]string{"OTHER": "x", EnvKey: "old"}, s.path); err != nil {
		t.Fatal(err)
	}
	s.ReadSecret = func() (string, error) { return "replacement", nil }

	if _, err := s.PromptForCredential(context.Background()); err != nil {
		t.Fatal(err)
	}
	env, err := godotenv.Read(s.path)
	if err != nil {
		t.Fatal(err)
	}
	if env["OTHER"] != "x" || env[EnvKey] != "replacement" {
		t.Errorf("env file = %v", env)
	}
}

func TestPromptDismissed(t *testing.T) {
	s := newTestStore(t)
	s.ReadSecret = func() (string, error) { return "", nil }

	ok, err := s.PromptForCredential(context.Background())
	if err != nil || ok {
		t.Errorf("PromptForCredential() = %v, %v; want false, nil", ok, err)
	}
	if _, err := os.Stat(s.path); !errors.Is(err, os.ErrNotExist) {
		t.Error("nothing should be written when the prompt is dismissed")
	}
}

func TestPromptNoTerminal(t *testing.T) {
	s := newTestStore(t)
	s.ReadSecret = func() (string, error) { return "", ErrNoTerminal }

	ok, err := s.PromptForCredential(context.Background())
	if ok || !errors.Is(err, ErrNoTerminal) {
		t.Errorf("PromptForCredential() = %v, %v; want false, ErrNoTerminal", ok, err)
	}
}

func TestPromptCancelled(t *testing.T) {
	s := newTestStore(t)
	block := make(chan struct{})
	s.ReadSecret = func() (string, error) {
		<-block
		return "late", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := s.PromptForCredential(ctx)
	if ok || !errors.Is(err, context.Canceled) {
		t.Errorf("PromptForCredential() = %v, %v; want false, context.Canceled", ok, err)
	}

	// The abandoned read still stores what the user types.
	close(block)
	waitForKey(t, s, "late")
}

func TestPromptsShareOneRead(t *testing.T) {
	s := newTestStore(t)
	block := make(chan struct{})
	var mu sync.Mutex
	reads := 0
	s.ReadSecret = func() (string, error) {
		mu.Lock()
		reads++
		mu.Unlock()
		<-block
		return "shared-key", nil
	}

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		if _, err := s.PromptForCredential(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("prompt %d: err = %v, want deadline exceeded", i, err)
		}
		cancel()
	}

	close(block)
	waitForKey(t, s, "shared-key")

	mu.Lock()
	defer mu.Unlock()
	if reads != 1 {
		t.Errorf("terminal reads = %d, want 1", reads)
	}
}

func waitForKey(t *testing.T, s *Store, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.APIKey() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("APIKey() = %q, want %q", s.APIKey(), want)
}
