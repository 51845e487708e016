package tray

import (
	"errors"
	"testing"

	"github.com/petems/freshscan/internal/app"
	"github.com/petems/freshscan/internal/audio"
	"github.com/petems/freshscan/internal/config"
	"github.com/rs/zerolog"
)

type mockSession struct {
	transcript string
	mode       string
	toggles    int
}

func (m *mockSession) Toggle()                { m.toggles++ }
func (m *mockSession) State() app.State       { return app.Idle }
func (m *mockSession) LastTranscript() string { return m.transcript }
func (m *mockSession) ListDevices() ([]audio.AudioDevice, error) {
	return nil, nil
}
func (m *mockSession) SetDevice(string) error { return nil }
func (m *mockSession) SetMode(mode string) error {
	m.mode = mode
	return nil
}

func newTestUI(s Session) *UI {
	return New(s, config.Default(), zerolog.Nop(), "test", "abc123", nil)
}

func TestTitleFor(t *testing.T) {
	tests := []struct {
		name   string
		status string
		hazard bool
		want   string
	}{
		{name: "idle", status: "idle", want: "📷 🟢"},
		{name: "connecting", status: "connecting", want: "📷 🟡"},
		{name: "active", status: "active", want: "📷 🔴"},
		{name: "active with hazard", status: "active", hazard: true, want: "📷 🔴 ⚠️"},
		{name: "error", status: "error", want: "📷 ⚪️"},
		{name: "unknown", status: "weird", want: "📷 🟢"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := titleFor(tt.status, tt.hazard); got != tt.want {
				t.Errorf("titleFor(%q, %v) = %q, want %q", tt.status, tt.hazard, got, tt.want)
			}
		})
	}
}

func TestNextMode(t *testing.T) {
	if got := nextMode(config.ModePushToTalk); got != config.ModeToggle {
		t.Errorf("nextMode(PushToTalk) = %q, want Toggle", got)
	}
	if got := nextMode(config.ModeToggle); got != config.ModePushToTalk {
		t.Errorf("nextMode(Toggle) = %q, want PushToTalk", got)
	}
}

func TestModeLabel(t *testing.T) {
	if got := modeLabel(config.ModePushToTalk); got != "Mode: Push-to-Talk" {
		t.Errorf("modeLabel(PushToTalk) = %q", got)
	}
	if got := modeLabel(config.ModeToggle); got != "Mode: Toggle" {
		t.Errorf("modeLabel(Toggle) = %q", got)
	}
}

func TestStatusBeforeReady(t *testing.T) {
	u := newTestUI(&mockSession{})

	u.SetConnecting()
	u.SetError("Permission denied")
	u.SetAlert(true)

	if u.status != "error" || u.message != "Permission denied" || !u.hazard {
		t.Errorf("status=%q message=%q hazard=%v", u.status, u.message, u.hazard)
	}

	u.SetIdle()
	if u.message != "" {
		t.Errorf("message = %q, want cleared", u.message)
	}
}

func TestCopyTranscript(t *testing.T) {
	s := &mockSession{transcript: "The cheese has mould."}
	u := newTestUI(s)

	var copied string
	u.writeClipboard = func(text string) error {
		copied = text
		return nil
	}

	if err := u.copyTranscript(); err != nil {
		t.Fatalf("copyTranscript() error = %v", err)
	}
	if copied != s.transcript {
		t.Errorf("copied %q, want %q", copied, s.transcript)
	}
}

func TestCopyTranscriptEmpty(t *testing.T) {
	u := newTestUI(&mockSession{})
	u.writeClipboard = func(string) error {
		t.Error("clipboard should not be written without a transcript")
		return nil
	}
	if err := u.copyTranscript(); err == nil {
		t.Error("copyTranscript() error = nil, want error")
	}
}

func TestCopyTranscriptClipboardError(t *testing.T) {
	u := newTestUI(&mockSession{transcript: "x"})
	u.writeClipboard = func(string) error { return errors.New("no clipboard") }
	if err := u.copyTranscript(); err == nil {
		t.Error("copyTranscript() error = nil, want clipboard error")
	}
}
