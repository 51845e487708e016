package hotkey

import "testing"

func TestParseAccelerator(t *testing.T) {
	tests := []struct {
		in   string
		want Accelerator
	}{
		{"Alt+Space", Accelerator{Modifiers: ModAlt, Key: "Space"}},
		{"ctrl+shift+s", Accelerator{Modifiers: ModCtrl | ModShift, Key: "S"}},
		{"Cmd + Option + 5", Accelerator{Modifiers: ModSuper | ModAlt, Key: "5"}},
		{"F9", Accelerator{Key: "F9"}},
		{"Control+Return", Accelerator{Modifiers: ModCtrl, Key: "Enter"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAccelerator(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestParseAcceleratorErrors(t *testing.T) {
	for _, in := range []string{"", "Alt+", "Hyper+Space", "Alt+Shift", "Ctrl+F13", "Ctrl+F01", "Alt+PageUp"} {
		t.Run(in, func(t *testing.T) {
			if _, err := ParseAccelerator(in); err == nil {
				t.Errorf("expected error for %q", in)
			}
		})
	}
}

func TestAcceleratorString(t *testing.T) {
	a, err := ParseAccelerator("shift+alt+ctrl+k")
	if err != nil {
		t.Fatal(err)
	}
	if a.String() != "Ctrl+Alt+Shift+K" {
		t.Errorf("unexpected canonical form %q", a.String())
	}
}
