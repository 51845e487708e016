package playback

import "testing"

func TestMixerClockAdvancesWithRender(t *testing.T) {
	m := NewMixer(1000)

	if m.CurrentTime() != 0 {
		t.Fatalf("expected 0, got %v", m.CurrentTime())
	}
	m.Render(make([]float32, 250))
	if m.CurrentTime() != 0.25 {
		t.Errorf("expected 0.25, got %v", m.CurrentTime())
	}
}

func TestMixerStartsAtScheduledFrame(t *testing.T) {
	m := NewMixer(10)
	ended := 0

	m.Start(NewBuffer([][]float32{{0.1, 0.2, 0.3}}, 10), 0.5, func() { ended++ })

	out := make([]float32, 10)
	m.Render(out)

	want := []float32{0, 0, 0, 0, 0, 0.1, 0.2, 0.3, 0, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("frame %d: expected %f, got %f", i, want[i], out[i])
		}
	}
	if ended != 1 {
		t.Errorf("expected one completion, got %d", ended)
	}
}

func TestMixerSpansRenderCalls(t *testing.T) {
	m := NewMixer(10)
	ended := 0
	m.Start(NewBuffer([][]float32{{1, 1, 1, 1}}, 10), 0.2, func() { ended++ })

	first := make([]float32, 4)
	m.Render(first)
	if first[2] != 1 || first[3] != 1 || ended != 0 {
		t.Fatalf("unexpected first block %v (ended=%d)", first, ended)
	}

	second := make([]float32, 4)
	m.Render(second)
	if second[0] != 1 || second[1] != 1 || second[2] != 0 {
		t.Fatalf("unexpected second block %v", second)
	}
	if ended != 1 {
		t.Errorf("expected completion after the last frame, got %d", ended)
	}
}

func TestMixerPastStartPlaysImmediately(t *testing.T) {
	m := NewMixer(10)
	m.Render(make([]float32, 10))

	m.Start(NewBuffer([][]float32{{0.5}}, 10), 0.2, nil)
	out := make([]float32, 2)
	m.Render(out)
	if out[0] != 0.5 {
		t.Errorf("expected late source to start at current frame, got %v", out)
	}
}

func TestMixerStopSuppressesCompletion(t *testing.T) {
	m := NewMixer(10)
	ended := 0
	src := m.Start(NewBuffer([][]float32{{1, 1}}, 10), 0, func() { ended++ })
	src.Stop()

	out := make([]float32, 4)
	m.Render(out)
	if out[0] != 0 || ended != 0 {
		t.Errorf("expected stopped source to stay silent, got %v (ended=%d)", out, ended)
	}
}

func TestMixerDownmixesAndClamps(t *testing.T) {
	m := NewMixer(10)
	m.Start(NewBuffer([][]float32{{1, 0.5}, {0, 0.5}}, 10), 0, nil)
	m.Start(NewBuffer([][]float32{{1}}, 10), 0, nil)

	out := make([]float32, 2)
	m.Render(out)
	if out[0] != 1 {
		t.Errorf("expected clamp to 1, got %f", out[0])
	}
	if out[1] != 0.5 {
		t.Errorf("expected stereo average 0.5, got %f", out[1])
	}
}

func TestMixerClose(t *testing.T) {
	m := NewMixer(10)
	m.Start(NewBuffer([][]float32{{1}}, 10), 0, nil)
	m.Close()

	late := m.Start(NewBuffer([][]float32{{1}}, 10), 0, nil)
	late.Stop()

	out := make([]float32, 2)
	m.Render(out)
	if out[0] != 0 {
		t.Errorf("expected closed mixer to be silent, got %v", out)
	}
}
