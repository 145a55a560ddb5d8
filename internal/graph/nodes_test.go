package graph

import (
	"math"
	"testing"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/pkg/frame"
)

func TestClampDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		want float64
	}{
		{-1, 0},
		{0, 0},
		{2.5, 2.5},
		{5, 5},
		{7, 5},
		{math.Inf(1), 5},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := ClampDelay(tt.in); got != tt.want {
			t.Errorf("ClampDelay(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDelayNodeDelaysImpulse(t *testing.T) {
	t.Parallel()

	const sampleRate = 1000
	d := newDelayNode(sampleRate, 0.01, monitorFeedback, monitorWetDryMix)

	buf := make(frame.PCMFrame, 32)
	buf[0] = 1
	d.process(buf)

	for i, v := range buf {
		want := float32(0)
		if i == 10 {
			want = 1
		}
		if v != want {
			t.Errorf("sample %d = %v, want %v", i, v, want)
		}
	}
}

func TestDelayNodeAcrossBuffers(t *testing.T) {
	t.Parallel()

	d := newDelayNode(100, 0.5, monitorFeedback, monitorWetDryMix)

	first := make(frame.PCMFrame, 40)
	first[30] = 0.5
	d.process(first)
	for i, v := range first {
		if v != 0 {
			t.Fatalf("first buffer sample %d = %v, want silence", i, v)
		}
	}

	// 50 samples of delay moves global sample 30 to global sample 80,
	// which is index 40 of the second buffer.
	second := make(frame.PCMFrame, 60)
	d.process(second)
	for i, v := range second {
		want := float32(0)
		if i == 40 {
			want = 0.5
		}
		if v != want {
			t.Errorf("second buffer sample %d = %v, want %v", i, v, want)
		}
	}
}

func TestDelayNodeZeroDelayPassesThrough(t *testing.T) {
	t.Parallel()

	d := newDelayNode(48000, 0, monitorFeedback, monitorWetDryMix)
	buf := frame.PCMFrame{0.1, -0.2, 0.3}
	d.process(buf)
	want := frame.PCMFrame{0.1, -0.2, 0.3}
	for i := range buf {
		if buf[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, buf[i], want[i])
		}
	}
}

func TestDelayNodeFullyWetHidesDrySignal(t *testing.T) {
	t.Parallel()

	d := newDelayNode(1000, 1, monitorFeedback, monitorWetDryMix)
	buf := make(frame.PCMFrame, 100)
	for i := range buf {
		buf[i] = 0.7
	}
	d.process(buf)
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("sample %d = %v, want 0 before the delay elapses", i, v)
		}
	}
}

func TestDelayNodeSetDelayClampsToLine(t *testing.T) {
	t.Parallel()

	d := newDelayNode(1000, 0, monitorFeedback, monitorWetDryMix)
	if got := d.setDelay(9); got != MaxDelaySeconds {
		t.Errorf("setDelay(9) = %v, want %v", got, MaxDelaySeconds)
	}
	if got := d.delaySamples.Load(); got != 5000 {
		t.Errorf("delaySamples = %v, want 5000", got)
	}
}

func TestInputNodeDownmix(t *testing.T) {
	t.Parallel()

	n := newInputNode(2)
	got := n.process([]float32{1, 0, 0.5, 0.5, -1, 1}, 3)
	want := []float32{0.5, 0.5, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d = %v, want %v", i, got[i], want[i])
		}
	}

	silent := n.process(nil, 4)
	for i, v := range silent {
		if v != 0 {
			t.Errorf("frame %d without input = %v, want 0", i, v)
		}
	}
}

func TestOutputNodeUpmix(t *testing.T) {
	t.Parallel()

	n := newOutputNode(2)
	out := make([]float32, 4)
	n.process(frame.PCMFrame{0.25, -0.5}, out)
	want := []float32{0.25, 0.25, -0.5, -0.5}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestMixerGain(t *testing.T) {
	t.Parallel()

	m := newMixerNode()
	buf := frame.PCMFrame{0.5, -0.5}
	m.process(buf)
	if buf[0] != 0.5 {
		t.Errorf("unity gain changed sample to %v", buf[0])
	}

	m.setGain(-3)
	m.process(buf)
	if buf[0] != 0 || buf[1] != 0 {
		t.Errorf("negative gain should mute, got %v", buf)
	}
}
