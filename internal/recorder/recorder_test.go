package recorder

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/audiotest"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/graph"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/pkg/audiodevice"
	"github.com/go-audio/wav"
)

func runningHandle(t *testing.T, sampleRate int) (*graph.Graph, *graph.Handle, *audiotest.FakeEngine) {
	t.Helper()
	engine := audiotest.NewFakeEngine()
	g := graph.NewGraph(engine, nil)
	props := audiodevice.DeviceProperties{SampleRate: sampleRate, NumChannels: 1}
	h, err := g.Build(graph.Config{}, graph.Format{Input: props, Output: props})
	if err != nil {
		t.Fatalf("Build() error = %v, want nil", err)
	}
	if err := g.Start(h); err != nil {
		t.Fatalf("Start() error = %v, want nil", err)
	}
	return g, h, engine
}

func fixedClock(r *Recorder) {
	r.now = func() time.Time {
		return time.Date(2024, time.March, 5, 14, 7, 9, 0, time.Local)
	}
}

func readWAV(t *testing.T, path string) (*wav.Decoder, []int) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("os.Open(%q) error = %v, want nil", path, err)
	}
	t.Cleanup(func() { f.Close() })

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		t.Fatalf("%q is not a valid WAV file: %v", path, decoder.Err())
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer() error = %v, want nil", err)
	}
	return decoder, buf.Data
}

func TestRecordingRoundTrip(t *testing.T) {
	t.Parallel()

	_, h, engine := runningHandle(t, SampleRate)
	r := New(filepath.Join(t.TempDir(), "recordings"), nil)
	fixedClock(r)

	s, err := r.Start(h)
	if err != nil {
		t.Fatalf("Start() error = %v, want nil", err)
	}
	if !s.Active() {
		t.Error("Active() after Start = false, want true")
	}

	stream := engine.Current()
	const buffers, framesPerBuffer = 5, 441
	for range buffers {
		stream.Push(audiotest.Sine(framesPerBuffer, 1, 440, SampleRate, 0.5))
	}

	path, err := r.Stop(s)
	if err != nil {
		t.Fatalf("Stop() error = %v, want nil", err)
	}
	if want := filepath.Join(r.Directory(), "recording_20240305_140709.wav"); path != want {
		t.Errorf("Stop() path = %q, want %q", path, want)
	}
	if s.Active() {
		t.Error("Active() after Stop = true, want false")
	}
	if h.TapCount() != 0 {
		t.Errorf("TapCount() after Stop = %d, want 0", h.TapCount())
	}

	decoder, data := readWAV(t, path)
	if decoder.SampleRate != SampleRate || decoder.NumChans != NumChannels || decoder.BitDepth != BitDepth {
		t.Errorf("WAV format = %dHz/%dch/%dbit, want %dHz/%dch/%dbit",
			decoder.SampleRate, decoder.NumChans, decoder.BitDepth, SampleRate, NumChannels, BitDepth)
	}
	if len(data) != buffers*framesPerBuffer {
		t.Errorf("WAV holds %d samples, want %d", len(data), buffers*framesPerBuffer)
	}
	if got := s.Info().FramesWritten; got != buffers*framesPerBuffer {
		t.Errorf("Info().FramesWritten = %d, want %d", got, buffers*framesPerBuffer)
	}

	// Pushing after stop must not reach the file.
	stream.Push(audiotest.Constant(100, 1, 0.5))
	if got := s.Info().FramesWritten; got != buffers*framesPerBuffer {
		t.Errorf("FramesWritten after Stop = %d, want %d", got, buffers*framesPerBuffer)
	}

	again, err := r.Stop(s)
	if err != nil || again != path {
		t.Errorf("second Stop() = %q, %v, want %q, nil", again, err, path)
	}
}

func TestSamplesAreClampedAndScaled(t *testing.T) {
	t.Parallel()

	_, h, engine := runningHandle(t, SampleRate)
	r := New(t.TempDir(), nil)

	s, err := r.Start(h)
	if err != nil {
		t.Fatalf("Start() error = %v, want nil", err)
	}
	engine.Current().Push([]float32{0, 1, -1, 2, -2, 0.5})
	path, err := r.Stop(s)
	if err != nil {
		t.Fatalf("Stop() error = %v, want nil", err)
	}

	_, data := readWAV(t, path)
	want := []int{0, 32767, -32767, 32767, -32767, 16383}
	if len(data) != len(want) {
		t.Fatalf("WAV holds %d samples, want %d", len(data), len(want))
	}
	for i := range want {
		if data[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, data[i], want[i])
		}
	}
}

func TestStartWhileArmedReturnsExistingSession(t *testing.T) {
	t.Parallel()

	_, h, _ := runningHandle(t, SampleRate)
	r := New(t.TempDir(), nil)

	first, err := r.Start(h)
	if err != nil {
		t.Fatalf("Start() error = %v, want nil", err)
	}
	second, err := r.Start(h)
	if err != nil {
		t.Fatalf("second Start() error = %v, want nil", err)
	}
	if first != second {
		t.Error("second Start() returned a new session")
	}
	if h.TapCount() != 1 {
		t.Errorf("TapCount() = %d, want 1", h.TapCount())
	}

	entries, err := os.ReadDir(r.Directory())
	if err != nil {
		t.Fatalf("ReadDir() error = %v, want nil", err)
	}
	if len(entries) != 1 {
		t.Errorf("recordings directory holds %d files, want 1", len(entries))
	}
	r.Stop(first)
}

func TestFileNamesDoNotCollide(t *testing.T) {
	t.Parallel()

	_, h, _ := runningHandle(t, SampleRate)
	r := New(t.TempDir(), nil)
	fixedClock(r)

	first, err := r.Start(h)
	if err != nil {
		t.Fatalf("Start() error = %v, want nil", err)
	}
	firstPath, _ := r.Stop(first)

	second, err := r.Start(h)
	if err != nil {
		t.Fatalf("Start() error = %v, want nil", err)
	}
	secondPath, _ := r.Stop(second)

	if firstPath == secondPath {
		t.Fatalf("two recordings share path %q", firstPath)
	}
	if want := filepath.Join(r.Directory(), "recording_20240305_140709_2.wav"); secondPath != want {
		t.Errorf("second path = %q, want %q", secondPath, want)
	}
}

func TestDiscardDeletesFile(t *testing.T) {
	t.Parallel()

	_, h, engine := runningHandle(t, SampleRate)
	r := New(t.TempDir(), nil)

	s, err := r.Start(h)
	if err != nil {
		t.Fatalf("Start() error = %v, want nil", err)
	}
	engine.Current().Push(audiotest.Constant(64, 1, 0.1))

	if err := r.Discard(s); err != nil {
		t.Fatalf("Discard() error = %v, want nil", err)
	}
	if _, err := os.Stat(s.Path()); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("os.Stat() after Discard error = %v, want %v", err, fs.ErrNotExist)
	}
	if r.Current() != nil {
		t.Error("Current() after Discard is not nil")
	}
	if err := r.Discard(s); err != nil {
		t.Errorf("second Discard() error = %v, want nil", err)
	}
}

func TestWriteFailuresDoNotStopMonitoring(t *testing.T) {
	t.Parallel()

	_, h, engine := runningHandle(t, SampleRate)
	r := New(t.TempDir(), nil)

	s, err := r.Start(h)
	if err != nil {
		t.Fatalf("Start() error = %v, want nil", err)
	}
	// Pull the file out from under the encoder.
	s.file.Close()

	out, ok := engine.Current().Push(audiotest.Constant(64, 1, 0.1))
	if !ok || len(out) != 64 {
		t.Fatalf("Push() = %d samples, %v, want 64, true", len(out), ok)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Info().WriteErrors == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	info := s.Info()
	if info.WriteErrors == 0 {
		t.Error("Info().WriteErrors = 0, want > 0")
	}
	if info.LastError == nil {
		t.Error("Info().LastError = nil, want an error")
	}
	if !info.Active {
		t.Error("Info().Active = false, want true while armed")
	}

	var ioErr *RecordingIOError
	if _, err := r.Stop(s); !errors.As(err, &ioErr) {
		t.Errorf("Stop() error = %v, want *RecordingIOError", err)
	}
	if h.TapCount() != 0 {
		t.Errorf("TapCount() after Stop = %d, want 0", h.TapCount())
	}
}

func TestResamplesToRecordingRate(t *testing.T) {
	t.Parallel()

	_, h, engine := runningHandle(t, 48000)
	r := New(t.TempDir(), nil)

	s, err := r.Start(h)
	if err != nil {
		t.Fatalf("Start() error = %v, want nil", err)
	}
	// 100ms of input.
	for range 10 {
		engine.Current().Push(audiotest.Sine(480, 1, 440, 48000, 0.5))
	}
	path, err := r.Stop(s)
	if err != nil {
		t.Fatalf("Stop() error = %v, want nil", err)
	}

	decoder, data := readWAV(t, path)
	if decoder.SampleRate != SampleRate {
		t.Errorf("WAV sample rate = %d, want %d", decoder.SampleRate, SampleRate)
	}
	// 4410 frames is 100ms at 44.1kHz; allow for resampler latency.
	if len(data) < 3900 || len(data) > 4500 {
		t.Errorf("WAV holds %d samples, want about 4410", len(data))
	}
}

func TestRebindKeepsRecording(t *testing.T) {
	t.Parallel()

	g, h, engine := runningHandle(t, SampleRate)
	r := New(t.TempDir(), nil)

	s, err := r.Start(h)
	if err != nil {
		t.Fatalf("Start() error = %v, want nil", err)
	}
	engine.Current().Push(audiotest.Constant(100, 1, 0.1))

	props := audiodevice.DeviceProperties{SampleRate: SampleRate, NumChannels: 1}
	rebuilt, err := g.Build(graph.Config{}, graph.Format{Input: props, Output: props})
	if err != nil {
		t.Fatalf("Build() error = %v, want nil", err)
	}
	if err := g.Start(rebuilt); err != nil {
		t.Fatalf("Start() error = %v, want nil", err)
	}
	if err := r.Rebind(s, rebuilt); err != nil {
		t.Fatalf("Rebind() error = %v, want nil", err)
	}
	engine.Current().Push(audiotest.Constant(50, 1, 0.1))

	path, err := r.Stop(s)
	if err != nil {
		t.Fatalf("Stop() error = %v, want nil", err)
	}
	_, data := readWAV(t, path)
	if len(data) != 150 {
		t.Errorf("WAV holds %d samples, want 150", len(data))
	}
}

func TestStartFailsWhenGraphNotRunning(t *testing.T) {
	t.Parallel()

	engine := audiotest.NewFakeEngine()
	g := graph.NewGraph(engine, nil)
	props := audiodevice.DeviceProperties{SampleRate: SampleRate, NumChannels: 1}
	h, err := g.Build(graph.Config{}, graph.Format{Input: props, Output: props})
	if err != nil {
		t.Fatalf("Build() error = %v, want nil", err)
	}

	r := New(t.TempDir(), nil)
	if _, err := r.Start(h); !errors.Is(err, graph.ErrNotRunning) {
		t.Fatalf("Start() error = %v, want %v", err, graph.ErrNotRunning)
	}
	entries, _ := os.ReadDir(r.Directory())
	if len(entries) != 0 {
		t.Errorf("recordings directory holds %d files after failed Start, want 0", len(entries))
	}
}
