package recorder

import (
	"log/slog"
	"math"
	"os"
	"sync"
	"sync/atomic"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/graph"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/pkg/frame"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/oov/audio/resampler"
)

const (
	resampleQuality = 10

	// Graph taps deliver at most this many frames at once.
	maxTapFrames = 4096

	// About three seconds at the recording rate.
	ringFrames = 1 << 17
)

// A point-in-time view of a session, safe to hand to other goroutines.
type Info struct {
	Path          string
	Active        bool
	FramesWritten uint64
	WriteErrors   uint64
	Dropped       uint64
	LastError     error
}

// One recording: an open file, a tap feeding it, and a writer goroutine
// encoding into it.
//
// The tap runs on the real-time thread. It converts into pre-sized buffers
// and queues samples on a ring; the writer drains the ring into the WAV
// encoder. The tap only ever TryLocks the session, so reconfiguring or
// closing from the control thread can never stall audio. Samples that arrive
// while the lock is held, or that do not fit on the ring, are dropped and
// counted.
type Session struct {
	logger *slog.Logger
	path   string

	// control thread only
	point  TapPoint
	tapID  graph.TapID
	active bool

	// guards the tap side
	mu          sync.Mutex
	closed      bool
	resampler   *resampler.Resampler
	resampleBuf []float32
	scratch     []int16

	ring *sampleRing
	wake chan struct{}

	// writer goroutine only, until it has been joined
	file    *os.File
	encoder *wav.Encoder
	chunk   *goaudio.IntBuffer

	stop       chan struct{}
	writerDone chan struct{}

	framesWritten atomic.Uint64
	writeErrors   atomic.Uint64
	dropped       atomic.Uint64
	lastErr       atomic.Pointer[error]
}

func newSession(f *os.File, path string, sourceRate int, logger *slog.Logger) (*Session, error) {
	encoder, format, err := newEncoder(f)
	if err != nil {
		return nil, err
	}
	s := &Session{
		logger:  logger.With("recording", path),
		path:    path,
		file:    f,
		encoder: encoder,
		ring:    newSampleRing(ringFrames),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	s.chunk = &goaudio.IntBuffer{
		Format:         format,
		Data:           make([]int, maxTapFrames),
		SourceBitDepth: BitDepth,
	}
	if err := s.configureSource(sourceRate); err != nil {
		return nil, err
	}
	return s, nil
}

// Size buffers (and the resampler, if needed) for a source sample rate.
// Must hold s.mu, or be called before the tap is armed.
func (s *Session) configureSource(sourceRate int) error {
	if sourceRate <= 0 {
		return &RecordingIOError{Op: "configure", Path: s.path, Err: graph.ErrInvalidFormat}
	}
	capacity := maxTapFrames
	if sourceRate != SampleRate {
		capacity = int(math.Ceil(float64(maxTapFrames)*float64(SampleRate)/float64(sourceRate))) + 64
		s.resampler = resampler.New(NumChannels, sourceRate, SampleRate, resampleQuality)
		s.resampleBuf = make([]float32, capacity)
	} else {
		s.resampler = nil
		s.resampleBuf = nil
	}
	if cap(s.scratch) < capacity {
		s.scratch = make([]int16, capacity)
	}
	return nil
}

// Start the goroutine that encodes queued samples into the file.
func (s *Session) startWriter() {
	s.writerDone = make(chan struct{})
	go s.runWriter()
}

func (s *Session) runWriter() {
	defer close(s.writerDone)
	for {
		select {
		case <-s.wake:
			s.drain()
		case <-s.stop:
			s.drain()
			return
		}
	}
}

func (s *Session) drain() {
	for {
		n := s.ring.pop(s.chunk.Data[:cap(s.chunk.Data)])
		if n == 0 {
			return
		}
		s.chunk.Data = s.chunk.Data[:n]
		if err := s.encoder.Write(s.chunk); err != nil {
			s.writeErrors.Add(1)
			s.lastErr.Store(&err)
			continue
		}
		s.framesWritten.Add(uint64(n))
	}
}

// The tap. Runs on the real-time thread.
func (s *Session) write(samples frame.PCMFrame, _ uint64) {
	if !s.mu.TryLock() {
		s.dropped.Add(uint64(len(samples)))
		return
	}
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if s.resampler != nil {
		_, written := s.resampler.ProcessFloat32(0, samples, s.resampleBuf)
		samples = s.resampleBuf[:written]
	}

	n := min(len(samples), len(s.scratch))
	converted := s.scratch[:n]
	for i := range converted {
		converted[i] = toInt16(samples[i])
	}

	queued := s.ring.push(converted)
	if lost := len(samples) - queued; lost > 0 {
		s.dropped.Add(uint64(lost))
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Stop the tap, wait for the writer to flush what is queued, then close the
// encoder and the file.
func (s *Session) finish() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	if s.writerDone != nil {
		<-s.writerDone
	} else {
		s.drain()
	}

	encodeErr := s.encoder.Close()
	syncErr := s.file.Sync()
	closeErr := s.file.Close()
	for _, err := range []error{encodeErr, syncErr, closeErr} {
		if err != nil {
			s.logger.Error("error while closing recording", "err", err)
			return &RecordingIOError{Op: "close", Path: s.path, Err: err}
		}
	}
	return nil
}

func (s *Session) Path() string {
	return s.path
}

// Whether the tap is armed. Control thread only.
func (s *Session) Active() bool {
	return s.active
}

func (s *Session) Info() Info {
	info := Info{
		Path:          s.path,
		Active:        s.active,
		FramesWritten: s.framesWritten.Load(),
		WriteErrors:   s.writeErrors.Load(),
		Dropped:       s.dropped.Load(),
	}
	if err := s.lastErr.Load(); err != nil {
		info.LastError = *err
	}
	return info
}

func toInt16(sample float32) int16 {
	if sample > 1 {
		sample = 1
	} else if sample < -1 {
		sample = -1
	}
	return int16(sample * math.MaxInt16)
}
