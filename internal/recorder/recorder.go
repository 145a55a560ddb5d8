package recorder

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/graph"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

// Recorded files are always mono 16-bit PCM at 44.1kHz.
const (
	SampleRate  = 44100
	NumChannels = 1
	BitDepth    = 16

	filePrefix      = "recording_"
	fileExtension   = ".wav"
	timestampLayout = "20060102_150405"

	// Two recordings started within the same second get a numeric suffix.
	maxNameCollisions = 100
)

// Somewhere on a graph a recording tap can be armed. *graph.Handle is one.
type TapPoint interface {
	InstallTap(fn graph.TapFunc) (graph.TapID, error)
	RemoveTap(id graph.TapID)
	Format() graph.Format
}

// The Recorder creates recording sessions in a directory, one at a time.
//
// All methods are for the control thread.
type Recorder struct {
	logger    *slog.Logger
	directory string
	now       func() time.Time

	current *Session
}

// Create a new Recorder writing into directory, which is created on the first
// recording. If logger is nil, slog.Default() is used.
func New(directory string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		logger:    logger.With("recorder uuid", uuid.New()),
		directory: directory,
		now:       time.Now,
	}
}

func (r *Recorder) Directory() string {
	return r.directory
}

// The session that is currently armed, or nil.
func (r *Recorder) Current() *Session {
	if r.current != nil && r.current.Active() {
		return r.current
	}
	return nil
}

// Open a new recording file and arm a tap on point.
//
// If a session is already armed, it is returned unchanged and nothing new
// is opened.
func (r *Recorder) Start(point TapPoint) (*Session, error) {
	if current := r.Current(); current != nil {
		r.logger.Debug("recording already armed", "path", current.path)
		return current, nil
	}

	if err := os.MkdirAll(r.directory, 0o755); err != nil {
		return nil, &RecordingIOError{Op: "create directory", Path: r.directory, Err: err}
	}
	f, path, err := r.createFile()
	if err != nil {
		return nil, err
	}

	s, err := newSession(f, path, point.Format().Input.SampleRate, r.logger)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	s.startWriter()

	id, err := point.InstallTap(s.write)
	if err != nil {
		s.finish()
		os.Remove(path)
		return nil, fmt.Errorf("arming recording tap: %w", err)
	}
	s.point = point
	s.tapID = id
	s.active = true
	r.current = s

	s.logger.Info("recording started", "sourceRate", point.Format().Input.SampleRate)
	return s, nil
}

// Move an armed session's tap onto another tap point, e.g. a rebuilt graph.
// Frames keep appending to the same file.
func (r *Recorder) Rebind(s *Session, point TapPoint) error {
	if s == nil || !s.Active() {
		return ErrSessionInactive
	}
	s.point.RemoveTap(s.tapID)

	s.mu.Lock()
	err := s.configureSource(point.Format().Input.SampleRate)
	s.mu.Unlock()
	if err != nil {
		s.active = false
		s.finish()
		return err
	}

	id, err := point.InstallTap(s.write)
	if err != nil {
		s.active = false
		s.finish()
		return fmt.Errorf("rearming recording tap: %w", err)
	}
	s.point = point
	s.tapID = id
	s.logger.Debug("recording tap moved", "sourceRate", point.Format().Input.SampleRate)
	return nil
}

// Detach the tap, flush and close the file, and return its path.
// Stopping an inert session returns the same path again.
func (r *Recorder) Stop(s *Session) (string, error) {
	if s == nil {
		return "", ErrNoRecording
	}
	if r.current == s {
		r.current = nil
	}
	if s.active {
		s.active = false
		s.point.RemoveTap(s.tapID)
	}
	if err := s.finish(); err != nil {
		return s.path, err
	}
	s.logger.Info(
		"recording stopped",
		"framesWritten", s.framesWritten.Load(),
		"writeErrors", s.writeErrors.Load(),
		"dropped", s.dropped.Load(),
	)
	return s.path, nil
}

// Stop the session, then delete its file. A failed delete is reported as a
// *RecordingIOError; the session is inert either way.
func (r *Recorder) Discard(s *Session) error {
	path, stopErr := r.Stop(s)
	if s == nil {
		return stopErr
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("could not delete discarded recording", "err", err)
		return &RecordingIOError{Op: "delete", Path: path, Err: err}
	}
	s.logger.Info("recording discarded")
	return nil
}

func (r *Recorder) createFile() (*os.File, string, error) {
	base := filePrefix + r.now().Format(timestampLayout)
	var lastErr error
	for i := 1; i <= maxNameCollisions; i++ {
		name := base + fileExtension
		if i > 1 {
			name = fmt.Sprintf("%s_%d%s", base, i, fileExtension)
		}
		path := filepath.Join(r.directory, name)
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", &RecordingIOError{Op: "create", Path: path, Err: err}
		}
		lastErr = err
	}
	return nil, "", &RecordingIOError{Op: "create", Path: filepath.Join(r.directory, base+fileExtension), Err: lastErr}
}

// --------------------------------------------------------------------------------

// Build the WAV encoder for an already opened file and write its header, so
// the tap only ever appends samples.
func newEncoder(f *os.File) (*wav.Encoder, *goaudio.Format, error) {
	encoder := wav.NewEncoder(f, SampleRate, BitDepth, NumChannels, 1)
	format := &goaudio.Format{
		SampleRate:  SampleRate,
		NumChannels: NumChannels,
	}
	header := &goaudio.IntBuffer{
		Format:         format,
		Data:           []int{},
		SourceBitDepth: BitDepth,
	}
	if err := encoder.Write(header); err != nil {
		return nil, nil, &RecordingIOError{Op: "write header", Path: f.Name(), Err: err}
	}
	return encoder, format, nil
}
