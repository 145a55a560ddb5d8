package pipeline

import (
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/recorder"
)

// Start recording the monitored input. Valid while Running. If a recording
// is already armed, its info is returned and nothing changes.
//
// A recording that was stopped but not yet saved or discarded is saved first.
func (c *Controller) StartRecording() (recorder.Info, error) {
	var info recorder.Info
	err := c.do(func() error {
		var err error
		info, err = c.startRecording()
		return err
	})
	return info, err
}

// Detach the recording tap and finalize the file, keeping the session so it
// can still be saved or discarded. Valid while Running or Paused.
func (c *Controller) StopRecording() (string, error) {
	var path string
	err := c.do(func() error {
		var err error
		path, err = c.stopRecording()
		return err
	})
	return path, err
}

// Finalize the recording (if still armed) and keep the file.
// Valid while Running or Paused.
func (c *Controller) SaveRecording() (string, error) {
	var path string
	err := c.do(func() error {
		var err error
		path, err = c.saveRecording()
		return err
	})
	return path, err
}

// Finalize the recording (if still armed) and delete the file.
// Valid while Running or Paused.
func (c *Controller) DiscardRecording() error {
	return c.do(c.discardRecording)
}

// --------------------------------------------------------------------------------

func (c *Controller) startRecording() (recorder.Info, error) {
	if c.state != Running {
		return recorder.Info{}, invalidState("start recording", c.state)
	}
	if c.recording != nil && !c.recording.Active() {
		c.finishRecording()
	}

	s, err := c.recorder.Start(c.handle)
	if err != nil {
		c.logger.Warn("could not start recording", "err", err)
		return recorder.Info{}, err
	}
	if c.recording != s {
		c.recording = s
		c.reportedWriteErr = 0
		c.listener.OnRecordingChanged(s.Info())
	}
	return s.Info(), nil
}

func (c *Controller) stopRecording() (string, error) {
	if err := c.recordingOpAllowed("stop recording"); err != nil {
		return "", err
	}
	path, err := c.recorder.Stop(c.recording)
	c.listener.OnRecordingChanged(c.recording.Info())
	return path, err
}

func (c *Controller) saveRecording() (string, error) {
	if err := c.recordingOpAllowed("save recording"); err != nil {
		return "", err
	}
	s := c.recording
	path, err := c.recorder.Stop(s)
	c.recording = nil
	c.listener.OnRecordingChanged(s.Info())
	return path, err
}

func (c *Controller) discardRecording() error {
	if err := c.recordingOpAllowed("discard recording"); err != nil {
		return err
	}
	s := c.recording
	err := c.recorder.Discard(s)
	c.recording = nil
	info := s.Info()
	info.Path = ""
	c.listener.OnRecordingChanged(info)
	return err
}

func (c *Controller) recordingOpAllowed(op string) error {
	if c.state != Running && c.state != Paused {
		return invalidState(op, c.state)
	}
	if c.recording == nil {
		return recorder.ErrNoRecording
	}
	return nil
}

// Stop and keep whatever recording exists, for teardown paths.
func (c *Controller) finishRecording() {
	s := c.recording
	c.recording = nil
	path, err := c.recorder.Stop(s)
	if err != nil {
		c.logger.Warn("error while finalizing recording", "err", err)
		c.listener.OnError(err)
	} else {
		c.logger.Info("recording kept", "path", path)
	}
	c.listener.OnRecordingChanged(s.Info())
}
