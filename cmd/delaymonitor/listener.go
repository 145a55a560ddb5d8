package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/meter"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/pipeline"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/recorder"
)

const meterWidth = 40

// Draws the level meter on one terminal line and prints everything else
// on lines of its own.
type terminalListener struct {
	mu  sync.Mutex
	out io.Writer
}

func newTerminalListener(out io.Writer) *terminalListener {
	return &terminalListener{out: out}
}

func (l *terminalListener) OnStateChanged(from, to pipeline.State) {
	l.println(fmt.Sprintf("%v -> %v", from, to))
}

func (l *terminalListener) OnLevel(sample meter.LevelSample) {
	filled := int(sample.NormalizedLevel * meterWidth)
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "\r[%s%s] %3.0f%%", strings.Repeat("#", filled), strings.Repeat(" ", meterWidth-filled), sample.NormalizedLevel*100)
}

func (l *terminalListener) OnRecordingChanged(info recorder.Info) {
	switch {
	case info.Path == "":
		l.println("recording discarded")
	case info.Active:
		l.println("recording " + info.Path)
	default:
		l.println(fmt.Sprintf("recording finished: %s (%d frames)", info.Path, info.FramesWritten))
	}
}

func (l *terminalListener) OnError(err error) {
	l.println("error: " + err.Error())
}

func (l *terminalListener) println(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "\n%s\n", s)
}
