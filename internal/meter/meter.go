package meter

import (
	"math"
	"sync/atomic"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/pkg/frame"
)

const (
	// Levels at or below FloorDecibels show as an empty meter.
	FloorDecibels = -50.0
	// Levels at or above CeilingDecibels (full scale) show as a full meter.
	CeilingDecibels = 0.0
)

// One meter reading, handed from the audio thread to the control thread.
type LevelSample struct {
	// Loudness in [0, 1], linear in decibels between FloorDecibels and CeilingDecibels.
	NormalizedLevel float64
	// Position of the first frame of the measured buffer since the tap was attached.
	TimestampFrame uint64
}

// Compute the normalized level of a buffer.
//
// RMS over every sample, converted to dB, mapped from [-50, 0] dB onto [0, 1]
// and clamped. Empty and silent buffers are 0, as is anything that produces NaN.
func Level(samples frame.PCMFrame) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms == 0 || math.IsNaN(rms) {
		return 0
	}
	db := 20 * math.Log10(rms)
	level := (db - FloorDecibels) / (CeilingDecibels - FloorDecibels)
	switch {
	case math.IsNaN(level):
		return 0
	case level < 0:
		return 0
	case level > 1:
		return 1
	}
	return level
}

// --------------------------------------------------------------------------------

// A Meter holds the most recent level reading.
//
// Tap runs on the real-time thread and only stores to atomics.
// Latest is meant for a single reader (the control loop) and reports each
// reading at most once; readings that arrive between two polls are lost.
type Meter struct {
	level    atomic.Uint64
	position atomic.Uint64
	sequence atomic.Uint64

	lastRead uint64
}

func New() *Meter {
	return &Meter{}
}

// Measure one buffer. Safe to install as a graph tap.
func (m *Meter) Tap(samples frame.PCMFrame, position uint64) {
	m.level.Store(math.Float64bits(Level(samples)))
	m.position.Store(position)
	m.sequence.Add(1)
}

// Return the newest reading, or false if nothing new arrived since the last call.
//
// Level and position are stored separately, so a reading taken while the
// audio thread is mid-update may pair a level with the next buffer's position.
// That is acceptable for display.
func (m *Meter) Latest() (LevelSample, bool) {
	seq := m.sequence.Load()
	if seq == m.lastRead {
		return LevelSample{}, false
	}
	m.lastRead = seq
	return LevelSample{
		NormalizedLevel: math.Float64frombits(m.level.Load()),
		TimestampFrame:  m.position.Load(),
	}, true
}

// Forget the last reading, e.g. after the graph it was attached to is gone.
func (m *Meter) Reset() {
	m.level.Store(0)
	m.position.Store(0)
	m.lastRead = m.sequence.Load()
}
