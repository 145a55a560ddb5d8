package graph

import (
	"math"
	"sync/atomic"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/pkg/frame"
	"github.com/google/uuid"
)

const (
	MinDelaySeconds = 0.0
	MaxDelaySeconds = 5.0

	// Nodes process at most this many frames per pass. Larger callbacks are
	// processed in chunks, so nothing is allocated on the audio thread.
	//
	// 4096 frames is ~85ms at 48000Hz, well above any low latency buffer.
	maxChunkFrames = 4096
)

// Clamp a delay time into [MinDelaySeconds, MaxDelaySeconds]. NaN becomes 0.
func ClampDelay(seconds float64) float64 {
	if math.IsNaN(seconds) || seconds < MinDelaySeconds {
		return MinDelaySeconds
	}
	if seconds > MaxDelaySeconds {
		return MaxDelaySeconds
	}
	return seconds
}

// --------------------------------------------------------------------------------
// inputNode

// Mixes the interleaved device input down to the mono processing format.
type inputNode struct {
	id       uuid.UUID
	channels int
	buf      frame.PCMFrame
}

func newInputNode(channels int) *inputNode {
	return &inputNode{
		id:       uuid.New(),
		channels: channels,
		buf:      make(frame.PCMFrame, maxChunkFrames),
	}
}

// Fill the node buffer with frames frames from interleaved. If the device
// delivered no input (output-only callback), the buffer is silence.
func (n *inputNode) process(interleaved []float32, frames int) frame.PCMFrame {
	out := n.buf[:frames]
	if len(interleaved) < frames*n.channels {
		clear(out)
		return out
	}
	if n.channels == 1 {
		copy(out, interleaved)
		return out
	}
	scale := 1 / float32(n.channels)
	for i := range frames {
		var sum float32
		for c := range n.channels {
			sum += interleaved[i*n.channels+c]
		}
		out[i] = sum * scale
	}
	return out
}

// --------------------------------------------------------------------------------
// delayNode

// A single delay line with feedback and a wet/dry mix.
// Delay time is the only parameter that changes while running.
type delayNode struct {
	id         uuid.UUID
	sampleRate int

	line  []float32
	write int

	delaySamples atomic.Int64
	delaySeconds atomic.Uint64

	feedback float32
	wet      float32
}

// wetDryMix is a percentage, as in most effect units.
func newDelayNode(sampleRate int, seconds float64, feedback float32, wetDryMix float32) *delayNode {
	d := &delayNode{
		id:         uuid.New(),
		sampleRate: sampleRate,
		line:       make([]float32, int(MaxDelaySeconds*float64(sampleRate))+1),
		feedback:   feedback,
		wet:        wetDryMix / 100,
	}
	d.setDelay(seconds)
	return d
}

func (d *delayNode) setDelay(seconds float64) float64 {
	seconds = ClampDelay(seconds)
	samples := int64(math.Round(seconds * float64(d.sampleRate)))
	if limit := int64(len(d.line) - 1); samples > limit {
		samples = limit
	}
	d.delaySeconds.Store(math.Float64bits(seconds))
	d.delaySamples.Store(samples)
	return seconds
}

func (d *delayNode) seconds() float64 {
	return math.Float64frombits(d.delaySeconds.Load())
}

// Process samples in place.
func (d *delayNode) process(samples frame.PCMFrame) {
	size := len(d.line)
	delay := int(d.delaySamples.Load())
	dry := 1 - d.wet
	for i, x := range samples {
		delayed := x
		if delay > 0 {
			read := d.write - delay
			if read < 0 {
				read += size
			}
			delayed = d.line[read]
		}
		d.line[d.write] = x + d.feedback*delayed
		samples[i] = dry*x + d.wet*delayed

		d.write++
		if d.write == size {
			d.write = 0
		}
	}
}

// --------------------------------------------------------------------------------
// mixerNode

// Main mixer between the effect and the output. Only applies a gain.
type mixerNode struct {
	id   uuid.UUID
	gain atomic.Uint32
}

func newMixerNode() *mixerNode {
	m := &mixerNode{id: uuid.New()}
	m.setGain(1)
	return m
}

// Must be non-negative. 0.0 means muted, 1.0 is unity.
func (m *mixerNode) setGain(gain float32) {
	if gain < 0 {
		gain = 0
	}
	m.gain.Store(math.Float32bits(gain))
}

func (m *mixerNode) process(samples frame.PCMFrame) {
	gain := math.Float32frombits(m.gain.Load())
	if gain == 1 {
		return
	}
	for i := range samples {
		samples[i] *= gain
	}
}

// --------------------------------------------------------------------------------
// outputNode

// Spreads the mono signal across every output channel.
type outputNode struct {
	id       uuid.UUID
	channels int
}

func newOutputNode(channels int) *outputNode {
	return &outputNode{
		id:       uuid.New(),
		channels: channels,
	}
}

func (n *outputNode) process(mono frame.PCMFrame, interleaved []float32) {
	if n.channels == 1 {
		copy(interleaved, mono)
		return
	}
	for i, v := range mono {
		for c := range n.channels {
			interleaved[i*n.channels+c] = v
		}
	}
}
