package audiotest

import "math"

// Interleaved samples all set to value.
func Constant(frames, channels int, value float32) []float32 {
	buf := make([]float32, frames*channels)
	for i := range buf {
		buf[i] = value
	}
	return buf
}

// An interleaved sine wave with the same signal on every channel.
func Sine(frames, channels int, frequency float64, sampleRate int, amplitude float32) []float32 {
	buf := make([]float32, frames*channels)
	for i := range frames {
		v := amplitude * float32(math.Sin(2*math.Pi*frequency*float64(i)/float64(sampleRate)))
		for c := range channels {
			buf[i*channels+c] = v
		}
	}
	return buf
}

// A mono buffer with a single full-scale sample at index at.
func Impulse(frames, at int) []float32 {
	buf := make([]float32, frames)
	if at >= 0 && at < frames {
		buf[at] = 1
	}
	return buf
}
