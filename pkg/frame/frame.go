package frame

// A PCMFrame is a buffer of float32 samples in [-1, 1].
//
// Multi-channel frames are interleaved (L R L R ...). Frames handed to taps
// on the real-time path are reused between callbacks, so any consumer that
// needs the data after returning must copy it.
type PCMFrame []float32
