package recorder

import "sync/atomic"

// A single-producer single-consumer queue of samples. The tap pushes, the
// writer goroutine pops; neither side locks or allocates.
type sampleRing struct {
	buf  []int16
	mask uint64

	head atomic.Uint64 // next slot to write, producer only
	tail atomic.Uint64 // next slot to read, consumer only
}

// size is rounded up to a power of two.
func newSampleRing(size int) *sampleRing {
	n := 1
	for n < size {
		n <<= 1
	}
	return &sampleRing{
		buf:  make([]int16, n),
		mask: uint64(n - 1),
	}
}

func (r *sampleRing) capacity() int {
	return len(r.buf)
}

// Append as many samples as fit and return how many that was.
func (r *sampleRing) push(samples []int16) int {
	head := r.head.Load()
	free := uint64(len(r.buf)) - (head - r.tail.Load())
	n := min(uint64(len(samples)), free)
	for i := range n {
		r.buf[(head+i)&r.mask] = samples[i]
	}
	r.head.Store(head + n)
	return int(n)
}

// Move up to len(dst) queued samples into dst.
func (r *sampleRing) pop(dst []int) int {
	tail := r.tail.Load()
	n := min(uint64(len(dst)), r.head.Load()-tail)
	for i := range n {
		dst[i] = int(r.buf[(tail+i)&r.mask])
	}
	r.tail.Store(tail + n)
	return int(n)
}
