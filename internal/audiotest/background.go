package audiotest

import "sync"

// FakeBackground counts background task requests and releases.
// Releasing one token twice is counted twice, so tests can catch it.
type FakeBackground struct {
	mu    sync.Mutex
	begun int
	ended int
	err   error
}

func (b *FakeBackground) Begin(name string) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	b.begun++
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.ended++
	}, nil
}

func (b *FakeBackground) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

func (b *FakeBackground) Begun() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.begun
}

func (b *FakeBackground) Ended() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ended
}
