// Package portaudioapi backs the device catalog, the audio session and the
// graph engine with PortAudio.
package portaudioapi

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudio must be initialized once per process before any other call and
// terminated as often as it was initialized. Every component in this package
// holds one reference.
var host struct {
	mu   sync.Mutex
	refs int
}

func acquireHost() error {
	host.mu.Lock()
	defer host.mu.Unlock()
	if host.refs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize portaudio: %w", err)
		}
	}
	host.refs++
	return nil
}

func releaseHost() error {
	host.mu.Lock()
	defer host.mu.Unlock()
	if host.refs == 0 {
		return nil
	}
	host.refs--
	if host.refs == 0 {
		return portaudio.Terminate()
	}
	return nil
}
