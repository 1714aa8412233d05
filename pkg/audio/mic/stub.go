//go:build !portaudio

package mic

import "context"

// Start always fails in builds without PortAudio.
func (m *Microphone) Start(_ context.Context) (<-chan []byte, error) {
	return nil, ErrUnavailable
}

// Stop is a no-op in builds without PortAudio.
func (m *Microphone) Stop() error { return nil }
