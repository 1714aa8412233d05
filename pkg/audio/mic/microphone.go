// Package mic captures microphone audio through PortAudio
// (github.com/gordonklaus/portaudio).
//
// PortAudio needs the native library at build time, so the real
// implementation is behind the "portaudio" build tag. Without the tag
// Start returns [ErrUnavailable] and the CLI falls back to WAV input.
package mic

import (
	"errors"
	"sync"

	"github.com/codiris/voice/pkg/audio"
)

// ErrUnavailable is returned by Start in builds without PortAudio.
var ErrUnavailable = errors.New("mic: microphone capture not available: rebuild with -tags portaudio")

const defaultFramesPerBuffer = 1024

// Microphone is an [audio.Source] reading the default input device.
type Microphone struct {
	format          audio.Format
	framesPerBuffer int

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

var _ audio.Source = (*Microphone)(nil)

// Option configures a Microphone.
type Option func(*Microphone)

// WithFormat sets the capture format. Default 16 kHz mono.
func WithFormat(f audio.Format) Option {
	return func(m *Microphone) { m.format = f }
}

// WithFramesPerBuffer sets the PortAudio buffer size in frames. Default 1024.
func WithFramesPerBuffer(n int) Option {
	return func(m *Microphone) {
		if n > 0 {
			m.framesPerBuffer = n
		}
	}
}

// New returns a Microphone. No device is opened until Start.
func New(opts ...Option) *Microphone {
	m := &Microphone{
		format:          audio.SpeechFormat,
		framesPerBuffer: defaultFramesPerBuffer,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Format returns the capture format.
func (m *Microphone) Format() audio.Format { return m.format }
