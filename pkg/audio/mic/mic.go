//go:build portaudio

package mic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gordonklaus/portaudio"

	"github.com/codiris/voice/pkg/audio"
)

// Start initialises PortAudio, opens the default input device and begins
// capture. A refused device is reported as [audio.ErrPermissionDenied].
func (m *Microphone) Start(ctx context.Context) (<-chan []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil, errors.New("mic: already started")
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("mic: initialise portaudio: %w", err)
	}

	buf := make([]int16, m.framesPerBuffer*m.format.Channels)
	stream, err := portaudio.OpenDefaultStream(m.format.Channels, 0, float64(m.format.SampleRate), m.framesPerBuffer, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, classify(fmt.Errorf("mic: open stream: %w", err))
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, classify(fmt.Errorf("mic: start stream: %w", err))
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	m.stop, m.done, m.running = stop, done, true

	out := make(chan []byte, 32)
	go func() {
		defer close(done)
		defer close(out)
		defer func() {
			_ = stream.Stop()
			_ = stream.Close()
			_ = portaudio.Terminate()
		}()

		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			default:
			}
			if err := stream.Read(); err != nil {
				if errors.Is(err, portaudio.InputOverflowed) {
					continue
				}
				slog.Warn("mic: read failed", "error", err)
				return
			}
			chunk := audio.Int16ToBytes(buf)
			select {
			case out <- chunk:
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	slog.Info("microphone started", "format", m.format.String())
	return out, nil
}

// Stop ends capture and waits for the device to be released.
func (m *Microphone) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	close(m.stop)
	done := m.done
	m.running = false
	m.mu.Unlock()

	<-done
	return nil
}

// classify maps host API errors that indicate a refused device to
// audio.ErrPermissionDenied.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "device unavailable") || strings.Contains(msg, "access") {
		return fmt.Errorf("%w: %v", audio.ErrPermissionDenied, err)
	}
	return err
}
