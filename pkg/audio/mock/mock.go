// Package mock provides an in-memory [audio.Source] for unit tests.
//
// Typical usage:
//
//	src := &mock.Source{Chunks: [][]byte{pcm1, pcm2}}
//	ch, err := src.Start(ctx)
package mock

import (
	"context"
	"sync"

	"github.com/codiris/voice/pkg/audio"
)

// Source is a mock implementation of [audio.Source]. It replays Chunks on
// Start. When HoldOpen is set the channel stays open after the last chunk
// until Stop is called, like a live microphone.
//
// All methods are safe for concurrent use.
type Source struct {
	mu sync.Mutex

	// Chunks are emitted in order by every Start.
	Chunks [][]byte

	// HoldOpen keeps the channel open after Chunks are exhausted.
	HoldOpen bool

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// StopErr is returned by Stop.
	StopErr error

	// SourceFormat is returned by Format. Zero means [audio.SpeechFormat].
	SourceFormat audio.Format

	// StartCount and StopCount record calls.
	StartCount int
	StopCount  int

	stop chan struct{}
}

var _ audio.Source = (*Source)(nil)

// Start records the call and begins replaying Chunks.
func (s *Source) Start(ctx context.Context) (<-chan []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartCount++
	if s.StartErr != nil {
		return nil, s.StartErr
	}

	chunks := make([][]byte, len(s.Chunks))
	copy(chunks, s.Chunks)
	stop := make(chan struct{})
	s.stop = stop
	hold := s.HoldOpen

	out := make(chan []byte, len(chunks))
	go func() {
		defer close(out)
		for _, c := range chunks {
			select {
			case out <- c:
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
		if hold {
			select {
			case <-stop:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

// Stop records the call and ends the current replay.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCount++
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	return s.StopErr
}

// Format returns SourceFormat or [audio.SpeechFormat].
func (s *Source) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SourceFormat == (audio.Format{}) {
		return audio.SpeechFormat
	}
	return s.SourceFormat
}

// Counts returns StartCount and StopCount under the lock.
func (s *Source) Counts() (starts, stops int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.StartCount, s.StopCount
}
