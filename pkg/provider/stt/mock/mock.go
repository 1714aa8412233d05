// Package mock provides test doubles for the stt package interfaces.
//
// Transcriber hands out a Session configured with a canned result. Session
// records every audio chunk and can emit scripted partials when the first
// chunk arrives.
package mock

import (
	"context"
	"sync"

	"github.com/codiris/voice/pkg/provider/stt"
)

// StartCall records one invocation of Transcriber.StartSession.
type StartCall struct {
	Cfg stt.Config
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Session is returned by StartSession. When nil a fresh Session is
	// created from Text, Err and Partials.
	Session *Session

	// Text and Err configure the result of sessions created on demand.
	Text string
	Err  error

	// Partials are reported to onPartial as soon as the first chunk arrives.
	Partials []string

	// StartErr, if non-nil, is returned by StartSession.
	StartErr error

	// StartFunc, when set, runs before StartSession does anything else and
	// may block on ctx. A non-nil error is returned as is.
	StartFunc func(ctx context.Context) error

	StartCalls []StartCall
	sessions   []*Session
}

var _ stt.Transcriber = (*Transcriber)(nil)

// StartSession records the call and returns a Session.
func (t *Transcriber) StartSession(ctx context.Context, cfg stt.Config, onPartial stt.PartialFunc) (stt.Session, error) {
	if t.StartFunc != nil {
		if err := t.StartFunc(ctx); err != nil {
			return nil, err
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.StartCalls = append(t.StartCalls, StartCall{Cfg: cfg})
	if t.StartErr != nil {
		return nil, t.StartErr
	}
	s := t.Session
	if s == nil {
		s = &Session{Text: t.Text, Err: t.Err, Partials: t.Partials}
	}
	s.mu.Lock()
	s.onPartial = onPartial
	s.mu.Unlock()
	t.sessions = append(t.sessions, s)
	return s, nil
}

// Sessions returns every session handed out so far.
func (t *Transcriber) Sessions() []*Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Session(nil), t.sessions...)
}

// Session is a mock implementation of stt.Session.
type Session struct {
	mu sync.Mutex

	// Text and Err are returned by Stop. An empty Text with a nil Err yields
	// stt.ErrNoSpeech.
	Text string
	Err  error

	// Partials are reported when the first chunk arrives.
	Partials []string

	// StopFunc, when set, replaces the canned result. It runs without the
	// session lock held so it may block on ctx.
	StopFunc func(ctx context.Context) (string, error)

	// SendErr, if non-nil, is returned by SendAudio.
	SendErr error

	// SendFunc, when set, runs before a chunk is recorded, without the
	// session lock held. A non-nil error is returned as is.
	SendFunc func(chunk []byte) error

	Chunks     [][]byte
	StopCount  int
	CloseCount int

	onPartial stt.PartialFunc
	ended     bool
	notified  bool
}

var _ stt.Session = (*Session)(nil)

// SendAudio records chunk.
func (s *Session) SendAudio(chunk []byte) error {
	if s.SendFunc != nil {
		if err := s.SendFunc(chunk); err != nil {
			return err
		}
	}
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return stt.ErrSessionClosed
	}
	if s.SendErr != nil {
		err := s.SendErr
		s.mu.Unlock()
		return err
	}
	s.Chunks = append(s.Chunks, append([]byte(nil), chunk...))
	var partials []string
	if !s.notified {
		s.notified = true
		partials = s.Partials
	}
	fn := s.onPartial
	s.mu.Unlock()

	for _, p := range partials {
		fn.Notify(p)
	}
	return nil
}

// Stop returns the canned result.
func (s *Session) Stop(ctx context.Context) (string, error) {
	s.mu.Lock()
	s.StopCount++
	if s.ended {
		s.mu.Unlock()
		return "", stt.ErrSessionClosed
	}
	s.ended = true
	fn, text, err := s.StopFunc, s.Text, s.Err
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	if err != nil {
		return "", err
	}
	return stt.Final(text)
}

// Close marks the session ended.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	s.ended = true
	return nil
}

// ChunkCount returns the number of chunks received.
func (s *Session) ChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Chunks)
}

// Counts returns how often Stop and Close were called.
func (s *Session) Counts() (stops, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.StopCount, s.CloseCount
}
