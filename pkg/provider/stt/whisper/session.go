package whisper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/codiris/voice/pkg/audio"
	"github.com/codiris/voice/pkg/provider/stt"
)

// session buffers audio for one recording and drives the recognizer. It
// implements stt.Session.
type session struct {
	recognize recognizer
	language  string
	threshold float64
	onPartial stt.PartialFunc
	conv      audio.Converter

	mu       sync.Mutex
	pcm      []byte
	speech   bool
	ended    bool
	inferred int // buffer length at the last partial inference

	stopOnce sync.Once
	stop     chan struct{}
	loopDone chan struct{}
	cancel   context.CancelFunc
}

var _ stt.Session = (*session)(nil)

func newSession(rec recognizer, cfg stt.Config, o options, onPartial stt.PartialFunc) *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		recognize: rec,
		language:  language(cfg),
		threshold: o.threshold,
		onPartial: onPartial,
		conv:      audio.Converter{From: cfg.AudioFormat(), To: audio.SpeechFormat},
		stop:      make(chan struct{}),
		loopDone:  make(chan struct{}),
		cancel:    cancel,
	}
	if o.partialInterval > 0 {
		go s.partialLoop(ctx, o.partialInterval)
	} else {
		close(s.loopDone)
	}
	return s
}

// SendAudio converts chunk to 16 kHz mono and appends it to the buffer.
func (s *session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return stt.ErrSessionClosed
	}
	mono := s.conv.Convert(chunk)
	if len(mono) == 0 {
		return nil
	}
	s.pcm = append(s.pcm, mono...)
	if audio.RMS(mono) >= s.threshold {
		s.speech = true
	}
	return nil
}

// Stop ends the partial loop and transcribes the full recording.
func (s *session) Stop(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return "", stt.ErrSessionClosed
	}
	s.ended = true
	pcm, speech := s.pcm, s.speech
	s.pcm = nil
	s.mu.Unlock()

	s.halt()
	if !speech {
		return "", stt.ErrNoSpeech
	}

	start := time.Now()
	text, err := s.recognize(ctx, pcm, s.language)
	if err != nil {
		return "", fmt.Errorf("whisper: transcribe: %w", err)
	}
	slog.Debug("whisper: final inference",
		"audio", audio.SpeechFormat.DurationOf(len(pcm)),
		"took", time.Since(start),
	)
	return stt.Final(text)
}

// Close discards the buffer without transcribing it.
func (s *session) Close() error {
	s.mu.Lock()
	s.ended = true
	s.pcm = nil
	s.mu.Unlock()
	s.halt()
	return nil
}

func (s *session) halt() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.cancel()
	})
	<-s.loopDone
}

// partialLoop re-transcribes the buffer whenever it has grown since the last
// pass, reporting changed hypotheses.
func (s *session) partialLoop(ctx context.Context, interval time.Duration) {
	defer close(s.loopDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last string
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if !s.speech || len(s.pcm) == s.inferred {
			s.mu.Unlock()
			continue
		}
		snapshot := append([]byte(nil), s.pcm...)
		s.inferred = len(s.pcm)
		s.mu.Unlock()

		text, err := s.recognize(ctx, snapshot, s.language)
		if err != nil {
			if ctx.Err() == nil {
				slog.Debug("whisper: partial inference failed", "error", err)
			}
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" || text == last {
			continue
		}
		last = text
		s.onPartial.Notify(text)
	}
}
