// Package stt defines the transcription contract of the dictation pipeline.
//
// A [Transcriber] opens one [Session] per recording. The session accepts PCM
// chunks, may report partial hypotheses through a callback while audio is
// still arriving, and produces exactly one terminal result when stopped:
// the best available transcript or an error. Three strategies implement it:
// stt/deepgram (remote streaming), stt/whisper (on-device streaming, plus a
// local whisper-server batch variant) and stt/openai (remote batch upload).
//
// Implementations must be safe for concurrent use. Partial callbacks are
// invoked from an internal goroutine and must not block.
package stt

import (
	"context"
	"errors"
	"strings"

	"github.com/codiris/voice/pkg/audio"
)

// ErrNoSpeech is returned by [Session.Stop] when nothing was recognised.
var ErrNoSpeech = errors.New("stt: no speech recognised")

// ErrSessionClosed is returned by [Session.SendAudio] after Stop or Close,
// or once the underlying stream has failed.
var ErrSessionClosed = errors.New("stt: session closed")

// LanguageAuto asks the provider to detect the spoken language.
const LanguageAuto = "auto"

// Config describes the audio and language of a session.
type Config struct {
	// Format of the PCM chunks passed to SendAudio. Zero means
	// audio.SpeechFormat.
	Format audio.Format

	// Language is a BCP-47 or ISO-639-1 code, or [LanguageAuto]/empty for
	// detection.
	Language string
}

// AudioFormat returns c.Format or the speech default.
func (c Config) AudioFormat() audio.Format {
	if c.Format.SampleRate <= 0 || c.Format.Channels <= 0 {
		return audio.SpeechFormat
	}
	return c.Format
}

// DetectLanguage reports whether the language should be auto-detected.
func (c Config) DetectLanguage() bool {
	return c.Language == "" || strings.EqualFold(c.Language, LanguageAuto)
}

// PartialFunc receives the current best hypothesis of a running session.
type PartialFunc func(text string)

// Session is one recording's transcription.
type Session interface {
	// SendAudio delivers one chunk of PCM in the configured format.
	SendAudio(chunk []byte) error

	// Stop ends audio input and waits for the terminal result. It returns
	// ErrNoSpeech when the transcript is empty. Calling Stop twice returns
	// ErrSessionClosed.
	Stop(ctx context.Context) (string, error)

	// Close aborts the session without a result and releases resources.
	// Safe after Stop and more than once.
	Close() error
}

// Transcriber opens sessions.
type Transcriber interface {
	StartSession(ctx context.Context, cfg Config, onPartial PartialFunc) (Session, error)
}

// Final normalises a provider transcript into a terminal result: surrounding
// whitespace is removed and an empty transcript becomes ErrNoSpeech.
func Final(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoSpeech
	}
	return text, nil
}

// Notify calls fn with text when fn is non-nil.
func (fn PartialFunc) Notify(text string) {
	if fn != nil {
		fn(text)
	}
}
