// Package audio defines the capture port of the dictation pipeline and the
// PCM helpers shared by capture adapters and transcription providers.
//
// All audio in this module is 16-bit signed little-endian PCM. A [Source]
// delivers chunks of such PCM on a channel; transcription sessions consume
// them. Adapters live in sub-packages: audio/mic (PortAudio microphone),
// audio/wavfile (WAV file playback and temp-file recording) and audio/mock.
package audio

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPermissionDenied is returned by [Source.Start] when the platform refuses
// microphone access. It is reported once per source start, never per chunk.
var ErrPermissionDenied = errors.New("audio: capture permission denied")

// BitsPerSample is fixed for every stream in the pipeline.
const BitsPerSample = 16

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// SpeechFormat is what transcription providers expect: 16 kHz mono.
var SpeechFormat = Format{SampleRate: 16000, Channels: 1}

// BytesPerSecond returns the PCM byte rate of f.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * BitsPerSample / 8
}

// DurationOf returns the playback length of n PCM bytes in format f.
func (f Format) DurationOf(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// String returns e.g. "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Source is a capture device or file producing PCM chunks.
//
// Start begins capture and returns a channel of chunks in [Source.Format].
// The channel is closed when capture ends, either because Stop was called,
// ctx was cancelled or the underlying input was exhausted. A Source may be
// started again after it has stopped.
type Source interface {
	Start(ctx context.Context) (<-chan []byte, error)

	// Stop ends capture. Safe to call when not started and more than once.
	Stop() error

	// Format reports the format of emitted chunks.
	Format() Format
}
