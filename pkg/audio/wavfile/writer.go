// Package wavfile reads and writes WAV files with github.com/go-audio/wav.
//
// [Writer] records a session to a temporary file for batch upload. [Source]
// replays a WAV file as an [audio.Source], which lets the dictation CLI run
// the full pipeline from a recording instead of a microphone.
package wavfile

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/codiris/voice/pkg/audio"
)

// Writer streams PCM chunks into a WAV file. The header is finalised by
// Close. Writer is safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	f       *os.File
	enc     *wav.Encoder
	format  audio.Format
	written int
	closed  bool
}

// Create opens a new temporary WAV file in dir (os.TempDir when empty).
func Create(dir string, f audio.Format) (*Writer, error) {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return nil, fmt.Errorf("wavfile: invalid format %s", f)
	}
	file, err := os.CreateTemp(dir, "codiris-*.wav")
	if err != nil {
		return nil, fmt.Errorf("wavfile: create temp file: %w", err)
	}
	return &Writer{
		f:      file,
		enc:    wav.NewEncoder(file, f.SampleRate, audio.BitsPerSample, f.Channels, 1),
		format: f,
	}, nil
}

// Path returns the file path.
func (w *Writer) Path() string { return w.f.Name() }

// Write appends one chunk of 16-bit PCM.
func (w *Writer) Write(pcm []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("wavfile: write after close")
	}
	if len(pcm) == 0 {
		return nil
	}
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: w.format.Channels,
			SampleRate:  w.format.SampleRate,
		},
		Data:           audio.BytesToInts(pcm),
		SourceBitDepth: audio.BitsPerSample,
	}
	if err := w.enc.Write(buf); err != nil {
		return fmt.Errorf("wavfile: encode: %w", err)
	}
	w.written += len(pcm)
	return nil
}

// Duration returns the length of audio written so far.
func (w *Writer) Duration() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.format.DurationOf(w.written)
}

// Close finalises the WAV header and closes the file. Safe to call twice.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	encErr := w.enc.Close()
	fileErr := w.f.Close()
	if encErr != nil {
		return fmt.Errorf("wavfile: finalise header: %w", encErr)
	}
	if fileErr != nil {
		return fmt.Errorf("wavfile: close file: %w", fileErr)
	}
	return nil
}

// Remove closes the writer if needed and deletes the file. A missing file is
// not an error.
func (w *Writer) Remove() error {
	_ = w.Close()
	if err := os.Remove(w.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("wavfile: remove: %w", err)
	}
	return nil
}
