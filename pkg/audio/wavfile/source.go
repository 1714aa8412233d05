package wavfile

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/codiris/voice/pkg/audio"
)

const defaultChunk = 100 * time.Millisecond

// Source replays a WAV file as 16-bit PCM chunks. It implements
// [audio.Source].
type Source struct {
	path     string
	format   audio.Format
	depth    int
	chunk    time.Duration
	realtime bool

	mu   sync.Mutex
	stop chan struct{}
}

var _ audio.Source = (*Source)(nil)

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithChunkDuration sets the length of each emitted chunk. Default 100 ms.
func WithChunkDuration(d time.Duration) SourceOption {
	return func(s *Source) {
		if d > 0 {
			s.chunk = d
		}
	}
}

// WithRealtime paces emission at playback speed, like a live microphone.
func WithRealtime(on bool) SourceOption {
	return func(s *Source) { s.realtime = on }
}

// Open validates the WAV file at path and reads its format. The file is
// reopened on every Start.
func Open(path string, opts ...SourceOption) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wavfile: open %q: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("wavfile: %q is not a valid WAV file", path)
	}
	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("wavfile: unsupported bit depth %d", dec.BitDepth)
	}

	s := &Source{
		path:   path,
		format: audio.Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)},
		depth:  int(dec.BitDepth),
		chunk:  defaultChunk,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Format returns the file's sample rate and channel count.
func (s *Source) Format() audio.Format { return s.format }

// Start opens the file and emits its PCM in chunks. The channel closes at
// end of file, on Stop or on ctx cancellation.
func (s *Source) Start(ctx context.Context) (<-chan []byte, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("wavfile: open %q: %w", s.path, err)
	}
	dec := wav.NewDecoder(f)
	if err := dec.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("wavfile: seek to PCM data: %w", err)
	}

	stop := make(chan struct{})
	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()

	samplesPerChunk := int(int64(s.format.SampleRate)*int64(s.chunk)/int64(time.Second)) * s.format.Channels
	if samplesPerChunk <= 0 {
		samplesPerChunk = 1024
	}

	out := make(chan []byte, 8)
	go func() {
		defer close(out)
		defer f.Close()

		var tick <-chan time.Time
		if s.realtime {
			t := time.NewTicker(s.chunk)
			defer t.Stop()
			tick = t.C
		}

		buf := &goaudio.IntBuffer{
			Format: &goaudio.Format{NumChannels: s.format.Channels, SampleRate: s.format.SampleRate},
			Data:   make([]int, samplesPerChunk),
		}
		for {
			n, err := dec.PCMBuffer(buf)
			if n == 0 {
				return
			}
			pcm := audio.IntsToBytes(normalise(buf.Data[:n], s.depth))
			last := err != nil

			if tick != nil {
				select {
				case <-tick:
				case <-stop:
					return
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- pcm:
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
			if last {
				return
			}
		}
	}()
	return out, nil
}

// Stop ends the current replay.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	return nil
}

// normalise scales samples of the given bit depth to the int16 range in
// place.
func normalise(samples []int, depth int) []int {
	switch depth {
	case 8:
		for i, v := range samples {
			samples[i] = (v - 128) << 8
		}
	case 24:
		for i, v := range samples {
			samples[i] = v >> 8
		}
	case 32:
		for i, v := range samples {
			samples[i] = v >> 16
		}
	}
	return samples
}
