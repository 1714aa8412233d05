package audio

import (
	"log/slog"
	"sync"
)

// Converter turns PCM chunks from one format into another. Only conversions
// towards fewer channels are supported, which is all the speech path needs.
// Create one per stream; a Converter is not safe for concurrent use.
type Converter struct {
	From Format
	To   Format

	warnOnce sync.Once
}

// Convert returns pcm converted to c.To. Matching formats return pcm
// unchanged. Chunks with an odd byte count are dropped (nil).
func (c *Converter) Convert(pcm []byte) []byte {
	if len(pcm)%2 != 0 {
		c.warnOnce.Do(func() {
			slog.Warn("audio converter: odd byte count in PCM chunk, dropping", "bytes", len(pcm))
		})
		return nil
	}
	if c.From == c.To {
		return pcm
	}

	// Downmix before resampling so only one channel is interpolated.
	if c.From.Channels > 1 && c.To.Channels == 1 {
		pcm = Downmix(pcm, c.From.Channels)
	}
	if c.From.SampleRate != c.To.SampleRate {
		pcm = ResampleMono(pcm, c.From.SampleRate, c.To.SampleRate)
	}
	return pcm
}

// ConvertStream wraps in with a goroutine converting every chunk from one
// format to another. The returned channel is closed when in closes.
func ConvertStream(in <-chan []byte, from, to Format) <-chan []byte {
	if from == to {
		return in
	}
	out := make(chan []byte, cap(in))
	go func() {
		defer close(out)
		conv := Converter{From: from, To: to}
		for chunk := range in {
			if c := conv.Convert(chunk); len(c) > 0 {
				out <- c
			}
		}
	}()
	return out
}

// Downmix averages interleaved channels into mono.
func Downmix(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frames := len(pcm) / (2 * channels)
	out := make([]int16, frames)
	for i := range frames {
		var sum int
		for ch := range channels {
			sum += int(SampleAt(pcm, i*channels+ch))
		}
		out[i] = clamp16(sum / channels)
	}
	return Int16ToBytes(out)
}

// ResampleMono resamples mono PCM with linear interpolation. Invalid rates
// return pcm unchanged.
func ResampleMono(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	src := len(pcm) / 2
	dst := int(int64(src) * int64(dstRate) / int64(srcRate))
	if dst == 0 {
		return nil
	}

	out := make([]int16, dst)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dst {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := SampleAt(pcm, idx)
		s1 := s0
		if idx+1 < src {
			s1 = SampleAt(pcm, idx+1)
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return Int16ToBytes(out)
}
