package resilience

import (
	"context"

	"github.com/codiris/voice/pkg/provider/tts"
)

// TTS is a [tts.Provider] that fails over across synthesis backends.
type TTS struct {
	group *Group[tts.Provider]
}

var _ tts.Provider = (*TTS)(nil)

// NewTTS returns a TTS with primary as the preferred backend.
// [tts.ErrEmptyText] never counts as a backend failure.
func NewTTS(primaryName string, primary tts.Provider, cfg BreakerConfig) *TTS {
	cfg.IsFailure = withoutSentinels(cfg.IsFailure, tts.ErrEmptyText)
	return &TTS{group: NewGroup[tts.Provider](cfg).Add(primaryName, primary)}
}

// AddFallback registers another backend after those already added.
func (f *TTS) AddFallback(name string, p tts.Provider) *TTS {
	f.group.Add(name, p)
	return f
}

// Synthesize renders req on the first healthy backend.
func (f *TTS) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	return Do(ctx, f.group, func(p tts.Provider) (*tts.Audio, error) {
		return p.Synthesize(ctx, req)
	})
}

// Voices returns the primary backend's voices.
func (f *TTS) Voices() []string {
	return f.group.members[0].value.Voices()
}
