package resilience

import (
	"context"
	"errors"

	"github.com/codiris/voice/pkg/provider/stt"
)

// Transcriber is an [stt.Transcriber] that fails over when a backend cannot
// open a session. Once a session is open it is used until the end; audio
// already sent cannot be replayed to another backend.
type Transcriber struct {
	group *Group[stt.Transcriber]
}

var _ stt.Transcriber = (*Transcriber)(nil)

// NewTranscriber returns a Transcriber with primary as the preferred backend.
// [stt.ErrNoSpeech] never counts as a backend failure.
func NewTranscriber(primaryName string, primary stt.Transcriber, cfg BreakerConfig) *Transcriber {
	cfg.IsFailure = withoutSentinels(cfg.IsFailure, stt.ErrNoSpeech, stt.ErrSessionClosed)
	return &Transcriber{group: NewGroup[stt.Transcriber](cfg).Add(primaryName, primary)}
}

// AddFallback registers another backend after those already added.
func (f *Transcriber) AddFallback(name string, t stt.Transcriber) *Transcriber {
	f.group.Add(name, t)
	return f
}

// StartSession opens a session on the first backend that accepts one.
func (f *Transcriber) StartSession(ctx context.Context, cfg stt.Config, onPartial stt.PartialFunc) (stt.Session, error) {
	return Do(ctx, f.group, func(t stt.Transcriber) (stt.Session, error) {
		return t.StartSession(ctx, cfg, onPartial)
	})
}

// withoutSentinels wraps base so that errors matching any of sentinels are
// not failures.
func withoutSentinels(base func(error) bool, sentinels ...error) func(error) bool {
	if base == nil {
		base = CountsAsFailure
	}
	return func(err error) bool {
		for _, s := range sentinels {
			if errors.Is(err, s) {
				return false
			}
		}
		return base(err)
	}
}
