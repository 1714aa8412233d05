// Package mock provides a test double for the tts.Provider interface.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/codiris/voice/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Audio is returned by Synthesize. When nil a small MP3-typed clip is
	// returned.
	Audio *tts.Audio

	// Err, if non-nil, is returned by Synthesize.
	Err error

	// VoiceList is returned by Voices.
	VoiceList []string

	// Requests records every Synthesize call.
	Requests []tts.Request
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize records req and returns Audio or Err.
func (p *Provider) Synthesize(_ context.Context, req tts.Request) (*tts.Audio, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if strings.TrimSpace(req.Text) == "" {
		return nil, tts.ErrEmptyText
	}
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Audio != nil {
		return p.Audio, nil
	}
	return &tts.Audio{Data: []byte("mp3"), ContentType: "audio/mpeg"}, nil
}

// Voices returns VoiceList.
func (p *Provider) Voices() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.VoiceList...)
}

// Calls returns a copy of the recorded requests.
func (p *Provider) Calls() []tts.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]tts.Request(nil), p.Requests...)
}
