// Package tts defines the text-to-speech port used by the web tier's
// read-aloud endpoint.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyText is returned when there is nothing to synthesise.
var ErrEmptyText = errors.New("tts: text must not be empty")

// Request describes one synthesis call.
type Request struct {
	Text string

	// Voice is the provider voice identifier. Empty selects the provider
	// default.
	Voice string

	// Speed scales the speaking rate; 0 means the provider default.
	Speed float64
}

// Audio is an encoded clip.
type Audio struct {
	Data        []byte
	ContentType string
}

// Provider synthesises speech.
type Provider interface {
	// Synthesize returns the encoded audio for req.Text. It returns
	// ErrEmptyText for blank input.
	Synthesize(ctx context.Context, req Request) (*Audio, error)

	// Voices lists the voice identifiers the provider accepts.
	Voices() []string
}
