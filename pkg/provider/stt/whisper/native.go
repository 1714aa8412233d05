package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/codiris/voice/pkg/audio"
	"github.com/codiris/voice/pkg/provider/stt"
)

// Native transcribes in-process through the whisper.cpp CGO bindings. The
// model is loaded once and shared by all sessions; each inference gets its
// own whisper context.
type Native struct {
	model whisperlib.Model
	opts  options
}

var _ stt.Transcriber = (*Native)(nil)

// NewNative loads the whisper.cpp model at modelPath. Call Close when done.
func NewNative(modelPath string, opts ...Option) (*Native, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	return &Native{
		model: model,
		opts: buildOptions(options{
			partialInterval: defaultPartialInterval,
			threshold:       defaultRMSThreshold,
		}, opts),
	}, nil
}

// Close releases the model.
func (n *Native) Close() error {
	if n.model != nil {
		return n.model.Close()
	}
	return nil
}

// StartSession opens an on-device session. ctx is only checked for
// cancellation; the session lives until Stop or Close.
func (n *Native) StartSession(ctx context.Context, cfg stt.Config, onPartial stt.PartialFunc) (stt.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	return newSession(n.recognize, cfg, n.opts, onPartial), nil
}

func (n *Native) recognize(_ context.Context, pcm []byte, lang string) (string, error) {
	wctx, err := n.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using model default", "language", lang, "error", err)
	}
	if err := wctx.Process(audio.ToFloat32Mono(pcm, 1), nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
