// Package openai implements the batch transcription strategy: the session is
// recorded to a temporary WAV file and uploaded to the OpenAI audio
// transcription endpoint when it stops.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/codiris/voice/pkg/audio/wavfile"
	"github.com/codiris/voice/pkg/provider/stt"
)

// DefaultModel is the transcription model used when none is configured.
const DefaultModel = "whisper-1"

type config struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	model      string
	tempDir    string
}

// Option is a functional option for Transcriber.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithHTTPClient replaces the HTTP client used for uploads.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// WithTimeout sets a per-request HTTP timeout. Ignored when
// [WithHTTPClient] is set.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithModel sets the transcription model. Defaults to whisper-1.
func WithModel(model string) Option {
	return func(c *config) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTempDir sets where session recordings are written. Defaults to
// os.TempDir().
func WithTempDir(dir string) Option {
	return func(c *config) { c.tempDir = dir }
}

// Transcriber implements stt.Transcriber with record-then-upload sessions. It
// also transcribes complete files via [Transcriber.Transcribe].
type Transcriber struct {
	client  oai.Client
	model   string
	tempDir string
}

var _ stt.Transcriber = (*Transcriber)(nil)

// New creates a batch transcriber. The SDK never retries: a failed upload is
// reported to the caller once.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	cfg := &config{model: DefaultModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	switch {
	case cfg.httpClient != nil:
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	case cfg.timeout > 0:
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Transcriber{
		client:  oai.NewClient(reqOpts...),
		model:   cfg.model,
		tempDir: cfg.tempDir,
	}, nil
}

// Model returns the configured model name.
func (t *Transcriber) Model() string { return t.model }

// Transcribe uploads one complete audio file. language is omitted from the
// request when it is empty or [stt.LanguageAuto]. The returned text is
// trimmed; an empty transcript yields stt.ErrNoSpeech.
func (t *Transcriber) Transcribe(ctx context.Context, r io.Reader, filename, contentType, language string) (string, error) {
	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(r, filename, contentType),
		Model: oai.AudioModel(t.model),
	}
	if !(stt.Config{Language: language}).DetectLanguage() {
		params.Language = param.NewOpt(language)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return stt.Final(resp.Text)
}

// StartSession creates the temporary recording for a new session.
func (t *Transcriber) StartSession(_ context.Context, cfg stt.Config, _ stt.PartialFunc) (stt.Session, error) {
	w, err := wavfile.Create(t.tempDir, cfg.AudioFormat())
	if err != nil {
		return nil, fmt.Errorf("openai stt: %w", err)
	}
	return &session{t: t, w: w, language: cfg.Language}, nil
}

// session records PCM to a WAV file until Stop uploads it. Batch sessions
// report no partials.
type session struct {
	t        *Transcriber
	w        *wavfile.Writer
	language string

	mu    sync.Mutex
	ended bool
}

func (s *session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return stt.ErrSessionClosed
	}
	return s.w.Write(chunk)
}

// Stop finalises the recording and uploads it. The temporary file is removed
// once the upload attempt has finished, whatever its outcome.
func (s *session) Stop(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return "", stt.ErrSessionClosed
	}
	s.ended = true
	s.mu.Unlock()

	defer func() {
		if err := s.w.Remove(); err != nil {
			slog.Warn("openai stt: failed to remove recording", "path", s.w.Path(), "error", err)
		}
	}()

	if err := s.w.Close(); err != nil {
		return "", fmt.Errorf("openai stt: %w", err)
	}
	if s.w.Duration() == 0 {
		return "", stt.ErrNoSpeech
	}

	f, err := os.Open(s.w.Path())
	if err != nil {
		return "", fmt.Errorf("openai stt: open recording: %w", err)
	}
	defer f.Close()

	return s.t.Transcribe(ctx, f, "audio.wav", "audio/wav", s.language)
}

// Close discards the recording.
func (s *session) Close() error {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	return s.w.Remove()
}
