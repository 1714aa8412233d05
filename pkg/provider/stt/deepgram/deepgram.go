// Package deepgram implements the streaming transcription strategy on top of
// the Deepgram live WebSocket API.
//
// Interim results are reported as partials. Final segments are committed as
// they arrive; the session result is the committed segments followed by the
// last interim hypothesis seen before the stream closed.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/codiris/voice/pkg/provider/stt"
)

const (
	defaultEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"

	// multiLanguage enables Deepgram's code-switching recogniser, used when
	// the language is left to auto-detection.
	multiLanguage = "multi"
)

var closeStream = []byte(`{"type":"CloseStream"}`)

// Option is a functional option for configuring the Transcriber.
type Option func(*Transcriber)

// WithModel sets the Deepgram model (e.g. "nova-3", "base").
func WithModel(model string) Option {
	return func(t *Transcriber) {
		if model != "" {
			t.model = model
		}
	}
}

// WithEndpoint overrides the WebSocket endpoint. Used by tests and
// self-hosted deployments.
func WithEndpoint(endpoint string) Option {
	return func(t *Transcriber) {
		if endpoint != "" {
			t.endpoint = endpoint
		}
	}
}

// WithKeywords boosts recognition of the given terms.
func WithKeywords(keywords ...string) Option {
	return func(t *Transcriber) { t.keywords = append(t.keywords, keywords...) }
}

// Transcriber implements stt.Transcriber backed by the Deepgram streaming API.
type Transcriber struct {
	apiKey   string
	model    string
	endpoint string
	keywords []string
}

var _ stt.Transcriber = (*Transcriber)(nil)

// New creates a Deepgram transcriber. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	t := &Transcriber{
		apiKey:   apiKey,
		model:    defaultModel,
		endpoint: defaultEndpoint,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Model returns the configured model name.
func (t *Transcriber) Model() string { return t.model }

// StartSession dials Deepgram and starts the read and write loops. ctx bounds
// the dial only; the session lives until Stop or Close.
func (t *Transcriber) StartSession(ctx context.Context, cfg stt.Config, onPartial stt.PartialFunc) (stt.Session, error) {
	wsURL, err := t.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+t.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		conn:      conn,
		onPartial: onPartial,
		audio:     make(chan []byte, 256),
		stop:      make(chan struct{}),
		writeDone: make(chan struct{}),
		readDone:  make(chan struct{}),
		cancel:    cancel,
	}
	go s.writeLoop(loopCtx)
	go s.readLoop(loopCtx)
	return s, nil
}

// buildURL constructs the streaming endpoint URL for cfg.
func (t *Transcriber) buildURL(cfg stt.Config) (string, error) {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return "", err
	}
	f := cfg.AudioFormat()

	lang := cfg.Language
	if cfg.DetectLanguage() {
		lang = multiLanguage
	}

	q := u.Query()
	q.Set("model", t.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(f.SampleRate))
	q.Set("channels", strconv.Itoa(f.Channels))
	for _, kw := range t.keywords {
		q.Add("keyterm", kw)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ── session ──────────────────────────────────────────────────────────────────

// response is the subset of a Deepgram "Results" message we consume.
type response struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type session struct {
	conn      *websocket.Conn
	onPartial stt.PartialFunc
	audio     chan []byte

	stop      chan struct{} // closed when no more audio will be accepted
	stopOnce  sync.Once
	writeDone chan struct{}
	readDone  chan struct{}
	cancel    context.CancelFunc

	mu        sync.Mutex
	ended     bool
	committed []string
	interim   string
	readErr   error
	writeErr  error
}

// SendAudio queues a PCM chunk for delivery to Deepgram. Once the stream
// has failed it returns an error wrapping [stt.ErrSessionClosed].
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.stop:
		return stt.ErrSessionClosed
	case <-s.writeDone:
		return s.streamClosed()
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.stop:
		return stt.ErrSessionClosed
	case <-s.writeDone:
		return s.streamClosed()
	}
}

// streamClosed reports why the writer stopped before Stop or Close.
func (s *session) streamClosed() error {
	s.mu.Lock()
	cause := s.writeErr
	if cause == nil {
		cause = s.readErr
	}
	s.mu.Unlock()
	if cause == nil {
		return fmt.Errorf("deepgram: %w: stream ended", stt.ErrSessionClosed)
	}
	return fmt.Errorf("deepgram: %w: %v", stt.ErrSessionClosed, cause)
}

// Stop flushes queued audio, asks Deepgram to finalise and waits for the
// stream to close or ctx to expire. The best transcript seen so far is
// returned either way.
func (s *session) Stop(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return "", stt.ErrSessionClosed
	}
	s.ended = true
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stop) })
	<-s.writeDone

	if err := s.conn.Write(ctx, websocket.MessageText, closeStream); err != nil {
		slog.Debug("deepgram: close stream failed", "error", err)
	}
	select {
	case <-s.readDone:
	case <-ctx.Done():
		slog.Warn("deepgram: finalisation timed out", "error", ctx.Err())
	}
	s.shutdown()

	s.mu.Lock()
	text := s.transcriptLocked()
	failure := s.readErr
	if failure == nil {
		failure = s.writeErr
	}
	s.mu.Unlock()

	if strings.TrimSpace(text) == "" && failure != nil {
		return "", fmt.Errorf("deepgram: stream: %w", failure)
	}
	return stt.Final(text)
}

// Close aborts the session.
func (s *session) Close() error {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.stop) })
	s.shutdown()
	return nil
}

// shutdown cancels both loops, drops the connection and waits for the loops.
func (s *session) shutdown() {
	s.cancel()
	_ = s.conn.CloseNow()
	<-s.writeDone
	<-s.readDone
}

// writeLoop forwards queued audio as binary frames until stop is closed,
// then drains what is left in the queue.
func (s *session) writeLoop(ctx context.Context) {
	defer close(s.writeDone)
	write := func(chunk []byte) bool {
		if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
			s.mu.Lock()
			if s.writeErr == nil {
				s.writeErr = err
			}
			s.mu.Unlock()
			return false
		}
		return true
	}
	for {
		select {
		case chunk := <-s.audio:
			if !write(chunk) {
				return
			}
		case <-s.stop:
			for {
				select {
				case chunk := <-s.audio:
					if !write(chunk) {
						return
					}
				default:
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// readLoop consumes result messages until the connection closes. Its exit
// also stops the writer, so a dropped stream stops accepting audio.
func (s *session) readLoop(ctx context.Context) {
	defer close(s.readDone)
	defer s.cancel()
	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && ctx.Err() == nil {
				s.mu.Lock()
				s.readErr = err
				s.mu.Unlock()
			}
			return
		}
		text, final, ok := parseResponse(msg)
		if !ok {
			continue
		}

		s.mu.Lock()
		if final {
			if text != "" {
				s.committed = append(s.committed, text)
			}
			s.interim = ""
		} else {
			s.interim = text
		}
		partial := s.transcriptLocked()
		s.mu.Unlock()

		s.onPartial.Notify(partial)
	}
}

// transcriptLocked joins committed segments with the pending interim. s.mu
// must be held.
func (s *session) transcriptLocked() string {
	parts := s.committed
	if s.interim != "" {
		parts = append(parts[:len(parts):len(parts)], s.interim)
	}
	return strings.Join(parts, " ")
}

// parseResponse extracts the transcript from a Results message. ok is false
// for metadata and malformed messages.
func parseResponse(data []byte) (text string, final, ok bool) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", false, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return "", false, false
	}
	return strings.TrimSpace(resp.Channel.Alternatives[0].Transcript), resp.IsFinal, true
}
