package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/codiris/voice/pkg/audio"
	"github.com/codiris/voice/pkg/audio/wavfile"
	"github.com/codiris/voice/pkg/provider/stt"
)

// Server transcribes through a local whisper-server process (POST
// /inference). By default it transcribes once at Stop; enable partials with
// [WithPartialInterval].
type Server struct {
	serverURL string
	opts      options
}

var _ stt.Transcriber = (*Server)(nil)

// NewServer creates a transcriber for the whisper-server at serverURL
// (e.g. "http://localhost:8080").
func NewServer(serverURL string, opts ...Option) (*Server, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	return &Server{
		serverURL: strings.TrimRight(serverURL, "/"),
		opts: buildOptions(options{
			threshold:  defaultRMSThreshold,
			httpClient: &http.Client{Timeout: 60 * time.Second},
		}, opts),
	}, nil
}

// StartSession opens a buffered session.
func (s *Server) StartSession(ctx context.Context, cfg stt.Config, onPartial stt.PartialFunc) (stt.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	return newSession(s.recognize, cfg, s.opts, onPartial), nil
}

// recognize writes pcm to a temporary WAV file and uploads it. The file is
// removed before returning.
func (s *Server) recognize(ctx context.Context, pcm []byte, lang string) (string, error) {
	w, err := wavfile.Create(s.opts.tempDir, audio.SpeechFormat)
	if err != nil {
		return "", err
	}
	defer w.Remove()
	if err := w.Write(pcm); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	f, err := os.Open(w.Path())
	if err != nil {
		return "", fmt.Errorf("whisper: open upload: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	fields := map[string]string{"language": lang, "response_format": "json"}
	if s.opts.model != "" {
		fields["model"] = s.opts.model
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.opts.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}
	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return result.Text, nil
}
