package openai_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/codiris/voice/pkg/audio"
	"github.com/codiris/voice/pkg/provider/stt"
	sttopenai "github.com/codiris/voice/pkg/provider/stt/openai"
)

type upload struct {
	model       string
	language    string
	hasLanguage bool
	filename    string
	size        int
	auth        string
}

type transcriptionServer struct {
	*httptest.Server

	mu      sync.Mutex
	uploads []upload
}

func newTranscriptionServer(t *testing.T, status int, body string) *transcriptionServer {
	t.Helper()
	ts := &transcriptionServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		_, hasLang := r.MultipartForm.Value["language"]

		ts.mu.Lock()
		ts.uploads = append(ts.uploads, upload{
			model:       r.FormValue("model"),
			language:    r.FormValue("language"),
			hasLanguage: hasLang,
			filename:    hdr.Filename,
			size:        len(data),
			auth:        r.Header.Get("Authorization"),
		})
		ts.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *transcriptionServer) received() []upload {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]upload(nil), ts.uploads...)
}

func newTranscriber(t *testing.T, ts *transcriptionServer, dir string) *sttopenai.Transcriber {
	t.Helper()
	tr, err := sttopenai.New("sk-test", sttopenai.WithBaseURL(ts.URL+"/"), sttopenai.WithTempDir(dir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%d temporary files left behind", len(entries))
	}
}

func record(t *testing.T, tr *sttopenai.Transcriber, cfg stt.Config, pcm []byte) stt.Session {
	t.Helper()
	sess, err := tr.StartSession(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := sess.SendAudio(pcm); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	return sess
}

func TestNew_EmptyKey(t *testing.T) {
	if _, err := sttopenai.New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestSession_UploadsAndCleansUp(t *testing.T) {
	ts := newTranscriptionServer(t, http.StatusOK, `{"text":"  Hello world.  "}`)
	dir := t.TempDir()
	tr := newTranscriber(t, ts, dir)

	sess := record(t, tr, stt.Config{Language: "auto"}, make([]byte, audio.SpeechFormat.BytesPerSecond()/2))
	text, err := sess.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if text != "Hello world." {
		t.Errorf("text = %q, want %q", text, "Hello world.")
	}

	ups := ts.received()
	if len(ups) != 1 {
		t.Fatalf("uploads = %d, want 1", len(ups))
	}
	got := ups[0]
	if got.model != "whisper-1" {
		t.Errorf("model = %q, want whisper-1", got.model)
	}
	if got.hasLanguage {
		t.Errorf("language sent for auto-detect: %q", got.language)
	}
	if got.auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", got.auth)
	}
	if !strings.HasSuffix(got.filename, ".wav") {
		t.Errorf("filename = %q, want .wav", got.filename)
	}
	// WAV header plus 0.5 s of 16 kHz mono PCM.
	if got.size <= 16000 {
		t.Errorf("uploaded %d bytes, want header plus 16000", got.size)
	}
	assertNoTempFiles(t, dir)
}

func TestSession_ExplicitLanguage(t *testing.T) {
	ts := newTranscriptionServer(t, http.StatusOK, `{"text":"Hallo"}`)
	tr := newTranscriber(t, ts, t.TempDir())

	sess := record(t, tr, stt.Config{Language: "de"}, make([]byte, 3200))
	if _, err := sess.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := ts.received()[0]; got.language != "de" {
		t.Errorf("language = %q, want de", got.language)
	}
}

func TestSession_FailureIsNotRetriedAndCleansUp(t *testing.T) {
	ts := newTranscriptionServer(t, http.StatusInternalServerError, `{"error":{"message":"boom"}}`)
	dir := t.TempDir()
	tr := newTranscriber(t, ts, dir)

	sess := record(t, tr, stt.Config{}, make([]byte, 3200))
	_, err := sess.Stop(context.Background())
	if err == nil {
		t.Fatal("expected error for HTTP 500")
	}
	if errors.Is(err, stt.ErrNoSpeech) {
		t.Errorf("transport failure reported as no speech")
	}
	if n := len(ts.received()); n != 1 {
		t.Errorf("uploads = %d, want exactly 1", n)
	}
	assertNoTempFiles(t, dir)
}

func TestSession_CancelledContextCleansUp(t *testing.T) {
	ts := newTranscriptionServer(t, http.StatusOK, `{"text":"never"}`)
	dir := t.TempDir()
	tr := newTranscriber(t, ts, dir)

	sess := record(t, tr, stt.Config{}, make([]byte, 3200))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sess.Stop(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	assertNoTempFiles(t, dir)
}

func TestSession_EmptyTranscript(t *testing.T) {
	ts := newTranscriptionServer(t, http.StatusOK, `{"text":"   "}`)
	tr := newTranscriber(t, ts, t.TempDir())

	sess := record(t, tr, stt.Config{}, make([]byte, 3200))
	if _, err := sess.Stop(context.Background()); !errors.Is(err, stt.ErrNoSpeech) {
		t.Fatalf("Stop error = %v, want ErrNoSpeech", err)
	}
}

func TestSession_NoAudioSkipsUpload(t *testing.T) {
	ts := newTranscriptionServer(t, http.StatusOK, `{"text":"phantom"}`)
	dir := t.TempDir()
	tr := newTranscriber(t, ts, dir)

	sess, err := tr.StartSession(context.Background(), stt.Config{}, nil)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := sess.Stop(context.Background()); !errors.Is(err, stt.ErrNoSpeech) {
		t.Fatalf("Stop error = %v, want ErrNoSpeech", err)
	}
	if n := len(ts.received()); n != 0 {
		t.Errorf("uploads = %d, want 0", n)
	}
	assertNoTempFiles(t, dir)
}

func TestSession_CloseRemovesRecording(t *testing.T) {
	ts := newTranscriptionServer(t, http.StatusOK, `{"text":"x"}`)
	dir := t.TempDir()
	tr := newTranscriber(t, ts, dir)

	sess := record(t, tr, stt.Config{}, make([]byte, 3200))
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.SendAudio([]byte{0, 0}); !errors.Is(err, stt.ErrSessionClosed) {
		t.Errorf("SendAudio after Close = %v", err)
	}
	if _, err := sess.Stop(context.Background()); !errors.Is(err, stt.ErrSessionClosed) {
		t.Errorf("Stop after Close = %v", err)
	}
	assertNoTempFiles(t, dir)
}

func TestTranscribe_File(t *testing.T) {
	ts := newTranscriptionServer(t, http.StatusOK, `{"text":"from the web"}`)
	tr := newTranscriber(t, ts, t.TempDir())

	text, err := tr.Transcribe(context.Background(), strings.NewReader("fake-audio"), "clip.webm", "audio/webm", "")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "from the web" {
		t.Errorf("text = %q", text)
	}
	got := ts.received()[0]
	if got.filename != "clip.webm" || got.size != len("fake-audio") {
		t.Errorf("upload = %+v", got)
	}
}
