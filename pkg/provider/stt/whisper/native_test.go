package whisper_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/codiris/voice/pkg/provider/stt"
	"github.com/codiris/voice/pkg/provider/stt/whisper"
)

// testModelPath returns the whisper model used by integration tests, read
// from WHISPER_MODEL_PATH. The test is skipped when unset.
func testModelPath(t *testing.T) string {
	t.Helper()
	p := os.Getenv("WHISPER_MODEL_PATH")
	if p == "" {
		t.Skip("WHISPER_MODEL_PATH not set; skipping native whisper test")
	}
	return p
}

func TestNewNative_EmptyPath(t *testing.T) {
	if _, err := whisper.NewNative(""); err == nil {
		t.Fatal("expected error for empty model path")
	}
}

func TestNewNative_InvalidPath(t *testing.T) {
	if _, err := whisper.NewNative("/nonexistent/path/to/model.bin"); err == nil {
		t.Fatal("expected error for invalid model path")
	}
}

func TestNative_SilenceIsNoSpeech(t *testing.T) {
	n, err := whisper.NewNative(testModelPath(t), whisper.WithPartialInterval(0))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer n.Close()

	sess, err := n.StartSession(context.Background(), stt.Config{Language: "en"}, nil)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	_ = sess.SendAudio(make([]byte, 32000))
	if _, err := sess.Stop(context.Background()); !errors.Is(err, stt.ErrNoSpeech) {
		t.Fatalf("Stop error = %v, want ErrNoSpeech", err)
	}
}
