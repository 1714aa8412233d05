package wavfile_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/codiris/voice/pkg/audio"
	"github.com/codiris/voice/pkg/audio/wavfile"
)

func TestWriterThenSource(t *testing.T) {
	dir := t.TempDir()

	w, err := wavfile.Create(dir, audio.SpeechFormat)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// 0.3 s of a simple ramp, written in three chunks.
	want := make([]int16, 4800)
	for i := range want {
		want[i] = int16(i%2000 - 1000)
	}
	pcm := audio.Int16ToBytes(want)
	for i := 0; i < 3; i++ {
		if err := w.Write(pcm[i*3200 : (i+1)*3200]); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if got := w.Duration(); got != 300*time.Millisecond {
		t.Errorf("Duration = %v, want 300ms", got)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Write(pcm[:2]); err == nil {
		t.Error("expected error writing after Close")
	}

	src, err := wavfile.Open(w.Path(), wavfile.WithChunkDuration(50*time.Millisecond))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if src.Format() != audio.SpeechFormat {
		t.Errorf("Format = %s, want %s", src.Format(), audio.SpeechFormat)
	}

	ch, err := src.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	var got []byte
	chunks := 0
	for c := range ch {
		got = append(got, c...)
		chunks++
	}
	if chunks < 2 {
		t.Errorf("chunks = %d, want the file split into several chunks", chunks)
	}
	if len(got) != len(pcm) {
		t.Fatalf("read %d bytes, want %d", len(got), len(pcm))
	}
	for i := range want {
		if s := audio.SampleAt(got, i); s != want[i] {
			t.Fatalf("sample %d: got %d, want %d", i, s, want[i])
		}
	}
}

func TestWriterRemove(t *testing.T) {
	dir := t.TempDir()
	w, err := wavfile.Create(dir, audio.SpeechFormat)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if filepath.Dir(w.Path()) != dir {
		t.Errorf("temp file %q not in %q", w.Path(), dir)
	}
	if err := w.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(w.Path()); !os.IsNotExist(err) {
		t.Errorf("file still present after Remove: %v", err)
	}
	// Second remove is a no-op.
	if err := w.Remove(); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}

func TestCreate_InvalidFormat(t *testing.T) {
	if _, err := wavfile.Create(t.TempDir(), audio.Format{}); err == nil {
		t.Fatal("expected error for zero format")
	}
}

func TestOpen_NotWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.wav")
	if err := os.WriteFile(path, []byte("definitely not RIFF data"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := wavfile.Open(path); err == nil {
		t.Fatal("expected error for invalid file")
	}
	if _, err := wavfile.Open(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSource_Stop(t *testing.T) {
	dir := t.TempDir()
	w, _ := wavfile.Create(dir, audio.SpeechFormat)
	_ = w.Write(make([]byte, 32000)) // 1 s of silence
	_ = w.Close()

	src, err := wavfile.Open(w.Path(), wavfile.WithRealtime(true), wavfile.WithChunkDuration(20*time.Millisecond))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ch, err := src.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-ch
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	done := make(chan struct{})
	go func() {
		audio.Drain(ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after Stop")
	}
}
