package config_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/codiris/voice/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
web:
  origin: https://voice.codiris.build
`

const watcherUpdatedYAML = `
server:
  log_level: debug
web:
  origin: https://staging.codiris.build
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

// bumpMtime moves the file's modification time forward so a change is
// visible regardless of filesystem timestamp resolution.
func bumpMtime(t *testing.T, path string, by time.Duration) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	mt := info.ModTime().Add(by)
	if err := os.Chtimes(path, mt, mt); err != nil {
		t.Fatal(err)
	}
}

func newWatcherFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherValidYAML)
	return path
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	w, err := config.NewWatcher(newWatcherFile(t), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil after initial load")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
}

func TestWatcher_Check(t *testing.T) {
	t.Parallel()
	path := newWatcherFile(t)

	var gotOld, gotNew *config.Config
	calls := 0
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		gotOld, gotNew = old, new
		calls++
	})
	if err != nil {
		t.Fatal(err)
	}

	if w.Check() {
		t.Error("Check() on unchanged file reported a reload")
	}

	writeFile(t, path, watcherUpdatedYAML)
	bumpMtime(t, path, time.Second)
	if !w.Check() {
		t.Fatal("Check() did not pick up the new file")
	}
	if calls != 1 {
		t.Fatalf("callback calls = %d, want 1", calls)
	}
	d := config.Diff(gotOld, gotNew)
	if !d.LogLevelChanged || !d.OriginChanged || d.NewOrigin != "https://staging.codiris.build" {
		t.Errorf("unexpected diff %+v", d)
	}
	if w.Current() != gotNew {
		t.Error("Current() should return the new config")
	}
}

func TestWatcher_InvalidFileKeepsOldConfig(t *testing.T) {
	t.Parallel()
	path := newWatcherFile(t)
	calls := 0
	w, err := config.NewWatcher(path, func(_, _ *config.Config) { calls++ })
	if err != nil {
		t.Fatal(err)
	}

	writeFile(t, path, watcherInvalidYAML)
	bumpMtime(t, path, time.Second)
	if w.Check() {
		t.Error("invalid file should not be applied")
	}
	if calls != 0 {
		t.Errorf("callback should not be called for invalid config, got %d calls", calls)
	}
	if w.Current().Server.LogLevel != config.LogInfo {
		t.Errorf("Current() should still have old config, got log_level=%q", w.Current().Server.LogLevel)
	}

	// Fixing the file is picked up on the next check.
	writeFile(t, path, watcherUpdatedYAML)
	bumpMtime(t, path, 2*time.Second)
	if !w.Check() {
		t.Error("fixed file should be applied")
	}
}

func TestWatcher_TouchWithoutContentChange(t *testing.T) {
	t.Parallel()
	path := newWatcherFile(t)
	calls := 0
	w, err := config.NewWatcher(path, func(_, _ *config.Config) { calls++ })
	if err != nil {
		t.Fatal(err)
	}

	bumpMtime(t, path, time.Second)
	if w.Check() || calls != 0 {
		t.Errorf("touch without content change triggered reload (calls=%d)", calls)
	}
}

func TestWatcher_Run(t *testing.T) {
	t.Parallel()
	path := newWatcherFile(t)

	var mu sync.Mutex
	var level config.LogLevel
	called := make(chan struct{}, 1)
	w, err := config.NewWatcher(path, func(_, new *config.Config) {
		mu.Lock()
		level = new.Server.LogLevel
		mu.Unlock()
		select {
		case called <- struct{}{}:
		default:
		}
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	// Replace atomically so a poll never sees a half-written file.
	tmp := path + ".tmp"
	writeFile(t, tmp, watcherUpdatedYAML)
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	mt := info.ModTime().Add(time.Second)
	if err := os.Chtimes(tmp, mt, mt); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not invoked within timeout")
	}
	mu.Lock()
	if level != config.LogDebug {
		t.Errorf("callback saw log_level %q, want debug", level)
	}
	mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher("/nonexistent/path.yaml", nil); err == nil {
		t.Fatal("expected error for non-existent file, got nil")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	w, err := config.NewWatcher(newWatcherFile(t), nil, config.WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	w.Stop()
	w.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
