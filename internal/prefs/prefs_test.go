package prefs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/codiris/voice/pkg/mode"
)

func TestDefaults(t *testing.T) {
	d := Defaults()
	if d.Language != "auto" || d.TranscriptionMethod != MethodBatch || !d.AutoDetectContext ||
		!d.HapticFeedback || d.AccentColor != "blue" || d.CurrentMode != mode.Raw || d.CustomPrompt != "" {
		t.Errorf("Defaults() = %+v", d)
	}
	if err := d.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Preferences)
		wantErr string
	}{
		{name: "language code", mutate: func(p *Preferences) { p.Language = "de" }},
		{name: "language region", mutate: func(p *Preferences) { p.Language = "en-US" }},
		{name: "hex color", mutate: func(p *Preferences) { p.AccentColor = "#1A2b3C" }},
		{name: "bad language", mutate: func(p *Preferences) { p.Language = "english please" }, wantErr: "language"},
		{name: "bad method", mutate: func(p *Preferences) { p.TranscriptionMethod = "carrier-pigeon" }, wantErr: "transcription_method"},
		{name: "bad color", mutate: func(p *Preferences) { p.AccentColor = "#12" }, wantErr: "accent_color"},
		{name: "bad mode", mutate: func(p *Preferences) { p.CurrentMode = "poetry" }, wantErr: "current_mode"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := Defaults()
			tc.mutate(&p)
			err := p.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}

	p := Defaults()
	p.CurrentMode = "poetry"
	if err := p.Validate(); !errors.Is(err, mode.ErrUnknownMode) {
		t.Errorf("error = %v, want ErrUnknownMode", err)
	}
}

func TestSetAndGet(t *testing.T) {
	p := Defaults()
	set := map[string]string{
		"language":             "DE",
		"transcription_method": "streaming",
		"auto_detect_context":  "false",
		"haptic_feedback":      "0",
		"accent_color":         "Purple",
		"current_mode":         "Super Prompt",
		"custom_prompt":        "  Rewrite as a haiku.  ",
	}
	for k, v := range set {
		if err := p.Set(k, v); err != nil {
			t.Fatalf("Set(%q): %v", k, err)
		}
	}
	want := map[string]string{
		"language":             "de",
		"transcription_method": "streaming",
		"auto_detect_context":  "false",
		"haptic_feedback":      "false",
		"accent_color":         "purple",
		"current_mode":         "superPrompt",
		"custom_prompt":        "Rewrite as a haiku.",
	}
	for _, k := range Keys() {
		got, err := p.Get(k)
		if err != nil {
			t.Fatalf("Get(%q): %v", k, err)
		}
		if got != want[k] {
			t.Errorf("Get(%q) = %q, want %q", k, got, want[k])
		}
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestSetErrors(t *testing.T) {
	p := Defaults()
	if err := p.Set("volume", "11"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("unknown key error = %v", err)
	}
	if _, err := p.Get("volume"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("unknown key Get error = %v", err)
	}
	if err := p.Set("haptic_feedback", "sometimes"); err == nil {
		t.Error("expected error for non-boolean")
	}
	if err := p.Set("current_mode", "poetry"); !errors.Is(err, mode.ErrUnknownMode) {
		t.Errorf("unknown mode error = %v", err)
	}
}

func TestFileStore_MissingFileIsDefaults(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "nope", "prefs.yaml"))
	p, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p != Defaults() {
		t.Errorf("Load = %+v, want defaults", p)
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "prefs.yaml")
	s := NewFileStore(path)
	ctx := context.Background()

	p := Defaults()
	p.CurrentMode = mode.Email
	p.TranscriptionMethod = MethodStreaming
	p.AutoDetectContext = false
	if err := s.Save(ctx, p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}

	got, err := NewFileStore(path).Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != p {
		t.Errorf("Load = %+v, want %+v", got, p)
	}
}

func TestFileStore_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	if err := os.WriteFile(path, []byte("current_mode: notes\nhaptic_feedback: false\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := NewFileStore(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.CurrentMode != mode.Notes || p.HapticFeedback {
		t.Errorf("stored fields not applied: %+v", p)
	}
	if !p.AutoDetectContext || p.Language != "auto" {
		t.Errorf("defaults lost: %+v", p)
	}
}

func TestFileStore_RejectsBadFiles(t *testing.T) {
	tests := map[string]string{
		"unknown field": "current_mode: raw\nvolume: 11\n",
		"invalid mode":  "current_mode: poetry\n",
		"not yaml":      "current_mode: [\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "prefs.yaml")
			if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
				t.Fatal(err)
			}
			p, err := NewFileStore(path).Load(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if p != Defaults() {
				t.Errorf("Load returned %+v alongside error, want defaults", p)
			}
		})
	}
}

func TestStores_SaveRejectsInvalid(t *testing.T) {
	bad := Defaults()
	bad.TranscriptionMethod = "telepathy"
	for name, s := range map[string]Store{
		"file":   NewFileStore(filepath.Join(t.TempDir(), "prefs.yaml")),
		"memory": &MemoryStore{},
	} {
		if err := s.Save(context.Background(), bad); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	var s MemoryStore
	p, _ := s.Load(ctx)
	if p != Defaults() {
		t.Errorf("zero store = %+v", p)
	}
	p.CurrentMode = mode.Code
	if err := s.Save(ctx, p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _ := s.Load(ctx)
	if got.CurrentMode != mode.Code {
		t.Errorf("CurrentMode = %q", got.CurrentMode)
	}

	seeded := NewMemoryStore(got)
	if again, _ := seeded.Load(ctx); again != got {
		t.Errorf("seeded store = %+v", again)
	}
}
