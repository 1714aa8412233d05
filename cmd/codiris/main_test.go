package main

import (
	"context"
	"strings"
	"testing"
	"time"

	audiomock "github.com/codiris/voice/pkg/audio/mock"
)

func TestNotifyEnd(t *testing.T) {
	t.Parallel()

	src, end := notifyEnd(&audiomock.Source{Chunks: [][]byte{{1, 2}, {3, 4}}})
	ch, err := src.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	var got int
	for range ch {
		got++
	}
	if got != 2 {
		t.Errorf("chunks = %d, want 2", got)
	}
	select {
	case <-end:
	case <-time.After(time.Second):
		t.Fatal("end not signalled after last chunk")
	}
}

func TestBuildSink(t *testing.T) {
	t.Parallel()

	if _, err := buildSink([]string{"stdout"}); err != nil {
		t.Errorf("stdout: %v", err)
	}
	if _, err := buildSink(nil); err == nil {
		t.Error("expected error for no sinks")
	}
	_, err := buildSink([]string{"printer"})
	if err == nil || !strings.Contains(err.Error(), `"printer"`) {
		t.Errorf("err = %v", err)
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"line one\nline  two", 20, "line one line two"},
		{"abcdefghij", 5, "abcd…"},
	}
	for _, tt := range tests {
		if got := preview(tt.in, tt.n); got != tt.want {
			t.Errorf("preview(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	want := []string{"dictate", "key", "prefs", "modes", "history", "stats", "trial", "upgrade"}
	for _, name := range want {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not found: %v", name, err)
		}
	}
}
