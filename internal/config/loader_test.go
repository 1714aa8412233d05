package config_test

import (
	"strings"
	"testing"

	"github.com/codiris/voice/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "log level",
			yaml: "server:\n  log_level: verbose\n",
			want: "server.log_level",
		},
		{
			name: "listen addr",
			yaml: "server:\n  listen_addr: \"8080\"\n",
			want: "server.listen_addr",
		},
		{
			name: "fallback without name",
			yaml: "providers:\n  llm:\n    name: openai\n  llm_fallbacks:\n    - model: x\n",
			want: "llm_fallbacks[0].name",
		},
		{
			name: "fallback without primary",
			yaml: "providers:\n  llm_fallbacks:\n    - name: anthropic\n",
			want: "requires providers.llm",
		},
		{
			name: "origin not absolute",
			yaml: "web:\n  origin: voice.codiris.build\n",
			want: "web.origin",
		},
		{
			name: "origin bad scheme",
			yaml: "web:\n  origin: ftp://voice.codiris.build\n",
			want: "web.origin",
		},
		{
			name: "credential backend",
			yaml: "client:\n  credential_backend: vault\n",
			want: "client.credential_backend",
		},
		{
			name: "file backend without path",
			yaml: "client:\n  credential_backend: file\n  credential_path: \"\"\n",
			want: "client.credential_path",
		},
		{
			name: "history backend",
			yaml: "history:\n  backend: redis\n",
			want: "history.backend",
		},
		{
			name: "history dsn",
			yaml: "history:\n  backend: postgres\n  dsn: \"\"\n",
			want: "history.dsn",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error should mention %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestValidate_HistoryNoneNeedsNoDSN(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("history:\n  backend: none\n  dsn: \"\"\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_UnknownProviderNameIsWarningOnly(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("providers:\n  tts:\n    name: my-custom-tts\n"))
	if err != nil {
		t.Fatalf("unknown provider names should only warn, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
client:
  credential_backend: vault
history:
  backend: redis
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	for _, want := range []string{"log_level", "credential_backend", "history.backend"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	for _, kind := range []string{"llm", "stt", "tts"} {
		names, ok := config.ValidProviderNames[kind]
		if !ok || len(names) == 0 {
			t.Errorf("ValidProviderNames[%q] is empty", kind)
		}
	}
	if !contains(config.ValidProviderNames["stt"], "deepgram") {
		t.Error("stt names should include deepgram")
	}
	if !contains(config.ValidProviderNames["llm"], "anthropic") {
		t.Error("llm names should include anthropic")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
