package config_test

import (
	"slices"
	"testing"

	"github.com/codiris/voice/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Providers.Streaming = config.ProviderEntry{Name: "deepgram", Options: map[string]any{"keywords": []any{"Codiris"}}}
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged || d.OriginChanged || d.AdminEmailChanged {
		t.Errorf("expected no hot changes, got %+v", d)
	}
	if d.Changed() {
		t.Errorf("identical configs reported as changed: %+v", d)
	}
}

func TestDiff_HotReloadable(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogDebug
	new.Web.Origin = "https://staging.codiris.build"
	new.Web.AdminEmail = "ops@codiris.build"

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level: got %+v", d)
	}
	if !d.OriginChanged || d.NewOrigin != "https://staging.codiris.build" {
		t.Errorf("origin: got %+v", d)
	}
	if !d.AdminEmailChanged || d.NewAdminEmail != "ops@codiris.build" {
		t.Errorf("admin email: got %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("hot-reloadable changes should not require restart, got %v", d.RestartRequired)
	}
}

func TestDiff_AdminEmailCleared(t *testing.T) {
	t.Parallel()
	old := config.Default()
	old.Web.AdminEmail = "ops@codiris.build"
	new := config.Default()

	d := config.Diff(old, new)
	if !d.AdminEmailChanged || d.NewAdminEmail != "" {
		t.Errorf("expected admin email cleared, got %+v", d)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := config.Default()
	old.Providers.LLM = config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"}

	new := config.Default()
	new.Server.ListenAddr = ":9090"
	new.Providers.LLM = config.ProviderEntry{Name: "openai", Model: "gpt-4o"}
	new.Web.Stripe.SecretKey = "sk_test_new"
	new.History.Backend = config.HistoryNone

	d := config.Diff(old, new)
	want := []string{"server.listen_addr", "providers", "web.stripe", "history"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if !d.Changed() {
		t.Error("Changed() = false")
	}
}

func TestDiff_ProviderOptionsAndFallbacks(t *testing.T) {
	t.Parallel()
	old := config.Default()
	old.Providers.Streaming = config.ProviderEntry{Name: "whisper", Options: map[string]any{"silence_threshold": 0.01}}
	old.Providers.LLMFallbacks = []config.ProviderEntry{{Name: "anthropic"}}

	changedOption := config.Default()
	changedOption.Providers.Streaming = config.ProviderEntry{Name: "whisper", Options: map[string]any{"silence_threshold": 0.02}}
	changedOption.Providers.LLMFallbacks = []config.ProviderEntry{{Name: "anthropic"}}
	if d := config.Diff(old, changedOption); !slices.Contains(d.RestartRequired, "providers") {
		t.Errorf("option change not detected: %+v", d)
	}

	changedFallbacks := config.Default()
	changedFallbacks.Providers.Streaming = old.Providers.Streaming
	changedFallbacks.Providers.LLMFallbacks = []config.ProviderEntry{{Name: "anthropic"}, {Name: "groq"}}
	if d := config.Diff(old, changedFallbacks); !slices.Contains(d.RestartRequired, "providers") {
		t.Errorf("fallback change not detected: %+v", d)
	}
}
