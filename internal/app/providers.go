package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/codiris/voice/internal/config"
	"github.com/codiris/voice/internal/history"
	"github.com/codiris/voice/internal/resilience"
	"github.com/codiris/voice/pkg/provider/llm"
	"github.com/codiris/voice/pkg/provider/llm/anyllm"
	llmopenai "github.com/codiris/voice/pkg/provider/llm/openai"
	"github.com/codiris/voice/pkg/provider/stt"
	"github.com/codiris/voice/pkg/provider/stt/deepgram"
	sttopenai "github.com/codiris/voice/pkg/provider/stt/openai"
	"github.com/codiris/voice/pkg/provider/stt/whisper"
	"github.com/codiris/voice/pkg/provider/tts"
	ttsopenai "github.com/codiris/voice/pkg/provider/tts/openai"
)

// Providers holds one value per provider role. Nil means the role is not
// configured.
type Providers struct {
	// LLM serves enhancement, with any configured fallbacks behind it.
	LLM llm.Provider

	// Refine serves the refine endpoint. Falls back to LLM.
	Refine llm.Provider

	// Batch is the record-then-upload strategy.
	Batch stt.Transcriber

	// Streaming is the real-time strategy, failing over to Batch when both
	// are configured.
	Streaming stt.Transcriber

	TTS tts.Provider

	// closers release provider resources such as loaded whisper models.
	closers []func() error
}

// Close releases provider resources.
func (p *Providers) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// RegisterBuiltins registers every provider and history backend shipped with
// the module.
func RegisterBuiltins(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, llmopenai.WithTimeout(d))
		}
		model := entry.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		return llmopenai.New(entry.APIKey, model, opts...)
	})

	// The remaining backends share the any-llm-go pattern: optional APIKey
	// plus optional BaseURL.
	for _, name := range []string{"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "ollama"} {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" && name != "ollama" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []sttopenai.Option
		if entry.Model != "" {
			opts = append(opts, sttopenai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		if dir := optString(entry.Options, "temp_dir"); dir != "" {
			opts = append(opts, sttopenai.WithTempDir(dir))
		}
		return sttopenai.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if kw := optStrings(entry.Options, "keywords"); len(kw) > 0 {
			opts = append(opts, deepgram.WithKeywords(kw...))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		opts := whisperOptions(entry)
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		return whisper.NewServer(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		return whisper.NewNative(config.ExpandHome(modelPath), whisperOptions(entry)...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttsopenai.Option
		if entry.Model != "" {
			opts = append(opts, ttsopenai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		return ttsopenai.New(entry.APIKey, opts...)
	})

	// ── History ───────────────────────────────────────────────────────────────

	reg.RegisterHistory(config.HistorySQLite, func(ctx context.Context, c config.HistoryConfig) (history.Store, error) {
		return history.OpenSQLite(ctx, config.ExpandHome(c.DSN))
	})
	reg.RegisterHistory(config.HistoryPostgres, func(ctx context.Context, c config.HistoryConfig) (history.Store, error) {
		return history.OpenPostgres(ctx, c.DSN)
	})
}

func whisperOptions(entry config.ProviderEntry) []whisper.Option {
	var opts []whisper.Option
	if d, ok := entry.Options["partial_interval"]; ok {
		opts = append(opts, whisper.WithPartialInterval(toDuration(d)))
	}
	if v, ok := optFloat(entry.Options, "silence_threshold"); ok {
		opts = append(opts, whisper.WithSilenceThreshold(v))
	}
	if dir := optString(entry.Options, "temp_dir"); dir != "" {
		opts = append(opts, whisper.WithTempDir(dir))
	}
	return opts
}

// BuildProviders instantiates every configured provider role. Names without a
// registered factory are skipped with a log line; factory errors abort.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}

	chain, err := BuildLLM(cfg.Providers, reg)
	if err != nil {
		return nil, err
	}
	if chain != nil {
		ps.LLM = chain
	}

	if p, err := create("refine", cfg.Providers.Refine, reg.CreateLLM); err != nil {
		return nil, err
	} else if p != nil {
		ps.Refine = p
	} else {
		ps.Refine = ps.LLM
	}

	if err := ps.buildTranscribers(cfg.Providers, reg); err != nil {
		_ = ps.Close()
		return nil, err
	}

	if p, err := create("tts", cfg.Providers.TTS, reg.CreateTTS); err != nil {
		_ = ps.Close()
		return nil, err
	} else if p != nil {
		ps.TTS = resilience.NewTTS(cfg.Providers.TTS.Name, p, breaker("tts"))
	}

	return ps, nil
}

// BuildLLM returns the enhancement provider with its fallbacks behind a
// circuit breaker each, or nil when providers.llm is unset or unregistered.
func BuildLLM(pc config.ProvidersConfig, reg *config.Registry) (*resilience.LLM, error) {
	p, err := create("llm", pc.LLM, reg.CreateLLM)
	if err != nil || p == nil {
		return nil, err
	}
	chain := resilience.NewLLM(pc.LLM.Name, p, breaker("llm"))
	for i, entry := range pc.LLMFallbacks {
		fb, err := create(fmt.Sprintf("llm_fallbacks[%d]", i), entry, reg.CreateLLM)
		if err != nil {
			return nil, err
		}
		if fb != nil {
			chain.AddFallback(entry.Name, fb)
		}
	}
	return chain, nil
}

// BuildTranscribers returns only the transcription strategies.
func BuildTranscribers(pc config.ProvidersConfig, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}
	if err := ps.buildTranscribers(pc, reg); err != nil {
		_ = ps.Close()
		return nil, err
	}
	return ps, nil
}

func (ps *Providers) buildTranscribers(pc config.ProvidersConfig, reg *config.Registry) error {
	batch, err := create("stt", pc.STT, reg.CreateSTT)
	if err != nil {
		return err
	}
	ps.Batch = batch
	ps.addCloser(batch)

	streaming, err := create("streaming", pc.Streaming, reg.CreateSTT)
	if err != nil {
		return err
	}
	ps.addCloser(streaming)
	switch {
	case streaming != nil && batch != nil:
		ps.Streaming = resilience.NewTranscriber(pc.Streaming.Name, streaming, breaker("streaming")).
			AddFallback(pc.STT.Name, batch)
	case streaming != nil:
		ps.Streaming = streaming
	}
	return nil
}

func breaker(name string) resilience.BreakerConfig {
	return resilience.BreakerConfig{
		Name: name,
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("provider circuit breaker changed state", "provider", name, "from", from, "to", to)
		},
	}
}

// create builds one provider role. An unconfigured or unregistered entry
// yields the zero value and no error.
func create[T any](role string, entry config.ProviderEntry, fn func(config.ProviderEntry) (T, error)) (T, error) {
	var zero T
	if !entry.Configured() {
		return zero, nil
	}
	p, err := fn(entry)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("provider not registered, skipping", "role", role, "name", entry.Name)
		return zero, nil
	}
	if err != nil {
		return zero, fmt.Errorf("app: create %s provider %q: %w", role, entry.Name, err)
	}
	slog.Info("provider created", "role", role, "name", entry.Name, "model", entry.Model)
	return p, nil
}

func (p *Providers) addCloser(v any) {
	if c, ok := v.(interface{ Close() error }); ok {
		p.closers = append(p.closers, c.Close)
	}
}

// ── option helpers ───────────────────────────────────────────────────────────

func optString(opts map[string]any, key string) string {
	if v, ok := opts[key].(string); ok {
		return v
	}
	return ""
}

func optStrings(opts map[string]any, key string) []string {
	switch v := opts[key].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func optDuration(opts map[string]any, key string) time.Duration {
	v, ok := opts[key]
	if !ok {
		return 0
	}
	return toDuration(v)
}

// toDuration accepts a Go duration string or a number of milliseconds.
func toDuration(v any) time.Duration {
	switch d := v.(type) {
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			slog.Warn("invalid duration option, ignoring", "value", d, "err", err)
			return 0
		}
		return parsed
	case int:
		return time.Duration(d) * time.Millisecond
	case float64:
		return time.Duration(d * float64(time.Millisecond))
	}
	return 0
}
