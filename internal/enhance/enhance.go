// Package enhance turns a raw transcript into polished text with one chat
// completion whose system prompt depends on the active mode and, for
// superPrompt, on the usage context of the focused field.
//
// Enhancement is fail-open: whenever the model cannot be reached or returns
// nothing useful, the caller gets the transcript back unchanged.
package enhance

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/codiris/voice/internal/credential"
	"github.com/codiris/voice/internal/observe"
	"github.com/codiris/voice/internal/prefs"
	"github.com/codiris/voice/pkg/mode"
	"github.com/codiris/voice/pkg/provider/llm"
	"github.com/codiris/voice/pkg/provider/llm/openai"
	"github.com/codiris/voice/pkg/usage"
)

const (
	// DefaultModel is the chat model used for enhancement.
	DefaultModel = "gpt-4o-mini"

	// DefaultMaxTokens caps the enhanced reply.
	DefaultMaxTokens = 2000
)

// Fallback reasons reported to metrics.
const (
	reasonNoPrompt = "no_prompt"
	reasonNoKey    = "no_key"
	reasonProvider = "provider_error"
	reasonEmpty    = "empty_reply"
)

// ProviderFactory builds a chat provider for an API key. It is called again
// whenever the stored key changes.
type ProviderFactory func(apiKey string) (llm.Provider, error)

// OpenAIFactory returns a factory for OpenAI chat providers without retries.
func OpenAIFactory(model string, opts ...openai.Option) ProviderFactory {
	if model == "" {
		model = DefaultModel
	}
	return func(apiKey string) (llm.Provider, error) {
		return openai.New(apiKey, model, append([]openai.Option{openai.WithMaxRetries(0)}, opts...)...)
	}
}

// Enhancer rewrites transcripts. Safe for concurrent use.
type Enhancer struct {
	creds     credential.Store
	prefs     prefs.Store
	factory   ProviderFactory
	metrics   *observe.Metrics
	maxTokens int
	timeout   time.Duration

	mu       sync.Mutex
	key      string
	provider llm.Provider
}

// Option configures an Enhancer.
type Option func(*Enhancer)

// WithMetrics records latency and fallbacks on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Enhancer) { e.metrics = m }
}

// WithMaxTokens overrides [DefaultMaxTokens].
func WithMaxTokens(n int) Option {
	return func(e *Enhancer) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// WithTimeout bounds each completion call. Zero leaves only the caller's
// context in effect.
func WithTimeout(d time.Duration) Option {
	return func(e *Enhancer) { e.timeout = d }
}

// New returns an Enhancer reading the API key from creds and the prompt
// settings from p.
func New(creds credential.Store, p prefs.Store, factory ProviderFactory, opts ...Option) *Enhancer {
	e := &Enhancer{
		creds:     creds,
		prefs:     p,
		factory:   factory,
		maxTokens: DefaultMaxTokens,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// SystemPrompt returns the system prompt that Enhance would send for m and
// hints under the stored preferences. ok is false when the transcript would
// be returned unchanged without a model call.
func (e *Enhancer) SystemPrompt(ctx context.Context, m mode.Mode, hints usage.Hints) (prompt string, ok bool) {
	return ResolvePrompt(m, hints, e.loadPrefs(ctx))
}

// ResolvePrompt picks the system prompt for m. For [mode.SuperPrompt] the
// usage context is classified from hints when p.AutoDetectContext is set and
// is [usage.General] otherwise. [mode.Custom] uses p.CustomPrompt.
func ResolvePrompt(m mode.Mode, hints usage.Hints, p prefs.Preferences) (string, bool) {
	switch m {
	case mode.Custom:
		custom := strings.TrimSpace(p.CustomPrompt)
		return custom, custom != ""
	case mode.SuperPrompt:
		c := usage.General
		if p.AutoDetectContext {
			c = usage.Classify(hints)
		}
		return m.Prompt(c)
	}
	return m.Prompt(usage.General)
}

// Enhance rewrites text in mode m. It never fails: on any problem text is
// returned unchanged.
func (e *Enhancer) Enhance(ctx context.Context, text string, m mode.Mode, hints usage.Hints) string {
	if m == mode.Raw || strings.TrimSpace(text) == "" {
		return text
	}

	prompt, ok := e.SystemPrompt(ctx, m, hints)
	if !ok {
		e.fallback(ctx, m, reasonNoPrompt)
		return text
	}

	provider, err := e.providerFor(ctx)
	if err != nil {
		reason := reasonProvider
		if errors.Is(err, credential.ErrNotFound) {
			reason = reasonNoKey
		} else {
			observe.Logger(ctx).Warn("enhance: build provider", "error", err)
		}
		e.fallback(ctx, m, reason)
		return text
	}

	ctx, span := observe.StartSpan(ctx, "enhance")
	defer span.End()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	req := llm.UserPrompt(prompt, text)
	req.MaxTokens = e.maxTokens

	start := time.Now()
	resp, err := provider.Complete(ctx, req)
	outcome := "ok"
	defer func() {
		if e.metrics != nil {
			e.metrics.EnhanceDuration.Record(ctx, time.Since(start).Seconds(),
				metric.WithAttributes(observe.Attr("mode", m.String()), observe.Attr("outcome", outcome)))
		}
	}()

	if err != nil {
		outcome = "error"
		observe.Logger(ctx).Warn("enhance: completion failed, returning transcript",
			"mode", m.String(), "error", err)
		e.fallback(ctx, m, reasonProvider)
		return text
	}
	out := ""
	if resp != nil {
		out = strings.TrimSpace(resp.Content)
	}
	if out == "" {
		outcome = "empty"
		observe.Logger(ctx).Warn("enhance: empty reply, returning transcript", "mode", m.String())
		e.fallback(ctx, m, reasonEmpty)
		return text
	}

	observe.Logger(ctx).Debug("enhanced transcript",
		"mode", m.String(),
		"in_chars", len(text),
		"out_chars", len(out),
		"duration", time.Since(start))
	return out
}

// providerFor returns the cached provider for the current key, rebuilding it
// when the key has changed.
func (e *Enhancer) providerFor(ctx context.Context) (llm.Provider, error) {
	key, err := e.creds.Get(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.provider != nil && e.key == key {
		return e.provider, nil
	}
	p, err := e.factory(key)
	if err != nil {
		return nil, err
	}
	e.key, e.provider = key, p
	return p, nil
}

func (e *Enhancer) loadPrefs(ctx context.Context) prefs.Preferences {
	if e.prefs == nil {
		return prefs.Defaults()
	}
	p, err := e.prefs.Load(ctx)
	if err != nil {
		slog.Warn("enhance: load preferences, using defaults", "error", err)
	}
	return p
}

func (e *Enhancer) fallback(ctx context.Context, m mode.Mode, reason string) {
	if e.metrics != nil {
		e.metrics.RecordEnhanceFallback(ctx, m.String(), reason)
	}
}
