package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codiris/voice/internal/config"
	"github.com/codiris/voice/internal/credential"
	"github.com/codiris/voice/internal/dictation"
	"github.com/codiris/voice/internal/enhance"
	"github.com/codiris/voice/internal/history"
	"github.com/codiris/voice/internal/insert"
	"github.com/codiris/voice/internal/observe"
	"github.com/codiris/voice/internal/prefs"
	"github.com/codiris/voice/internal/web"
	"github.com/codiris/voice/pkg/audio"
	"github.com/codiris/voice/pkg/provider/llm"
	"github.com/codiris/voice/pkg/provider/stt"
	"github.com/codiris/voice/pkg/usage"
)

// ErrTrialExpired refuses a dictation session once the trial is over and no
// premium subscription is active.
var ErrTrialExpired = errors.New("app: trial expired, upgrade to keep dictating")

// Client owns the on-device dictation stack: preferences, the API key, the
// history store, the enhancer and the session controller.
type Client struct {
	cfg *config.Config
	reg *config.Registry

	prefs    prefs.Store
	creds    credential.Store
	history  history.Store
	enhancer *enhance.Enhancer
	metrics  *observe.Metrics
	now      func() time.Time

	source  audio.Source
	sink    insert.Sink
	onEvent dictation.EventFunc
	hints   func() usage.Hints

	// transcribers overrides the strategies built from the registry.
	transcribers map[prefs.Method]stt.Transcriber

	controller *dictation.Controller
	closers    []func() error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithPrefsStore injects the preferences store.
func WithPrefsStore(s prefs.Store) ClientOption {
	return func(c *Client) { c.prefs = s }
}

// WithCredentialStore injects the API key store.
func WithCredentialStore(s credential.Store) ClientOption {
	return func(c *Client) { c.creds = s }
}

// WithHistoryStore injects the history store. The client does not close an
// injected store.
func WithHistoryStore(s history.Store) ClientOption {
	return func(c *Client) { c.history = s }
}

// WithSource sets the capture device. Required for [Client.Controller].
func WithSource(s audio.Source) ClientOption {
	return func(c *Client) { c.source = s }
}

// WithSink sets where delivered text goes. Required for [Client.Controller].
func WithSink(s insert.Sink) ClientOption {
	return func(c *Client) { c.sink = s }
}

// WithEvents observes controller events.
func WithEvents(fn dictation.EventFunc) ClientOption {
	return func(c *Client) { c.onEvent = fn }
}

// WithHints describes the focused field at stop time.
func WithHints(fn func() usage.Hints) ClientOption {
	return func(c *Client) { c.hints = fn }
}

// WithTranscribers replaces the strategies built from config.
func WithTranscribers(t map[prefs.Method]stt.Transcriber) ClientOption {
	return func(c *Client) { c.transcribers = t }
}

// WithClientMetrics records pipeline metrics on m.
func WithClientMetrics(m *observe.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithClock overrides time.Now for trial evaluation and history.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

// ─── NewClient ───────────────────────────────────────────────────────────────

// NewClient opens the stores named by cfg. Providers are built lazily by
// [Client.Controller] because they need the stored API key.
func NewClient(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...ClientOption) (*Client, error) {
	c := &Client{cfg: cfg, reg: reg, now: time.Now}
	for _, o := range opts {
		o(c)
	}

	// ── 1. Preferences ───────────────────────────────────────────────────
	if c.prefs == nil {
		c.prefs = prefs.NewFileStore(config.ExpandHome(cfg.Client.PrefsPath))
	}

	// ── 2. Credential ────────────────────────────────────────────────────
	if c.creds == nil {
		switch cfg.Client.CredentialBackend {
		case config.CredentialFile:
			c.creds = credential.NewFileStore(config.ExpandHome(cfg.Client.CredentialPath))
		default:
			c.creds = credential.NewKeyringStore()
		}
	}

	// ── 3. History ───────────────────────────────────────────────────────
	if c.history == nil && cfg.History.Backend != config.HistoryNone && cfg.History.Backend != "" {
		store, err := reg.OpenHistory(ctx, cfg.History)
		if err != nil {
			return nil, fmt.Errorf("app: open history: %w", err)
		}
		c.history = store
		c.closers = append(c.closers, store.Close)
	}

	// ── 4. Enhancer ──────────────────────────────────────────────────────
	eopts := []enhance.Option{enhance.WithTimeout(30 * time.Second)}
	if c.metrics != nil {
		eopts = append(eopts, enhance.WithMetrics(c.metrics))
	}
	c.enhancer = enhance.New(c.creds, c.prefs, c.llmFactory(), eopts...)

	return c, nil
}

// llmFactory builds the enhancement provider for the stored key. The key
// fills in a configured entry that has none.
func (c *Client) llmFactory() enhance.ProviderFactory {
	return func(apiKey string) (llm.Provider, error) {
		pc := c.withKey(c.cfg.Providers, apiKey)
		chain, err := BuildLLM(pc, c.reg)
		if err != nil {
			return nil, err
		}
		if chain == nil {
			return nil, fmt.Errorf("app: llm provider %q is not registered", pc.LLM.Name)
		}
		return chain, nil
	}
}

// withKey defaults the enhancement and batch roles to OpenAI and gives every
// OpenAI entry without its own key the user's key.
func (c *Client) withKey(p config.ProvidersConfig, apiKey string) config.ProvidersConfig {
	if !p.LLM.Configured() {
		p.LLM = config.ProviderEntry{Name: "openai", Model: enhance.DefaultModel}
	}
	if !p.STT.Configured() {
		p.STT = config.ProviderEntry{Name: "openai"}
	}
	fill := func(e *config.ProviderEntry) {
		if e.Name == "openai" && e.APIKey == "" {
			e.APIKey = apiKey
		}
	}
	fill(&p.LLM)
	fill(&p.STT)
	fill(&p.Streaming)
	p.LLMFallbacks = append([]config.ProviderEntry(nil), p.LLMFallbacks...)
	for i := range p.LLMFallbacks {
		fill(&p.LLMFallbacks[i])
	}
	return p
}

// Prefs returns the preferences store.
func (c *Client) Prefs() prefs.Store { return c.prefs }

// Credentials returns the API key store.
func (c *Client) Credentials() credential.Store { return c.creds }

// History returns the history store, or nil when history is disabled.
func (c *Client) History() history.Store { return c.history }

// Enhancer returns the transcript enhancer.
func (c *Client) Enhancer() *enhance.Enhancer { return c.enhancer }

// ─── Controller ──────────────────────────────────────────────────────────────

// Controller returns the dictation controller, building transcription
// strategies on first use. It fails when no API key is stored and no
// strategies were injected.
func (c *Client) Controller(ctx context.Context) (*dictation.Controller, error) {
	if c.controller != nil {
		return c.controller, nil
	}
	transcribers := c.transcribers
	if transcribers == nil {
		var err error
		transcribers, err = c.buildTranscribers(ctx)
		if err != nil {
			return nil, err
		}
	}

	dcfg := dictation.Config{
		Source:       c.source,
		Transcribers: transcribers,
		Enhancer:     c.enhancer,
		Prefs:        c.prefs,
		Sink:         c.sink,
		OnEvent:      c.onEvent,
		Hints:        c.hints,
		Metrics:      c.metrics,
		Now:          c.now,
	}
	if c.history != nil {
		dcfg.Recorder = c.history
		dcfg.Allow = c.allow
	}
	ctrl, err := dictation.New(dcfg)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	c.controller = ctrl
	return ctrl, nil
}

func (c *Client) buildTranscribers(ctx context.Context) (map[prefs.Method]stt.Transcriber, error) {
	key, err := c.creds.Get(ctx)
	if err != nil && !errors.Is(err, credential.ErrNotFound) {
		return nil, fmt.Errorf("app: read api key: %w", err)
	}
	pc := c.withKey(c.cfg.Providers, key)
	if pc.STT.Name == "openai" && pc.STT.APIKey == "" {
		return nil, fmt.Errorf("app: %w: set an OpenAI API key first", credential.ErrNotFound)
	}

	ps, err := BuildTranscribers(pc, c.reg)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, ps.Close)

	out := make(map[prefs.Method]stt.Transcriber, 2)
	if ps.Batch != nil {
		out[prefs.MethodBatch] = ps.Batch
	}
	if ps.Streaming != nil {
		out[prefs.MethodStreaming] = ps.Streaming
	}
	return out, nil
}

// allow gates Start on an active trial or premium subscription.
func (c *Client) allow(ctx context.Context) error {
	sub, err := c.history.Subscription(ctx)
	if err != nil {
		slog.Warn("app: read subscription, allowing session", "err", err)
		return nil
	}
	if !sub.Status(c.now()).CanUse() {
		return ErrTrialExpired
	}
	return nil
}

// ─── Subscription ────────────────────────────────────────────────────────────

// Verifier reports premium status for an email.
type Verifier interface {
	Verify(ctx context.Context, email string) (web.VerifyResponse, error)
}

var _ Verifier = (*web.Client)(nil)

// RefreshSubscription asks v for the premium status of email and stores the
// result. It returns the evaluated status.
func (c *Client) RefreshSubscription(ctx context.Context, v Verifier, email string) (history.Status, error) {
	if c.history == nil {
		return history.Status{}, errors.New("app: history is disabled")
	}
	resp, err := v.Verify(ctx, email)
	if err != nil {
		return history.Status{}, fmt.Errorf("app: verify subscription: %w", err)
	}
	var until time.Time
	if resp.Subscription != nil && resp.Subscription.CurrentPeriodEnd > 0 {
		until = time.Unix(resp.Subscription.CurrentPeriodEnd, 0).UTC()
	}
	if err := c.history.SetPremium(ctx, resp.IsPremium, until, email); err != nil {
		return history.Status{}, fmt.Errorf("app: store subscription: %w", err)
	}
	sub, err := c.history.Subscription(ctx)
	if err != nil {
		return history.Status{}, fmt.Errorf("app: read subscription: %w", err)
	}
	return sub.Status(c.now()), nil
}

// Close releases stores and providers opened by the client.
func (c *Client) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	return errors.Join(errs...)
}
