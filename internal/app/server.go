// Package app wires the codiris subsystems into the two runnable programs:
// [Server] backs cmd/codiris-web and [Client] backs cmd/codiris.
//
// Both take a loaded config and the providers built from the registry. For
// tests, collaborators can be injected with functional options; anything
// not injected is created from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/codiris/voice/internal/billing"
	"github.com/codiris/voice/internal/config"
	"github.com/codiris/voice/internal/credential"
	"github.com/codiris/voice/internal/enhance"
	"github.com/codiris/voice/internal/health"
	"github.com/codiris/voice/internal/mailer"
	"github.com/codiris/voice/internal/observe"
	"github.com/codiris/voice/internal/prefs"
	"github.com/codiris/voice/internal/web"
	"github.com/codiris/voice/pkg/provider/llm"
)

// serverKey stands in for a per-user credential on the server, where the
// enhancer always uses the configured provider.
const serverKey = "configured"

// Server owns the HTTP API and its backends.
type Server struct {
	cfg       *config.Config
	providers *Providers

	billing  *billing.Client
	mail     mailer.Sender
	metrics  *observe.Metrics
	level    *slog.LevelVar
	web      *web.Server
	http     *http.Server
	listener net.Listener

	closers  []func() error
	stopOnce sync.Once
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithBilling injects a Stripe client instead of creating one from config.
func WithBilling(c *billing.Client) ServerOption {
	return func(s *Server) { s.billing = c }
}

// WithMailer injects a mail sender instead of creating one from config.
func WithMailer(m mailer.Sender) ServerOption {
	return func(s *Server) { s.mail = m }
}

// WithMetrics injects the metrics instruments.
func WithMetrics(m *observe.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithLevel lets [Server.Apply] change the log level at runtime.
func WithLevel(v *slog.LevelVar) ServerOption {
	return func(s *Server) { s.level = v }
}

// WithListener serves on l instead of listening on cfg.Server.ListenAddr.
func WithListener(l net.Listener) ServerOption {
	return func(s *Server) { s.listener = l }
}

// ─── NewServer ───────────────────────────────────────────────────────────────

// NewServer builds the API from cfg and providers. Missing backends leave
// their endpoints answering "not configured" and fail the matching readiness
// check.
func NewServer(cfg *config.Config, providers *Providers, opts ...ServerOption) (*Server, error) {
	if providers == nil {
		providers = &Providers{}
	}
	s := &Server{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	// ── 1. Billing ───────────────────────────────────────────────────────
	if s.billing == nil && cfg.Web.Stripe.SecretKey != "" {
		var bopts []billing.Option
		if cfg.Web.Stripe.BaseURL != "" {
			bopts = append(bopts, billing.WithBaseURL(cfg.Web.Stripe.BaseURL))
		}
		c, err := billing.New(cfg.Web.Stripe.SecretKey, bopts...)
		if err != nil {
			return nil, fmt.Errorf("app: billing: %w", err)
		}
		s.billing = c
	}

	// ── 2. Mail ──────────────────────────────────────────────────────────
	if s.mail == nil && cfg.Web.Resend.APIKey != "" {
		var mopts []mailer.Option
		if cfg.Web.Resend.From != "" {
			mopts = append(mopts, mailer.WithFrom(cfg.Web.Resend.From))
		}
		if cfg.Web.Resend.BaseURL != "" {
			mopts = append(mopts, mailer.WithBaseURL(cfg.Web.Resend.BaseURL))
		}
		m, err := mailer.New(cfg.Web.Resend.APIKey, mopts...)
		if err != nil {
			return nil, fmt.Errorf("app: mailer: %w", err)
		}
		s.mail = m
	}

	// ── 3. API ───────────────────────────────────────────────────────────
	wcfg := web.Config{
		Billing:       s.billing,
		Mailer:        s.mail,
		WebhookSecret: cfg.Web.Stripe.WebhookSecret,
		TTS:           providers.TTS,
		Refiner:       providers.Refine,
		RefineModel:   refineModel(cfg),
		Origin:        cfg.Web.Origin,
		AdminEmail:    cfg.Web.AdminEmail,
		Checkers:      s.checkers(),
		Metrics:       s.metrics,
	}
	if t, ok := providers.Batch.(web.Transcriber); ok {
		wcfg.Transcriber = t
	}
	if providers.LLM != nil {
		wcfg.Enhancer = serverEnhancer(providers.LLM, s.metrics)
	}
	s.web = web.New(wcfg)

	s.http = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           s.web,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.closers = append(s.closers, providers.Close)
	return s, nil
}

// serverEnhancer builds an enhancer bound to the configured provider with
// default preferences.
func serverEnhancer(p llm.Provider, m *observe.Metrics) *enhance.Enhancer {
	return enhance.New(
		credential.NewMemoryStore(serverKey),
		prefs.NewMemoryStore(prefs.Defaults()),
		func(string) (llm.Provider, error) { return p, nil },
		enhance.WithMetrics(m),
		enhance.WithTimeout(30*time.Second),
	)
}

func refineModel(cfg *config.Config) string {
	if cfg.Providers.Refine.Configured() {
		return cfg.Providers.Refine.Model
	}
	return cfg.Providers.LLM.Model
}

func (s *Server) checkers() []health.Checker {
	return []health.Checker{
		health.Configured("stripe", s.billing != nil, errors.New("stripe secret key not configured")),
		health.Configured("llm", s.providers.LLM != nil, errors.New("no llm provider configured")),
		health.Configured("transcription", s.providers.Batch != nil, errors.New("no stt provider configured")),
	}
}

// Handler returns the API handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.web }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves until ctx is cancelled, then shuts the HTTP server down
// gracefully. It returns nil on a clean stop.
func (s *Server) Run(ctx context.Context) error {
	ln := s.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", s.http.Addr)
		if err != nil {
			return fmt.Errorf("app: listen %q: %w", s.http.Addr, err)
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.http.Serve(ln) }()
	slog.Info("web server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("app: http shutdown: %w", err)
	}
	<-errCh
	return nil
}

// Apply hot-reloads the settings a running server can change.
func (s *Server) Apply(d config.ConfigDiff) {
	if d.LogLevelChanged && s.level != nil {
		s.level.Set(ParseLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.OriginChanged {
		s.web.SetOrigin(d.NewOrigin)
		slog.Info("web origin changed", "origin", d.NewOrigin)
	}
	if d.AdminEmailChanged {
		s.web.SetAdminEmail(d.NewAdminEmail)
		slog.Info("admin email changed", "admin_email", d.NewAdminEmail)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases backends. If ctx expires first the remaining closers are
// skipped and the context error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.stopOnce.Do(func() {
		for i, closer := range s.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(s.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
	})
	return shutdownErr
}

// ParseLevel maps a config level to slog. Unknown values mean info.
func ParseLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
