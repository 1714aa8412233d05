// Package web serves the Codiris Voice HTTP API: Stripe checkout,
// verification and webhooks, the iOS waitlist, and the OpenAI-backed
// transcription, speech, refine and enhance endpoints used by the landing
// page demos and the client apps.
//
// Handlers are stateless. Every collaborator is optional; an endpoint whose
// backend is missing answers 500 with a "not configured" error.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/codiris/voice/internal/billing"
	"github.com/codiris/voice/internal/health"
	"github.com/codiris/voice/internal/mailer"
	"github.com/codiris/voice/internal/observe"
	"github.com/codiris/voice/pkg/mode"
	"github.com/codiris/voice/pkg/provider/llm"
	"github.com/codiris/voice/pkg/provider/tts"
	"github.com/codiris/voice/pkg/usage"
)

// DefaultOrigin is used for checkout return URLs when the request carries no
// Origin header.
const DefaultOrigin = "https://voice.codiris.build"

// DefaultAdminEmail receives waitlist notifications.
const DefaultAdminEmail = "joel@codiris.build"

const (
	maxJSONBody   = 1 << 20
	maxAudioBody  = 25 << 20
	maxWebhookLen = 1 << 20
)

// Transcriber converts one uploaded audio file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, r io.Reader, filename, contentType, language string) (string, error)
}

// Enhancer rewrites text in a mode. It never fails.
type Enhancer interface {
	Enhance(ctx context.Context, text string, m mode.Mode, hints usage.Hints) string
}

// Config holds the server's collaborators and settings.
type Config struct {
	// Billing is the Stripe client. Nil disables checkout and verification
	// and makes the waitlist skip customer storage.
	Billing *billing.Client

	// WebhookSecret verifies Stripe-Signature headers.
	WebhookSecret string

	// Mailer sends waitlist mail. Nil skips mail.
	Mailer mailer.Sender

	Transcriber Transcriber
	TTS         tts.Provider

	// Refiner answers /api/refine.
	Refiner llm.Provider

	// RefineModel is reported in logs only.
	RefineModel string

	Enhancer Enhancer

	Origin     string
	AdminEmail string

	// Checkers feed /readyz.
	Checkers []health.Checker

	Metrics *observe.Metrics
	Now     func() time.Time
}

// Server is the HTTP API. Safe for concurrent use.
type Server struct {
	cfg     Config
	handler http.Handler

	mu         sync.RWMutex
	origin     string
	adminEmail string
}

// New builds the routes for cfg.
func New(cfg Config) *Server {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	s := &Server{cfg: cfg}
	s.SetOrigin(cfg.Origin)
	s.SetAdminEmail(cfg.AdminEmail)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/stripe/checkout", s.handleCheckout)
	mux.HandleFunc("POST /api/stripe/verify", s.handleVerify)
	mux.HandleFunc("POST /api/stripe/webhook", s.handleWebhook)
	mux.HandleFunc("POST /api/waitlist", s.handleWaitlistJoin)
	mux.HandleFunc("GET /api/waitlist", s.handleWaitlistStats)
	mux.HandleFunc("POST /api/transcribe", s.handleTranscribe)
	mux.HandleFunc("POST /api/tts", s.handleTTS)
	mux.HandleFunc("POST /api/refine", s.handleRefine)
	mux.HandleFunc("POST /api/enhance", s.handleEnhance)
	mux.HandleFunc("GET /api/modes", s.handleModes)
	health.New(cfg.Checkers).Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler())

	s.handler = observe.Middleware(cfg.Metrics)(mux)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// SetOrigin replaces the fallback site origin. Empty restores the default.
func (s *Server) SetOrigin(origin string) {
	origin = strings.TrimRight(origin, "/")
	if origin == "" {
		origin = DefaultOrigin
	}
	s.mu.Lock()
	s.origin = origin
	s.mu.Unlock()
}

// SetAdminEmail replaces the waitlist notification address. Empty restores
// the default.
func (s *Server) SetAdminEmail(addr string) {
	if addr == "" {
		addr = DefaultAdminEmail
	}
	s.mu.Lock()
	s.adminEmail = addr
	s.mu.Unlock()
}

func (s *Server) settings() (origin, admin string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.origin, s.adminEmail
}

// requestOrigin prefers the caller's Origin header.
func (s *Server) requestOrigin(r *http.Request) string {
	if o := r.Header.Get("Origin"); o != "" {
		return o
	}
	o, _ := s.settings()
	return o
}

// ── Helpers ─────────────────────────────────────────────────────────────────

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("web: encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// fail logs err with the request's trace context and answers status with
// msg, or with err's text when msg is empty.
func fail(w http.ResponseWriter, r *http.Request, status int, msg string, err error) {
	observe.Logger(r.Context()).Error("web: request failed",
		"route", r.Pattern,
		"status", status,
		"error", err)
	if msg == "" {
		msg = publicMessage(err)
	}
	writeError(w, status, msg)
}

// publicMessage returns the upstream message of a provider error.
func publicMessage(err error) string {
	var apiErr *billing.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

// decode reads a JSON body of at most maxJSONBody bytes into v.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}
