package web

import (
	"net/http"
	"regexp"

	"github.com/codiris/voice/internal/billing"
	"github.com/codiris/voice/internal/mailer"
	"github.com/codiris/voice/internal/observe"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// WaitlistRequest is the body of POST /api/waitlist.
type WaitlistRequest struct {
	Email    string `json:"email"`
	Platform string `json:"platform"`
}

// WaitlistResponse confirms a signup.
type WaitlistResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// WaitlistStats is the body of GET /api/waitlist.
type WaitlistStats struct {
	Count   int  `json:"count"`
	HasMore bool `json:"hasMore"`
}

const waitlistThanks = "Thanks for joining the waitlist! We'll email you when the iOS app is ready."

func (s *Server) handleWaitlistJoin(w http.ResponseWriter, r *http.Request) {
	var req WaitlistRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}
	if !emailPattern.MatchString(req.Email) {
		writeError(w, http.StatusBadRequest, "Invalid email format")
		return
	}
	if req.Platform == "" {
		req.Platform = billing.DefaultPlatform
	}

	ctx := r.Context()
	log := observe.Logger(ctx)
	var existing bool
	if s.cfg.Billing != nil {
		var err error
		existing, err = s.cfg.Billing.JoinWaitlist(ctx, req.Email, req.Platform)
		if err != nil {
			fail(w, r, http.StatusInternalServerError, "Something went wrong. Please try again.", err)
			return
		}
	}

	if s.cfg.Mailer != nil {
		origin, admin := s.settings()
		signup := mailer.Signup{Email: req.Email, Platform: req.Platform, Existing: existing, At: s.cfg.Now()}
		if err := mailer.SendWaitlist(ctx, s.cfg.Mailer, signup, origin, admin); err != nil {
			log.Warn("waitlist mail failed", "email", req.Email, "error", err)
		}
	}

	s.cfg.Metrics.RecordWaitlistSignup(ctx, req.Platform)
	log.Info("waitlist signup", "email", req.Email, "platform", req.Platform, "existing", existing)
	writeJSON(w, http.StatusOK, WaitlistResponse{Success: true, Message: waitlistThanks})
}

func (s *Server) handleWaitlistStats(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Billing == nil {
		writeError(w, http.StatusInternalServerError, "Not configured")
		return
	}
	count, more, err := s.cfg.Billing.WaitlistCount(r.Context())
	if err != nil {
		fail(w, r, http.StatusInternalServerError, "Failed to fetch", err)
		return
	}
	writeJSON(w, http.StatusOK, WaitlistStats{Count: count, HasMore: more})
}
