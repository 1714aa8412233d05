package web

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/codiris/voice/internal/billing"
	"github.com/codiris/voice/internal/observe"
)

// CheckoutRequest is the body of POST /api/stripe/checkout.
type CheckoutRequest struct {
	Email     string `json:"email"`
	MachineID string `json:"machineId"`
}

// CheckoutResponse carries the hosted checkout page.
type CheckoutResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}

// VerifyRequest is the body of POST /api/stripe/verify.
type VerifyRequest struct {
	Email string `json:"email"`
}

// SubscriptionInfo describes the subscription that grants premium.
type SubscriptionInfo struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	CurrentPeriodEnd  int64  `json:"currentPeriodEnd"`
	CancelAtPeriodEnd bool   `json:"cancelAtPeriodEnd"`
}

// VerifyResponse reports premium status. Subscription is null when not
// premium.
type VerifyResponse struct {
	IsPremium    bool              `json:"isPremium"`
	Subscription *SubscriptionInfo `json:"subscription"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Billing == nil {
		writeError(w, http.StatusInternalServerError, "Stripe not configured")
		return
	}
	var req CheckoutRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}

	ctx := r.Context()
	cust, err := s.cfg.Billing.EnsureCustomer(ctx, req.Email, req.MachineID)
	if err != nil {
		fail(w, r, http.StatusInternalServerError, "", err)
		return
	}
	sess, err := s.cfg.Billing.CreateCheckoutSession(ctx, billing.CheckoutParams{
		CustomerID: cust.ID,
		MachineID:  req.MachineID,
		Origin:     s.requestOrigin(r),
	})
	if err != nil {
		fail(w, r, http.StatusInternalServerError, "", err)
		return
	}
	observe.Logger(ctx).Info("checkout session created", "customer", cust.ID, "session", sess.ID)
	writeJSON(w, http.StatusOK, CheckoutResponse{URL: sess.URL, SessionID: sess.ID})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Billing == nil {
		writeError(w, http.StatusInternalServerError, "Stripe not configured")
		return
	}
	var req VerifyRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}

	v, err := s.cfg.Billing.Verify(r.Context(), req.Email)
	if err != nil {
		fail(w, r, http.StatusInternalServerError, "", err)
		return
	}
	resp := VerifyResponse{IsPremium: v.Premium}
	if sub := v.Subscription; sub != nil {
		resp.Subscription = &SubscriptionInfo{
			ID:                sub.ID,
			Status:            sub.Status,
			CurrentPeriodEnd:  sub.CurrentPeriodEnd,
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookLen))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}

	event, err := billing.ConstructEvent(payload, r.Header.Get("Stripe-Signature"),
		s.cfg.WebhookSecret, billing.DefaultTolerance)
	if err != nil {
		observe.Logger(ctx).Warn("webhook signature verification failed", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	log := observe.Logger(ctx).With("event_id", event.ID, "type", event.Type)
	obj, err := event.Decode()
	if err != nil {
		log.Warn("webhook object not decodable", "error", err)
	}
	switch event.Type {
	case "checkout.session.completed":
		log.Info("payment successful", "customer_email", obj.CustomerEmail)
	case "customer.subscription.deleted":
		log.Info("subscription cancelled", "subscription", obj.ID)
	case "customer.subscription.updated":
		log.Info("subscription updated", "subscription", obj.ID, "status", obj.Status)
	case "invoice.payment_failed":
		log.Warn("payment failed", "customer_email", obj.CustomerEmail)
	default:
		log.LogAttrs(ctx, slog.LevelDebug, "unhandled event type")
	}
	s.cfg.Metrics.RecordWebhookEvent(ctx, event.Type)

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
