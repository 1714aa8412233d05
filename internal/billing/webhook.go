package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// DefaultTolerance is the maximum age of a signed webhook.
const DefaultTolerance = webhook.DefaultTolerance

// ErrInvalidSignature is returned when a webhook's Stripe-Signature header
// is missing, malformed, stale or does not match the payload.
var ErrInvalidSignature = errors.New("billing: invalid webhook signature")

// Event is a verified Stripe webhook event.
type Event struct {
	ID   string
	Type string

	// Object is the raw data.object payload.
	Object json.RawMessage
}

// EventObject holds the fields logged for handled event types.
type EventObject struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	CustomerEmail string `json:"customer_email"`
}

// Decode reads the logged fields from the event's data object.
func (e Event) Decode() (EventObject, error) {
	var o EventObject
	if len(e.Object) == 0 {
		return o, nil
	}
	if err := json.Unmarshal(e.Object, &o); err != nil {
		return o, fmt.Errorf("billing: decode %s object: %w", e.Type, err)
	}
	return o, nil
}

// ConstructEvent verifies header against payload and secret, rejecting
// signatures older than tolerance, and decodes the event. Any v1 entry may
// match, so rotated secrets keep working. The payload's API version is not
// checked.
func ConstructEvent(payload []byte, header, secret string, tolerance time.Duration) (Event, error) {
	if secret == "" || header == "" {
		return Event{}, ErrInvalidSignature
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, header, secret, tolerance); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var se stripe.Event
	if err := json.Unmarshal(payload, &se); err != nil {
		return Event{}, fmt.Errorf("billing: decode event: %w", err)
	}
	e := Event{ID: se.ID, Type: string(se.Type)}
	if se.Data != nil {
		e.Object = se.Data.Raw
	}
	return e, nil
}

// SignatureHeader returns a Stripe-Signature header for payload signed at t.
func SignatureHeader(payload []byte, secret string, t time.Time) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: t,
		Scheme:    "v1",
	}).Header
}
