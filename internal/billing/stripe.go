// Package billing talks to Stripe for the web tier: customer lookup and
// creation, subscription checkout, premium verification, the waitlist, and
// webhook signature verification.
//
// Calls go through stripe-go resource clients sharing one backend, so a test
// server can stand in for the API. Concurrent requests that would create a
// customer for the same email are collapsed, so repeated checkouts reuse one
// customer.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
	"golang.org/x/sync/singleflight"
)

// DefaultBaseURL is the Stripe API root.
const DefaultBaseURL = "https://api.stripe.com"

// Checkout product. Price is in cents per month.
const (
	ProductName        = "Codiris Voice Pro"
	ProductDescription = "Unlimited voice-to-text transcription with AI enhancement"
	PriceCents         = 999
	Currency           = "usd"
)

// ErrNoCustomer is returned when no customer matches an email.
var ErrNoCustomer = errors.New("billing: customer not found")

// APIError is a non-2xx Stripe response.
type APIError struct {
	Status  int
	Type    string
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("stripe: status %d", e.Status)
	}
	return fmt.Sprintf("stripe: status %d: %s", e.Status, e.Message)
}

// Customer is the subset of a Stripe customer the web tier reads.
type Customer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata"`
}

// Subscription is the subset of a Stripe subscription reported to clients.
type Subscription struct {
	ID                string
	Status            string
	CurrentPeriodEnd  int64
	CancelAtPeriodEnd bool
}

// CheckoutSession is a hosted payment page.
type CheckoutSession struct {
	ID  string
	URL string
}

// Client is a Stripe client. Safe for concurrent use.
type Client struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
	now        func() time.Time

	customers     customer.Client
	subscriptions subscription.Client
	checkouts     checkoutsession.Client

	pending singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root, such as a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithClock overrides the clock used for waitlist timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New returns a client for secretKey.
func New(secretKey string, opts ...Option) (*Client, error) {
	if secretKey == "" {
		return nil, errors.New("billing: secret key must not be empty")
	}
	c := &Client{
		secretKey:  secretKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(c.baseURL),
		HTTPClient:        c.httpClient,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     slogLogger{},
	})
	c.customers = customer.Client{B: backend, Key: secretKey}
	c.subscriptions = subscription.Client{B: backend, Key: secretKey}
	c.checkouts = checkoutsession.Client{B: backend, Key: secretKey}
	return c, nil
}

// ── Customers ───────────────────────────────────────────────────────────────

// FindCustomer returns the first customer with email, or ErrNoCustomer.
func (c *Client) FindCustomer(ctx context.Context, email string) (*Customer, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	it := c.customers.List(params)
	if it.Next() {
		return fromStripeCustomer(it.Customer()), nil
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("billing: list customers: %w", apiError(err))
	}
	return nil, ErrNoCustomer
}

// SearchCustomers runs a Stripe search query, returning at most limit
// customers and whether more exist.
func (c *Client) SearchCustomers(ctx context.Context, query string, limit int) ([]Customer, bool, error) {
	params := &stripe.CustomerSearchParams{}
	params.Context = ctx
	params.Query = query
	if limit > 0 {
		params.Limit = stripe.Int64(int64(limit))
	}

	it := c.customers.Search(params)
	var out []Customer
	// Stop at limit so the iterator never requests a second page.
	for (limit <= 0 || len(out) < limit) && it.Next() {
		out = append(out, *fromStripeCustomer(it.Customer()))
	}
	if err := it.Err(); err != nil {
		return nil, false, fmt.Errorf("billing: search customers: %w", apiError(err))
	}
	var more bool
	if res := it.CustomerSearchResult(); res != nil {
		more = res.HasMore
	}
	return out, more, nil
}

// CreateCustomer creates a customer with email and metadata.
func (c *Client) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (*Customer, error) {
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	cust, err := c.customers.New(params)
	if err != nil {
		return nil, fmt.Errorf("billing: create customer: %w", apiError(err))
	}
	return fromStripeCustomer(cust), nil
}

// UpdateCustomer merges metadata into an existing customer.
func (c *Client) UpdateCustomer(ctx context.Context, id string, metadata map[string]string) (*Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	cust, err := c.customers.Update(id, params)
	if err != nil {
		return nil, fmt.Errorf("billing: update customer %s: %w", id, apiError(err))
	}
	return fromStripeCustomer(cust), nil
}

// EnsureCustomer returns the customer for email, creating one tagged with
// machineID when none exists. Concurrent calls for the same email share one
// lookup and at most one creation.
func (c *Client) EnsureCustomer(ctx context.Context, email, machineID string) (*Customer, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	v, err, _ := c.pending.Do(key, func() (any, error) {
		cust, err := c.FindCustomer(ctx, email)
		if err == nil {
			return cust, nil
		}
		if !errors.Is(err, ErrNoCustomer) {
			return nil, err
		}
		return c.CreateCustomer(ctx, email, map[string]string{"machineId": machineID})
	})
	if err != nil {
		return nil, err
	}
	return v.(*Customer), nil
}

// ── Checkout ────────────────────────────────────────────────────────────────

// CheckoutParams describes a subscription checkout.
type CheckoutParams struct {
	CustomerID string
	MachineID  string

	// Origin is the site the success and cancel pages live on.
	Origin string
}

// CreateCheckoutSession opens a monthly subscription checkout for the Pro
// plan.
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	origin := strings.TrimRight(p.Origin, "/")
	params := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(p.CustomerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(ProductName),
					Description: stripe.String(ProductDescription),
				},
				UnitAmount: stripe.Int64(PriceCents),
				Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
					Interval: stripe.String("month"),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(origin + "/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(origin + "/pricing"),
	}
	params.Context = ctx
	params.AddMetadata("machineId", p.MachineID)

	s, err := c.checkouts.New(params)
	if err != nil {
		return nil, fmt.Errorf("billing: create checkout session: %w", apiError(err))
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// ── Subscriptions ───────────────────────────────────────────────────────────

// ListSubscriptions returns up to limit subscriptions of customerID in status.
func (c *Client) ListSubscriptions(ctx context.Context, customerID, status string, limit int) ([]Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(status),
	}
	params.Context = ctx
	if limit > 0 {
		params.Limit = stripe.Int64(int64(limit))
	}

	it := c.subscriptions.List(params)
	var out []Subscription
	for (limit <= 0 || len(out) < limit) && it.Next() {
		out = append(out, fromStripeSubscription(it.Subscription()))
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("billing: list %s subscriptions: %w", status, apiError(err))
	}
	return out, nil
}

// ── Conversion ──────────────────────────────────────────────────────────────

func fromStripeCustomer(c *stripe.Customer) *Customer {
	return &Customer{ID: c.ID, Email: c.Email, Metadata: c.Metadata}
}

// fromStripeSubscription reads the billing period from the first item, where
// the API reports it.
func fromStripeSubscription(s *stripe.Subscription) Subscription {
	out := Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
	if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0] != nil {
		out.CurrentPeriodEnd = s.Items.Data[0].CurrentPeriodEnd
	}
	return out
}

// apiError maps a stripe-go error onto APIError. Transport errors pass
// through unchanged.
func apiError(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return err
	}
	return &APIError{
		Status:  se.HTTPStatusCode,
		Type:    string(se.Type),
		Code:    string(se.Code),
		Message: se.Msg,
	}
}

// quote renders s as a single-quoted search query literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), "'", `\'`) + "'"
}

// slogLogger routes stripe-go's request logging into slog at debug level.
type slogLogger struct{}

func (slogLogger) Debugf(format string, v ...any) { slog.Debug(fmt.Sprintf(format, v...)) }
func (slogLogger) Infof(format string, v ...any)  { slog.Debug(fmt.Sprintf(format, v...)) }
func (slogLogger) Warnf(format string, v ...any)  { slog.Debug(fmt.Sprintf(format, v...)) }
func (slogLogger) Errorf(format string, v ...any) { slog.Debug(fmt.Sprintf(format, v...)) }
