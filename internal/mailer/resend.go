// Package mailer sends transactional email through Resend.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

// DefaultBaseURL is the Resend API root.
const DefaultBaseURL = "https://api.resend.com"

// DefaultFrom is the sender of every waitlist mail.
const DefaultFrom = "Codiris Voice <hello@codiris.build>"

// Message is one outgoing email.
type Message struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, m Message) (string, error)
}

// Client wraps the Resend SDK. It implements [Sender].
type Client struct {
	from       string
	baseURL    string
	httpClient *http.Client
	resend     *resend.Client
}

var _ Sender = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithFrom sets the default sender address.
func WithFrom(from string) Option {
	return func(c *Client) {
		if from != "" {
			c.from = from
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

// New returns a client authenticated with apiKey.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("mailer: api key must not be empty")
	}
	c := &Client{
		from:       DefaultFrom,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}

	base, err := url.Parse(strings.TrimRight(c.baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("mailer: parse base url %q: %w", c.baseURL, err)
	}
	c.resend = resend.NewCustomClient(c.httpClient, apiKey)
	c.resend.BaseURL = base
	return c, nil
}

// From returns the default sender.
func (c *Client) From() string { return c.from }

// Send delivers m and returns the Resend message id. An empty From uses
// the client's default sender.
func (c *Client) Send(ctx context.Context, m Message) (string, error) {
	if m.From == "" {
		m.From = c.from
	}
	if len(m.To) == 0 {
		return "", errors.New("mailer: message has no recipients")
	}
	sent, err := c.resend.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.From,
		To:      m.To,
		Subject: m.Subject,
		Html:    m.HTML,
	})
	if err != nil {
		return "", fmt.Errorf("mailer: send to %s: %w", strings.Join(m.To, ","), err)
	}
	return sent.Id, nil
}
