package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client calls the web API on behalf of the client apps.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the API at baseURL (DefaultOrigin when
// empty).
func NewClient(baseURL string, hc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultOrigin
	}
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: hc}
}

// Verify asks whether email has a premium subscription.
func (c *Client) Verify(ctx context.Context, email string) (VerifyResponse, error) {
	var out VerifyResponse
	err := c.post(ctx, "/api/stripe/verify", VerifyRequest{Email: email}, &out)
	return out, err
}

// Checkout opens a subscription checkout and returns its URL.
func (c *Client) Checkout(ctx context.Context, email, machineID string) (CheckoutResponse, error) {
	var out CheckoutResponse
	err := c.post(ctx, "/api/stripe/checkout", CheckoutRequest{Email: email, MachineID: machineID}, &out)
	return out, err
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("web client: encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("web client: build %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("web client: %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONBody))
	if err != nil {
		return fmt.Errorf("web client: read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		var e errorBody
		_ = json.Unmarshal(data, &e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("web client: %s: status %d: %s", path, resp.StatusCode, e.Error)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("web client: decode %s: %w", path, err)
	}
	return nil
}
