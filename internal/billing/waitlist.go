package billing

import (
	"context"
	"log/slog"
	"time"
)

// DefaultPlatform is recorded when a waitlist signup names no platform.
const DefaultPlatform = "ios"

// Waitlist metadata keys on Stripe customers.
const (
	metaWaitlist     = "waitlist_ios"
	metaWaitlistDate = "waitlist_ios_date"
	metaPlatform     = "waitlist_platform"
	metaSource       = "source"
)

// JoinWaitlist tags the customer for email as a waitlist member, creating
// the customer when none exists. It reports whether the customer existed.
// A failed lookup is treated as no match, so the signup still creates a
// customer.
func (c *Client) JoinWaitlist(ctx context.Context, email, platform string) (bool, error) {
	if platform == "" {
		platform = DefaultPlatform
	}
	meta := map[string]string{
		metaWaitlist:     "true",
		metaWaitlistDate: c.now().UTC().Format(time.RFC3339Nano),
		metaPlatform:     platform,
	}

	found, _, err := c.SearchCustomers(ctx, "email:"+quote(email), 1)
	if err != nil {
		slog.WarnContext(ctx, "billing: waitlist lookup failed, creating customer", "email", email, "error", err)
	}
	if len(found) > 0 {
		if _, err := c.UpdateCustomer(ctx, found[0].ID, meta); err != nil {
			return true, err
		}
		return true, nil
	}

	meta[metaSource] = "waitlist"
	if _, err := c.CreateCustomer(ctx, email, meta); err != nil {
		return false, err
	}
	return false, nil
}

// WaitlistCount returns the number of waitlist members in the first page of
// up to 100 and whether more exist.
func (c *Client) WaitlistCount(ctx context.Context) (int, bool, error) {
	found, more, err := c.SearchCustomers(ctx, "metadata['"+metaWaitlist+"']:'true'", 100)
	if err != nil {
		return 0, false, err
	}
	return len(found), more, nil
}
