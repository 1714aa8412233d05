package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Verification is the premium status of an email address.
type Verification struct {
	Premium      bool
	Subscription *Subscription
}

// Verify reports whether email has an active or trialing subscription. An
// active subscription is preferred over a trialing one. An unknown email is
// not premium and not an error.
func (c *Client) Verify(ctx context.Context, email string) (Verification, error) {
	cust, err := c.FindCustomer(ctx, email)
	if errors.Is(err, ErrNoCustomer) {
		return Verification{}, nil
	}
	if err != nil {
		return Verification{}, err
	}

	var active, trialing []Subscription
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		active, err = c.ListSubscriptions(egCtx, cust.ID, "active", 1)
		return err
	})
	eg.Go(func() error {
		var err error
		trialing, err = c.ListSubscriptions(egCtx, cust.ID, "trialing", 1)
		return err
	})
	if err := eg.Wait(); err != nil {
		return Verification{}, fmt.Errorf("billing: verify %s: %w", cust.ID, err)
	}

	switch {
	case len(active) > 0:
		return Verification{Premium: true, Subscription: &active[0]}, nil
	case len(trialing) > 0:
		return Verification{Premium: true, Subscription: &trialing[0]}, nil
	}
	return Verification{}, nil
}

// PeriodEnd returns the end of the current billing period.
func (s Subscription) PeriodEnd() time.Time {
	if s.CurrentPeriodEnd == 0 {
		return time.Time{}
	}
	return time.Unix(s.CurrentPeriodEnd, 0).UTC()
}
