package billing_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codiris/voice/internal/billing"
	"github.com/codiris/voice/internal/billing/billingtest"
)

func TestNew_RequiresKey(t *testing.T) {
	if _, err := billing.New(""); err == nil {
		t.Fatal("expected error for empty secret key")
	}
}

func TestEnsureCustomer_ReusesExisting(t *testing.T) {
	srv := billingtest.New(t)
	id := srv.AddCustomer("ada@example.com", nil)
	c := srv.Client(t)

	cust, err := c.EnsureCustomer(context.Background(), "ada@example.com", "mac-1")
	if err != nil {
		t.Fatalf("EnsureCustomer: %v", err)
	}
	if cust.ID != id {
		t.Errorf("ID = %q, want %q", cust.ID, id)
	}
	if creates, _ := srv.Counts(); creates != 0 {
		t.Errorf("creates = %d, want 0", creates)
	}
}

func TestEnsureCustomer_ConcurrentCreatesOnce(t *testing.T) {
	srv := billingtest.New(t)
	c := srv.Client(t)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cust, err := c.EnsureCustomer(context.Background(), "grace@example.com", "mac-2")
			if err != nil {
				t.Errorf("EnsureCustomer: %v", err)
				return
			}
			ids[i] = cust.ID
		}()
	}
	wg.Wait()

	if creates, _ := srv.Counts(); creates != 1 {
		t.Errorf("creates = %d, want 1", creates)
	}
	for _, id := range ids {
		if id != ids[0] {
			t.Errorf("customer ids differ: %v", ids)
			break
		}
	}
	if got := srv.Customers()[0].Metadata["machineId"]; got != "mac-2" {
		t.Errorf("machineId = %q, want mac-2", got)
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	srv := billingtest.New(t)
	c := srv.Client(t)

	s, err := c.CreateCheckoutSession(context.Background(), billing.CheckoutParams{
		CustomerID: "cus_1",
		MachineID:  "mac-3",
		Origin:     "https://voice.codiris.build/",
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}
	if s.ID == "" || s.URL == "" {
		t.Errorf("session = %+v", s)
	}

	form := srv.Checkouts()[0]
	for key, want := range map[string]string{
		"customer":                               "cus_1",
		"mode":                                   "subscription",
		"line_items[0][price_data][unit_amount]": "999",
		"line_items[0][price_data][currency]":    "usd",
		"line_items[0][price_data][product_data][name]":  "Codiris Voice Pro",
		"line_items[0][price_data][recurring][interval]": "month",
		"success_url":         "https://voice.codiris.build/success?session_id={CHECKOUT_SESSION_ID}",
		"cancel_url":          "https://voice.codiris.build/pricing",
		"metadata[machineId]": "mac-3",
	} {
		if got := form.Get(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
}

func TestVerify(t *testing.T) {
	srv := billingtest.New(t)
	active := srv.AddCustomer("active@example.com", nil)
	srv.AddSubscription(active, billing.Subscription{ID: "sub_t", Status: "trialing"})
	srv.AddSubscription(active, billing.Subscription{ID: "sub_a", Status: "active", CurrentPeriodEnd: 1767225600, CancelAtPeriodEnd: true})
	trial := srv.AddCustomer("trial@example.com", nil)
	srv.AddSubscription(trial, billing.Subscription{ID: "sub_tr", Status: "trialing"})
	lapsed := srv.AddCustomer("lapsed@example.com", nil)
	srv.AddSubscription(lapsed, billing.Subscription{ID: "sub_c", Status: "canceled"})
	c := srv.Client(t)

	tests := []struct {
		email   string
		premium bool
		subID   string
	}{
		{"active@example.com", true, "sub_a"},
		{"trial@example.com", true, "sub_tr"},
		{"lapsed@example.com", false, ""},
		{"nobody@example.com", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			v, err := c.Verify(context.Background(), tt.email)
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if v.Premium != tt.premium {
				t.Errorf("Premium = %v, want %v", v.Premium, tt.premium)
			}
			if tt.subID == "" {
				if v.Subscription != nil {
					t.Errorf("Subscription = %+v, want nil", v.Subscription)
				}
				return
			}
			if v.Subscription == nil || v.Subscription.ID != tt.subID {
				t.Fatalf("Subscription = %+v, want %s", v.Subscription, tt.subID)
			}
		})
	}

	v, _ := c.Verify(context.Background(), "active@example.com")
	if !v.Subscription.CancelAtPeriodEnd || !v.Subscription.PeriodEnd().Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("subscription fields = %+v", v.Subscription)
	}
}

func TestJoinWaitlist(t *testing.T) {
	srv := billingtest.New(t)
	existing := srv.AddCustomer("o'brien@example.com", map[string]string{"machineId": "mac-9"})
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := srv.Client(t, billing.WithClock(func() time.Time { return at }))
	ctx := context.Background()

	found, err := c.JoinWaitlist(ctx, "o'brien@example.com", "")
	if err != nil || !found {
		t.Fatalf("JoinWaitlist existing = %v, %v", found, err)
	}
	found, err = c.JoinWaitlist(ctx, "new@example.com", "android")
	if err != nil || found {
		t.Fatalf("JoinWaitlist new = %v, %v", found, err)
	}

	creates, updates := srv.Counts()
	if creates != 1 || updates != 1 {
		t.Errorf("creates/updates = %d/%d, want 1/1", creates, updates)
	}
	for _, cust := range srv.Customers() {
		if cust.Metadata["waitlist_ios"] != "true" || cust.Metadata["waitlist_ios_date"] != "2026-03-01T12:00:00Z" {
			t.Errorf("%s metadata = %v", cust.Email, cust.Metadata)
		}
		switch cust.ID {
		case existing:
			if cust.Metadata["waitlist_platform"] != "ios" || cust.Metadata["machineId"] != "mac-9" {
				t.Errorf("existing metadata = %v", cust.Metadata)
			}
		default:
			if cust.Metadata["source"] != "waitlist" || cust.Metadata["waitlist_platform"] != "android" {
				t.Errorf("new metadata = %v", cust.Metadata)
			}
		}
	}

	count, more, err := c.WaitlistCount(ctx)
	if err != nil || count != 2 || more {
		t.Errorf("WaitlistCount = %d, %v, %v; want 2, false, nil", count, more, err)
	}
}

func TestJoinWaitlist_LookupFailureCreates(t *testing.T) {
	srv := billingtest.New(t)
	srv.FailRoute("GET /v1/customers/search", http.StatusInternalServerError, "search is temporarily unavailable")
	c := srv.Client(t)

	found, err := c.JoinWaitlist(context.Background(), "ada@example.com", "ios")
	if err != nil {
		t.Fatalf("JoinWaitlist: %v", err)
	}
	if found {
		t.Error("found = true, want false after failed lookup")
	}
	cust := srv.Customers()
	if len(cust) != 1 || cust[0].Email != "ada@example.com" || cust[0].Metadata["source"] != "waitlist" {
		t.Errorf("customers = %+v", cust)
	}
}

func TestAPIError(t *testing.T) {
	srv := billingtest.New(t)
	srv.Fail(http.StatusPaymentRequired, "Your card was declined.")
	c := srv.Client(t)

	_, err := c.FindCustomer(context.Background(), "x@example.com")
	var apiErr *billing.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusPaymentRequired || apiErr.Message != "Your card was declined." {
		t.Errorf("apiErr = %+v", apiErr)
	}

	bad, _ := billing.New("sk_wrong", billing.WithBaseURL(srv.URL))
	if _, err := bad.FindCustomer(context.Background(), "x@example.com"); !strings.Contains(err.Error(), "401") {
		t.Errorf("err = %v, want 401", err)
	}
}
