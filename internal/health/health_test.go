package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func serve(t *testing.T, h *Handler, path string) (int, result, *httptest.ResponseRecorder) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body, rec
}

func TestHealthz(t *testing.T) {
	failing := Checker{Name: "stripe", Check: func(context.Context) error { return errors.New("down") }}
	code, body, rec := serve(t, New([]Checker{failing}), "/healthz")

	if code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
	if body.Status != "ok" || body.Checks != nil {
		t.Errorf("body = %+v, want bare ok", body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestReadyz(t *testing.T) {
	ok := func(context.Context) error { return nil }
	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "stripe", Check: ok},
				{Name: "history", Check: ok},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"stripe": "ok", "history": "ok"},
		},
		{
			name: "one fails",
			checkers: []Checker{
				{Name: "stripe", Check: ok},
				{Name: "history", Check: func(context.Context) error { return errors.New("connection refused") }},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"stripe": "ok", "history": "fail: connection refused"},
		},
		{
			name: "configured helper",
			checkers: []Checker{
				Configured("openai", false, errors.New("api key not set")),
				Configured("resend", true, nil),
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"openai": "fail: api key not set", "resend": "ok"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body, _ := serve(t, New(tt.checkers), "/readyz")
			if code != tt.wantCode {
				t.Errorf("status = %d, want %d", code, tt.wantCode)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status field = %q, want %q", body.Status, tt.wantStatus)
			}
			if len(body.Checks) != len(tt.wantChecks) {
				t.Errorf("checks = %v, want %v", body.Checks, tt.wantChecks)
			}
			for k, v := range tt.wantChecks {
				if body.Checks[k] != v {
					t.Errorf("checks[%q] = %q, want %q", k, body.Checks[k], v)
				}
			}
		})
	}
}

func TestReadyz_Timeout(t *testing.T) {
	slow := Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	start := time.Now()
	code, body, _ := serve(t, New([]Checker{slow}, WithTimeout(20*time.Millisecond)), "/readyz")

	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
	if body.Checks["slow"] != "fail: "+context.DeadlineExceeded.Error() {
		t.Errorf("slow check = %q", body.Checks["slow"])
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("readiness took %v, timeout not applied", elapsed)
	}
}

func TestReadyz_Concurrent(t *testing.T) {
	// Each check waits for the other; sequential evaluation would time out.
	a, b := make(chan struct{}), make(chan struct{})
	pair := func(mine, theirs chan struct{}) func(context.Context) error {
		return func(ctx context.Context) error {
			close(mine)
			select {
			case <-theirs:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	h := New([]Checker{
		{Name: "a", Check: pair(a, b)},
		{Name: "b", Check: pair(b, a)},
	}, WithTimeout(time.Second))

	code, body, _ := serve(t, h, "/readyz")
	if code != http.StatusOK {
		t.Errorf("status = %d, checks = %v", code, body.Checks)
	}
}

func TestRegister_MethodNotAllowed(t *testing.T) {
	mux := http.NewServeMux()
	New(nil).Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/readyz", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /readyz = %d, want 405", rec.Code)
	}
}
