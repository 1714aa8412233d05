// Package billingtest provides an in-memory Stripe API for tests.
//
// Server implements the customer, search, subscription and checkout
// endpoints used by package billing, in the wire format stripe-go decodes.
// All methods are safe for concurrent use.
package billingtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/codiris/voice/internal/billing"
)

// SecretKey is the bearer token the server accepts.
const SecretKey = "sk_test_codiris"

var (
	emailQuery    = regexp.MustCompile(`^email:'((?:[^'\\]|\\.)*)'$`)
	metadataQuery = regexp.MustCompile(`^metadata\['([^']+)'\]:'((?:[^'\\]|\\.)*)'$`)
)

// Server is a fake Stripe API backed by an httptest.Server.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	customers []billing.Customer
	subs      map[string][]billing.Subscription
	checkouts []url.Values
	creates   int
	updates   int
	nextID    int
	failCode  int
	failMsg   string
	failRoute map[string]apiFailure
}

type apiFailure struct {
	code int
	msg  string
}

// New starts a server that is closed when t finishes.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		subs:      make(map[string][]billing.Subscription),
		failRoute: make(map[string]apiFailure),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/customers", s.listCustomers)
	mux.HandleFunc("GET /v1/customers/search", s.searchCustomers)
	mux.HandleFunc("POST /v1/customers", s.createCustomer)
	mux.HandleFunc("POST /v1/customers/{id}", s.updateCustomer)
	mux.HandleFunc("GET /v1/subscriptions", s.listSubscriptions)
	mux.HandleFunc("POST /v1/checkout/sessions", s.createCheckout)

	s.Server = httptest.NewServer(s.authenticate(mux))
	t.Cleanup(s.Close)
	return s
}

// Client returns a billing client pointed at the server.
func (s *Server) Client(t testing.TB, opts ...billing.Option) *billing.Client {
	t.Helper()
	c, err := billing.New(SecretKey, append([]billing.Option{billing.WithBaseURL(s.URL)}, opts...)...)
	if err != nil {
		t.Fatalf("billing.New: %v", err)
	}
	return c
}

// AddCustomer stores a customer and returns its id.
func (s *Server) AddCustomer(email string, metadata map[string]string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(email, metadata).ID
}

// AddSubscription attaches sub to customerID.
func (s *Server) AddSubscription(customerID string, sub billing.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[customerID] = append(s.subs[customerID], sub)
}

// Fail makes every subsequent request return code with msg.
func (s *Server) Fail(code int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCode, s.failMsg = code, msg
}

// FailRoute makes requests to route, such as "GET /v1/customers/search",
// return code with msg. Other routes keep working.
func (s *Server) FailRoute(route string, code int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRoute[route] = apiFailure{code, msg}
}

// Customers returns a copy of the stored customers.
func (s *Server) Customers() []billing.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]billing.Customer, len(s.customers))
	for i, c := range s.customers {
		out[i] = c
		out[i].Metadata = copyMeta(c.Metadata)
	}
	return out
}

// Counts returns the number of customer creations and updates.
func (s *Server) Counts() (creates, updates int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates, s.updates
}

// Checkouts returns the forms of every checkout session request.
func (s *Server) Checkouts() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.checkouts...)
}

// ── Handlers ────────────────────────────────────────────────────────────────

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+SecretKey {
			writeError(w, http.StatusUnauthorized, "Invalid API Key provided")
			return
		}
		s.mu.Lock()
		code, msg := s.failCode, s.failMsg
		if f, ok := s.failRoute[r.Method+" "+r.URL.Path]; ok {
			code, msg = f.code, f.msg
		}
		s.mu.Unlock()
		if code != 0 {
			writeError(w, code, msg)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listCustomers(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	s.mu.Lock()
	var out []billing.Customer
	for _, c := range s.customers {
		if email == "" || c.Email == email {
			out = append(out, c)
		}
	}
	s.mu.Unlock()
	writePage(w, limit(out, r), len(out) > len(limit(out, r)))
}

func (s *Server) searchCustomers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("query")
	var match func(billing.Customer) bool
	if m := emailQuery.FindStringSubmatch(q); m != nil {
		email := unescape(m[1])
		match = func(c billing.Customer) bool { return c.Email == email }
	} else if m := metadataQuery.FindStringSubmatch(q); m != nil {
		key, val := m[1], unescape(m[2])
		match = func(c billing.Customer) bool { return c.Metadata[key] == val }
	} else {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported query %q", q))
		return
	}

	s.mu.Lock()
	var out []billing.Customer
	for _, c := range s.customers {
		if match(c) {
			out = append(out, c)
		}
	}
	s.mu.Unlock()
	page := limit(out, r)
	writeSearchPage(w, page, len(out) > len(page))
}

func (s *Server) createCustomer(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	s.creates++
	c := s.addLocked(r.PostForm.Get("email"), formMetadata(r.PostForm))
	s.mu.Unlock()
	writeJSON(w, c)
}

func (s *Server) updateCustomer(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.customers {
		if s.customers[i].ID != id {
			continue
		}
		s.updates++
		for k, v := range formMetadata(r.PostForm) {
			s.customers[i].Metadata[k] = v
		}
		writeJSON(w, s.customers[i])
		return
	}
	writeError(w, http.StatusNotFound, "No such customer: "+id)
}

func (s *Server) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.mu.Lock()
	var out []wireSubscription
	for _, sub := range s.subs[q.Get("customer")] {
		if st := q.Get("status"); st == "" || sub.Status == st {
			out = append(out, toWire(sub))
		}
	}
	s.mu.Unlock()
	page := limit(out, r)
	writePage(w, page, len(out) > len(page))
}

// wireSubscription is a subscription as the API returns it. The billing
// period lives on the subscription items.
type wireSubscription struct {
	ID                string    `json:"id"`
	Object            string    `json:"object"`
	Status            string    `json:"status"`
	CancelAtPeriodEnd bool      `json:"cancel_at_period_end"`
	Items             wireItems `json:"items"`
}

type wireItems struct {
	Object string     `json:"object"`
	Data   []wireItem `json:"data"`
}

type wireItem struct {
	ID               string `json:"id"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
}

func toWire(sub billing.Subscription) wireSubscription {
	return wireSubscription{
		ID:                sub.ID,
		Object:            "subscription",
		Status:            sub.Status,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Items: wireItems{
			Object: "list",
			Data:   []wireItem{{ID: "si_" + sub.ID, CurrentPeriodEnd: sub.CurrentPeriodEnd}},
		},
	}
}

func (s *Server) createCheckout(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	s.checkouts = append(s.checkouts, r.PostForm)
	id := fmt.Sprintf("cs_test_%d", len(s.checkouts))
	s.mu.Unlock()
	writeJSON(w, map[string]string{
		"id":     id,
		"object": "checkout.session",
		"url":    "https://checkout.stripe.com/c/pay/" + id,
	})
}

// ── Helpers ─────────────────────────────────────────────────────────────────

func (s *Server) addLocked(email string, metadata map[string]string) billing.Customer {
	s.nextID++
	c := billing.Customer{
		ID:       fmt.Sprintf("cus_%04d", s.nextID),
		Email:    email,
		Metadata: copyMeta(metadata),
	}
	s.customers = append(s.customers, c)
	return c
}

func formMetadata(form url.Values) map[string]string {
	meta := make(map[string]string)
	for k := range form {
		if key, ok := strings.CutPrefix(k, "metadata["); ok {
			meta[strings.TrimSuffix(key, "]")] = form.Get(k)
		}
	}
	return meta
}

func copyMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func unescape(s string) string {
	return strings.NewReplacer(`\'`, `'`, `\\`, `\`).Replace(s)
}

func limit[T any](items []T, r *http.Request) []T {
	var n int
	if _, err := fmt.Sscanf(r.URL.Query().Get("limit"), "%d", &n); err != nil || n <= 0 {
		n = 10
	}
	if len(items) > n {
		return items[:n]
	}
	return items
}

func writePage[T any](w http.ResponseWriter, data []T, hasMore bool) {
	if data == nil {
		data = []T{}
	}
	writeJSON(w, map[string]any{"object": "list", "data": data, "has_more": hasMore})
}

func writeSearchPage[T any](w http.ResponseWriter, data []T, hasMore bool) {
	if data == nil {
		data = []T{}
	}
	writeJSON(w, map[string]any{"object": "search_result", "data": data, "has_more": hasMore, "next_page": nil})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"type": "invalid_request_error", "message": msg},
	})
}
