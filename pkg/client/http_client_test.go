package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fastRetryPolicy(attempts uint32) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      attempts,
		BaseDelay:        time.Millisecond,
		MaxDelay:         2 * time.Millisecond,
		RetryStatusCodes: []int{500, 503},
	}
}

func newTestHTTPClient(t *testing.T, baseURL string, policy RetryPolicy) *HTTPClient {
	t.Helper()
	c, err := NewHTTPClient(HTTPOptions{
		BaseURL:          baseURL,
		HTTPClient:       &http.Client{Timeout: 2 * time.Second},
		RetryPolicy:      policy,
		MaxResponseBytes: 1 << 20,
	})
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	return c
}

// flakyHandler answers 503 for the first failures requests.
func flakyHandler(failures int32, calls *int32, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		if n <= failures {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"persistence failure"}`))
			return
		}
		_, _ = w.Write([]byte(body))
	})
}

func TestHTTPClientRetriesUnavailable(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(flakyHandler(2, &calls, `{"period":"March 2024","display":"1d 0h 0m 0s"}`))
	defer ts.Close()

	c := newTestHTTPClient(t, ts.URL, fastRetryPolicy(3))
	cycle, err := c.Cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}
	if cycle.Period != "March 2024" {
		t.Fatalf("Unexpected period %q", cycle.Period)
	}
	if calls != 3 {
		t.Fatalf("Expected 3 calls, got %d", calls)
	}
}

func TestHTTPClientRetryExhausted(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(flakyHandler(10, &calls, `{}`))
	defer ts.Close()

	c := newTestHTTPClient(t, ts.URL, fastRetryPolicy(2))
	_, err := c.Toggle(context.Background(), "greenview", 0)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("Expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Expected ErrUnavailable, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("Expected 2 calls, got %d", calls)
	}
}

func TestHTTPClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		switch r.URL.Path {
		case "/api/customers/nobody":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"customer not found: nobody"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"record index out of range: 99 not in [0,12)"}`))
		}
	}))
	defer ts.Close()

	c := newTestHTTPClient(t, ts.URL, fastRetryPolicy(4))
	ctx := context.Background()
	if _, err := c.Ledger(ctx, "nobody"); !errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("Expected ErrCustomerNotFound, got %v", err)
	}
	if _, err := c.Toggle(ctx, "greenview", 99); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("Expected ErrOutOfRange, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("Expected 2 calls, got %d", calls)
	}
}

func TestHTTPClientStopsOnCancel(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(flakyHandler(100, &calls, `{}`))
	defer ts.Close()

	policy := fastRetryPolicy(50)
	policy.BaseDelay = 50 * time.Millisecond
	policy.MaxDelay = time.Second
	c := newTestHTTPClient(t, ts.URL, policy)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Arrears(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected DeadlineExceeded, got %v", err)
	}
}

func TestNewHTTPClientValidation(t *testing.T) {
	valid := HTTPOptions{
		BaseURL:          "http://localhost:8080",
		HTTPClient:       http.DefaultClient,
		RetryPolicy:      DefaultRetryPolicy(),
		MaxResponseBytes: 1 << 20,
	}
	if _, err := NewHTTPClient(valid); err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}

	broken := []func(o *HTTPOptions){
		func(o *HTTPOptions) { o.BaseURL = "" },
		func(o *HTTPOptions) { o.HTTPClient = nil },
		func(o *HTTPOptions) { o.MaxResponseBytes = 0 },
		func(o *HTTPOptions) { o.RetryPolicy.MaxAttempts = 0 },
	}
	for i, mutate := range broken {
		opts := valid
		mutate(&opts)
		if _, err := NewHTTPClient(opts); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("case %d: expected ErrInvalidArgument, got %v", i, err)
		}
	}
}

func TestJoinURLPath(t *testing.T) {
	tests := []struct {
		base, suffix, want string
	}{
		{"", "/api/cycle", "/api/cycle"},
		{"/billing/", "/api/cycle", "/billing/api/cycle"},
		{"/billing", "", "/billing"},
	}
	for _, tt := range tests {
		if got := joinURLPath(tt.base, tt.suffix); got != tt.want {
			t.Fatalf("joinURLPath(%q, %q) = %q, want %q", tt.base, tt.suffix, got, tt.want)
		}
	}
}

func TestHTTPClientToggleNotRetriedOnServerError(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer ts.Close()

	c := newTestHTTPClient(t, ts.URL, fastRetryPolicy(3))
	_, err := c.Toggle(context.Background(), "greenview", 0)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("Expected HTTP 500 error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("Expected 1 call, got %d", calls)
	}
}

func TestHTTPClientRetriesShareRequestID(t *testing.T) {
	var calls int32
	seen := make(chan string, 3)
	flaky := flakyHandler(2, &calls, `{"period":"March 2024"}`)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get("X-Request-Id")
		flaky.ServeHTTP(w, r)
	}))
	defer ts.Close()

	c := newTestHTTPClient(t, ts.URL, fastRetryPolicy(3))
	if _, err := c.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}
	close(seen)

	var first string
	for id := range seen {
		if id == "" {
			t.Fatal("Expected a request id header")
		}
		if first == "" {
			first = id
		} else if id != first {
			t.Fatalf("Expected one request id across retries, got %q and %q", first, id)
		}
	}
}
