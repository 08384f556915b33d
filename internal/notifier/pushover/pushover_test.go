package pushover

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/newthinker/pushrelay/internal/core"
	"github.com/newthinker/pushrelay/internal/notifier"
)

var testCreds = core.Credentials{UserKey: "u-key", APIToken: "a-token"}

func testConfig(endpoint string) notifier.Config {
	return notifier.Config{
		Endpoint:  endpoint,
		Timeout:   2 * time.Second,
		RetryBase: time.Millisecond,
	}
}

func TestClient_ImplementsSender(t *testing.T) {
	var _ notifier.Sender = (*Client)(nil)
}

func TestClient_Name(t *testing.T) {
	c := New(notifier.Config{}, nil)
	if c.Name() != "pushover" {
		t.Errorf("expected 'pushover', got %s", c.Name())
	}
}

func TestNew_Defaults(t *testing.T) {
	c := New(notifier.Config{}, nil)
	if c.endpoint != DefaultEndpoint {
		t.Errorf("expected default endpoint, got %s", c.endpoint)
	}
	if c.timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %s", c.timeout)
	}
	if c.maxAttempts != 1 {
		t.Errorf("expected a single attempt by default, got %d", c.maxAttempts)
	}
	if c.limiter != nil {
		t.Error("zero rate should disable the limiter")
	}

	limited := New(DefaultConfig(), nil)
	if limited.limiter == nil {
		t.Error("default config should rate limit")
	}
}

func TestClient_Deliver_FormFields(t *testing.T) {
	var received url.Values
	var contentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		r.ParseForm()
		received = r.PostForm
		w.Header().Set("X-Limit-App-Remaining", "7496")
		w.Write([]byte(`{"status":1,"request":"647d2300-702c-4b38-8b2f-d56326ae460b"}`))
	}))
	defer server.Close()

	c := New(testConfig(server.URL), nil)

	payload := core.Payload{
		Title: "[backend] ERROR",
		Body:  "Server: web1",
		URL:   "https://monitor.example.com/backend/group/1/",
	}
	receipt, err := c.Deliver(context.Background(), payload, testCreds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if contentType != "application/x-www-form-urlencoded" {
		t.Errorf("unexpected content type %q", contentType)
	}

	expected := map[string]string{
		"user":      "u-key",
		"token":     "a-token",
		"title":     "[backend] ERROR",
		"message":   "Server: web1",
		"url":       "https://monitor.example.com/backend/group/1/",
		"url_title": "More info",
		"sound":     "pushover",
		"priority":  "0",
	}
	for field, want := range expected {
		if got := received.Get(field); got != want {
			t.Errorf("field %s: got %q, want %q", field, got, want)
		}
	}

	if receipt.RequestID != "647d2300-702c-4b38-8b2f-d56326ae460b" {
		t.Errorf("unexpected request id %q", receipt.RequestID)
	}
	if receipt.AppRemaining != 7496 {
		t.Errorf("expected app remaining 7496, got %d", receipt.AppRemaining)
	}
	if receipt.Attempts != 1 || receipt.StatusCode != http.StatusOK {
		t.Errorf("unexpected receipt %+v", receipt)
	}
}

func TestClient_Deliver_SoundAndPriority(t *testing.T) {
	var received url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		received = r.PostForm
		w.Write([]byte(`{"status":1,"request":"r"}`))
	}))
	defer server.Close()

	c := New(testConfig(server.URL), nil)

	payload := core.Payload{Title: "t", Body: "b", Sound: "siren", Priority: core.PriorityQuiet}
	if _, err := c.Deliver(context.Background(), payload, testCreds); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received.Get("sound") != "siren" {
		t.Errorf("expected siren, got %q", received.Get("sound"))
	}
	if received.Get("priority") != "-1" {
		t.Errorf("expected -1, got %q", received.Get("priority"))
	}
}

func TestClient_Deliver_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(testConfig(server.URL), nil)

	receipt, err := c.Deliver(context.Background(), core.Payload{Title: "t", Body: "b"}, testCreds)
	if !errors.Is(err, core.ErrProviderRejected) {
		t.Fatalf("expected PROVIDER_REJECTED, got %v", err)
	}
	if receipt.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", receipt.StatusCode)
	}
	if receipt.Diagnostic == "" {
		t.Error("expected a diagnostic")
	}
}

func TestClient_Deliver_ProviderErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"user":"invalid","errors":["user identifier is not a valid user, group, or subscribed user key"],"status":0,"request":"5042853c"}`))
	}))
	defer server.Close()

	c := New(testConfig(server.URL), nil)

	receipt, err := c.Deliver(context.Background(), core.Payload{Title: "t", Body: "b"}, testCreds)
	if !errors.Is(err, core.ErrProviderRejected) {
		t.Fatalf("expected PROVIDER_REJECTED, got %v", err)
	}
	if receipt.Diagnostic != "user identifier is not a valid user, group, or subscribed user key" {
		t.Errorf("unexpected diagnostic %q", receipt.Diagnostic)
	}
	if receipt.RequestID != "5042853c" {
		t.Errorf("unexpected request id %q", receipt.RequestID)
	}
}

func TestClient_Deliver_StatusZeroOn200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":0,"errors":["application token is invalid"],"request":"x"}`))
	}))
	defer server.Close()

	c := New(testConfig(server.URL), nil)

	receipt, err := c.Deliver(context.Background(), core.Payload{Title: "t", Body: "b"}, testCreds)
	if !errors.Is(err, core.ErrProviderRejected) {
		t.Fatalf("expected PROVIDER_REJECTED, got %v", err)
	}
	if receipt.Diagnostic != "application token is invalid" {
		t.Errorf("unexpected diagnostic %q", receipt.Diagnostic)
	}
}

func TestClient_Deliver_UnreadableBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer server.Close()

	c := New(testConfig(server.URL), nil)

	_, err := c.Deliver(context.Background(), core.Payload{Title: "t", Body: "b"}, testCreds)
	if !errors.Is(err, core.ErrProviderRejected) {
		t.Fatalf("expected PROVIDER_REJECTED, got %v", err)
	}
}

func TestClient_Deliver_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	c := New(testConfig(endpoint), nil)

	receipt, err := c.Deliver(context.Background(), core.Payload{Title: "t", Body: "b"}, testCreds)
	if !errors.Is(err, core.ErrTransportFailure) {
		t.Fatalf("expected TRANSPORT_FAILURE, got %v", err)
	}
	if receipt.StatusCode != 0 {
		t.Errorf("expected no status code, got %d", receipt.StatusCode)
	}
}

func TestClient_Deliver_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Timeout = 50 * time.Millisecond
	c := New(cfg, nil)

	start := time.Now()
	_, err := c.Deliver(context.Background(), core.Payload{Title: "t", Body: "b"}, testCreds)
	if !errors.Is(err, core.ErrTransportFailure) {
		t.Fatalf("expected TRANSPORT_FAILURE, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("timeout not honoured, took %s", time.Since(start))
	}
}

func TestClient_Deliver_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":1,"request":"r"}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MaxAttempts = 3
	c := New(cfg, nil)

	receipt, err := c.Deliver(context.Background(), core.Payload{Title: "t", Body: "b"}, testCreds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", receipt.Attempts)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestClient_Deliver_ReceiptDescribesLastAttempt(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":0,"request":"first-request","errors":["service down"]}`))
			return
		}
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MaxAttempts = 2
	cfg.Timeout = 100 * time.Millisecond
	c := New(cfg, nil)

	receipt, err := c.Deliver(context.Background(), core.Payload{Title: "t", Body: "b"}, testCreds)
	if !errors.Is(err, core.ErrTransportFailure) {
		t.Fatalf("expected TRANSPORT_FAILURE, got %v", err)
	}
	if receipt.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", receipt.Attempts)
	}
	if receipt.StatusCode != 0 {
		t.Errorf("expected no status code, got %d", receipt.StatusCode)
	}
	if receipt.RequestID != "" {
		t.Errorf("expected request id of the first attempt to be cleared, got %q", receipt.RequestID)
	}
	if receipt.Diagnostic != "" {
		t.Errorf("expected diagnostic of the first attempt to be cleared, got %q", receipt.Diagnostic)
	}
}

func TestClient_Deliver_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":0,"errors":["message cannot be blank"]}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MaxAttempts = 3
	c := New(cfg, nil)

	receipt, err := c.Deliver(context.Background(), core.Payload{Title: "t"}, testCreds)
	if !errors.Is(err, core.ErrProviderRejected) {
		t.Fatalf("expected PROVIDER_REJECTED, got %v", err)
	}
	if calls.Load() != 1 || receipt.Attempts != 1 {
		t.Errorf("expected a single attempt, got %d calls", calls.Load())
	}
}

func TestClient_Deliver_NoRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := New(testConfig(server.URL), nil)
	c.Deliver(context.Background(), core.Payload{Title: "t", Body: "b"}, testCreds)

	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestClient_Deliver_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":1,"request":"r"}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.RatePerSec = 0.1
	cfg.Burst = 1
	c := New(cfg, nil)

	if _, err := c.Deliver(context.Background(), core.Payload{Title: "t", Body: "b"}, testCreds); err != nil {
		t.Fatalf("first delivery should use the burst: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.Deliver(ctx, core.Payload{Title: "t", Body: "b"}, testCreds)
	if !errors.Is(err, core.ErrTransportFailure) {
		t.Fatalf("expected TRANSPORT_FAILURE when the limiter cannot admit in time, got %v", err)
	}
}

func TestClient_Backoff(t *testing.T) {
	c := New(notifier.Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: 300 * time.Millisecond}, nil)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 300 * time.Millisecond},
		{10, 300 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := c.backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}
