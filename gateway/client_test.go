package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-audio-relay/core"
)

type immediateRetryPolicy struct{}

func (immediateRetryPolicy) NextDelay(int) time.Duration { return time.Millisecond }

func testGatewayConfig(url string) core.GatewayConfig {
	return core.GatewayConfig{
		URL:           url,
		Token:         "gw-token",
		SessionKey:    "session-1",
		Timeout:       5 * time.Second,
		RetryAttempts: 3,
	}
}

func TestClient_SendPostsToolInvocation(t *testing.T) {
	var gotAuth string
	var gotBody toolInvocation
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		payload, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(payload, &gotBody); err != nil {
			t.Errorf("body is not JSON: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(testGatewayConfig(server.URL), nil)
	if err := client.Send(context.Background(), "the transcript"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAuth != "Bearer gw-token" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotBody.Tool != "sessions_send" {
		t.Fatalf("tool = %q", gotBody.Tool)
	}
	if gotBody.Args.SessionKey != "session-1" || gotBody.Args.Message != "the transcript" {
		t.Fatalf("args = %+v", gotBody.Args)
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(testGatewayConfig(server.URL), nil).WithRetryPolicy(immediateRetryPolicy{})
	if err := client.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(testGatewayConfig(server.URL), nil).WithRetryPolicy(immediateRetryPolicy{})
	err := client.Send(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestClient_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(testGatewayConfig(server.URL), nil).WithRetryPolicy(immediateRetryPolicy{})
	err := client.Send(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
	if core.TextCode(err) != core.RelayErrorUpstreamFailed {
		t.Fatalf("text code = %q", core.TextCode(err))
	}
}

func TestClient_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testGatewayConfig(server.URL)
	client := NewClient(cfg, nil).WithRetryPolicy(ExponentialRetryPolicy{Initial: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	started := time.Now()
	err := client.Send(ctx, "hello")
	if err == nil {
		t.Fatal("expected error when context expires during backoff")
	}
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Fatalf("Send blocked for %v, backoff ignored the context", elapsed)
	}
}

func TestClient_EmptyMessageRejected(t *testing.T) {
	client := NewClient(testGatewayConfig("http://127.0.0.1:1"), nil)
	if err := client.Send(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty message")
	}
}

func TestClient_MissingURLRejected(t *testing.T) {
	client := NewClient(core.GatewayConfig{RetryAttempts: 1}, nil)
	if err := client.Send(context.Background(), "hello"); err == nil {
		t.Fatal("expected error when url is not configured")
	}
}

func TestExponentialRetryPolicy_Schedule(t *testing.T) {
	policy := ExponentialRetryPolicy{Initial: time.Second, Max: 10 * time.Second}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{10, 10 * time.Second},
	}
	for _, tc := range cases {
		if got := policy.NextDelay(tc.attempt); got != tc.want {
			t.Fatalf("NextDelay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}
