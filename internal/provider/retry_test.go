package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

// testBackend is a minimal scripted backend for retry and dispatcher tests.
type testBackend struct {
	name      string
	responses []*Response
	errors    []error
	calls     int
}

func (p *testBackend) Name() string {
	if p.name == "" {
		return "test"
	}
	return p.name
}

func (p *testBackend) Complete(ctx context.Context, req *Request) (*Response, error) {
	idx := p.calls
	p.calls++
	if idx < len(p.errors) && p.errors[idx] != nil {
		return nil, p.errors[idx]
	}
	if idx < len(p.responses) && p.responses[idx] != nil {
		return p.responses[idx], nil
	}
	return &Response{Content: "default", StopReason: "stop"}, nil
}

func apiErr(status int) error {
	return &APIError{Backend: "test", StatusCode: status, Body: "boom"}
}

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		JitterFraction: 0,
	}
}

func TestRetryBackend_SuccessFirstTry(t *testing.T) {
	inner := &testBackend{responses: []*Response{{Content: "ok"}}}
	rb := NewRetryBackend(inner, fastRetryConfig())

	resp, err := rb.Complete(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("expected 'ok', got %q", resp.Content)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call, got %d", inner.calls)
	}
}

func TestRetryBackend_RetryOn500(t *testing.T) {
	inner := &testBackend{
		errors:    []error{apiErr(500), apiErr(500), nil},
		responses: []*Response{nil, nil, {Content: "recovered"}},
	}
	rb := NewRetryBackend(inner, fastRetryConfig())

	resp, err := rb.Complete(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "recovered" {
		t.Errorf("expected 'recovered', got %q", resp.Content)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 calls, got %d", inner.calls)
	}
}

func TestRetryBackend_NoRetryOnClientErrors(t *testing.T) {
	for _, status := range []int{400, 401, 404} {
		inner := &testBackend{errors: []error{apiErr(status)}}
		rb := NewRetryBackend(inner, fastRetryConfig())

		_, err := rb.Complete(context.Background(), &Request{})
		if err == nil {
			t.Fatalf("status %d: expected error", status)
		}
		if inner.calls != 1 {
			t.Errorf("status %d: expected 1 call (no retry), got %d", status, inner.calls)
		}
	}
}

func TestRetryBackend_MaxRetriesExhausted(t *testing.T) {
	inner := &testBackend{errors: []error{apiErr(503), apiErr(503), apiErr(503), apiErr(503)}}
	rb := NewRetryBackend(inner, fastRetryConfig())

	_, err := rb.Complete(context.Background(), &Request{})
	if err == nil {
		t.Fatal("expected error after max retries")
	}
	// 1 initial + 3 retries = 4
	if inner.calls != 4 {
		t.Errorf("expected 4 calls, got %d", inner.calls)
	}
	var ae *APIError
	if !errors.As(err, &ae) || ae.StatusCode != 503 {
		t.Errorf("expected wrapped APIError 503, got %v", err)
	}
}

func TestRetryBackend_ZeroRetriesPassesErrorThrough(t *testing.T) {
	want := apiErr(500)
	inner := &testBackend{errors: []error{want}}
	rb := NewRetryBackend(inner, RetryConfig{})

	_, err := rb.Complete(context.Background(), &Request{})
	if err != want {
		t.Errorf("expected the backend error unchanged, got %v", err)
	}
}

func TestRetryBackend_ContextCancelledDuringBackoff(t *testing.T) {
	inner := &testBackend{errors: []error{apiErr(500), apiErr(500)}}
	cfg := RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 5 * time.Second, // long backoff
		MaxBackoff:     10 * time.Second,
	}
	rb := NewRetryBackend(inner, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := rb.Complete(ctx, &Request{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call before the deadline, got %d", inner.calls)
	}
}

func TestRetryBackend_NetworkError(t *testing.T) {
	netErr := &net.OpError{Op: "dial", Net: "tcp", Err: fmt.Errorf("connection refused")}
	inner := &testBackend{
		errors:    []error{fmt.Errorf("request failed: %w", netErr), nil},
		responses: []*Response{nil, {Content: "ok"}},
	}
	rb := NewRetryBackend(inner, fastRetryConfig())

	resp, err := rb.Complete(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("expected 'ok', got %q", resp.Content)
	}
	if inner.calls != 2 {
		t.Errorf("expected 2 calls, got %d", inner.calls)
	}
}

func TestRetryBackend_NoRetryOnContextCanceled(t *testing.T) {
	inner := &testBackend{errors: []error{context.Canceled}}
	rb := NewRetryBackend(inner, fastRetryConfig())

	_, err := rb.Complete(context.Background(), &Request{})
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call (no retry on context.Canceled), got %d", inner.calls)
	}
}

func TestIsRetryable_UnknownError(t *testing.T) {
	if IsRetryable(fmt.Errorf("something odd")) {
		t.Error("unknown errors should not be retried")
	}
	if IsRetryable(nil) {
		t.Error("nil is not retryable")
	}
}

func TestRequest_SplitSystem(t *testing.T) {
	req := &Request{Messages: []Message{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleSystem, Content: "clock"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	}}
	system, rest := req.SplitSystem()
	if system != "persona\n\nclock" {
		t.Errorf("unexpected system prompt %q", system)
	}
	if len(rest) != 2 || rest[0].Role != RoleUser {
		t.Errorf("unexpected remaining messages %+v", rest)
	}
}
