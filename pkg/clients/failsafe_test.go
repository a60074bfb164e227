package clients

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go"
)

//nolint:bodyclose // test responses have no body
func TestNewHTTPRetryPolicy_NormalizesConfigToBoundRetries(t *testing.T) {
	cfg := HTTPExecutorConfig{
		MaxRetries: -3,
		BaseDelay:  0,
		MaxDelay:   0,
	}
	policy := NewHTTPRetryPolicy(cfg)

	var attempts int32
	_, err := failsafe.With(policy).Get(func() (*http.Response, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, errors.New("network partition")
	})
	if err == nil {
		t.Fatal("expected request to fail")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected bounded single attempt with negative retries, got %d", got)
	}
}

//nolint:bodyclose // test responses have no body
func TestNewHTTPRetryPolicy_RetriesUpToConfiguredLimit(t *testing.T) {
	cfg := HTTPExecutorConfig{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
		ShouldRetry: func(_ *http.Response, err error) bool {
			return err != nil
		},
	}
	policy := NewHTTPRetryPolicy(cfg)

	var attempts int32
	_, err := failsafe.With(policy).Get(func() (*http.Response, error) {
		count := atomic.AddInt32(&attempts, 1)
		if count < 3 {
			return nil, errors.New("dns lag")
		}
		return &http.Response{StatusCode: http.StatusOK}, nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected exactly 3 attempts (1 + 2 retries), got %d", got)
	}
}

func TestDefaultShouldRetry(t *testing.T) {
	cases := map[int]bool{
		http.StatusOK:                  false,
		http.StatusConflict:            false,
		http.StatusLocked:              false,
		http.StatusTooManyRequests:     true,
		http.StatusBadGateway:          true,
		http.StatusServiceUnavailable:  true,
		http.StatusInternalServerError: true,
	}
	for code, want := range cases {
		if got := DefaultShouldRetry(&http.Response{StatusCode: code}, nil); got != want {
			t.Errorf("status %d: expected %v, got %v", code, want, got)
		}
	}
	if !DefaultShouldRetry(nil, errors.New("reset")) {
		t.Error("expected transport errors to retry")
	}
}

//nolint:bodyclose // test responses have no body
func TestHTTPCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := NewHTTPCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		FailureWindow:    2,
		Delay:            time.Hour,
	})
	exec := failsafe.With(cb)

	for i := 0; i < 2; i++ {
		_, _ = exec.Get(func() (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusBadGateway}, nil
		})
	}
	if !cb.IsOpen() {
		t.Fatal("expected breaker to open after two 5xx responses")
	}

	var calls int32
	_, err := exec.Get(func() (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return &http.Response{StatusCode: http.StatusOK}, nil
	})
	if err == nil || atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected open breaker to reject without calling, err=%v calls=%d", err, calls)
	}
}

func TestNewRetryPolicyAbortsOnNonRetryable(t *testing.T) {
	permanent := errors.New("permanent")
	policy := NewRetryPolicy(RetryConfig{
		MaxRetries: 5,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
		Abort:      func(err error) bool { return errors.Is(err, permanent) },
	})

	var attempts int32
	err := failsafe.With(policy).WithContext(context.Background()).Run(func() error {
		atomic.AddInt32(&attempts, 1)
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestNewRetryPolicyRetriesTransient(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})

	var attempts int32
	err := failsafe.With(policy).Run(func() error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("leader not available")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}
