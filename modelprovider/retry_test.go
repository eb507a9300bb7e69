package modelprovider

import (
	"context"
	"errors"
	"testing"
)

func TestRetryPolicy_SucceedsAfterRetryableFailures(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3}
	attempts := 0
	err := policy.Call(context.Background(), "test", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryPolicy_NonRetryableFailsImmediately(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3}
	attempts := 0
	err := policy.Call(context.Background(), "test", func(ctx context.Context) error {
		attempts++
		return errors.New("invalid api key")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetryPolicy_ExhaustsAndWraps(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2}
	attempts := 0
	err := policy.Call(context.Background(), "test", func(ctx context.Context) error {
		attempts++
		return errors.New("503 service unavailable")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("err = %v, want wrapping ErrRetryExhausted", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 (1 + MaxRetries)", attempts)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("HTTP 429 Too Many Requests"), true},
		{errors.New("HTTP 500 Internal Server Error"), true},
		{errors.New("connection refused"), true},
		{errors.New("invalid request: missing field"), false},
		{context.Canceled, false},
		{nil, false},
	}
	for _, c := range cases {
		if got := IsRetryable(c.err); got != c.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
