package pipeline

import (
	"testing"
	"time"
)

func TestExponentialRetryPolicy_NextDelay(t *testing.T) {
	policy := ExponentialRetryPolicy{Initial: time.Second, Max: 30 * time.Second}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{10, 30 * time.Second},
	}
	for _, tc := range cases {
		if got := policy.NextDelay(tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: expected %s, got %s", tc.attempt, tc.want, got)
		}
	}
}

func TestExponentialRetryPolicy_ZeroValuesFallBack(t *testing.T) {
	policy := ExponentialRetryPolicy{}
	if got := policy.NextDelay(1); got != time.Second {
		t.Fatalf("expected default initial delay, got %s", got)
	}
	if got := policy.NextDelay(20); got != 30*time.Second {
		t.Fatalf("expected default cap, got %s", got)
	}
}
