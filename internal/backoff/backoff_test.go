package backoff

import "testing"

func TestDelayMS_NoBackoff(t *testing.T) {
	p := Policy{AllowRetryBackOff: false, RetryDelayMS: 1000, MaxRetryDelayMS: 30000}
	for attempt := 1; attempt <= 5; attempt++ {
		if got := DelayMS(attempt, p); got != 1000 {
			t.Fatalf("attempt %d: got %d, want 1000", attempt, got)
		}
	}
}

func TestDelayMS_LinearBackoff(t *testing.T) {
	p := Policy{AllowRetryBackOff: true, RetryDelayMS: 1000, MaxRetryDelayMS: 30000}
	if got := DelayMS(3, p); got != 3000 {
		t.Fatalf("got %d, want 3000", got)
	}
}

func TestDelayMS_MonotoneAndCapped(t *testing.T) {
	p := Policy{AllowRetryBackOff: true, RetryDelayMS: 1000, MaxRetryDelayMS: 5000}
	prev := 0
	for attempt := 1; attempt <= 20; attempt++ {
		got := DelayMS(attempt, p)
		if got < prev {
			t.Fatalf("attempt %d: delay %d is less than previous %d", attempt, got, prev)
		}
		if got > p.MaxRetryDelayMS {
			t.Fatalf("attempt %d: delay %d exceeds cap %d", attempt, got, p.MaxRetryDelayMS)
		}
		prev = got
	}
}

func TestVisibilitySeconds_Clamp(t *testing.T) {
	tests := []struct {
		delayMS int
		want    int
	}{
		{600_000, 600},
		{50_000_000, VisibilityClampSeconds},
		{1_000, 1},
	}
	for _, tt := range tests {
		if got := VisibilitySeconds(tt.delayMS); got != tt.want {
			t.Fatalf("VisibilitySeconds(%d) = %d, want %d", tt.delayMS, got, tt.want)
		}
	}
}

func TestDelayMS_BackoffClampScenario(t *testing.T) {
	// spec.md §8 scenario 5: base=60000, cap=50_000_000, retry_attempts=10 -> 600000ms delay.
	p := Policy{AllowRetryBackOff: true, RetryDelayMS: 60000, MaxRetryDelayMS: 50_000_000}
	if got := DelayMS(10, p); got != 600_000 {
		t.Fatalf("got %d, want 600000", got)
	}
	if got := VisibilitySeconds(600_000); got != 600 {
		t.Fatalf("got %d, want 600", got)
	}

	// retry_attempts=1000 -> 50,000,000ms -> clamp to 43,200s.
	p2 := Policy{AllowRetryBackOff: true, RetryDelayMS: 60000, MaxRetryDelayMS: 50_000_000}
	delay := DelayMS(1000, p2)
	if delay != 50_000_000 {
		t.Fatalf("got %d, want 50000000", delay)
	}
	if got := VisibilitySeconds(delay); got != VisibilityClampSeconds {
		t.Fatalf("got %d, want %d", got, VisibilityClampSeconds)
	}
}
