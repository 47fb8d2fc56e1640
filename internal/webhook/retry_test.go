package webhook

import (
	"testing"
	"time"
)

func TestNextRetryDelay(t *testing.T) {
	tests := []struct {
		attempt  int
		minDelay time.Duration
		maxDelay time.Duration
	}{
		{-1, 800 * time.Millisecond, 1200 * time.Millisecond},
		{0, 800 * time.Millisecond, 1200 * time.Millisecond},
		{1, 4 * time.Second, 6 * time.Second},
		{2, 24 * time.Second, 36 * time.Second},
		{3, 96 * time.Second, 144 * time.Second},
		{10, 96 * time.Second, 144 * time.Second}, // beyond the table stays at last
	}

	for _, tt := range tests {
		tt := tt
		t.Run("", func(t *testing.T) {
			for i := 0; i < 10; i++ {
				delay := NextRetryDelay(DefaultRetryDelays, tt.attempt)
				if delay < tt.minDelay || delay > tt.maxDelay {
					t.Errorf("NextRetryDelay(%d) = %v, want between %v and %v",
						tt.attempt, delay, tt.minDelay, tt.maxDelay)
				}
			}
		})
	}
}

func TestNextRetryDelay_NoDelays(t *testing.T) {
	if d := NextRetryDelay(nil, 2); d != 0 {
		t.Errorf("NextRetryDelay(nil) = %v, want 0", d)
	}
}

func TestIsExhausted(t *testing.T) {
	tests := []struct {
		attempt     int
		maxAttempts int
		want        bool
	}{
		{0, 5, false},
		{4, 5, false},
		{5, 5, true},
		{6, 5, true},
	}

	for _, tt := range tests {
		got := IsExhausted(tt.attempt, tt.maxAttempts)
		if got != tt.want {
			t.Errorf("IsExhausted(%d, %d) = %v, want %v",
				tt.attempt, tt.maxAttempts, got, tt.want)
		}
	}
}
