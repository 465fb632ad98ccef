package chat

import (
	"testing"
	"time"
)

func TestRateLimiter_WindowEnforcement(t *testing.T) {
	now := time.Now().UTC()
	rl := NewRateLimiter(3, time.Second)

	for i := 0; i < 3; i++ {
		if !rl.Allow(now) {
			t.Fatalf("event %d unexpectedly denied", i)
		}
	}
	if rl.Allow(now) {
		t.Fatalf("event over limit allowed")
	}

	// The window slides: old events expire.
	if !rl.Allow(now.Add(1100 * time.Millisecond)) {
		t.Fatalf("event after window expiry denied")
	}
}

func TestRateLimiter_DefaultsOnInvalidInputs(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	if rl.limit != rateLimitEvents || rl.window != rateLimitWindow {
		t.Fatalf("defaults not applied: limit=%d window=%v", rl.limit, rl.window)
	}
}
