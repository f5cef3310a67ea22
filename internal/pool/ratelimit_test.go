package pool

import (
	"testing"
	"time"
)

func TestTokenBucketAllowsBurstThenThrottles(t *testing.T) {
	var b tokenBucket
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !b.allow(now, 1, 3, 1) {
			t.Fatalf("expected burst capacity to allow request %d", i)
		}
	}
	if b.allow(now, 1, 3, 1) {
		t.Fatalf("expected bucket to be empty after spending the burst")
	}

	if !b.allow(now.Add(2*time.Second), 1, 3, 1) {
		t.Fatalf("expected refill after 2s at rate 1/s to allow another request")
	}
}

func TestLimiterKeysByHost(t *testing.T) {
	l := newLimiter(0, 1, 1)
	now := time.Now()

	if !l.allow("10.0.0.1", now) {
		t.Fatalf("first request from a host should be allowed")
	}
	if l.allow("10.0.0.1", now) {
		t.Fatalf("second immediate request from the same host should be throttled")
	}
	if !l.allow("10.0.0.2", now) {
		t.Fatalf("a different host should have its own bucket")
	}
}
