package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterBurstThenDeny(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         5,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	for i := 0; i < 5; i++ {
		if !limiter.Allow("10.0.0.1") {
			t.Errorf("request %d should be allowed (within burst)", i)
		}
	}
	if limiter.Allow("10.0.0.1") {
		t.Error("request after burst should be denied")
	}
}

func TestLimiterReplenishes(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 600, // 10 tokens/sec so the test stays fast
		BurstSize:         2,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	limiter.Allow("ip")
	limiter.Allow("ip")
	if limiter.Allow("ip") {
		t.Fatal("bucket should be empty")
	}

	time.Sleep(150 * time.Millisecond)
	if !limiter.Allow("ip") {
		t.Error("request after replenishment should be allowed")
	}
}

func TestLimiterIsolatesClients(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         3,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		limiter.Allow("client-a")
	}
	if limiter.Allow("client-a") {
		t.Error("client A should be rate limited")
	}
	if !limiter.Allow("client-b") {
		t.Error("client B should be unaffected by client A's bucket")
	}
}
