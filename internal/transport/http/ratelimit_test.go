package http

import (
	"testing"
	"time"
)

func TestRateLimiterCapsWindow(t *testing.T) {
	limiter := newRateLimiter(2)
	defer limiter.stop()

	if !limiter.allow() {
		t.Fatal("first message should be allowed")
	}
	if !limiter.allow() {
		t.Fatal("second message should be allowed")
	}
	if limiter.allow() {
		t.Fatal("third message should exceed the limit")
	}
}

func TestRateLimiterResetsAfterWindow(t *testing.T) {
	limiter := newRateLimiterWindow(1, 50*time.Millisecond)
	defer limiter.stop()

	if !limiter.allow() {
		t.Fatal("first message should be allowed")
	}
	if limiter.allow() {
		t.Fatal("second message should exceed the limit")
	}

	time.Sleep(100 * time.Millisecond)

	if !limiter.allow() {
		t.Fatal("counter should reset after the window elapses")
	}
}

func TestRateLimiterZeroDisables(t *testing.T) {
	limiter := newRateLimiter(0)
	defer limiter.stop()

	for i := 0; i < 1000; i++ {
		if !limiter.allow() {
			t.Fatalf("message %d rejected with the limit disabled", i)
		}
	}
}
