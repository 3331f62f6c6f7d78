package datasources

import (
	"sync"
	"testing"
	"time"
)

func TestLimiterAllowsUpToLimit(t *testing.T) {
	l := NewSlidingWindowLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("request %d should be admitted", i+1)
		}
	}
	if l.Allow() {
		t.Error("request beyond the limit must be rejected")
	}
	if got := l.InWindow(); got != 3 {
		t.Errorf("expected 3 requests in window, got %d", got)
	}
}

func TestLimiterRejectionDoesNotConsumeWindow(t *testing.T) {
	l := NewSlidingWindowLimiter(1, time.Hour)

	l.Allow()
	for i := 0; i < 5; i++ {
		l.Allow()
	}
	if got := l.InWindow(); got != 1 {
		t.Errorf("rejected requests must not occupy the window, got %d", got)
	}
}

func TestLimiterWindowSlides(t *testing.T) {
	l := NewSlidingWindowLimiter(2, 50*time.Millisecond)

	l.Allow()
	l.Allow()
	if l.Allow() {
		t.Fatal("window full, request should be rejected")
	}

	time.Sleep(80 * time.Millisecond)

	if !l.Allow() {
		t.Error("request should be admitted after the window slides")
	}
}

func TestLimiterUtilization(t *testing.T) {
	l := NewSlidingWindowLimiter(4, time.Hour)

	l.Allow()
	l.Allow()

	if got := l.Utilization(); got != 0.5 {
		t.Errorf("expected utilization 0.5, got %v", got)
	}
}

func TestLimiterConcurrentAdmitsExactlyLimit(t *testing.T) {
	l := NewSlidingWindowLimiter(10, time.Hour)

	var wg sync.WaitGroup
	results := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- l.Allow()
		}()
	}
	wg.Wait()
	close(results)

	admitted := 0
	for ok := range results {
		if ok {
			admitted++
		}
	}
	if admitted != 10 {
		t.Errorf("expected exactly 10 admitted under contention, got %d", admitted)
	}
}
