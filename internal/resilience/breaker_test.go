package resilience

import (
	"errors"
	"testing"
	"time"

	"holograph/internal/metrics"
)

func testBreaker(t *testing.T) (*Breaker, *time.Time) {
	t.Helper()
	now := time.Now()
	b := NewBreaker("test", DefaultBreakerConfig(), metrics.NewRegistry())
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensOnNthFailure(t *testing.T) {
	b, _ := testBreaker(t)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		if b.State() != StateClosed {
			t.Fatalf("opened after %d failures, want threshold 5", i+1)
		}
	}
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatal("expected open after 5th consecutive failure")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b, _ := testBreaker(t)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	b.RecordSuccess()
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	if b.State() != StateClosed {
		t.Fatal("success should have reset the consecutive failure count")
	}
}

func TestBreakerOpenRejectsWithoutInvoking(t *testing.T) {
	b, _ := testBreaker(t)
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}

	invoked := false
	err := b.Call(func() error {
		invoked = true
		return nil
	})
	if !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("expected ErrBreakerOpen, got %v", err)
	}
	if invoked {
		t.Fatal("protected function must not run while open")
	}
}

func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	b, now := testBreaker(t)
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}

	*now = now.Add(59 * time.Second)
	if b.State() != StateOpen {
		t.Fatal("cooldown not yet elapsed")
	}

	*now = now.Add(1 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatal("expected half-open exactly at cooldown boundary")
	}
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	b, now := testBreaker(t)
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	*now = now.Add(61 * time.Second)

	if !b.CanExecute() {
		t.Fatal("first caller should be admitted as the probe")
	}
	if b.CanExecute() {
		t.Fatal("second caller must wait while the probe is in flight")
	}
}

func TestBreakerClosesAfterTwoHalfOpenSuccesses(t *testing.T) {
	b, now := testBreaker(t)
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	*now = now.Add(61 * time.Second)

	for i := 0; i < 2; i++ {
		if !b.CanExecute() {
			t.Fatalf("probe %d not admitted", i+1)
		}
		b.RecordSuccess()
	}
	if b.State() != StateClosed {
		t.Fatal("expected closed after success threshold in half-open")
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, now := testBreaker(t)
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	*now = now.Add(61 * time.Second)

	if !b.CanExecute() {
		t.Fatal("probe not admitted")
	}
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatal("half-open failure must reopen immediately")
	}

	// The fresh opened_at restarts the cooldown.
	*now = now.Add(30 * time.Second)
	if b.State() != StateOpen {
		t.Fatal("cooldown should have restarted on reopen")
	}
}

func TestBreakerCallPropagatesResult(t *testing.T) {
	b, _ := testBreaker(t)

	sentinel := errors.New("backend down")
	if err := b.Call(func() error { return sentinel }); !errors.Is(err, sentinel) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if err := b.Call(func() error { return nil }); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestBreakerReset(t *testing.T) {
	b, _ := testBreaker(t)
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	b.Reset()
	if b.State() != StateClosed {
		t.Fatal("reset should close the breaker")
	}
}

func TestBreakerRegistry(t *testing.T) {
	reg := NewBreakerRegistry(DefaultBreakerConfig(), metrics.NewRegistry())

	a := reg.Get("primary-vector")
	if reg.Get("primary-vector") != a {
		t.Fatal("expected the same breaker instance per name")
	}

	for i := 0; i < 5; i++ {
		a.RecordFailure()
	}
	if !reg.AnyOpen() {
		t.Fatal("expected AnyOpen after tripping a breaker")
	}
	states := reg.States()
	if states["primary-vector"] != "open" {
		t.Fatalf("states: %v", states)
	}
}
