package circuitbreaker

import (
	"testing"
	"time"
)

const hook = "https://hooks.example.com/coinledger"

func TestBreaker_AllowWhenClosed(t *testing.T) {
	b := New(3, 100*time.Millisecond)
	if !b.Allow(hook) {
		t.Fatal("expected closed circuit to allow")
	}
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := New(3, 100*time.Millisecond)

	b.RecordFailure(hook)
	b.RecordFailure(hook)
	if !b.Allow(hook) {
		t.Fatal("should still allow below threshold")
	}

	b.RecordFailure(hook)
	if b.Allow(hook) {
		t.Fatal("should be open after 3 failures")
	}
	if b.State(hook) != StateOpen {
		t.Fatalf("expected StateOpen, got %v", b.State(hook))
	}
}

func TestBreaker_OpenToHalfOpenAfterDuration(t *testing.T) {
	b := New(2, 50*time.Millisecond)

	b.RecordFailure(hook)
	b.RecordFailure(hook)
	if b.Allow(hook) {
		t.Fatal("should be open")
	}

	time.Sleep(60 * time.Millisecond)

	if !b.Allow(hook) {
		t.Fatal("should allow probe in half-open")
	}
	if b.State(hook) != StateHalfOpen {
		t.Fatalf("expected StateHalfOpen, got %v", b.State(hook))
	}

	// Only one probe at a time.
	if b.Allow(hook) {
		t.Fatal("should reject second call while probing")
	}
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b := New(2, 50*time.Millisecond)

	b.RecordFailure(hook)
	b.RecordFailure(hook)
	time.Sleep(60 * time.Millisecond)
	b.Allow(hook)

	b.RecordSuccess(hook)
	if b.State(hook) != StateClosed {
		t.Fatalf("expected StateClosed after probe success, got %v", b.State(hook))
	}
	if !b.Allow(hook) {
		t.Fatal("should allow after recovery")
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New(2, 50*time.Millisecond)

	b.RecordFailure(hook)
	b.RecordFailure(hook)
	time.Sleep(60 * time.Millisecond)
	b.Allow(hook)

	b.RecordFailure(hook)
	if b.State(hook) != StateOpen {
		t.Fatalf("expected StateOpen after probe failure, got %v", b.State(hook))
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := New(3, 100*time.Millisecond)

	b.RecordFailure(hook)
	b.RecordFailure(hook)
	b.RecordSuccess(hook)

	b.RecordFailure(hook)
	if !b.Allow(hook) {
		t.Fatal("should still be closed after the count reset")
	}
}

func TestBreaker_IndependentKeys(t *testing.T) {
	b := New(2, 100*time.Millisecond)

	b.RecordFailure(hook)
	b.RecordFailure(hook)

	if b.Allow(hook) {
		t.Fatal("tripped endpoint should be open")
	}
	if !b.Allow("https://other.example.com/hook") {
		t.Fatal("other endpoint should be unaffected")
	}
}

func TestBreaker_UnknownKeyIsClosed(t *testing.T) {
	b := New(2, 100*time.Millisecond)
	if b.State("unknown") != StateClosed {
		t.Fatalf("expected StateClosed for unknown key, got %v", b.State("unknown"))
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
