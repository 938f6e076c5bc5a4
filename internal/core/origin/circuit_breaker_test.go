package origin

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := newCircuitBreaker(3, time.Minute, zap.NewNop())
	host := "origin.example.com"
	testErr := errors.New("boom")

	for i := 0; i < 2; i++ {
		cb.recordFailure(host, testErr)
		if err := cb.canAttempt(host); err != nil {
			t.Fatalf("failure %d: expected closed circuit, got %v", i+1, err)
		}
	}
	cb.recordFailure(host, testErr)
	if err := cb.canAttempt(host); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Now()
	cb := newCircuitBreaker(1, time.Minute, zap.NewNop())
	cb.now = func() time.Time { return now }
	host := "origin.example.com"

	cb.recordFailure(host, errors.New("boom"))
	if err := cb.canAttempt(host); err == nil {
		t.Fatal("expected open circuit")
	}

	now = now.Add(2 * time.Minute)
	if err := cb.canAttempt(host); err != nil {
		t.Fatalf("expected half-open trial, got %v", err)
	}
	if cb.state[host] != stateHalfOpen {
		t.Fatalf("expected half-open, got %s", cb.state[host])
	}

	cb.recordSuccess(host)
	if cb.state[host] != stateClosed {
		t.Fatalf("expected closed, got %s", cb.state[host])
	}
	if cb.failures[host] != 0 {
		t.Errorf("expected failures reset, got %d", cb.failures[host])
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := newCircuitBreaker(3, time.Minute, zap.NewNop())
	cb.now = func() time.Time { return now }
	host := "origin.example.com"

	for i := 0; i < 3; i++ {
		cb.recordFailure(host, errors.New("boom"))
	}
	now = now.Add(2 * time.Minute)
	if err := cb.canAttempt(host); err != nil {
		t.Fatalf("expected half-open trial, got %v", err)
	}

	cb.recordFailure(host, errors.New("still down"))
	if err := cb.canAttempt(host); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected reopened circuit, got %v", err)
	}
}

func TestCircuitBreaker_IsolatesHosts(t *testing.T) {
	cb := newCircuitBreaker(1, time.Minute, zap.NewNop())
	cb.recordFailure("a.example.com", errors.New("boom"))

	if err := cb.canAttempt("a.example.com"); err == nil {
		t.Error("expected a.example.com open")
	}
	if err := cb.canAttempt("b.example.com"); err != nil {
		t.Errorf("expected b.example.com closed, got %v", err)
	}
}
