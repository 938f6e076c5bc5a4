package origin

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// circuitState represents the state of a circuit breaker.
type circuitState int

const (
	stateClosed   circuitState = iota // Normal operation
	stateOpen                         // Host is failing
	stateHalfOpen                     // Testing if host recovered
)

func (s circuitState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// circuitBreaker tracks consecutive failures per origin host and stops calling a
// host that keeps failing. Only transport errors and 5xx count; a 404 is an answer.
type circuitBreaker struct {
	mu               sync.Mutex
	failures         map[string]int
	lastFailure      map[string]time.Time
	state            map[string]circuitState
	lastStateLog     map[string]time.Time
	failureThreshold int
	openDuration     time.Duration
	now              func() time.Time
	logger           *zap.Logger
}

func newCircuitBreaker(threshold int, openDuration time.Duration, logger *zap.Logger) *circuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if openDuration <= 0 {
		openDuration = 30 * time.Second
	}
	return &circuitBreaker{
		failures:         make(map[string]int),
		lastFailure:      make(map[string]time.Time),
		state:            make(map[string]circuitState),
		lastStateLog:     make(map[string]time.Time),
		failureThreshold: threshold,
		openDuration:     openDuration,
		now:              time.Now,
		logger:           logger,
	}
}

// canAttempt reports whether host may be called. An open circuit moves to half-open
// once openDuration has passed, letting one trial request through.
func (cb *circuitBreaker) canAttempt(host string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state[host] {
	case stateOpen:
		lastFail := cb.lastFailure[host]
		if cb.now().Sub(lastFail) > cb.openDuration {
			cb.state[host] = stateHalfOpen
			cb.logStateChange(host, stateHalfOpen)
			return nil
		}
		return fmt.Errorf("%w for %s (failures: %d, next retry: %s)",
			ErrCircuitOpen, host, cb.failures[host],
			lastFail.Add(cb.openDuration).Format("15:04:05"))
	default:
		return nil
	}
}

func (cb *circuitBreaker) recordSuccess(host string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	old := cb.state[host]
	delete(cb.failures, host)
	delete(cb.lastFailure, host)
	delete(cb.state, host)
	if old != stateClosed {
		cb.logStateChange(host, stateClosed)
	}
}

func (cb *circuitBreaker) recordFailure(host string, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures[host]++
	cb.lastFailure[host] = cb.now()
	count := cb.failures[host]

	// A failed half-open trial reopens immediately.
	if count >= cb.failureThreshold || cb.state[host] == stateHalfOpen {
		if cb.state[host] != stateOpen {
			cb.state[host] = stateOpen
			cb.logger.Warn("[ORIGIN-CIRCUIT] opening circuit",
				zap.String("host", host),
				zap.Int("consecutive_failures", count),
				zap.Error(err),
			)
			cb.lastStateLog[host] = cb.now()
		}
		return
	}
	cb.logger.Debug("[ORIGIN-CIRCUIT] origin failure",
		zap.String("host", host),
		zap.Int("failures", count),
		zap.Int("threshold", cb.failureThreshold),
		zap.Error(err),
	)
}

// logStateChange is debounced to one line per host per minute. Caller holds mu.
func (cb *circuitBreaker) logStateChange(host string, newState circuitState) {
	if last, ok := cb.lastStateLog[host]; ok && cb.now().Sub(last) < time.Minute {
		return
	}
	cb.logger.Info("[ORIGIN-CIRCUIT] circuit state changed",
		zap.String("host", host),
		zap.Stringer("state", newState),
	)
	cb.lastStateLog[host] = cb.now()
}
