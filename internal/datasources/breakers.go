// Package datasources describes the upstream providers: identity and trust
// metadata, per-source circuit breakers, request pacing, and the shared
// sliding-window rate limit.
package datasources

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/propsignal/crosscheck/internal/domain"
)

// BreakerSettings tunes one source's circuit breaker.
type BreakerSettings struct {
	FailureThreshold uint32        // consecutive failures before the breaker opens
	RecoveryTimeout  time.Duration // open duration before a half-open probe
	SuccessThreshold uint32        // consecutive half-open successes to close
}

// DefaultBreakerSettings mirrors the shipped configuration defaults.
var DefaultBreakerSettings = BreakerSettings{
	FailureThreshold: 5,
	RecoveryTimeout:  60 * time.Second,
	SuccessThreshold: 1,
}

// StateChangeHook observes breaker transitions, for metrics and event fans.
type StateChangeHook func(source domain.DataSource, from, to gobreaker.State)

// BreakerManager keeps one circuit breaker per data source. Breakers are
// created lazily on first use so callers never register sources up front.
type BreakerManager struct {
	mu        sync.RWMutex
	breakers  map[domain.DataSource]*gobreaker.CircuitBreaker
	base      BreakerSettings
	overrides map[domain.DataSource]BreakerSettings
	onChange  StateChangeHook
}

// NewBreakerManager builds a manager with base settings, optional per-source
// overrides, and an optional transition hook. Nil maps and hooks are fine.
func NewBreakerManager(base BreakerSettings, overrides map[domain.DataSource]BreakerSettings, onChange StateChangeHook) *BreakerManager {
	return &BreakerManager{
		breakers:  make(map[domain.DataSource]*gobreaker.CircuitBreaker),
		base:      base,
		overrides: overrides,
		onChange:  onChange,
	}
}

// SettingsFor resolves the effective settings for one source.
func (m *BreakerManager) SettingsFor(source domain.DataSource) BreakerSettings {
	if s, ok := m.overrides[source]; ok {
		return s
	}
	return m.base
}

func (m *BreakerManager) breakerFor(source domain.DataSource) *gobreaker.CircuitBreaker {
	m.mu.RLock()
	cb, ok := m.breakers[source]
	m.mu.RUnlock()
	if ok {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok = m.breakers[source]; ok {
		return cb
	}

	settings := m.SettingsFor(source)
	cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(source),
		MaxRequests: settings.SuccessThreshold,
		Timeout:     settings.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("source", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			if m.onChange != nil {
				m.onChange(source, from, to)
			}
		},
	})
	m.breakers[source] = cb
	return cb
}

// Execute runs fn under the source's breaker. The fn error feeds the failure
// count; an open breaker rejects without running fn, which callers detect
// with IsUnavailable.
func (m *BreakerManager) Execute(source domain.DataSource, fn func() error) error {
	_, err := m.breakerFor(source).Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// IsUnavailable reports whether err means the breaker rejected the call
// before fn ran: the source is excluded for this call, nothing to record.
func IsUnavailable(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// State returns the source's current breaker state. Sources never seen yet
// report closed.
func (m *BreakerManager) State(source domain.DataSource) gobreaker.State {
	m.mu.RLock()
	cb, ok := m.breakers[source]
	m.mu.RUnlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

// AllOpen reports whether every given source is fully open. Used for the
// fail-fast path before any validation work starts.
func (m *BreakerManager) AllOpen(sources []domain.DataSource) bool {
	if len(sources) == 0 {
		return false
	}
	for _, s := range sources {
		if m.State(s) != gobreaker.StateOpen {
			return false
		}
	}
	return true
}

// Status snapshots every known breaker for health and status endpoints.
func (m *BreakerManager) Status() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]interface{}, len(m.breakers))
	for source, cb := range m.breakers {
		counts := cb.Counts()
		status[string(source)] = map[string]interface{}{
			"state":                cb.State().String(),
			"requests":             counts.Requests,
			"total_failures":       counts.TotalFailures,
			"consecutive_failures": counts.ConsecutiveFailures,
		}
	}
	return status
}
