package orchestrator

import (
	"time"
)

// Health is a point-in-time snapshot of the orchestrator's components,
// served at /health and /status.
type Health struct {
	Status              string                 `json:"status"` // "healthy" or "degraded"
	UptimeSeconds       float64                `json:"uptime_seconds"`
	InFlight            int64                  `json:"in_flight"`
	RateLimitUtilized   float64                `json:"rate_limit_utilization"`
	Cache               interface{}            `json:"cache,omitempty"`
	CircuitBreakers     map[string]interface{} `json:"circuit_breakers,omitempty"`
	CrossValidation     bool                   `json:"cross_validation_enabled"`
	CachingEnabled      bool                   `json:"caching_enabled"`
	TimeoutSeconds      float64                `json:"timeout_seconds"`
	MaxConcurrent       int64                  `json:"max_concurrent"`
	RequestsPerMinute   int                    `json:"max_requests_per_minute"`
	GeneratedAtUnixMill int64                  `json:"generated_at_ms"`
}

// HealthCheck snapshots the orchestrator. Degraded means the rate limiter is
// nearly exhausted or any breaker is open; both self-heal.
func (o *Orchestrator) HealthCheck() Health {
	h := Health{
		Status:              "healthy",
		InFlight:            o.inFlight.Load(),
		RateLimitUtilized:   o.limiter.Utilization(),
		CircuitBreakers:     o.breakers.Status(),
		CrossValidation:     o.cfg.CrossValidate,
		CachingEnabled:      o.cfg.CacheResults && o.cache != nil,
		TimeoutSeconds:      o.cfg.Timeout.Seconds(),
		MaxConcurrent:       o.cfg.MaxConcurrent,
		RequestsPerMinute:   o.cfg.MaxRequestsPerMinute,
		GeneratedAtUnixMill: time.Now().UnixMilli(),
	}
	if !o.started.IsZero() {
		h.UptimeSeconds = time.Since(o.started).Seconds()
	}
	if o.cache != nil {
		h.Cache = o.cache.Stats()
	}

	if h.RateLimitUtilized >= 0.9 {
		h.Status = "degraded"
	}
	for _, v := range h.CircuitBreakers {
		if m, ok := v.(map[string]interface{}); ok {
			if state, ok := m["state"].(string); ok && state == "open" {
				h.Status = "degraded"
			}
		}
	}
	return h
}
