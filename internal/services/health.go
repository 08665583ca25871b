package services

import (
	"context"
	"time"
)

// Pinger checks a dependency
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

// Ping calls f(ctx)
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthResult reports dependency status
type HealthResult struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthService implements the liveness and readiness probes
type HealthService struct {
	checks map[string]Pinger
}

// NewHealthService creates a health service over named dependencies
func NewHealthService(checks map[string]Pinger) *HealthService {
	return &HealthService{checks: checks}
}

// Healthz implements the liveness probe
func (h *HealthService) Healthz(ctx context.Context) (*HealthResult, error) {
	return &HealthResult{Status: "ok"}, nil
}

// Readyz pings every dependency. Any failure makes the service unavailable.
func (h *HealthService) Readyz(ctx context.Context) (*HealthResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res := &HealthResult{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			res.Checks[name] = err.Error()
			res.Status = "degraded"
			continue
		}
		res.Checks[name] = "ok"
	}
	if res.Status != "ok" {
		return res, unavailable("dependencies unavailable")
	}
	return res, nil
}
