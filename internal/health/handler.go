// Package health serves the liveness endpoint. Each registered dependency
// is pinged on every request and reported by name.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// DefaultTimeout bounds each dependency ping.
const DefaultTimeout = 2 * time.Second

// Check pings one dependency of the service.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Report is the response body.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewHandler returns a handler reporting "ok" with 200 when every check
// passes and "degraded" with 503 otherwise. Failing checks report their
// error text.
func NewHandler(timeout time.Duration, checks ...Check) http.HandlerFunc {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return func(w http.ResponseWriter, r *http.Request) {
		report := Report{Status: "ok"}
		code := http.StatusOK
		if len(checks) > 0 {
			report.Checks = make(map[string]string, len(checks))
		}
		for _, c := range checks {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			err := c.Ping(ctx)
			cancel()
			if err != nil {
				report.Checks[c.Name] = err.Error()
				report.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			report.Checks[c.Name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(report)
	}
}
