package health

import (
	"context"
	"fmt"
	"time"

	"github.com/The-Noona-Project/noona-warden/pkg/types"
)

// DefaultWaitTimeout bounds how long Wait polls a freshly started
// service before giving up.
const DefaultWaitTimeout = 90 * time.Second

// ForService builds the appropriate checker for a catalog descriptor:
// an HTTP checker when a health URL is declared, a TCP checker against
// the published port otherwise. Services without either return nil and
// are considered ready as soon as their container runs.
func ForService(d *types.ServiceDescriptor) Checker {
	if d.HealthURL != "" {
		return NewHTTPChecker(d.HealthURL)
	}
	if d.Port > 0 {
		return NewTCPChecker(fmt.Sprintf("localhost:%d", d.Port))
	}
	return nil
}

// Wait polls the checker until it reports healthy, the timeout elapses
// or the context is cancelled. It returns the last observed result; the
// error is non-nil only when the deadline passed without a success.
func Wait(ctx context.Context, checker Checker, timeout time.Duration, config Config) (Result, error) {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	status := NewStatus()
	ticker := time.NewTicker(config.Interval)
	defer ticker.Stop()

	for {
		result := checker.Check(ctx)
		status.Update(result, config)
		if result.Healthy {
			return result, nil
		}

		select {
		case <-ctx.Done():
			return status.LastResult, fmt.Errorf("health check did not pass within %s: %s",
				timeout, status.LastResult.Message)
		case <-ticker.C:
		}
	}
}
