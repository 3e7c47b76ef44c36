package health

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPChecker probes a service by completing a TCP handshake against
// its published port. It is the fallback for services that expose a
// port but no HTTP health endpoint, where an accepted connection is
// the strongest signal available.
type TCPChecker struct {
	// Address is the host:port to dial, e.g. "localhost:6379"
	Address string

	// Timeout bounds the dial attempt
	Timeout time.Duration
}

// NewTCPChecker creates a TCP checker for the given address
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{
		Address: address,
		Timeout: DefaultConfig().Timeout,
	}
}

// WithTimeout sets the dial timeout
func (t *TCPChecker) WithTimeout(timeout time.Duration) *TCPChecker {
	t.Timeout = timeout
	return t
}

// Check dials the address once. StatusCode stays zero: there is no
// protocol exchange to report.
func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	dialer := net.Dialer{Timeout: t.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("dial %s: %v", t.Address, err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
	_ = conn.Close()

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("port open at %s", t.Address),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the health check type
func (t *TCPChecker) Type() CheckType {
	return CheckTypeTCP
}
