package health

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/The-Noona-Project/noona-warden/pkg/types"
)

// flakyChecker fails a fixed number of times before passing
type flakyChecker struct {
	failures int32
}

func (f *flakyChecker) Check(ctx context.Context) Result {
	if atomic.AddInt32(&f.failures, -1) >= 0 {
		return Result{Healthy: false, Message: "not yet", CheckedAt: time.Now()}
	}
	return Result{Healthy: true, Message: "ok", CheckedAt: time.Now(), StatusCode: 200}
}

func (f *flakyChecker) Type() CheckType { return CheckTypeHTTP }

func TestWait_PassesAfterRetries(t *testing.T) {
	checker := &flakyChecker{failures: 2}
	cfg := Config{Interval: 10 * time.Millisecond}

	result, err := Wait(context.Background(), checker, time.Second, cfg)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if !result.Healthy {
		t.Error("Expected healthy result")
	}
	if result.StatusCode != 200 {
		t.Errorf("Expected status 200, got %d", result.StatusCode)
	}
}

func TestWait_TimesOut(t *testing.T) {
	checker := &flakyChecker{failures: 1 << 30}
	cfg := Config{Interval: 10 * time.Millisecond}

	_, err := Wait(context.Background(), checker, 50*time.Millisecond, cfg)
	if err == nil {
		t.Fatal("Expected timeout error")
	}
}

func TestForService(t *testing.T) {
	withURL := &types.ServiceDescriptor{Name: "svc", HealthURL: "http://localhost:3120/health"}
	if ForService(withURL).Type() != CheckTypeHTTP {
		t.Error("Expected HTTP checker for service with health URL")
	}

	portOnly := &types.ServiceDescriptor{Name: "svc", Port: 6379}
	checker := ForService(portOnly)
	if checker.Type() != CheckTypeTCP {
		t.Error("Expected TCP checker for port-only service")
	}
	if tcp, ok := checker.(*TCPChecker); !ok || tcp.Address != "localhost:6379" {
		t.Errorf("Unexpected TCP address: %+v", checker)
	}

	neither := &types.ServiceDescriptor{Name: "svc"}
	if ForService(neither) != nil {
		t.Error("Expected nil checker for service without health URL or port")
	}
}
