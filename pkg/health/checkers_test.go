package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPChecker_StatusCodes(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		wantHealthy bool
	}{
		{"ok", http.StatusOK, true},
		{"redirect is healthy", http.StatusFound, true},
		{"server error", http.StatusInternalServerError, false},
		{"not found", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			result := NewHTTPChecker(srv.URL).Check(context.Background())
			assert.Equal(t, tt.wantHealthy, result.Healthy, result.Message)
			assert.Equal(t, tt.status, result.StatusCode, "probe result carries the response status")
			assert.Equal(t, CheckTypeHTTP, NewHTTPChecker(srv.URL).Type())
		})
	}
}

func TestHTTPChecker_CustomStatusRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	result := NewHTTPChecker(srv.URL).WithStatusRange(418, 418).Check(context.Background())
	assert.True(t, result.Healthy)
	assert.Equal(t, http.StatusTeapot, result.StatusCode)
}

func TestHTTPChecker_SendsConfiguredHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer vault-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	checker := NewHTTPChecker(srv.URL).WithHeader("Authorization", "Bearer vault-token")
	result := checker.Check(context.Background())
	require.True(t, result.Healthy, result.Message)
}

func TestHTTPChecker_UnreachableEndpoint(t *testing.T) {
	result := NewHTTPChecker("http://127.0.0.1:1/health").
		WithTimeout(100 * time.Millisecond).
		Check(context.Background())

	assert.False(t, result.Healthy)
	assert.Zero(t, result.StatusCode, "no response, no status")
	assert.NotEmpty(t, result.Message)
}

func TestHTTPChecker_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := NewHTTPChecker(srv.URL).Check(ctx)
	assert.False(t, result.Healthy)
}

func TestTCPChecker_OpenPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	checker := NewTCPChecker(ln.Addr().String())
	result := checker.Check(context.Background())

	assert.True(t, result.Healthy, result.Message)
	assert.Zero(t, result.StatusCode, "a raw connect carries no status")
	assert.Equal(t, CheckTypeTCP, checker.Type())
}

func TestTCPChecker_RefusedConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	result := NewTCPChecker(addr).WithTimeout(200 * time.Millisecond).Check(context.Background())
	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "dial")
}

func TestTCPChecker_DefaultTimeout(t *testing.T) {
	checker := NewTCPChecker("localhost:6379")
	assert.Equal(t, DefaultConfig().Timeout, checker.Timeout)
}
