package runtime

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/docker/docker/client"

	"github.com/The-Noona-Project/noona-warden/pkg/log"
)

const defaultProbeTimeout = 10 * time.Second

// Attempt records one failed candidate endpoint probe
type Attempt struct {
	Endpoint string
	Err      error
}

// UnavailableError is returned when no candidate endpoint answered
type UnavailableError struct {
	Attempts []Attempt
}

func (e *UnavailableError) Error() string {
	var sb strings.Builder
	sb.WriteString("container runtime unavailable")
	for _, a := range e.Attempts {
		fmt.Fprintf(&sb, "; %s: %v", a.Endpoint, a.Err)
	}
	return sb.String()
}

// Options configures endpoint resolution
type Options struct {
	// Endpoints are caller-provided candidates, tried before anything else
	Endpoints []string

	// ProbeTimeout bounds each candidate's ping (default 10s)
	ProbeTimeout time.Duration
}

// connectFunc dials one endpoint. Swapped out in tests.
type connectFunc func(endpoint string) (API, error)

// Resolver locates a working container runtime by probing candidate
// endpoints in priority order
type Resolver struct {
	opts    Options
	connect connectFunc
}

// NewResolver creates a resolver with the given options
func NewResolver(opts Options) *Resolver {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	return &Resolver{opts: opts, connect: dockerConnect}
}

// Resolve probes candidates in order and returns the first client whose
// ping succeeds. All failures are collected into an UnavailableError.
func (r *Resolver) Resolve(ctx context.Context) (API, error) {
	logger := log.WithComponent("runtime-resolver")

	var attempts []Attempt
	for _, candidate := range r.Candidates() {
		endpoint, err := normalizeEndpoint(candidate)
		if err != nil {
			attempts = append(attempts, Attempt{Endpoint: candidate, Err: err})
			continue
		}

		api, err := r.probe(ctx, endpoint)
		if err != nil {
			logger.Warn().Str("endpoint", endpoint).Err(err).Msg("runtime endpoint unreachable")
			attempts = append(attempts, Attempt{Endpoint: endpoint, Err: err})
			continue
		}

		logger.Info().Str("endpoint", endpoint).Msg("connected to container runtime")
		return api, nil
	}

	return nil, &UnavailableError{Attempts: attempts}
}

// ResolveAll returns a client for every candidate endpoint that answers
// a ping. Used by mount discovery, which must look at all reachable
// runtimes rather than just the primary one.
func (r *Resolver) ResolveAll(ctx context.Context) []API {
	var clients []API
	for _, candidate := range r.Candidates() {
		endpoint, err := normalizeEndpoint(candidate)
		if err != nil {
			continue
		}
		api, err := r.probe(ctx, endpoint)
		if err != nil {
			continue
		}
		clients = append(clients, api)
	}
	return clients
}

func (r *Resolver) probe(ctx context.Context, endpoint string) (API, error) {
	api, err := r.connect(endpoint)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, r.opts.ProbeTimeout)
	defer cancel()

	if err := api.Ping(pingCtx); err != nil {
		_ = api.Close()
		return nil, err
	}
	return api, nil
}

// Candidates enumerates endpoints in priority order: caller-provided,
// platform defaults, DOCKER_HOST, then platform alternatives.
// Duplicates are dropped.
func (r *Resolver) Candidates() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(eps ...string) {
		for _, ep := range eps {
			if ep == "" || seen[ep] {
				continue
			}
			seen[ep] = true
			out = append(out, ep)
		}
	}

	add(r.opts.Endpoints...)
	add(defaultEndpoints()...)
	add(os.Getenv("DOCKER_HOST"))
	add(alternativeEndpoints()...)
	return out
}

// Resolve is a convenience wrapper around a one-shot resolver
func Resolve(ctx context.Context, opts Options) (API, error) {
	return NewResolver(opts).Resolve(ctx)
}

// normalizeEndpoint validates a candidate and gives it a scheme the
// Docker client accepts. Named pipes are never stat-checked.
func normalizeEndpoint(candidate string) (string, error) {
	switch {
	case strings.HasPrefix(candidate, "npipe://"):
		return candidate, nil
	case strings.HasPrefix(candidate, "tcp://"),
		strings.HasPrefix(candidate, "http://"),
		strings.HasPrefix(candidate, "https://"):
		return candidate, nil
	case strings.HasPrefix(candidate, "unix://"):
		if err := checkSocket(strings.TrimPrefix(candidate, "unix://")); err != nil {
			return "", err
		}
		return candidate, nil
	default:
		// Bare filesystem path.
		if err := checkSocket(candidate); err != nil {
			return "", err
		}
		return "unix://" + candidate, nil
	}
}

// checkSocket verifies the path exists and is a unix socket
func checkSocket(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%s is not a socket", path)
	}
	return nil
}

// dockerConnect dials the Docker API at the given endpoint
func dockerConnect(endpoint string) (API, error) {
	cli, err := client.NewClientWithOpts(
		client.WithHost(endpoint),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime client for %s: %w", endpoint, err)
	}
	return NewClient(cli, endpoint), nil
}
