package engine

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/The-Noona-Project/noona-warden/pkg/errdefs"
	"github.com/The-Noona-Project/noona-warden/pkg/health"
	"github.com/The-Noona-Project/noona-warden/pkg/history"
	"github.com/The-Noona-Project/noona-warden/pkg/log"
	"github.com/The-Noona-Project/noona-warden/pkg/metrics"
	"github.com/The-Noona-Project/noona-warden/pkg/runtime"
	"github.com/The-Noona-Project/noona-warden/pkg/types"
)

// NetworkName is the shared bridge network every Noona container joins.
const NetworkName = "noona-network"

// Engine starts and stops individual services against the container
// runtime, recording every lifecycle event in the history store.
type Engine struct {
	rt       runtime.API
	history  *history.Store
	resolver *runtime.Resolver
	logger   zerolog.Logger

	healthTimeout time.Duration
	healthConfig  health.Config
	selfContainer string

	mu           sync.Mutex
	tracked      map[string]trackedContainer
	networkReady bool
}

type trackedContainer struct {
	id     string
	cancel context.CancelFunc
}

// Options configures an Engine
type Options struct {
	Runtime runtime.API
	History *history.Store

	// Resolver is used for cross-endpoint mount discovery; optional
	Resolver *runtime.Resolver

	// HealthTimeout bounds the post-start readiness wait
	HealthTimeout time.Duration

	// SelfContainer is the container Warden itself runs in, attached to
	// the service network at first boot. Defaults to the hostname, which
	// inside a container is its ID.
	SelfContainer string
}

// New creates an Engine
func New(opts Options) *Engine {
	self := opts.SelfContainer
	if self == "" {
		self, _ = os.Hostname()
	}
	timeout := opts.HealthTimeout
	if timeout <= 0 {
		timeout = health.DefaultWaitTimeout
	}
	return &Engine{
		rt:            opts.Runtime,
		history:       opts.History,
		resolver:      opts.Resolver,
		logger:        log.WithComponent("engine"),
		healthTimeout: timeout,
		healthConfig:  health.DefaultConfig(),
		selfContainer: self,
		tracked:       make(map[string]trackedContainer),
	}
}

// Start brings one service up: pull, network, create, start, log
// attach, health wait. Starting an already-running service records a
// running status and returns immediately.
func (e *Engine) Start(ctx context.Context, desc *types.ServiceDescriptor, envOverrides map[string]string) error {
	name := desc.Name
	logger := e.logger.With().Str("service", name).Logger()

	exists, err := e.rt.ContainerExists(ctx, name)
	if err != nil {
		return errdefs.Runtime("failed to check container state", err)
	}
	if exists {
		logger.Info().Msg("container already running, skipping start")
		e.history.Status(name, types.StatusRunning, "already running")
		return nil
	}

	e.history.Status(name, types.StatusPulling, "pulling "+desc.Image)
	err = e.rt.PullImage(ctx, desc.Image, func(p types.PullProgress) {
		e.history.Progress(name, p)
		if p.Current > 0 {
			metrics.ImagePullBytes.WithLabelValues(name).Add(float64(p.Current))
		}
	})
	if err != nil {
		e.history.Status(name, types.StatusError, "pull failed: "+err.Error())
		return errdefs.StartFailed(name, errdefs.StagePull, err)
	}

	if err := e.ensureNetwork(ctx); err != nil {
		logger.Warn().Err(err).Msg("network setup failed, starting without shared network")
	}

	spec, detection := e.buildRunSpec(ctx, desc, envOverrides)

	e.history.Status(name, types.StatusStarting, "creating container")
	id, err := e.rt.RunContainer(ctx, spec)
	if err != nil {
		e.history.Status(name, types.StatusError, "start failed: "+err.Error())
		return errdefs.StartFailed(name, errdefs.StageRun, err)
	}

	e.track(name, id)
	e.history.Status(name, types.StatusRunning, "container started")
	logger.Info().Str("container_id", id).Msg("container started")

	if detection != nil && detection.MountPath == nil {
		logger.Info().Msg("no external library mount detected, service starts without it")
	}

	if checker := health.ForService(desc); checker != nil {
		result, err := health.Wait(ctx, checker, e.healthTimeout, e.healthConfig)
		e.history.Test(name, types.ProbeResult{
			URL:        desc.HealthURL,
			Success:    result.Healthy,
			StatusCode: result.StatusCode,
		})
		if err != nil {
			e.history.Status(name, types.StatusError, "health check timed out")
			return errdefs.StartFailed(name, errdefs.StageHealth,
				&errdefs.HealthTimeout{Service: name, URL: desc.HealthURL})
		}
		e.history.Status(name, types.StatusReady, "health check passed")
	} else {
		e.history.Status(name, types.StatusReady, "no health check configured")
	}
	return nil
}

// track records the container in the tracked set and spawns its log
// reader with a lifetime bound to tracked-set membership
func (e *Engine) track(name, id string) {
	readerCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	if prev, ok := e.tracked[name]; ok {
		prev.cancel()
	}
	e.tracked[name] = trackedContainer{id: id, cancel: cancel}
	e.mu.Unlock()

	go e.readLogs(readerCtx, name, id)
}

// ensureNetwork creates the shared network once and attaches Warden's
// own container to it
func (e *Engine) ensureNetwork(ctx context.Context) error {
	e.mu.Lock()
	ready := e.networkReady
	e.mu.Unlock()
	if ready {
		return nil
	}

	if err := e.rt.EnsureNetwork(ctx, NetworkName); err != nil {
		return err
	}
	if e.selfContainer != "" {
		if err := e.rt.ConnectToNetwork(ctx, NetworkName, e.selfContainer); err != nil {
			e.logger.Debug().Err(err).Msg("could not attach own container to service network")
		}
	}

	e.mu.Lock()
	e.networkReady = true
	e.mu.Unlock()
	return nil
}

// buildRunSpec merges descriptor defaults with caller overrides and,
// for mount-detecting services, the discovered external library mount
func (e *Engine) buildRunSpec(ctx context.Context, desc *types.ServiceDescriptor, overrides map[string]string) (runtime.RunSpec, *types.MountDetection) {
	env := make(map[string]string, len(desc.Env)+len(overrides))
	for _, kv := range desc.Env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	for k, v := range overrides {
		env[k] = v
	}

	// Services authenticate against the vault with a token provisioned
	// through Warden's own environment, e.g. NOONA_RAVEN_VAULT_TOKEN.
	if token := os.Getenv(serviceEnvPrefix(desc.Name) + "_VAULT_TOKEN"); token != "" {
		env["VAULT_TOKEN"] = token
	}

	spec := runtime.RunSpec{
		Name:    desc.Name,
		Image:   desc.Image,
		Binds:   append([]string(nil), desc.Volumes...),
		Network: NetworkName,
		Labels:  map[string]string{"com.noona.managed": "true"},
	}
	if desc.Port > 0 {
		spec.Ports = []runtime.PortBinding{{HostPort: desc.Port, ContainerPort: desc.Port}}
	}

	var detection *types.MountDetection
	if desc.DetectMount {
		detection = e.DetectMount(ctx, desc.Name)
		target := desc.MountTarget
		if target == "" {
			target = DefaultMountTarget
		}
		if detection.MountPath != nil {
			spec.Binds = append(spec.Binds, fmt.Sprintf("%s:%s", *detection.MountPath, target))
			env["APPDATA"] = target
			env["KAVITA_DATA_MOUNT"] = target
		}
	}

	for k, v := range env {
		spec.Env = append(spec.Env, k+"="+v)
	}
	return spec, detection
}

// Stop stops and removes one tracked service, cancelling its log reader
func (e *Engine) Stop(ctx context.Context, name string) error {
	e.mu.Lock()
	tc, ok := e.tracked[name]
	if ok {
		tc.cancel()
		delete(e.tracked, name)
	}
	e.mu.Unlock()

	target := name
	if ok {
		target = tc.id
	}
	if err := e.rt.StopContainer(ctx, target); err != nil {
		return errdefs.Runtime("failed to stop "+name, err)
	}
	if err := e.rt.RemoveContainer(ctx, target); err != nil {
		return errdefs.Runtime("failed to remove "+name, err)
	}
	return nil
}

// ShutdownAll cancels every log reader and stops and removes every
// tracked container, then clears the set
func (e *Engine) ShutdownAll(ctx context.Context) {
	e.mu.Lock()
	tracked := e.tracked
	e.tracked = make(map[string]trackedContainer)
	e.mu.Unlock()

	for name, tc := range tracked {
		tc.cancel()
		if err := e.rt.StopContainer(ctx, tc.id); err != nil {
			e.logger.Warn().Err(err).Str("service", name).Msg("failed to stop container during shutdown")
			continue
		}
		if err := e.rt.RemoveContainer(ctx, tc.id); err != nil {
			e.logger.Warn().Err(err).Str("service", name).Msg("failed to remove container during shutdown")
		}
	}
}

// Tracked returns the names of services started by this engine
func (e *Engine) Tracked() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.tracked))
	for name := range e.tracked {
		out = append(out, name)
	}
	return out
}

// serviceEnvPrefix maps a service name to its environment prefix:
// noona-raven → NOONA_RAVEN
func serviceEnvPrefix(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}
