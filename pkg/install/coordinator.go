package install

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/The-Noona-Project/noona-warden/pkg/catalog"
	"github.com/The-Noona-Project/noona-warden/pkg/engine"
	"github.com/The-Noona-Project/noona-warden/pkg/errdefs"
	"github.com/The-Noona-Project/noona-warden/pkg/history"
	"github.com/The-Noona-Project/noona-warden/pkg/log"
	"github.com/The-Noona-Project/noona-warden/pkg/metrics"
	"github.com/The-Noona-Project/noona-warden/pkg/runtime"
	"github.com/The-Noona-Project/noona-warden/pkg/types"
)

// WizardPublisher is the uni-directional push surface the coordinator
// uses to mirror install transitions into wizard step state. Publish
// failures are logged and never abort an install.
type WizardPublisher interface {
	BeginInstall(ctx context.Context, participating map[types.StepKey]bool) (*types.WizardState, error)
	SetStepStatus(ctx context.Context, step types.StepKey, status types.StepStatus, detail string) (*types.WizardState, error)
	CompleteInstall(ctx context.Context, hasErrors bool) (*types.WizardState, error)
}

// Coordinator drives whole installation runs: closure expansion,
// per-service starts via the engine, history and wizard mirroring.
// Runs are serialized; a second caller gets a conflict immediately.
type Coordinator struct {
	catalog *catalog.Catalog
	engine  *engine.Engine
	history *history.Store
	runtime runtime.API
	wizard  WizardPublisher
	logger  zerolog.Logger

	runMu sync.Mutex // held for the duration of one install run

	mu       sync.Mutex // guards the progress snapshot below
	phase    types.InstallPhase
	order    []string
	states   map[string]types.InstallState
	failures map[string]string
}

// Options configures a Coordinator
type Options struct {
	Catalog *catalog.Catalog
	Engine  *engine.Engine
	History *history.Store
	Runtime runtime.API
	Wizard  WizardPublisher // optional
}

// NewCoordinator creates a Coordinator
func NewCoordinator(opts Options) *Coordinator {
	return &Coordinator{
		catalog: opts.Catalog,
		engine:  opts.Engine,
		history: opts.History,
		runtime: opts.Runtime,
		wizard:  opts.Wizard,
		logger:  log.WithComponent("install"),
		phase:   types.PhaseIdle,
		states:  make(map[string]types.InstallState),
	}
}

// InstallServices installs the requested services and their transitive
// dependencies in topological order. Per-service failures do not abort
// the run; dependents of a failed service are marked errored without
// being started. The run continues even if the caller goes away.
func (c *Coordinator) InstallServices(ctx context.Context, requests []types.InstallRequest) ([]types.InstallResult, error) {
	if len(requests) == 0 {
		return []types.InstallResult{}, nil
	}

	names := make([]string, 0, len(requests))
	env := make(map[string]map[string]string, len(requests))
	seen := make(map[string]bool, len(requests))
	var unknown []types.InstallResult
	for _, req := range requests {
		if req.Name == "" {
			return nil, errdefs.Validation("service request is missing a name")
		}
		if seen[req.Name] {
			if len(req.Env) > 0 {
				env[req.Name] = req.Env
			}
			continue
		}
		seen[req.Name] = true
		// Unknown services become errored result entries rather than
		// failing the whole request; they never touch the runtime.
		if _, err := c.catalog.Get(req.Name); err != nil {
			unknown = append(unknown, types.InstallResult{
				Name:   req.Name,
				Status: types.InstallErrored,
				Error:  err.Error(),
			})
			continue
		}
		names = append(names, req.Name)
		if len(req.Env) > 0 {
			env[req.Name] = req.Env
		}
	}
	if len(names) == 0 {
		return unknown, nil
	}

	if !c.runMu.TryLock() {
		return nil, errdefs.Conflict("installation already in progress")
	}
	defer c.runMu.Unlock()

	// The run outlives the HTTP request that started it.
	ctx = context.WithoutCancel(ctx)

	if err := c.runtime.Ping(ctx); err != nil {
		return nil, errdefs.Runtime("container runtime unreachable", err)
	}

	closure, err := c.catalog.Closure(names)
	if err != nil {
		return nil, err
	}

	timer := metrics.NewTimer()
	c.beginRun(closure)
	c.history.Reset(history.InstallationLog)
	c.history.MarkInstall(true)
	defer c.history.MarkInstall(false)

	c.publishBegin(ctx, closure)

	failed := make(map[string]bool)
	for _, name := range closure {
		if dep, bad := c.failedDependency(name, failed); bad {
			c.setState(name, types.InstallErrored, "dependency failed: "+dep)
			c.history.Status(name, types.StatusError, "dependency failed: "+dep)
			metrics.ServiceInstallsTotal.WithLabelValues(name, "error").Inc()
			failed[name] = true
			c.publishStep(ctx, name, closure)
			continue
		}

		c.setState(name, types.InstallInstalling, "")
		c.history.Status(name, types.StatusQueued, "queued for install")
		c.publishStep(ctx, name, closure)

		desc, err := c.catalog.Get(name)
		if err != nil {
			// Closure members always resolve; a miss here is a bug.
			c.setState(name, types.InstallErrored, err.Error())
			failed[name] = true
			c.publishStep(ctx, name, closure)
			continue
		}

		if err := c.engine.Start(ctx, desc, env[name]); err != nil {
			c.logger.Error().Err(err).Str("service", name).Msg("service install failed")
			c.setState(name, types.InstallErrored, err.Error())
			metrics.ServiceInstallsTotal.WithLabelValues(name, "error").Inc()
			failed[name] = true
		} else {
			c.setState(name, types.InstallInstalled, "")
			metrics.ServiceInstallsTotal.WithLabelValues(name, "installed").Inc()
		}
		c.publishStep(ctx, name, closure)
	}

	hasErrors := len(failed) > 0
	c.finishRun(hasErrors)
	c.publishComplete(ctx, hasErrors)

	outcome := "complete"
	if hasErrors {
		outcome = "failed"
	}
	metrics.InstallRunsTotal.WithLabelValues(outcome).Inc()
	timer.ObserveDuration(metrics.InstallDuration)

	return append(c.results(closure), unknown...), nil
}

// Progress returns a snapshot of the current (or last) install run
func (c *Coordinator) Progress() types.InstallProgress {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]types.InstallItem, 0, len(c.order))
	installed := 0
	for _, name := range c.order {
		state := c.states[name]
		if state == types.InstallInstalled {
			installed++
		}
		items = append(items, types.InstallItem{
			Name:   name,
			Status: state,
			Error:  c.failures[name],
		})
	}

	percent := 0
	if len(c.order) > 0 {
		percent = 100 * installed / len(c.order)
	}
	return types.InstallProgress{
		Status:  c.phase,
		Percent: percent,
		Items:   items,
	}
}

func (c *Coordinator) beginRun(closure []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = types.PhaseInstalling
	c.order = append([]string(nil), closure...)
	c.states = make(map[string]types.InstallState, len(closure))
	c.failures = make(map[string]string)
	for _, name := range closure {
		c.states[name] = types.InstallPending
	}
}

func (c *Coordinator) finishRun(hasErrors bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hasErrors {
		c.phase = types.PhaseFailed
	} else {
		c.phase = types.PhaseComplete
	}
}

func (c *Coordinator) setState(name string, state types.InstallState, failure string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[name] = state
	if failure != "" {
		c.failures[name] = failure
	}
}

func (c *Coordinator) results(closure []string) []types.InstallResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.InstallResult, 0, len(closure))
	for _, name := range closure {
		out = append(out, types.InstallResult{
			Name:   name,
			Status: c.states[name],
			Error:  c.failures[name],
		})
	}
	return out
}

// failedDependency returns a direct or transitive dependency of name
// that already failed in this run
func (c *Coordinator) failedDependency(name string, failed map[string]bool) (string, bool) {
	desc, err := c.catalog.Get(name)
	if err != nil {
		return "", false
	}
	for _, dep := range desc.Dependencies {
		if failed[dep] {
			return dep, true
		}
		// Transitive failures surface through the direct dependency
		// because the closure is walked in topological order.
	}
	return "", false
}

func (c *Coordinator) publishBegin(ctx context.Context, closure []string) {
	if c.wizard == nil {
		return
	}
	if _, err := c.wizard.BeginInstall(ctx, participatingSteps(closure)); err != nil {
		c.logger.Warn().Err(err).Msg("failed to publish wizard install start")
		metrics.WizardWritesTotal.WithLabelValues("error").Inc()
	} else {
		metrics.WizardWritesTotal.WithLabelValues("ok").Inc()
	}
}

// publishStep pushes the aggregated wizard status for the step owning
// the given service
func (c *Coordinator) publishStep(ctx context.Context, name string, closure []string) {
	if c.wizard == nil {
		return
	}
	key, ok := StepForService(name)
	if !ok {
		return
	}

	c.mu.Lock()
	status, ok := aggregateStep(key, closure, c.states)
	detail := c.failures[name]
	c.mu.Unlock()
	if !ok {
		return
	}

	if _, err := c.wizard.SetStepStatus(ctx, key, status, detail); err != nil {
		c.logger.Warn().Err(err).Str("step", string(key)).Msg("failed to publish wizard step status")
		metrics.WizardWritesTotal.WithLabelValues("error").Inc()
	} else {
		metrics.WizardWritesTotal.WithLabelValues("ok").Inc()
	}
}

func (c *Coordinator) publishComplete(ctx context.Context, hasErrors bool) {
	if c.wizard == nil {
		return
	}
	if _, err := c.wizard.CompleteInstall(ctx, hasErrors); err != nil {
		c.logger.Warn().Err(err).Msg("failed to publish wizard install completion")
		metrics.WizardWritesTotal.WithLabelValues("error").Inc()
	} else {
		metrics.WizardWritesTotal.WithLabelValues("ok").Inc()
	}
}
