package engine

import (
	"context"
	"strings"

	"github.com/The-Noona-Project/noona-warden/pkg/runtime"
	"github.com/The-Noona-Project/noona-warden/pkg/types"
)

const (
	// DefaultMountTarget is the container-side path a detected library
	// mount is bound to when the descriptor does not override it.
	DefaultMountTarget = "/kavita-data"

	// kavitaImagePattern matches containers running a Kavita server.
	kavitaImagePattern = "kavita"

	// kavitaDataPath is the mount destination inside a Kavita container
	// that holds the library data.
	kavitaDataPath = "/data"
)

// DetectMount probes every reachable runtime endpoint for a Kavita
// container and extracts the host path backing its /data mount. A nil
// MountPath in the result means nothing matched; callers may supply a
// manual path instead.
func (e *Engine) DetectMount(ctx context.Context, service string) *types.MountDetection {
	e.history.Status(service, types.StatusDetecting, "searching for an existing Kavita container")

	clients := []runtime.API{e.rt}
	if e.resolver != nil {
		for _, extra := range e.resolver.ResolveAll(ctx) {
			if extra.Endpoint() != e.rt.Endpoint() {
				clients = append(clients, extra)
			} else {
				_ = extra.Close()
			}
		}
	}

	for i, client := range clients {
		detection := e.detectOn(ctx, client)
		if i > 0 {
			_ = client.Close()
		}
		if detection != nil {
			e.history.Status(service, types.StatusDetected,
				"found Kavita library at "+*detection.MountPath)
			return detection
		}
	}

	e.history.Status(service, types.StatusNotFound, "no Kavita container found")
	return &types.MountDetection{}
}

func (e *Engine) detectOn(ctx context.Context, client runtime.API) *types.MountDetection {
	containers, err := client.ListContainers(ctx)
	if err != nil {
		e.logger.Debug().Err(err).Str("endpoint", client.Endpoint()).Msg("mount detection list failed")
		return nil
	}

	for _, ctr := range containers {
		if !strings.Contains(strings.ToLower(ctr.Image), kavitaImagePattern) {
			continue
		}
		detail, err := client.InspectContainer(ctx, ctr.ID)
		if err != nil {
			e.logger.Debug().Err(err).Str("container", ctr.ID).Msg("mount detection inspect failed")
			continue
		}
		for _, mount := range detail.Mounts {
			if mount.Destination == kavitaDataPath && mount.Source != "" {
				source := mount.Source
				return &types.MountDetection{
					MountPath: &source,
					Container: detail.Name,
				}
			}
		}
	}
	return nil
}
