// Package runtimetest provides an in-memory runtime.API implementation
// for tests.
package runtimetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/The-Noona-Project/noona-warden/pkg/runtime"
	"github.com/The-Noona-Project/noona-warden/pkg/types"
)

// Fake is a scriptable runtime.API. Zero value is usable: no
// containers, every operation succeeds.
type Fake struct {
	mu sync.Mutex

	Name string // endpoint name reported by Endpoint()

	PingErr    error
	Containers []runtime.ContainerInfo
	Details    map[string]*runtime.ContainerDetail

	// PullErrs maps image name to a forced pull failure
	PullErrs map[string]error
	// PullEvents maps image name to layer events delivered on pull
	PullEvents map[string][]types.PullProgress

	// RunErrs maps spec name to a forced run failure
	RunErrs map[string]error

	// LogStreams maps container id to its multiplexed log stream
	LogStreams map[string][]byte

	Pulled    []string
	Started   []runtime.RunSpec
	Stopped   []string
	Removed   []string
	Networks  []string
	Connected [][2]string

	nextID int
}

var _ runtime.API = (*Fake)(nil)

func (f *Fake) Endpoint() string {
	if f.Name == "" {
		return "fake://runtime"
	}
	return f.Name
}

func (f *Fake) Close() error { return nil }

func (f *Fake) Ping(ctx context.Context) error { return f.PingErr }

func (f *Fake) ListContainers(ctx context.Context) ([]runtime.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runtime.ContainerInfo(nil), f.Containers...), nil
}

func (f *Fake) InspectContainer(ctx context.Context, id string) (*runtime.ContainerDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.Details[id]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("no such container: %s", id)
}

func (f *Fake) GetContainer(ctx context.Context, idOrName string) (*runtime.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.Containers {
		ctr := f.Containers[i]
		if ctr.ID == idOrName {
			return &ctr, nil
		}
		for _, n := range ctr.Names {
			if n == idOrName {
				return &ctr, nil
			}
		}
	}
	return nil, nil
}

func (f *Fake) ContainerExists(ctx context.Context, name string) (bool, error) {
	info, err := f.GetContainer(ctx, name)
	if err != nil {
		return false, err
	}
	return info != nil && info.State == "running", nil
}

func (f *Fake) PullImage(ctx context.Context, image string, progress runtime.ProgressFunc) error {
	f.mu.Lock()
	f.Pulled = append(f.Pulled, image)
	err := f.PullErrs[image]
	events := f.PullEvents[image]
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if progress != nil {
		for _, ev := range events {
			progress(ev)
		}
	}
	return nil
}

func (f *Fake) RunContainer(ctx context.Context, spec runtime.RunSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.RunErrs[spec.Name]; err != nil {
		return "", err
	}

	f.nextID++
	id := fmt.Sprintf("ctr-%d", f.nextID)
	f.Started = append(f.Started, spec)
	f.Containers = append(f.Containers, runtime.ContainerInfo{
		ID:    id,
		Names: []string{spec.Name},
		Image: spec.Image,
		State: "running",
	})
	return id, nil
}

func (f *Fake) StopContainer(ctx context.Context, idOrName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Stopped = append(f.Stopped, idOrName)
	return nil
}

func (f *Fake) RemoveContainer(ctx context.Context, idOrName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Removed = append(f.Removed, idOrName)
	return nil
}

func (f *Fake) AttachLogs(ctx context.Context, id string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data := f.LogStreams[id]
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *Fake) EnsureNetwork(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.Networks {
		if n == name {
			return nil
		}
	}
	f.Networks = append(f.Networks, name)
	return nil
}

func (f *Fake) ConnectToNetwork(ctx context.Context, network, container string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Connected = append(f.Connected, [2]string{network, container})
	return nil
}

// AddRunning registers a running container with the given name and image
func (f *Fake) AddRunning(name, image string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("ctr-%d", f.nextID)
	f.Containers = append(f.Containers, runtime.ContainerInfo{
		ID:    id,
		Names: []string{name},
		Image: image,
		State: "running",
	})
	return id
}
