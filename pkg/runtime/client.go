package runtime

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/The-Noona-Project/noona-warden/pkg/log"
)

const (
	// DefaultStopTimeout is how long a container gets to exit on SIGTERM
	// before the runtime force-kills it.
	DefaultStopTimeout = 10 * time.Second
)

// Client is the Docker-backed runtime client
type Client struct {
	api      client.APIClient
	endpoint string
}

// NewClient wraps an existing Docker API client. Used by the resolver
// once an endpoint has answered a ping.
func NewClient(api client.APIClient, endpoint string) *Client {
	return &Client{api: api, endpoint: endpoint}
}

// Endpoint returns the endpoint this client is connected to
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Close closes the underlying connection
func (c *Client) Close() error {
	return c.api.Close()
}

// Ping probes the runtime
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.Ping(ctx)
	return err
}

// ListContainers returns all containers, running or not
func (c *Client) ListContainers(ctx context.Context) ([]ContainerInfo, error) {
	ctrs, err := c.api.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	infos := make([]ContainerInfo, 0, len(ctrs))
	for _, ctr := range ctrs {
		infos = append(infos, ContainerInfo{
			ID:     ctr.ID,
			Names:  trimNames(ctr.Names),
			Image:  ctr.Image,
			State:  ctr.State,
			Labels: ctr.Labels,
		})
	}
	return infos, nil
}

// InspectContainer returns the inspected view of one container
func (c *Client) InspectContainer(ctx context.Context, id string) (*ContainerDetail, error) {
	info, err := c.api.ContainerInspect(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container %s: %w", id, err)
	}

	detail := &ContainerDetail{
		ID:   info.ID,
		Name: strings.TrimPrefix(info.Name, "/"),
	}
	if info.State != nil {
		detail.Running = info.State.Running
	}
	for _, m := range info.Mounts {
		detail.Mounts = append(detail.Mounts, MountPoint{
			Source:      m.Source,
			Destination: m.Destination,
		})
	}
	return detail, nil
}

// GetContainer finds a container by exact name or ID, or nil if absent
func (c *Client) GetContainer(ctx context.Context, idOrName string) (*ContainerInfo, error) {
	args := filters.NewArgs()
	args.Add("name", idOrName)
	ctrs, err := c.api.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	// The name filter matches substrings; require an exact name or ID.
	for _, ctr := range ctrs {
		for _, name := range trimNames(ctr.Names) {
			if name == idOrName {
				return &ContainerInfo{
					ID:     ctr.ID,
					Names:  trimNames(ctr.Names),
					Image:  ctr.Image,
					State:  ctr.State,
					Labels: ctr.Labels,
				}, nil
			}
		}
		if ctr.ID == idOrName || strings.HasPrefix(ctr.ID, idOrName) {
			return &ContainerInfo{
				ID:     ctr.ID,
				Names:  trimNames(ctr.Names),
				Image:  ctr.Image,
				State:  ctr.State,
				Labels: ctr.Labels,
			}, nil
		}
	}
	return nil, nil
}

// ContainerExists reports whether a running container with the given
// name exists
func (c *Client) ContainerExists(ctx context.Context, name string) (bool, error) {
	info, err := c.GetContainer(ctx, name)
	if err != nil {
		return false, err
	}
	return info != nil && info.State == "running", nil
}

// PullImage pulls an image, forwarding each layer event of the JSON
// progress stream to the callback
func (c *Client) PullImage(ctx context.Context, image string, progress ProgressFunc) error {
	rc, err := c.api.ImagePull(ctx, image, dockertypes.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", image, err)
	}
	defer rc.Close()

	if err := streamPullProgress(rc, progress); err != nil {
		return fmt.Errorf("pull of %s failed: %w", image, err)
	}
	return nil
}

// RunContainer creates and starts a container from the spec
func (c *Client) RunContainer(ctx context.Context, spec RunSpec) (string, error) {
	cfg := &container.Config{
		Image:  spec.Image,
		Env:    spec.Env,
		Labels: spec.Labels,
	}
	hostCfg := &container.HostConfig{
		Binds: spec.Binds,
	}

	if len(spec.Ports) > 0 {
		cfg.ExposedPorts = nat.PortSet{}
		hostCfg.PortBindings = nat.PortMap{}
		for _, pb := range spec.Ports {
			proto := pb.Protocol
			if proto == "" {
				proto = "tcp"
			}
			port := nat.Port(fmt.Sprintf("%d/%s", pb.ContainerPort, proto))
			cfg.ExposedPorts[port] = struct{}{}
			hostCfg.PortBindings[port] = []nat.PortBinding{
				{HostPort: strconv.Itoa(pb.HostPort)},
			}
		}
	}

	var netCfg *network.NetworkingConfig
	if spec.Network != "" {
		netCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				spec.Network: {Aliases: []string{spec.Name}},
			},
		}
	}

	created, err := c.api.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, spec.Name)
	if err != nil {
		// Pull-on-demand when the image is missing locally.
		if client.IsErrNotFound(err) {
			if perr := c.PullImage(ctx, spec.Image, nil); perr != nil {
				return "", perr
			}
			created, err = c.api.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, spec.Name)
		}
		if err != nil {
			return "", fmt.Errorf("failed to create container %s: %w", spec.Name, err)
		}
	}

	if err := c.api.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container %s: %w", spec.Name, err)
	}
	return created.ID, nil
}

// StopContainer stops a container gracefully, force-killing after the
// default timeout
func (c *Client) StopContainer(ctx context.Context, idOrName string) error {
	seconds := int(DefaultStopTimeout.Seconds())
	if err := c.api.ContainerStop(ctx, idOrName, container.StopOptions{Timeout: &seconds}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to stop container %s: %w", idOrName, err)
	}
	return nil
}

// RemoveContainer removes a container and its anonymous volumes
func (c *Client) RemoveContainer(ctx context.Context, idOrName string) error {
	opts := container.RemoveOptions{Force: true, RemoveVolumes: true}
	if err := c.api.ContainerRemove(ctx, idOrName, opts); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to remove container %s: %w", idOrName, err)
	}
	return nil
}

// AttachLogs returns the multiplexed stdout/stderr stream of a container
func (c *Client) AttachLogs(ctx context.Context, id string) (io.ReadCloser, error) {
	rc, err := c.api.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to attach logs for %s: %w", id, err)
	}
	return rc, nil
}

// EnsureNetwork creates the named bridge network if it does not exist
func (c *Client) EnsureNetwork(ctx context.Context, name string) error {
	args := filters.NewArgs()
	args.Add("name", name)
	nets, err := c.api.NetworkList(ctx, dockertypes.NetworkListOptions{Filters: args})
	if err != nil {
		return fmt.Errorf("failed to list networks: %w", err)
	}
	for _, n := range nets {
		if n.Name == name {
			return nil
		}
	}

	if _, err := c.api.NetworkCreate(ctx, name, dockertypes.NetworkCreate{Driver: "bridge"}); err != nil {
		return fmt.Errorf("failed to create network %s: %w", name, err)
	}
	logger := log.WithComponent("runtime")
	logger.Info().Str("network", name).Msg("created network")
	return nil
}

// ConnectToNetwork attaches a container to a network. Already-attached
// containers are not an error.
func (c *Client) ConnectToNetwork(ctx context.Context, networkName, containerName string) error {
	err := c.api.NetworkConnect(ctx, networkName, containerName, &network.EndpointSettings{})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to connect %s to network %s: %w", containerName, networkName, err)
	}
	return nil
}

// trimNames strips the leading slash Docker puts on container names
func trimNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, strings.TrimPrefix(n, "/"))
	}
	return out
}
