package runtime

import (
	"context"
	"io"

	"github.com/The-Noona-Project/noona-warden/pkg/types"
)

// ContainerInfo is a summary of one container as reported by the runtime
type ContainerInfo struct {
	ID     string
	Names  []string
	Image  string
	State  string
	Labels map[string]string
}

// MountPoint is one mount of a running container
type MountPoint struct {
	Source      string
	Destination string
}

// ContainerDetail is the inspected view of one container
type ContainerDetail struct {
	ID      string
	Name    string
	Running bool
	Mounts  []MountPoint
}

// PortBinding maps a host port to a container port
type PortBinding struct {
	HostPort      int
	ContainerPort int
	Protocol      string // "tcp" when empty
}

// RunSpec describes a container to create and start
type RunSpec struct {
	Name    string
	Image   string
	Env     []string
	Binds   []string // "hostPath:containerPath" bind mounts
	Ports   []PortBinding
	Network string
	Labels  map[string]string
}

// ProgressFunc receives normalized image-pull layer events
type ProgressFunc func(types.PullProgress)

// API is the container runtime surface Warden consumes. The production
// implementation wraps the Docker-compatible REST API; tests substitute
// fakes.
type API interface {
	Ping(ctx context.Context) error
	ListContainers(ctx context.Context) ([]ContainerInfo, error)
	InspectContainer(ctx context.Context, id string) (*ContainerDetail, error)
	GetContainer(ctx context.Context, idOrName string) (*ContainerInfo, error)
	ContainerExists(ctx context.Context, name string) (bool, error)
	PullImage(ctx context.Context, image string, progress ProgressFunc) error
	RunContainer(ctx context.Context, spec RunSpec) (string, error)
	StopContainer(ctx context.Context, idOrName string) error
	RemoveContainer(ctx context.Context, idOrName string) error
	AttachLogs(ctx context.Context, id string) (io.ReadCloser, error)
	EnsureNetwork(ctx context.Context, name string) error
	ConnectToNetwork(ctx context.Context, network, container string) error
	Endpoint() string
	Close() error
}
