//go:build !windows

package runtime

import (
	"os"
	"path/filepath"
)

// defaultEndpoints returns the platform-default runtime sockets
func defaultEndpoints() []string {
	return []string{"/var/run/docker.sock"}
}

// alternativeEndpoints returns extra host sockets worth probing when
// the default is absent (rootless daemons, desktop installs)
func alternativeEndpoints() []string {
	eps := []string{"/run/docker.sock"}
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		eps = append(eps, filepath.Join(xdg, "docker.sock"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		eps = append(eps, filepath.Join(home, ".docker", "run", "docker.sock"))
	}
	return eps
}
