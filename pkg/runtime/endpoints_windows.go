//go:build windows

package runtime

// defaultEndpoints returns the platform-default runtime endpoint
func defaultEndpoints() []string {
	return []string{"npipe:////./pipe/docker_engine"}
}

// alternativeEndpoints returns extra named pipes worth probing
func alternativeEndpoints() []string {
	return []string{"npipe:////./pipe/docker_windows"}
}
