package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/The-Noona-Project/noona-warden/pkg/errdefs"
	"github.com/The-Noona-Project/noona-warden/pkg/log"
	"github.com/The-Noona-Project/noona-warden/pkg/runtime"
	"github.com/The-Noona-Project/noona-warden/pkg/types"
)

//go:embed catalog.yaml
var catalogYAML []byte

// superBootOrder is the canonical start order used to break ties in the
// topological sort: addons boot before core services, and core services
// follow the fixed cache → database → store → ui → api → integration →
// downloader progression.
var superBootOrder = []string{
	"noona-cache",
	"noona-database",
	"noona-store",
	"noona-ui",
	"noona-api",
	"noona-portal",
	"noona-raven",
}

// CycleError reports a dependency cycle in the catalog
type CycleError struct {
	Services []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle involving: %s", strings.Join(e.Services, ", "))
}

// Catalog is the normalized, validated set of service descriptors
type Catalog struct {
	services map[string]*types.ServiceDescriptor
	rt       runtime.API
}

// Load parses and validates the embedded catalog data
func Load() (*Catalog, error) {
	var doc struct {
		Services []types.ServiceDescriptor `yaml:"services"`
	}
	if err := yaml.Unmarshal(catalogYAML, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return New(doc.Services)
}

// New builds a catalog from descriptors, validating that every
// dependency resolves and that the dependency graph is acyclic
func New(descriptors []types.ServiceDescriptor) (*Catalog, error) {
	c := &Catalog{services: make(map[string]*types.ServiceDescriptor, len(descriptors))}
	for i := range descriptors {
		d := descriptors[i]
		if d.Name == "" {
			return nil, errdefs.Validation("catalog entry %d has no name", i)
		}
		if _, dup := c.services[d.Name]; dup {
			return nil, errdefs.Validation("duplicate catalog entry %q", d.Name)
		}
		c.services[d.Name] = &d
	}

	for name, d := range c.services {
		for _, dep := range d.Dependencies {
			if _, ok := c.services[dep]; !ok {
				return nil, errdefs.Validation("service %q depends on unknown service %q", name, dep)
			}
		}
	}

	// Sorting the full set proves the graph is a DAG.
	all := make([]string, 0, len(c.services))
	for name := range c.services {
		all = append(all, name)
	}
	if _, err := c.Closure(all); err != nil {
		return nil, err
	}

	logger := log.WithComponent("catalog")
	logger.Debug().Int("services", len(c.services)).Msg("catalog loaded")
	return c, nil
}

// WithRuntime attaches a runtime client used by List to filter out
// services whose container is already running
func (c *Catalog) WithRuntime(rt runtime.API) *Catalog {
	c.rt = rt
	return c
}

// Get returns the descriptor for a service
func (c *Catalog) Get(name string) (*types.ServiceDescriptor, error) {
	d, ok := c.services[name]
	if !ok {
		return nil, errdefs.NotFound("service", name)
	}
	copied := *d
	return &copied, nil
}

// ListOptions controls List behavior
type ListOptions struct {
	// IncludeInstalled keeps services whose container is already running
	IncludeInstalled bool
}

// List returns descriptors sorted alphabetically by display name
func (c *Catalog) List(ctx context.Context, opts ListOptions) ([]types.ServiceDescriptor, error) {
	out := make([]types.ServiceDescriptor, 0, len(c.services))
	for _, d := range c.services {
		if !opts.IncludeInstalled && c.rt != nil {
			running, err := c.rt.ContainerExists(ctx, d.Name)
			if err != nil {
				return nil, errdefs.Runtime("failed to check container state", err)
			}
			if running {
				continue
			}
		}
		out = append(out, *d)
	}

	sort.Slice(out, func(i, j int) bool {
		return displayName(&out[i]) < displayName(&out[j])
	})
	return out, nil
}

// Closure returns the transitive dependency closure of the given
// services in stable topological order: dependencies before dependents,
// ties broken by the super boot order.
func (c *Catalog) Closure(names []string) ([]string, error) {
	// Collect the closure.
	member := make(map[string]bool)
	var visit func(name string) error
	visit = func(name string) error {
		if member[name] {
			return nil
		}
		d, ok := c.services[name]
		if !ok {
			return errdefs.NotFound("service", name)
		}
		member[name] = true
		for _, dep := range d.Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	// Kahn's algorithm with deterministic tie-breaking.
	indegree := make(map[string]int, len(member))
	for name := range member {
		indegree[name] = 0
	}
	for name := range member {
		for _, dep := range c.services[name].Dependencies {
			if member[dep] {
				indegree[name]++
			}
		}
	}

	var order []string
	for len(order) < len(member) {
		var ready []string
		for name, deg := range indegree {
			if deg == 0 {
				ready = append(ready, name)
			}
		}
		if len(ready) == 0 {
			var remaining []string
			for name := range indegree {
				remaining = append(remaining, name)
			}
			sort.Strings(remaining)
			return nil, &CycleError{Services: remaining}
		}

		sort.Slice(ready, func(i, j int) bool {
			ri, rj := c.bootRank(ready[i]), c.bootRank(ready[j])
			if ri != rj {
				return ri < rj
			}
			return ready[i] < ready[j]
		})

		next := ready[0]
		order = append(order, next)
		delete(indegree, next)
		for name := range indegree {
			for _, dep := range c.services[name].Dependencies {
				if dep == next {
					indegree[name]--
				}
			}
		}
	}
	return order, nil
}

// Required reports whether name is a dependency of any selected target
// (it appears in the selection's closure without being selected itself)
func (c *Catalog) Required(name string, selection []string) (bool, error) {
	closure, err := c.Closure(selection)
	if err != nil {
		return false, err
	}
	selected := make(map[string]bool, len(selection))
	for _, s := range selection {
		selected[s] = true
	}
	for _, member := range closure {
		if member == name && !selected[name] {
			return true, nil
		}
	}
	return false, nil
}

// Names returns all service names, unordered
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.services))
	for name := range c.services {
		out = append(out, name)
	}
	return out
}

// bootRank positions a service in the super boot order: addons first,
// then core in canonical order, unknown names last
func (c *Catalog) bootRank(name string) int {
	if d, ok := c.services[name]; ok && d.Category == types.CategoryAddon {
		return -1
	}
	for i, n := range superBootOrder {
		if n == name {
			return i
		}
	}
	return len(superBootOrder)
}

func displayName(d *types.ServiceDescriptor) string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.Name
}
