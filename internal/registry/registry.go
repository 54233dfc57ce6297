package registry

import (
	"errors"
	"fmt"

	"github.com/mod-net/stack/internal/probe"
)

// ErrUnknownService is returned when a name is not in the registry.
var ErrUnknownService = errors.New("unknown service")

// Descriptor describes one managed service.
type Descriptor struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`  // launch command (shell-aware, see supervisor)
	WorkDir string   `json:"work_dir"` // optional working dir
	Env     []string `json:"env"`      // optional extra env

	// DependsOn lists services that must be running before this one starts.
	DependsOn []string `json:"depends_on"`

	Health probe.Spec `json:"health"`

	// LockPath marks the service as a singleton: its on-disk resource may be
	// held by at most one live process. Empty for non-singleton services.
	LockPath string `json:"lock_path"`

	// PIDFile is where the supervisor records the spawned pid so a later
	// orchestrator run can adopt a still-running service.
	PIDFile string `json:"pid_file"`
}

// Singleton reports whether the service owns a singleton lock resource.
func (d Descriptor) Singleton() bool { return d.LockPath != "" }

// Registry is the immutable descriptor table, built once at startup.
type Registry struct {
	byName map[string]Descriptor
	order  []string // topological start order
}

// New validates descriptors and computes the dependency order.
// Names must be unique, dependency references must resolve, and the
// dependency graph must be acyclic.
func New(descs []Descriptor) (*Registry, error) {
	byName := make(map[string]Descriptor, len(descs))
	for _, d := range descs {
		if d.Name == "" {
			return nil, errors.New("service with empty name")
		}
		if _, dup := byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate service name %q", d.Name)
		}
		byName[d.Name] = d
	}
	for _, d := range descs {
		for _, dep := range d.DependsOn {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("service %q depends on %w %q", d.Name, ErrUnknownService, dep)
			}
		}
	}
	order, err := topoOrder(descs)
	if err != nil {
		return nil, err
	}
	return &Registry{byName: byName, order: order}, nil
}

// Describe returns the descriptor for name.
func (r *Registry) Describe(name string) (Descriptor, error) {
	d, ok := r.byName[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownService, name)
	}
	return d, nil
}

// Names returns all service names in dependency order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// DependencyOrder returns service names topologically ordered for startAll:
// every service appears after all of its dependencies.
func (r *Registry) DependencyOrder() []string {
	return append([]string(nil), r.order...)
}

// ReverseOrder returns the stop order: the exact reverse of DependencyOrder.
func (r *Registry) ReverseOrder() []string {
	out := make([]string, len(r.order))
	for i, n := range r.order {
		out[len(r.order)-1-i] = n
	}
	return out
}

// topoOrder is a stable Kahn sort: among ready services, configured order
// wins, so the computed order is deterministic.
func topoOrder(descs []Descriptor) ([]string, error) {
	indeg := make(map[string]int, len(descs))
	for _, d := range descs {
		indeg[d.Name] = len(d.DependsOn)
	}
	order := make([]string, 0, len(descs))
	done := make(map[string]bool, len(descs))
	for len(order) < len(descs) {
		progressed := false
		for _, d := range descs {
			if done[d.Name] || indeg[d.Name] != 0 {
				continue
			}
			order = append(order, d.Name)
			done[d.Name] = true
			progressed = true
			for _, other := range descs {
				for _, dep := range other.DependsOn {
					if dep == d.Name {
						indeg[other.Name]--
					}
				}
			}
		}
		if !progressed {
			return nil, errors.New("dependency cycle in service registry")
		}
	}
	return order, nil
}
