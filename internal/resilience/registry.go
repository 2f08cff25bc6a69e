package resilience

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// ErrUnknownPolicy is returned by Registry.Guard for an unregistered name.
var ErrUnknownPolicy = errors.New("unknown resilience policy")

// Registry holds one Guard per named policy.
type Registry struct {
	guards map[string]*Guard
}

// NewRegistry validates every policy and builds its guard. The map key wins
// over Policy.Name when they differ.
func NewRegistry(policies map[string]Policy, log zerolog.Logger) (*Registry, error) {
	r := &Registry{guards: make(map[string]*Guard, len(policies))}
	for name, p := range policies {
		p.Name = name
		if err := p.Validate(); err != nil {
			return nil, err
		}
		r.guards[name] = NewGuard(p, log)
	}
	return r, nil
}

// Guard returns the guard registered under name.
func (r *Registry) Guard(name string) (*Guard, error) {
	g, ok := r.guards[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPolicy, name)
	}
	return g, nil
}

// States reports every breaker state keyed by policy name.
func (r *Registry) States() map[string]string {
	out := make(map[string]string, len(r.guards))
	for name, g := range r.guards {
		out[name] = g.State()
	}
	return out
}

// Names lists the registered policies in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.guards))
	for name := range r.guards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
