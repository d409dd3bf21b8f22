package routing

import "sort"

// Instance is one concrete (server, model) target.
type Instance struct {
	Server string
	Model  string
}

// String returns "server/model".
func (i Instance) String() string {
	return i.Server + "/" + i.Model
}

// Resolver expands alias names into their ordered instance lists.
type Resolver struct {
	aliases map[string][]Instance
}

// NewResolver creates a Resolver. Instance slices are copied.
func NewResolver(aliases map[string][]Instance) *Resolver {
	m := make(map[string][]Instance, len(aliases))
	for name, insts := range aliases {
		cp := make([]Instance, len(insts))
		copy(cp, insts)
		m[name] = cp
	}
	return &Resolver{aliases: m}
}

// Resolve returns the instances of the alias named model, in configuration
// order. It reports false when model is not an alias.
func (r *Resolver) Resolve(model string) ([]Instance, bool) {
	insts, ok := r.aliases[model]
	if !ok {
		return nil, false
	}
	out := make([]Instance, len(insts))
	copy(out, insts)
	return out, true
}

// Names returns the alias names, sorted.
func (r *Resolver) Names() []string {
	names := make([]string, 0, len(r.aliases))
	for name := range r.aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
