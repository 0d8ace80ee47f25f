package layers

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/tsawler/go-vaegan/tensor"
)

// Parameter is a named tensor owned by a ParameterSet. Trainable
// parameters receive gradients; the rest are state such as batch-norm
// moving statistics.
type Parameter struct {
	Name      string
	Value     *tensor.Tensor
	Trainable bool
}

// Partition returns the name prefix up to and including the first
// underscore, e.g. "g_" for "g_h0_lin/Matrix".
func (p *Parameter) Partition() string {
	if i := strings.IndexByte(p.Name, '_'); i >= 0 {
		return p.Name[:i+1]
	}
	return ""
}

// ParameterSet holds every parameter of a model in creation order.
type ParameterSet struct {
	params map[string]*Parameter
	order  []string
	rng    *rand.Rand
	spec   ModelSpec
}

// NewParameterSet creates an empty set whose initializers draw from a
// generator seeded with seed.
func NewParameterSet(seed int64) *ParameterSet {
	return &ParameterSet{
		params: map[string]*Parameter{},
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Create allocates a new parameter. Creating the same name twice is an
// error; networks hold on to the returned handle instead.
func (ps *ParameterSet) Create(name string, shape []int, init Initializer, trainable bool) (*Parameter, error) {
	if _, ok := ps.params[name]; ok {
		return nil, fmt.Errorf("parameter %q already exists", name)
	}
	value, err := init(shape, ps.rng)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %q: %w", name, err)
	}
	p := &Parameter{Name: name, Value: value, Trainable: trainable}
	ps.params[name] = p
	ps.order = append(ps.order, name)
	return p, nil
}

// Get looks up a parameter by name.
func (ps *ParameterSet) Get(name string) (*Parameter, bool) {
	p, ok := ps.params[name]
	return p, ok
}

// Len returns the number of parameters, trainable or not.
func (ps *ParameterSet) Len() int {
	return len(ps.order)
}

// All returns every parameter in creation order.
func (ps *ParameterSet) All() []*Parameter {
	out := make([]*Parameter, len(ps.order))
	for i, name := range ps.order {
		out[i] = ps.params[name]
	}
	return out
}

// Trainable returns the trainable parameters whose name starts with
// prefix, in creation order.
func (ps *ParameterSet) Trainable(prefix string) []*Parameter {
	var out []*Parameter
	for _, name := range ps.order {
		p := ps.params[name]
		if p.Trainable && strings.HasPrefix(name, prefix) {
			out = append(out, p)
		}
	}
	return out
}

// ValidatePartitions checks that every trainable parameter belongs to
// exactly one of the given prefixes.
func (ps *ParameterSet) ValidatePartitions(prefixes ...string) error {
	for _, name := range ps.order {
		if !ps.params[name].Trainable {
			continue
		}
		matches := 0
		for _, prefix := range prefixes {
			if strings.HasPrefix(name, prefix) {
				matches++
			}
		}
		switch {
		case matches == 0:
			return fmt.Errorf("parameter %q belongs to none of %v", name, prefixes)
		case matches > 1:
			return fmt.Errorf("parameter %q belongs to %d of %v", name, matches, prefixes)
		}
	}
	return nil
}

// Snapshot returns deep copies of every parameter value keyed by name.
func (ps *ParameterSet) Snapshot() map[string]*tensor.Tensor {
	out := make(map[string]*tensor.Tensor, len(ps.order))
	for _, name := range ps.order {
		out[name] = ps.params[name].Value.Clone()
	}
	return out
}

// Restore overwrites parameter values from values. Every parameter in
// the set must be present with a matching shape; extra entries are an
// error as well.
func (ps *ParameterSet) Restore(values map[string]*tensor.Tensor) error {
	for name, v := range values {
		p, ok := ps.params[name]
		if !ok {
			return fmt.Errorf("unknown parameter %q", name)
		}
		if !tensor.ShapesEqual(p.Value.Shape, v.Shape) {
			return fmt.Errorf("parameter %q has shape %v, checkpoint has %v", name, p.Value.Shape, v.Shape)
		}
	}
	for _, name := range ps.order {
		v, ok := values[name]
		if !ok {
			return fmt.Errorf("missing value for parameter %q", name)
		}
		if err := ps.params[name].Value.CopyFrom(v); err != nil {
			return err
		}
	}
	return nil
}

// Architecture returns the layers registered so far.
func (ps *ParameterSet) Architecture() *ModelSpec {
	return &ps.spec
}

// Rand returns the set's random source.
func (ps *ParameterSet) Rand() *rand.Rand {
	return ps.rng
}

func (ps *ParameterSet) register(spec *LayerSpec, params ...*Parameter) {
	for _, p := range params {
		if p.Trainable {
			spec.ParameterShapes = append(spec.ParameterShapes, p.Value.Shape)
		}
	}
	ps.spec.add(spec)
}
