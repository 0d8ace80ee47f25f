package layers

import (
	"github.com/tsawler/go-vaegan/autograd"
)

// Mode selects batch-norm behavior.
type Mode int

const (
	// Train normalizes with batch statistics.
	Train Mode = iota
	// Inference normalizes with the moving statistics.
	Inference
)

func (m Mode) String() string {
	if m == Inference {
		return "inference"
	}
	return "train"
}

// Session binds parameters to graph variables for a single forward
// build, so every use of a parameter within the build shares one node.
type Session struct {
	Mode Mode
	// UpdateStats makes training-mode batch norm fold the batch statistics
	// into its moving averages as it runs.
	UpdateStats bool

	vars map[*Parameter]*autograd.Var
}

func NewSession(mode Mode, updateStats bool) *Session {
	return &Session{
		Mode:        mode,
		UpdateStats: updateStats && mode == Train,
		vars:        map[*Parameter]*autograd.Var{},
	}
}

// Bind returns the graph node for p. Trainable parameters become
// variables; state parameters become constants.
func (s *Session) Bind(p *Parameter) *autograd.Var {
	if v, ok := s.vars[p]; ok {
		return v
	}
	var v *autograd.Var
	if p.Trainable {
		v = autograd.Variable(p.Value, p.Name)
	} else {
		v = autograd.Constant(p.Value)
	}
	s.vars[p] = v
	return v
}

// Vars binds each parameter and returns the nodes in order.
func (s *Session) Vars(params []*Parameter) []*autograd.Var {
	out := make([]*autograd.Var, len(params))
	for i, p := range params {
		out[i] = s.Bind(p)
	}
	return out
}
