package nn

import (
	"fmt"

	"github.com/born-ml/sparsehyper/internal/tensor"
)

// Sequential feeds the output of each module into the next.
//
// A sparse layer panics from Forward on a contract violation, so a Sequential holding one
// does too. Parameters are gathered in module order, which is the order optimisers see.
//
//	model := nn.NewSequential[B](layer, nn.NewSigmoid[B]())
//	out := model.Forward(x)
type Sequential[B tensor.Backend] struct {
	modules []Module[B]
}

// NewSequential chains modules.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return &Sequential[B]{modules: modules}
}

// Forward runs x through every module. An empty Sequential returns x.
func (s *Sequential[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	for _, m := range s.modules {
		x = m.Forward(x)
	}
	return x
}

// Parameters concatenates the parameters of the modules.
func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, m := range s.modules {
		params = append(params, m.Parameters()...)
	}
	return params
}

// Add appends m.
func (s *Sequential[B]) Add(m Module[B]) { s.modules = append(s.modules, m) }

// Len returns the number of modules.
func (s *Sequential[B]) Len() int { return len(s.modules) }

// Module returns the i-th module and panics when i is out of range.
func (s *Sequential[B]) Module(i int) Module[B] {
	if i < 0 || i >= len(s.modules) {
		panic(fmt.Sprintf("nn: module %d of %d", i, len(s.modules)))
	}
	return s.modules[i]
}
