// Package anysgd provides gradient-based optimizers that
// each own one group of parameters.
//
// Several Optimizers may share a model.
// Each one accumulates gradient only for its own
// variables, so a loss back-propagated into one group
// never moves the parameters of another.
package anysgd

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// An Optimizer updates one parameter group.
//
// A training step follows the zero/backward/step cycle:
// ZeroGrad allocates a fresh gradient, Backward adds a
// loss's partials into it, and Step applies and clears
// it.
type Optimizer struct {
	// Name identifies the group in logs and panics.
	Name string

	// Params is the parameter group.
	Params []*anydiff.Var

	// Transformer, if non-nil, is applied to each gradient
	// before the step.
	// If nil, plain SGD is performed.
	Transformer Transformer

	// Rater determines the learning rate for each step.
	Rater Rater

	// Frozen makes Step discard the gradient, leaving the
	// parameters and the Transformer state untouched.
	Frozen bool

	grad anydiff.Grad
}

// ZeroGrad discards any accumulated gradient and
// allocates a zero gradient for the parameter group.
func (o *Optimizer) ZeroGrad() {
	o.grad = anydiff.NewGrad(o.Params...)
}

// Grad returns the gradient being accumulated.
// It panics if ZeroGrad has not been called since the
// last Step.
func (o *Optimizer) Grad() anydiff.Grad {
	if o.grad == nil {
		panic(fmt.Sprintf("optimizer %s: gradient used before ZeroGrad", o.Name))
	}
	return o.grad
}

// Pending reports whether the accumulated gradient holds
// any non-zero entry.
func (o *Optimizer) Pending() bool {
	for _, v := range o.grad {
		if v.Len() > 0 && numericFloat(anyvec.AbsMax(v)) != 0 {
			return true
		}
	}
	return false
}

// Step applies the accumulated gradient and clears it.
// A Frozen Optimizer only clears it.
//
// The epoch argument is passed to the Rater and may be
// fractional.
func (o *Optimizer) Step(epoch float64) {
	g := o.Grad()
	if len(g) > 0 && !o.Frozen {
		if o.Transformer != nil {
			g = o.Transformer.Transform(g)
		}
		scaleGrad(g, -o.Rater.Rate(epoch))
		g.AddToVars()
	}
	o.grad = nil
}

// Backward back-propagates a scalar loss into one or
// more gradients.
//
// Only the variables in the gradients receive partials.
// The loss must have exactly one component.
func Backward(loss anydiff.Res, grads ...anydiff.Grad) {
	if loss.Output().Len() != 1 {
		panic(fmt.Sprintf("loss must be a scalar, but has %d components",
			loss.Output().Len()))
	}
	merged := anydiff.Grad{}
	for _, g := range grads {
		if g == nil {
			panic("backward into nil gradient")
		}
		for v, vec := range g {
			merged[v] = vec
		}
	}
	if len(merged) == 0 {
		return
	}
	c := loss.Output().Creator()
	upstream := c.MakeVectorData(c.MakeNumericList([]float64{1}))
	loss.Propagate(upstream, merged)
}

// NewTransformer creates a Transformer by name.
//
// Supported names are "adam", "rmsprop", "momentum",
// and "sgd" (which yields a nil Transformer).
func NewTransformer(name string, beta1 float64) (Transformer, error) {
	switch name {
	case "adam":
		return &Adam{DecayRate1: beta1}, nil
	case "rmsprop":
		return &RMSProp{}, nil
	case "momentum":
		return &Momentum{Momentum: valueOrDefault(beta1, 0.9)}, nil
	case "sgd":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown optimizer: %s", name)
	}
}
