package anysgd

import (
	"errors"
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

var errVarsGradMismatch = errors.New("variable list does not match gradient")

// A TransformMarshaler is a Transformer whose state can
// be saved and restored.
//
// The state is keyed by variable, so the same variable
// list must be passed when marshalling and unmarshalling.
type TransformMarshaler interface {
	Transformer
	MarshalState(vars []*anydiff.Var) ([]byte, error)
	UnmarshalState(vars []*anydiff.Var, data []byte) error
}

// MarshalState saves the step counter and both moments.
func (a *Adam) MarshalState(vars []*anydiff.Var) ([]byte, error) {
	first, err := marshalGradient(vars, a.first.values)
	if err != nil {
		return nil, essentials.AddCtx("marshal Adam", err)
	}
	second, err := marshalGradient(vars, a.second.values)
	if err != nil {
		return nil, essentials.AddCtx("marshal Adam", err)
	}
	return serializer.SerializeAny(a.steps, string(first), string(second))
}

// UnmarshalState restores state saved by MarshalState.
func (a *Adam) UnmarshalState(vars []*anydiff.Var, data []byte) error {
	var steps float64
	var first, second string
	if err := serializer.DeserializeAny(data, &steps, &first, &second); err != nil {
		return essentials.AddCtx("unmarshal Adam", err)
	}
	firstGrad, err := unmarshalGradient(vars, []byte(first))
	if err != nil {
		return essentials.AddCtx("unmarshal Adam", err)
	}
	secondGrad, err := unmarshalGradient(vars, []byte(second))
	if err != nil {
		return essentials.AddCtx("unmarshal Adam", err)
	}
	a.steps = steps
	a.first.values = firstGrad
	a.second.values = secondGrad
	return nil
}

// Steps returns the number of transformed gradients.
func (a *Adam) Steps() int {
	return int(a.steps)
}

// MarshalState saves the running mean square.
func (r *RMSProp) MarshalState(vars []*anydiff.Var) ([]byte, error) {
	data, err := marshalGradient(vars, r.meanSquare.values)
	if err != nil {
		return nil, essentials.AddCtx("marshal RMSProp", err)
	}
	return data, nil
}

// UnmarshalState restores state saved by MarshalState.
func (r *RMSProp) UnmarshalState(vars []*anydiff.Var, data []byte) error {
	g, err := unmarshalGradient(vars, data)
	if err != nil {
		return essentials.AddCtx("unmarshal RMSProp", err)
	}
	r.meanSquare.values = g
	return nil
}

// MarshalState saves the velocity.
func (m *Momentum) MarshalState(vars []*anydiff.Var) ([]byte, error) {
	data, err := marshalGradient(vars, m.velocity.values)
	if err != nil {
		return nil, essentials.AddCtx("marshal Momentum", err)
	}
	return data, nil
}

// UnmarshalState restores state saved by MarshalState.
func (m *Momentum) UnmarshalState(vars []*anydiff.Var, data []byte) error {
	g, err := unmarshalGradient(vars, data)
	if err != nil {
		return essentials.AddCtx("unmarshal Momentum", err)
	}
	m.velocity.values = g
	return nil
}

// MarshalState saves the Transformer's state for Params.
// An Optimizer without a Transformer has empty state.
func (o *Optimizer) MarshalState() ([]byte, error) {
	if o.Transformer == nil {
		return []byte{}, nil
	}
	m, ok := o.Transformer.(TransformMarshaler)
	if !ok {
		return nil, fmt.Errorf("optimizer %s: cannot marshal %T", o.Name, o.Transformer)
	}
	return m.MarshalState(o.Params)
}

// UnmarshalState restores state saved by MarshalState.
func (o *Optimizer) UnmarshalState(data []byte) error {
	if o.Transformer == nil {
		if len(data) != 0 {
			return fmt.Errorf("optimizer %s: state given for plain SGD", o.Name)
		}
		return nil
	}
	m, ok := o.Transformer.(TransformMarshaler)
	if !ok {
		return fmt.Errorf("optimizer %s: cannot unmarshal %T", o.Name, o.Transformer)
	}
	return m.UnmarshalState(o.Params, data)
}

// marshalGradient stores the vectors of grad in the order
// of vars.
// An empty grad, as held by a Transformer that has not
// stepped yet, yields no data.
func marshalGradient(vars []*anydiff.Var, grad anydiff.Grad) ([]byte, error) {
	if len(grad) == 0 {
		return []byte{}, nil
	}
	if len(vars) != len(grad) {
		return nil, errVarsGradMismatch
	}
	objs := make([]interface{}, len(vars))
	for i, v := range vars {
		vec, ok := grad[v]
		if !ok {
			return nil, errVarsGradMismatch
		}
		objs[i] = &anyvecsave.S{Vector: vec}
	}
	return serializer.SerializeAny(objs...)
}

func unmarshalGradient(vars []*anydiff.Var, data []byte) (anydiff.Grad, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dests := make([]interface{}, len(vars))
	for i := range vars {
		dests[i] = new(*anyvecsave.S)
	}
	if err := serializer.DeserializeAny(data, dests...); err != nil {
		return nil, err
	}
	res := anydiff.Grad{}
	for i, v := range vars {
		vec := (*dests[i].(**anyvecsave.S)).Vector
		if vec.Len() != v.Vector.Len() {
			return nil, fmt.Errorf("variable %d: expected length %d but got %d", i,
				v.Vector.Len(), vec.Len())
		} else if vec.Creator() != v.Vector.Creator() {
			return nil, fmt.Errorf("variable %d: mismatching numeric type", i)
		}
		res[v] = vec
	}
	return res, nil
}
