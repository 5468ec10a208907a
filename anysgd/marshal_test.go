package anysgd

import (
	"reflect"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestTransformerStateRoundTrip(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	vars := []*anydiff.Var{
		anydiff.NewVar(c.MakeVector(3)),
		anydiff.NewVar(c.MakeVector(2)),
	}
	makers := map[string]func() TransformMarshaler{
		"adam":     func() TransformMarshaler { return &Adam{} },
		"rmsprop":  func() TransformMarshaler { return &RMSProp{} },
		"momentum": func() TransformMarshaler { return &Momentum{Momentum: 0.9} },
	}
	for name, maker := range makers {
		orig := maker()
		for i := 0; i < 3; i++ {
			orig.Transform(randomGrad(vars))
		}
		data, err := orig.MarshalState(vars)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		restored := maker()
		if err := restored.UnmarshalState(vars, data); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		next := randomGrad(vars)
		expected := orig.Transform(copyGradient(next))
		actual := restored.Transform(copyGradient(next))
		for _, v := range vars {
			if !reflect.DeepEqual(expected[v].Data(), actual[v].Data()) {
				t.Errorf("%s: restored state gives a different step", name)
			}
		}
	}
}

func TestAdamStateFresh(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	vars := []*anydiff.Var{anydiff.NewVar(c.MakeVector(4))}
	data, err := (&Adam{}).MarshalState(vars)
	if err != nil {
		t.Fatal(err)
	}
	a := &Adam{}
	if err := a.UnmarshalState(vars, data); err != nil {
		t.Fatal(err)
	}
	if a.Steps() != 0 {
		t.Errorf("expected 0 steps but got %d", a.Steps())
	}
	a.Transform(randomGrad(vars))
	if a.Steps() != 1 {
		t.Errorf("expected 1 step but got %d", a.Steps())
	}
}

func TestTransformerStateWrongVars(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	vars := []*anydiff.Var{anydiff.NewVar(c.MakeVector(3))}
	r := &RMSProp{}
	r.Transform(randomGrad(vars))
	data, err := r.MarshalState(vars)
	if err != nil {
		t.Fatal(err)
	}
	other := []*anydiff.Var{anydiff.NewVar(c.MakeVector(5))}
	if err := (&RMSProp{}).UnmarshalState(other, data); err == nil {
		t.Error("expected length error")
	}
}

func TestOptimizerFrozen(t *testing.T) {
	p := newTestProblem(anyvec64.DefaultCreator{})
	adam := &Adam{}
	o := &Optimizer{
		Name:        "frozen",
		Params:      []*anydiff.Var{p.X, p.Y},
		Transformer: adam,
		Rater:       ConstRater(0.1),
		Frozen:      true,
	}
	o.ZeroGrad()
	Backward(p.Cost(newTestSampleList()), o.Grad())
	o.Step(0)
	for _, v := range o.Params {
		if v.Vector.Data().([]float64)[0] != 0 {
			t.Error("frozen parameters moved")
		}
	}
	if adam.Steps() != 0 {
		t.Error("frozen optimizer should not update its transformer")
	}
	if o.Pending() {
		t.Error("step should clear the gradient")
	}
}

func randomGrad(vars []*anydiff.Var) anydiff.Grad {
	res := anydiff.NewGrad(vars...)
	for _, vec := range res {
		anyvec.Rand(vec, anyvec.Normal, nil)
	}
	return res
}

func copyGradient(g anydiff.Grad) anydiff.Grad {
	res := anydiff.Grad{}
	for v, vec := range g {
		res[v] = vec.Copy()
	}
	return res
}
