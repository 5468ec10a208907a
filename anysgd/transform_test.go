package anysgd

import (
	"math"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestAdam(t *testing.T) {
	p := newTestProblem(anyvec32.DefaultCreator{})
	o := &Optimizer{
		Name:        "adam",
		Params:      []*anydiff.Var{p.X, p.Y},
		Transformer: &Adam{},
		Rater:       ConstRater(0.001),
	}
	p.minimize(o, 100000)
	if p.errorMargin() > 1e-2 {
		x, y := p.current()
		t.Errorf("bad solution: %f, %f", x, y)
	}
}

func TestAdamFirstStep(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	v := anydiff.NewVar(c.MakeVectorData([]float64{1, -2}))
	g := anydiff.Grad{v: c.MakeVectorData([]float64{0.5, -4})}
	(&Adam{}).Transform(g)
	// The bias-corrected first step is sign(grad).
	for i, x := range g[v].Data().([]float64) {
		expected := []float64{1, -1}[i]
		if math.Abs(x-expected) > 1e-4 {
			t.Errorf("component %d: expected %f but got %f", i, expected, x)
		}
	}
}

func TestRMSProp(t *testing.T) {
	p := newTestProblem(anyvec32.DefaultCreator{})
	o := &Optimizer{
		Name:        "rmsprop",
		Params:      []*anydiff.Var{p.X, p.Y},
		Transformer: &RMSProp{},
		Rater:       ConstRater(0.0005),
	}
	p.minimize(o, 100000)
	if p.errorMargin() > 1e-1 {
		x, y := p.current()
		t.Errorf("bad solution: %f, %f", x, y)
	}
}

func TestMomentumVelocity(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	v := anydiff.NewVar(c.MakeVector(1))
	m := &Momentum{Momentum: 0.5}
	var actual []float64
	for _, x := range []float64{1, 1, 2} {
		g := anydiff.Grad{v: c.MakeVectorData([]float64{x})}
		m.Transform(g)
		actual = append(actual, g[v].Data().([]float64)[0])
	}
	expected := []float64{1, 1.5, 2.75}
	for i, x := range expected {
		if math.Abs(actual[i]-x) > 1e-12 {
			t.Errorf("step %d: expected %f but got %f", i, x, actual[i])
		}
	}
}
