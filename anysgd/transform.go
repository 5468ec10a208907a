package anysgd

import (
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

const (
	adamDefaultDecayRate1 = 0.9
	adamDefaultDecayRate2 = 0.999
	adamDefaultDamping    = 1e-8

	rmspropDefaultDecayRate = 0.9
	rmspropDefaultDamping   = 1e-8
)

// Adam implements adaptive moment estimation; see
// https://arxiv.org/abs/1412.6980.
//
// An Adam tracks moments for the variables of a single
// parameter group, so each Optimizer needs its own.
type Adam struct {
	// Decay rates of the first and second moments.
	// If 0, 0.9 and 0.999 are used.
	DecayRate1, DecayRate2 float64

	// Damping is added to the second moment before
	// dividing by its square root.
	// If 0, 1e-8 is used.
	Damping float64

	first  gradAverage
	second gradAverage
	steps  float64
}

// Transform replaces the gradient with the bias-corrected
// Adam step direction.
func (a *Adam) Transform(g anydiff.Grad) anydiff.Grad {
	d1 := valueOrDefault(a.DecayRate1, adamDefaultDecayRate1)
	d2 := valueOrDefault(a.DecayRate2, adamDefaultDecayRate2)
	a.first.Keep, a.first.Scale = d1, 1-d1
	a.second.Keep, a.second.Scale = d2, 1-d2

	a.steps++
	correction := math.Sqrt(1-math.Pow(d2, a.steps)) / (1 - math.Pow(d1, a.steps))
	damping := valueOrDefault(a.Damping, adamDefaultDamping)
	for v, vec := range g {
		first := a.first.Add(v, vec)
		invRoot := invSqrt(a.second.Add(v, squared(vec)), damping)
		vec.Set(first)
		vec.Scale(vec.Creator().MakeNumeric(correction))
		vec.Mul(invRoot)
	}
	return g
}

// RMSProp divides each gradient by a running root mean
// square of past gradients.
type RMSProp struct {
	// DecayRate is the weight of the old average.
	// If 0, 0.9 is used.
	DecayRate float64

	// Damping is added before taking the square root.
	// If 0, 1e-8 is used.
	Damping float64

	meanSquare gradAverage
}

// Transform applies RMSProp to the gradient.
func (r *RMSProp) Transform(g anydiff.Grad) anydiff.Grad {
	decay := valueOrDefault(r.DecayRate, rmspropDefaultDecayRate)
	r.meanSquare.Keep, r.meanSquare.Scale = decay, 1-decay
	r.meanSquare.Seed = true
	damping := valueOrDefault(r.Damping, rmspropDefaultDamping)
	for v, vec := range g {
		vec.Mul(invSqrt(r.meanSquare.Add(v, squared(vec)), damping))
	}
	return g
}

// Momentum implements SGD with momentum, where the step
// direction v evolves as
//
//     v := Momentum*v + grad
type Momentum struct {
	Momentum float64

	velocity gradAverage
}

// Transform replaces the gradient with the velocity.
func (m *Momentum) Transform(g anydiff.Grad) anydiff.Grad {
	m.velocity.Keep, m.velocity.Scale = m.Momentum, 1
	for v, vec := range g {
		vec.Set(m.velocity.Add(v, vec))
	}
	return g
}

// gradAverage keeps a decaying per-variable sum
//
//     avg := Keep*avg + Scale*x
//
// which starts at zero, or at the first x when Seed is
// set.
type gradAverage struct {
	Keep  float64
	Scale float64
	Seed  bool

	values anydiff.Grad
}

// Add folds x into the average for v and returns the
// updated average, which must not be modified.
func (g *gradAverage) Add(v *anydiff.Var, x anyvec.Vector) anyvec.Vector {
	c := x.Creator()
	if g.values == nil {
		g.values = anydiff.Grad{}
	}
	avg, ok := g.values[v]
	if !ok {
		avg = x.Copy()
		if !g.Seed {
			avg.Scale(c.MakeNumeric(g.Scale))
		}
		g.values[v] = avg
		return avg
	}
	avg.Scale(c.MakeNumeric(g.Keep))
	scaled := x.Copy()
	scaled.Scale(c.MakeNumeric(g.Scale))
	avg.Add(scaled)
	return avg
}

func squared(v anyvec.Vector) anyvec.Vector {
	res := v.Copy()
	anyvec.Pow(res, res.Creator().MakeNumeric(2))
	return res
}

// invSqrt computes 1/sqrt(v+damping) in a new vector.
func invSqrt(v anyvec.Vector, damping float64) anyvec.Vector {
	res := v.Copy()
	res.AddScalar(res.Creator().MakeNumeric(damping))
	anyvec.Pow(res, res.Creator().MakeNumeric(-0.5))
	return res
}
