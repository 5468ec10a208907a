package anysgd

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

const clipDamping = 1e-6

// Shuffle shuffles a list of samples.
// If the list implements PostShuffler, then PostShuffle
// is called after the shuffle completes.
func Shuffle(s SampleList) {
	for i := 0; i < s.Len(); i++ {
		j := i + rand.Intn(s.Len()-i)
		s.Swap(i, j)
	}
	if p, ok := s.(PostShuffler); ok {
		p.PostShuffle()
	}
}

// A ConstRater is a Rater which always returns the same
// constant learning rate.
type ConstRater float64

// Rate returns float64(c).
func (c ConstRater) Rate(epoch float64) float64 {
	return float64(c)
}

// Norm computes the Euclidean norm of a gradient, taken
// over all of its entries.
func Norm(g anydiff.Grad) float64 {
	var sum float64
	for _, v := range g {
		sum += numericFloat(v.Dot(v))
	}
	return math.Sqrt(sum)
}

// ClipNorm rescales g in place so that its norm is at
// most max.
// It returns the norm from before clipping.
//
// A non-positive max disables clipping.
func ClipNorm(g anydiff.Grad, max float64) float64 {
	norm := Norm(g)
	if max > 0 && norm > max {
		scaleGrad(g, max/(norm+clipDamping))
	}
	return norm
}

func scaleGrad(g anydiff.Grad, s float64) {
	for _, v := range g {
		g.Scale(v.Creator().MakeNumeric(s))
		return
	}
}

func valueOrDefault(value, def float64) float64 {
	if value == 0 {
		return def
	}
	return value
}

func numericFloat(n anyvec.Numeric) float64 {
	switch n := n.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		panic(fmt.Sprintf("unsupported numeric type: %T", n))
	}
}
