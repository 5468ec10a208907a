package anynet

import (
	"fmt"

	"github.com/unixpickle/anydiff"
)

// A Cost scores a packed batch of outputs against a
// packed batch of targets, producing one cost per vector.
type Cost interface {
	Cost(desired, actual anydiff.Res, n int) anydiff.Res
}

// SigmoidCE is binary cross-entropy on logits.
//
// It uses log(sigmoid(x)) and log(sigmoid(-x)) directly,
// so saturated logits still give finite costs.
type SigmoidCE struct {
	// Average divides each vector's cost by its length.
	Average bool
}

// Cost computes the cross-entropy between desired
// probabilities and sigmoid(actual).
func (s SigmoidCE) Cost(desired, actual anydiff.Res, n int) anydiff.Res {
	cols := checkCostShape(desired, actual, n)
	c := actual.Output().Creator()
	logLikelihood := anydiff.Pool(actual, func(logits anydiff.Res) anydiff.Res {
		return anydiff.Pool(desired, func(p anydiff.Res) anydiff.Res {
			positive := anydiff.Mul(p, anydiff.LogSigmoid(logits))
			negative := anydiff.Mul(anydiff.Complement(p),
				anydiff.LogSigmoid(anydiff.Scale(logits, c.MakeNumeric(-1))))
			return anydiff.Add(positive, negative)
		})
	})
	sums := anydiff.SumCols(&anydiff.Matrix{Data: logLikelihood, Rows: n, Cols: cols})
	scale := -1.0
	if s.Average {
		scale /= float64(cols)
	}
	return anydiff.Scale(sums, c.MakeNumeric(scale))
}

// Mean averages a batch of scalar costs into a single
// component.
func Mean(costs anydiff.Res) anydiff.Res {
	n := costs.Output().Len()
	if n == 0 {
		panic("mean of empty cost batch")
	}
	return anydiff.Scale(anydiff.Sum(costs),
		costs.Output().Creator().MakeNumeric(1/float64(n)))
}

// checkCostShape returns the length of each vector.
func checkCostShape(desired, actual anydiff.Res, n int) int {
	if desired.Output().Len() != actual.Output().Len() {
		panic(fmt.Sprintf("desired length %d does not match actual length %d",
			desired.Output().Len(), actual.Output().Len()))
	}
	if n <= 0 || actual.Output().Len()%n != 0 {
		panic(fmt.Sprintf("batch size %d must divide output length %d",
			n, actual.Output().Len()))
	}
	return actual.Output().Len() / n
}
