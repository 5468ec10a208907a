package anynet

import (
	"fmt"

	"github.com/unixpickle/anydiff"
)

// ConcatMixer joins two packed batches vector by vector,
// so the i-th output vector is the i-th vector of the
// first batch followed by the i-th vector of the second.
type ConcatMixer struct{}

// Mix concatenates in1 and in2 per example.
func (c ConcatMixer) Mix(in1, in2 anydiff.Res, batch int) anydiff.Res {
	len1, len2 := in1.Output().Len(), in2.Output().Len()
	if batch <= 0 || len1%batch != 0 || len2%batch != 0 {
		panic(fmt.Sprintf("batch size %d must divide input lengths %d and %d",
			batch, len1, len2))
	}
	cols1, cols2 := len1/batch, len2/batch

	// Stacking the transposes puts each example in one
	// column, and transposing back makes it one row.
	t1 := anydiff.Transpose(&anydiff.Matrix{Data: in1, Rows: batch, Cols: cols1})
	t2 := anydiff.Transpose(&anydiff.Matrix{Data: in2, Rows: batch, Cols: cols2})
	return anydiff.Transpose(&anydiff.Matrix{
		Data: anydiff.Concat(t1.Data, t2.Data),
		Rows: cols1 + cols2,
		Cols: batch,
	}).Data
}
