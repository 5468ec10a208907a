package anyrnn

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
)

// randomTestSequence builds a three-sequence batch with
// lengths 3, 1, and 2.
func randomTestSequence(c anyvec.Creator, inSize int) (anyseq.Seq, []*anydiff.Var) {
	presents := [][]bool{
		{true, true, true},
		{true, false, true},
		{true, false, false},
	}
	var vars []*anydiff.Var
	var batches []*anyseq.ResBatch
	for _, pres := range presents {
		n := 0
		for _, p := range pres {
			if p {
				n++
			}
		}
		vec := c.MakeVector(n * inSize)
		anyvec.Rand(vec, anyvec.Normal, nil)
		v := anydiff.NewVar(vec)
		vars = append(vars, v)
		batches = append(batches, &anyseq.ResBatch{Packed: v, Present: pres})
	}
	return anyseq.ResSeq(c, batches), vars
}
