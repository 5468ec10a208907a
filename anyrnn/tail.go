package anyrnn

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
)

type tailRes struct {
	In      anyseq.Seq
	Lengths []int
	OutVec  anyvec.Vector
}

// Tail produces a packed batch containing the output of
// each sequence at its final present timestep.
//
// The result has one vector per sequence, in batch order.
// Every sequence must have at least one timestep.
func Tail(seq anyseq.Seq) anydiff.Res {
	separate := anyseq.SeparateSeqs(seq.Output())
	if len(separate) == 0 {
		panic("cannot take the tail of an empty batch")
	}
	lengths := make([]int, len(separate))
	lasts := make([]anyvec.Vector, len(separate))
	for i, x := range separate {
		if len(x) == 0 {
			panic("cannot take the tail of an empty sequence")
		}
		lengths[i] = len(x)
		lasts[i] = x[len(x)-1]
	}
	return &tailRes{
		In:      seq,
		Lengths: lengths,
		OutVec:  seq.Creator().Concat(lasts...),
	}
}

func (t *tailRes) Output() anyvec.Vector {
	return t.OutVec
}

func (t *tailRes) Vars() anydiff.VarSet {
	return t.In.Vars()
}

func (t *tailRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	c := u.Creator()
	chunk := u.Len() / len(t.Lengths)
	downstream := make([][]anyvec.Vector, len(t.Lengths))
	for i, length := range t.Lengths {
		steps := make([]anyvec.Vector, length)
		for j := 0; j < length-1; j++ {
			steps[j] = c.MakeVector(chunk)
		}
		steps[length-1] = u.Slice(i*chunk, (i+1)*chunk)
		downstream[i] = steps
	}
	t.In.Propagate(anyseq.ConstSeqList(c, downstream).Output(), g)
}
