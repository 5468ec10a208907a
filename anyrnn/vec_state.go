package anyrnn

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// A VecState is a State and StateGrad stored as a packed
// vector with one equally-sized chunk per present
// sequence.
type VecState struct {
	Vector     anyvec.Vector
	PresentMap PresentMap
}

// NewVecState generates a VecState with the vector
// repeated n times.
func NewVecState(v anyvec.Vector, n int) *VecState {
	rep := v.Creator().MakeVector(v.Len() * n)
	anyvec.AddRepeated(rep, v)
	return &VecState{
		Vector:     rep,
		PresentMap: Full(n),
	}
}

// Present returns the PresentMap.
func (v *VecState) Present() PresentMap {
	return v.PresentMap
}

// Reduce drops the chunks of sequences that are absent
// from p.
func (v *VecState) Reduce(p PresentMap) State {
	chunk := v.chunkSize()
	var parts []anyvec.Vector
	var offset int
	for i, oldPres := range v.PresentMap {
		if p[i] && !oldPres {
			panic("argument to Reduce must be a subset")
		}
		if !oldPres {
			continue
		}
		if p[i] {
			parts = append(parts, v.Vector.Slice(offset, offset+chunk))
		}
		offset += chunk
	}
	return &VecState{
		Vector:     joinChunks(v.Vector.Creator(), parts),
		PresentMap: p,
	}
}

// Expand inserts zero chunks for sequences that are in p
// but absent from v.
func (v *VecState) Expand(p PresentMap) StateGrad {
	chunk := v.chunkSize()
	zero := v.Vector.Creator().MakeVector(chunk)
	var parts []anyvec.Vector
	var offset int
	for i, newPres := range p {
		if v.PresentMap[i] && !newPres {
			panic("argument to Expand must be a superset")
		}
		if v.PresentMap[i] {
			parts = append(parts, v.Vector.Slice(offset, offset+chunk))
			offset += chunk
		} else if newPres {
			parts = append(parts, zero)
		}
	}
	return &VecState{
		Vector:     joinChunks(v.Vector.Creator(), parts),
		PresentMap: p,
	}
}

// PropagateStart sums the batched upstream gradient into
// the start variable va.
//
// All sequences must be present.
func (v *VecState) PropagateStart(va *anydiff.Var, g anydiff.Grad) {
	if v.PresentMap.NumPresent() != len(v.PresentMap) {
		panic("all sequences must be present")
	}
	if dest, ok := g[va]; ok {
		dest.Add(anyvec.SumRows(v.Vector, len(v.PresentMap)))
	}
}

func (v *VecState) chunkSize() int {
	n := v.PresentMap.NumPresent()
	if n == 0 {
		return 0
	}
	return v.Vector.Len() / n
}

func joinChunks(c anyvec.Creator, parts []anyvec.Vector) anyvec.Vector {
	if len(parts) == 0 {
		return c.MakeVector(0)
	}
	return c.Concat(parts...)
}
