package anyrnn

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
)

// Map runs a Block over a packed sequence batch, starting
// from the block's start state, and returns the outputs
// at every timestep.
//
// Sequences drop out of the state as they end, so a
// finished sequence never sees another step.
func Map(s anyseq.Seq, b Block) anyseq.Seq {
	steps := s.Output()
	res := &mapRes{C: s.Creator(), In: s, Block: b, V: anydiff.VarSet{}}
	if len(steps) == 0 {
		return res
	}
	res.V = s.Vars()

	state := b.Start(len(steps[0].Present))
	res.StartPresent = state.Present()
	for _, step := range steps {
		state = reduceState(state, step.Present)
		out := b.Step(state, step.Packed)
		res.Steps = append(res.Steps, out)
		res.Out = append(res.Out, &anyseq.Batch{Packed: out.Output(), Present: step.Present})
		res.V = anydiff.MergeVarSets(res.V, out.Vars())
		state = out.State()
	}
	return res
}

type mapRes struct {
	C            anyvec.Creator
	In           anyseq.Seq
	Block        Block
	StartPresent PresentMap
	Steps        []Res
	Out          []*anyseq.Batch
	V            anydiff.VarSet
}

func (m *mapRes) Creator() anyvec.Creator {
	return m.C
}

func (m *mapRes) Output() []*anyseq.Batch {
	return m.Out
}

func (m *mapRes) Vars() anydiff.VarSet {
	return m.V
}

func (m *mapRes) Propagate(u []*anyseq.Batch, g anydiff.Grad) {
	if len(u) == 0 {
		return
	}
	propagateIn := g.Intersects(m.In.Vars())
	down := make([]*anyseq.Batch, len(u))

	var stateGrad StateGrad
	for t := len(m.Steps) - 1; t >= 0; t-- {
		step := m.Steps[t]
		if stateGrad != nil {
			stateGrad = expandGrad(stateGrad, step.State().Present())
		}
		var inGrad anyvec.Vector
		inGrad, stateGrad = step.Propagate(u[t].Packed, stateGrad, g)
		down[t] = &anyseq.Batch{Packed: inGrad, Present: u[t].Present}
	}
	if stateGrad != nil {
		m.Block.PropagateStart(expandGrad(stateGrad, m.StartPresent), g)
	}

	if propagateIn {
		m.In.Propagate(down, g)
	}
}

func reduceState(s State, p PresentMap) State {
	if s.Present().NumPresent() == p.NumPresent() {
		return s
	}
	return s.Reduce(p)
}

func expandGrad(s StateGrad, p PresentMap) StateGrad {
	if s.Present().NumPresent() == p.NumPresent() {
		return s
	}
	return s.Expand(p)
}
