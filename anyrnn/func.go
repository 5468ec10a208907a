package anyrnn

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// A FuncBlock turns a differentiable step function into
// a Block.
// The recurrent state is a packed vector with one chunk
// per present sequence.
type FuncBlock struct {
	// Func computes one step for n sequences.
	// A nil out means the new state is also the output.
	Func func(in, state anydiff.Res, n int) (out, newState anydiff.Res)

	// MakeStart returns the start state for n sequences.
	MakeStart func(n int) anydiff.Res
}

// Start evaluates MakeStart for n sequences.
func (f *FuncBlock) Start(n int) State {
	start := f.MakeStart(n)
	return &FuncState{
		Vec:   &VecState{Vector: start.Output(), PresentMap: Full(n)},
		Start: start,
		V:     start.Vars(),
	}
}

// PropagateStart back-propagates a state gradient through
// the result of MakeStart.
func (f *FuncBlock) PropagateStart(sg StateGrad, g anydiff.Grad) {
	st := sg.(*FuncState)
	st.Start.Propagate(st.Vec.Vector, g)
}

// Step runs Func on a single timestep.
//
// The input and state are wrapped in fresh variables so
// that Propagate can read their gradients back out.
func (f *FuncBlock) Step(s State, in anyvec.Vector) Res {
	st := s.(*FuncState)
	inVar := anydiff.NewVar(in)
	stateVar := anydiff.NewVar(st.Vec.Vector)
	out, newState := f.Func(inVar, stateVar, s.Present().NumPresent())
	if out == nil {
		out = newState
	}

	// Variables reached through the state must carry over
	// to later steps, even if this step's output does not
	// depend on them.
	stateVars := anydiff.MergeVarSets(st.V, newState.Vars())
	allVars := anydiff.MergeVarSets(stateVars, out.Vars())
	for _, vs := range []anydiff.VarSet{stateVars, allVars} {
		vs.Del(inVar)
		vs.Del(stateVar)
	}

	return &funcRes{
		In:        inVar,
		PrevState: stateVar,
		Out:       out,
		NewState:  newState,
		Next: &FuncState{
			Vec:   &VecState{Vector: newState.Output(), PresentMap: st.Vec.PresentMap},
			Start: st.Start,
			V:     stateVars,
		},
		V: allVars,
	}
}

// FuncState is the State and StateGrad of a FuncBlock.
type FuncState struct {
	Vec *VecState

	// Start is the result that produced the first state,
	// kept for PropagateStart.
	Start anydiff.Res

	// V holds the variables the state depends on.
	V anydiff.VarSet
}

// Present returns the sequences in the state.
func (f *FuncState) Present() PresentMap {
	return f.Vec.PresentMap
}

// Reduce drops sequences that are absent from p.
func (f *FuncState) Reduce(p PresentMap) State {
	return &FuncState{Vec: f.Vec.Reduce(p).(*VecState), Start: f.Start, V: f.V}
}

// Expand pads the gradient with zeros for sequences in p.
func (f *FuncState) Expand(p PresentMap) StateGrad {
	return &FuncState{Vec: f.Vec.Expand(p).(*VecState), Start: f.Start, V: f.V}
}

type funcRes struct {
	In        *anydiff.Var
	PrevState *anydiff.Var
	Out       anydiff.Res
	NewState  anydiff.Res
	Next      *FuncState
	V         anydiff.VarSet
}

func (f *funcRes) State() State {
	return f.Next
}

func (f *funcRes) Output() anyvec.Vector {
	return f.Out.Output()
}

func (f *funcRes) Vars() anydiff.VarSet {
	return f.V
}

func (f *funcRes) Propagate(u anyvec.Vector, sg StateGrad,
	g anydiff.Grad) (anyvec.Vector, StateGrad) {
	c := u.Creator()
	inGrad := c.MakeVector(f.In.Vector.Len())
	stateGrad := c.MakeVector(f.PrevState.Vector.Len())
	g[f.In] = inGrad
	g[f.PrevState] = stateGrad
	defer delete(g, f.In)
	defer delete(g, f.PrevState)

	f.Out.Propagate(u, g)
	if sg != nil {
		f.NewState.Propagate(sg.(*FuncState).Vec.Vector, g)
	}
	return inGrad, &FuncState{
		Vec:   &VecState{Vector: stateGrad, PresentMap: f.Next.Vec.PresentMap},
		Start: f.Next.Start,
	}
}
