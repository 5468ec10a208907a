// Package anyrnn implements recurrent blocks and the
// machinery for running them over packed sequences.
package anyrnn

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// A PresentMap marks which sequences of a batch are still
// running at a timestep.
type PresentMap []bool

// NumPresent counts the present sequences.
func (p PresentMap) NumPresent() int {
	var i int
	for _, x := range p {
		if x {
			i++
		}
	}
	return i
}

// Full returns a PresentMap with n present sequences.
func Full(n int) PresentMap {
	res := make(PresentMap, n)
	for i := range res {
		res[i] = true
	}
	return res
}

// A State stores the recurrent state of a batch.
//
// Only present sequences have state.
// When sequences of different lengths are packed in
// descending order, shorter sequences drop out of the
// batch and their states are removed with Reduce.
type State interface {
	Present() PresentMap

	// Reduce returns a copy of the State restricted to a
	// subset of Present().
	Reduce(PresentMap) State
}

// A StateGrad is an upstream gradient for a State.
type StateGrad interface {
	Present() PresentMap

	// Expand inserts zero gradients for sequences that are
	// in the PresentMap but not in Present().
	// It undoes State.Reduce.
	Expand(PresentMap) StateGrad
}

// A Block is one recurrent step of a network.
// It maps an input batch and a state batch to an output
// batch and a new state batch.
type Block interface {
	// Start produces a fresh start state for n sequences.
	Start(n int) State

	// PropagateStart back-propagates through the start
	// state.
	PropagateStart(s StateGrad, g anydiff.Grad)

	// Step applies the block for a single timestep.
	Step(s State, in anyvec.Vector) Res
}

// A Res is the result of one Block step.
type Res interface {
	State() State
	Output() anyvec.Vector

	// Vars returns every variable the output or state
	// depends on, including those of earlier timesteps.
	Vars() anydiff.VarSet

	// Propagate back-propagates an upstream output vector
	// u and upstream state gradient s through the step,
	// accumulating into g.
	// A nil s means the state upstream is zero.
	//
	// It returns the downstream input gradient and the
	// gradient for the previous state.
	// Both u and s may be overwritten.
	Propagate(u anyvec.Vector, s StateGrad, g anydiff.Grad) (anyvec.Vector, StateGrad)
}
