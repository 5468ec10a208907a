package anysgd

import "github.com/unixpickle/anydiff"

// A Transformer rewrites a gradient into a step direction
// before it is applied.
//
// Transformers may keep per-variable state, so one
// Transformer must only ever see one parameter group.
// Transform may modify and return its argument, but must
// not hold on to it.
type Transformer interface {
	Transform(g anydiff.Grad) anydiff.Grad
}

// A Rater picks the learning rate for a step.
// The epoch may be fractional.
type Rater interface {
	Rate(epoch float64) float64
}

// A SampleList is an ordered collection of training
// samples that can be shuffled and split.
type SampleList interface {
	Len() int
	Swap(i, j int)

	// Slice returns a shallow copy of the samples in
	// [i, j).
	Slice(i, j int) SampleList
}

// A PostShuffler is notified by Shuffle once the order of
// its samples has been randomized, so it can group
// similar samples into the same batch.
type PostShuffler interface {
	PostShuffle()
}
