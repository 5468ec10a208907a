package arae

import (
	"errors"
	"fmt"

	"github.com/PengSasm/arae/anynet"
	"github.com/PengSasm/arae/anyrnn"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
)

// A Batch is a padded mini-batch of token sequences.
//
// Source is the decoder/encoder input (starting with the
// start token) and Target is the same sentence shifted by
// one (ending with the end token).
// Rows are sorted by descending true length and padded
// on the right.
type Batch struct {
	Source  [][]int
	Target  [][]int
	Lengths []int
}

// Validate checks that the batch is non-empty,
// rectangular, and sorted by descending length, with
// every length in [1, MaxLen()].
func (b *Batch) Validate() error {
	if len(b.Lengths) == 0 {
		return errors.New("validate batch: empty batch")
	}
	if len(b.Source) != len(b.Lengths) || len(b.Target) != len(b.Lengths) {
		return fmt.Errorf("validate batch: %d sources, %d targets, %d lengths",
			len(b.Source), len(b.Target), len(b.Lengths))
	}
	maxLen := len(b.Source[0])
	for i, l := range b.Lengths {
		if len(b.Source[i]) != maxLen || len(b.Target[i]) != maxLen {
			return fmt.Errorf("validate batch: row %d is not padded to %d", i, maxLen)
		}
		if l < 1 || l > maxLen {
			return fmt.Errorf("validate batch: length %d of row %d out of range [1, %d]",
				l, i, maxLen)
		}
		if i > 0 && l > b.Lengths[i-1] {
			return fmt.Errorf("validate batch: lengths not descending at row %d", i)
		}
	}
	return nil
}

// Size returns the number of sequences.
func (b *Batch) Size() int {
	return len(b.Lengths)
}

// MaxLen returns the padded length.
func (b *Batch) MaxLen() int {
	if len(b.Source) == 0 {
		return 0
	}
	return len(b.Source[0])
}

// NumTokens returns the number of non-padding tokens.
func (b *Batch) NumTokens() int {
	var res int
	for _, l := range b.Lengths {
		res += l
	}
	return res
}

// A PackedStep holds the tokens of one timestep for the
// sequences still running at that timestep.
type PackedStep struct {
	IDs     []int
	Present anyrnn.PresentMap
}

// PackTokens converts padded rows into packed timesteps.
// Padding never appears in the result; a sequence simply
// stops being present once its length is reached.
//
// Lengths may be in any order, but every length must be
// between 1 and the padded row length.
func PackTokens(tokens [][]int, lengths []int) []*PackedStep {
	if len(tokens) != len(lengths) {
		panic(fmt.Sprintf("%d rows but %d lengths", len(tokens), len(lengths)))
	}
	var maxLen int
	for i, l := range lengths {
		if l < 1 || l > len(tokens[i]) {
			panic(fmt.Sprintf("length %d of row %d out of range", l, i))
		}
		if l > maxLen {
			maxLen = l
		}
	}
	steps := make([]*PackedStep, maxLen)
	for t := range steps {
		step := &PackedStep{Present: make(anyrnn.PresentMap, len(tokens))}
		for i, row := range tokens {
			if t < lengths[i] {
				step.Present[i] = true
				step.IDs = append(step.IDs, row[t])
			}
		}
		steps[t] = step
	}
	return steps
}

// UnpackTokens is the inverse of PackTokens.
// Positions past each sequence's length are filled with
// pad.
func UnpackTokens(steps []*PackedStep, maxLen, pad int) [][]int {
	if len(steps) == 0 {
		return nil
	}
	res := make([][]int, len(steps[0].Present))
	for i := range res {
		res[i] = make([]int, maxLen)
		for j := range res[i] {
			res[i][j] = pad
		}
	}
	for t, step := range steps {
		var idx int
		for i, pres := range step.Present {
			if pres {
				res[i][t] = step.IDs[idx]
				idx++
			}
		}
	}
	return res
}

// EmbedSteps embeds packed timesteps into a
// differentiable sequence.
//
// If layer is non-nil, it is applied to every timestep's
// embeddings.
func EmbedSteps(e *anynet.Embedding, layer anynet.Layer, steps []*PackedStep) anyseq.Seq {
	c := e.Weights.Vector.Creator()
	batches := make([]*anyseq.ResBatch, len(steps))
	for t, step := range steps {
		var packed anydiff.Res = e.Embed(step.IDs)
		if layer != nil {
			packed = layer.Apply(packed, len(step.IDs))
		}
		batches[t] = &anyseq.ResBatch{Packed: packed, Present: step.Present}
	}
	return anyseq.ResSeq(c, batches)
}

// UnpackRows converts packed per-timestep outputs into a
// [sequence][timestep][component] layout.
// Each sequence only has rows for its present timesteps.
func UnpackRows(batches []*anyseq.Batch) [][][]float64 {
	separate := anyseq.SeparateSeqs(batches)
	res := make([][][]float64, len(separate))
	for i, seq := range separate {
		res[i] = make([][]float64, len(seq))
		for t, vec := range seq {
			res[i][t] = anynet.Float64s(vec.Data())
		}
	}
	return res
}

// gatherRows selects the rows of a packed batch that
// belong to present sequences.
func gatherRows(in anydiff.Res, present anyrnn.PresentMap) anydiff.Res {
	if present.NumPresent() == len(present) {
		return in
	}
	rowSize := in.Output().Len() / len(present)
	var rows []anydiff.Res
	for i, pres := range present {
		if pres {
			rows = append(rows, anydiff.Slice(in, i*rowSize, (i+1)*rowSize))
		}
	}
	return anydiff.Concat(rows...)
}

// vectorFloats converts a vector to a []float64.
func vectorFloats(v anyvec.Vector) []float64 {
	return anynet.Float64s(v.Data())
}
