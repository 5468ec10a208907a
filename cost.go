package arae

import (
	"fmt"
	"math"

	"github.com/PengSasm/arae/anynet"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
	"gonum.org/v1/gonum/stat"
)

// LossEpsilon is added inside the logarithms of the
// probability-space losses.
const LossEpsilon = 1e-15

// ReconstructionLoss computes the mean cross-entropy of
// the targets under the decoder's logits.
//
// The mean is taken over real tokens only; padding never
// contributes to the loss.
func ReconstructionLoss(logits anyseq.Seq, targets [][]int, lengths []int) anydiff.Res {
	steps := PackTokens(targets, lengths)
	outs := logits.Output()
	if len(outs) != len(steps) {
		panic(fmt.Sprintf("got %d logit timesteps for %d target timesteps",
			len(outs), len(steps)))
	}

	var idx, numTokens int
	costs := anyseq.Map(logits, func(a anydiff.Res, n int) anydiff.Res {
		step := steps[idx]
		idx++
		if len(step.IDs) != n {
			panic("mismatching logit and target shapes")
		}
		numTokens += n
		vocab := a.Output().Len() / n
		c := a.Output().Creator()
		return anydiff.Pool(anynet.LogSoftmax.Apply(a, n), func(logProbs anydiff.Res) anydiff.Res {
			picked := make([]anydiff.Res, n)
			for i, id := range step.IDs {
				if id < 0 || id >= vocab {
					panic(fmt.Sprintf("target %d out of range [0, %d)", id, vocab))
				}
				picked[i] = anydiff.Slice(logProbs, i*vocab+id, i*vocab+id+1)
			}
			return anydiff.Scale(anydiff.Concat(picked...), c.MakeNumeric(-1))
		})
	})

	sum := anydiff.Sum(anyseq.Sum(costs))
	return anydiff.Scale(sum, sum.Output().Creator().MakeNumeric(1/float64(numTokens)))
}

// DiscriminatorLoss computes
//
//     -mean(log(D(real)) + log(1 - D(fake)))
//
// in a numerically stable form.
// The real and fake batches must have the same shape.
func DiscriminatorLoss(d *Discriminator, realCodes, fakeCodes anydiff.Res) anydiff.Res {
	if realCodes.Output().Len() != fakeCodes.Output().Len() {
		panic(fmt.Sprintf("real latent length %d does not match fake latent length %d",
			realCodes.Output().Len(), fakeCodes.Output().Len()))
	}
	n := realCodes.Output().Len() / d.LatentSize
	c := realCodes.Output().Creator()
	realCost := anynet.SigmoidCE{}.Cost(constBatch(c, n, 1), d.Logits(realCodes, n), n)
	fakeCost := anynet.SigmoidCE{}.Cost(constBatch(c, n, 0), d.Logits(fakeCodes, n), n)
	return anydiff.Add(anynet.Mean(realCost), anynet.Mean(fakeCost))
}

// AdversarialLoss computes -mean(log(D(latent))), the
// loss of making the discriminator call latent real.
func AdversarialLoss(d *Discriminator, latent anydiff.Res) anydiff.Res {
	n := latent.Output().Len() / d.LatentSize
	c := latent.Output().Creator()
	return anynet.Mean(anynet.SigmoidCE{}.Cost(constBatch(c, n, 1), d.Logits(latent, n), n))
}

// ProbabilityLoss evaluates the discriminator or
// adversarial loss directly from probabilities, using
// LossEpsilon to keep the logarithms finite.
//
// If fakeProbs is nil, the adversarial loss of
// realProbs is computed.
func ProbabilityLoss(realProbs, fakeProbs []float64) float64 {
	terms := make([]float64, len(realProbs))
	for i, p := range realProbs {
		terms[i] = math.Log(p + LossEpsilon)
		if fakeProbs != nil {
			terms[i] += math.Log(1 - fakeProbs[i] + LossEpsilon)
		}
	}
	return -stat.Mean(terms, nil)
}

// ScalarValue reads the single component of a loss.
func ScalarValue(r anydiff.Res) float64 {
	values := vectorFloats(r.Output())
	if len(values) != 1 {
		panic(fmt.Sprintf("expected a scalar but got %d components", len(values)))
	}
	return values[0]
}

func constBatch(c anyvec.Creator, n int, value float64) anydiff.Res {
	vec := c.MakeVector(n)
	vec.AddScalar(c.MakeNumeric(value))
	return anydiff.NewConst(vec)
}
