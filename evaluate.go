package arae

import (
	"fmt"
	"io"
	"strings"

	"github.com/PengSasm/arae/anynet"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/essentials"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// EvalOptions configures Evaluate.
type EvalOptions struct {
	// Epoch labels the resulting stats.
	Epoch int

	// Noise adds encoder noise to the evaluated codes.
	Noise bool

	// Debug, if non-nil, receives the mean and norms of
	// every batch of codes.
	Debug io.Writer
}

// EvalStats are the results of an evaluation pass.
type EvalStats struct {
	EpochStats

	// Mean and standard deviation of the discriminator's
	// output on encoded and generated codes.
	RealMean, RealStd float64
	FakeMean, FakeStd float64
}

// Evaluate measures the reconstruction and adversarial
// losses on batches without updating the model.
//
// If transcript is non-nil, every example is written to
// it as a line of target tokens, a line of the decoder's
// most likely tokens, and a blank line.
// Only the true length of each example is written.
func Evaluate(m *Model, batches []*Batch, vocab Vocab, transcript io.Writer,
	opts *EvalOptions) (*EvalStats, error) {
	if opts == nil {
		opts = &EvalOptions{}
	}
	m.SetTraining(false)
	c := m.Creator()

	res := &EvalStats{EpochStats: EpochStats{Epoch: opts.Epoch}}
	var realProbs, fakeProbs []float64
	for i, b := range batches {
		if err := b.Validate(); err != nil {
			return nil, essentials.AddCtx(fmt.Sprintf("evaluate batch %d", i), err)
		}
		n := b.Size()
		losses := &BatchLosses{Examples: n}

		latent := m.Encoder.Encode(b.Source, b.Lengths, opts.Noise)
		if opts.Debug != nil {
			debug := &anynet.Debug{Writer: opts.Debug, ID: "latent", PrintMean: true,
				PrintNorms: true}
			debug.Apply(latent, n)
		}
		logits := m.Decoder.Decode(latent, b.Source, b.Lengths)
		if err := finiteLoss("reconstruction",
			ReconstructionLoss(logits, b.Target, b.Lengths), &losses.NLL); err != nil {
			return nil, err
		}

		advLatent := m.Encoder.Encode(b.Source, b.Lengths, opts.Noise)
		if err := finiteLoss("encoder_adversarial",
			AdversarialLoss(m.Discriminator, advLatent), &losses.AdvEnc); err != nil {
			return nil, err
		}

		fake := anydiff.NewConst(m.Generator.Sample(c, n, nil).Output())
		if err := finiteLoss("discriminator",
			DiscriminatorLoss(m.Discriminator, latent, fake), &losses.Disc); err != nil {
			return nil, err
		}
		realProbs = append(realProbs, vectorFloats(m.Discriminator.Discriminate(latent,
			n).Output())...)
		fakeProbs = append(fakeProbs, vectorFloats(m.Discriminator.Discriminate(fake,
			n).Output())...)
		res.Add(losses)

		if transcript != nil {
			if err := writeTranscript(transcript, vocab, b, UnpackRows(logits.Output())); err != nil {
				return nil, err
			}
		}
	}
	if len(realProbs) > 0 {
		res.RealMean, res.RealStd = stat.MeanStdDev(realProbs, nil)
		res.FakeMean, res.FakeStd = stat.MeanStdDev(fakeProbs, nil)
	}
	return res, nil
}

func writeTranscript(w io.Writer, vocab Vocab, b *Batch, logits [][][]float64) error {
	for i, rows := range logits {
		target := make([]string, b.Lengths[i])
		predicted := make([]string, len(rows))
		for t := range target {
			target[t] = vocab.Token(b.Target[i][t])
		}
		for t, row := range rows {
			predicted[t] = vocab.Token(floats.MaxIdx(row))
		}
		_, err := fmt.Fprintf(w, "%s\n%s\n\n", strings.Join(target, " "),
			strings.Join(predicted, " "))
		if err != nil {
			return essentials.AddCtx("write transcript", err)
		}
	}
	return nil
}
