package arae

import (
	"math"
	"testing"

	"github.com/PengSasm/arae/anynet"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
)

// identityDiscriminator scores a 1-dimensional code by
// the code itself.
func identityDiscriminator(c anyvec.Creator) *Discriminator {
	fc := anynet.NewFCZero(c, 1, 1)
	fc.Weights.Vector.SetData(c.MakeNumericList([]float64{1}))
	return &Discriminator{LatentSize: 1, Net: anynet.Net{fc}}
}

func constCodes(c anyvec.Creator, values ...float64) anydiff.Res {
	return anydiff.NewConst(c.MakeVectorData(c.MakeNumericList(values)))
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func TestDiscriminatorLossAsymmetric(t *testing.T) {
	c := float64Creator()
	d := identityDiscriminator(c)
	realCodes, fakeCodes := constCodes(c, 2, 3), constCodes(c, -2, -1)

	loss := ScalarValue(DiscriminatorLoss(d, realCodes, fakeCodes))
	swapped := ScalarValue(DiscriminatorLoss(d, fakeCodes, realCodes))
	expected := ProbabilityLoss([]float64{sigmoid(2), sigmoid(3)},
		[]float64{sigmoid(-2), sigmoid(-1)})
	expectedSwapped := ProbabilityLoss([]float64{sigmoid(-2), sigmoid(-1)},
		[]float64{sigmoid(2), sigmoid(3)})

	if math.Abs(loss-expected) > 1e-6 {
		t.Errorf("expected %f but got %f", expected, loss)
	}
	if math.Abs(swapped-expectedSwapped) > 1e-6 {
		t.Errorf("expected %f but got %f", expectedSwapped, swapped)
	}
	if math.Abs(loss-swapped) < 1 {
		t.Errorf("loss should not be symmetric: %f vs %f", loss, swapped)
	}
}

func TestDiscriminatorLossMismatch(t *testing.T) {
	c := float64Creator()
	d := identityDiscriminator(c)
	defer func() {
		if recover() == nil {
			t.Error("expected a panic")
		}
	}()
	DiscriminatorLoss(d, constCodes(c, 1, 2), constCodes(c, 1))
}

func TestAdversarialLoss(t *testing.T) {
	c := float64Creator()
	d := identityDiscriminator(c)
	actual := ScalarValue(AdversarialLoss(d, constCodes(c, 1, -3)))
	expected := ProbabilityLoss([]float64{sigmoid(1), sigmoid(-3)}, nil)
	if math.Abs(actual-expected) > 1e-6 {
		t.Errorf("expected %f but got %f", expected, actual)
	}
}

func TestReconstructionLossUniform(t *testing.T) {
	c := float64Creator()
	logits := anyseq.ConstSeqList(c, [][]anyvec.Vector{
		{c.MakeVector(5), c.MakeVector(5)},
		{c.MakeVector(5)},
	})
	loss := ScalarValue(ReconstructionLoss(logits, [][]int{{1, 2}, {3, 0}}, []int{2, 1}))
	if math.Abs(loss-math.Log(5)) > 1e-8 {
		t.Errorf("expected %f but got %f", math.Log(5), loss)
	}
}

func TestReconstructionLossTargets(t *testing.T) {
	c := float64Creator()
	logits := anyseq.ConstSeqList(c, [][]anyvec.Vector{
		{c.MakeVectorData(c.MakeNumericList([]float64{0, math.Log(2), 0}))},
		{c.MakeVectorData(c.MakeNumericList([]float64{0, 0, math.Log(3)}))},
	})
	loss := ScalarValue(ReconstructionLoss(logits, [][]int{{1}, {0}}, []int{1, 1}))
	expected := math.Log(10) / 2
	if math.Abs(loss-expected) > 1e-8 {
		t.Errorf("expected %f but got %f", expected, loss)
	}
}

func TestReconstructionLossOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic")
		}
	}()
	c := float64Creator()
	logits := anyseq.ConstSeqList(c, [][]anyvec.Vector{{c.MakeVector(3)}})
	ReconstructionLoss(logits, [][]int{{3}}, []int{1})
}

func TestReconstructionLossIgnoresPadding(t *testing.T) {
	m := testModel(t, float64Creator())
	b := testBatch()
	latent := m.Encoder.Encode(b.Source, b.Lengths, false)
	loss := ScalarValue(ReconstructionLoss(m.Decoder.Decode(latent, b.Source, b.Lengths),
		b.Target, b.Lengths))

	b.Source[1][3], b.Source[1][4] = 17, 18
	b.Target[1][3], b.Target[1][4] = 17, 18
	latent = m.Encoder.Encode(b.Source, b.Lengths, false)
	padded := ScalarValue(ReconstructionLoss(m.Decoder.Decode(latent, b.Source, b.Lengths),
		b.Target, b.Lengths))
	if loss != padded {
		t.Errorf("padding changed the loss: %f vs %f", loss, padded)
	}
}

func TestProbabilityLossEpsilon(t *testing.T) {
	loss := ProbabilityLoss([]float64{0}, []float64{1})
	if math.IsInf(loss, 0) || math.IsNaN(loss) {
		t.Fatalf("loss should be finite: %f", loss)
	}
	expected := -2 * math.Log(LossEpsilon)
	if math.Abs(loss-expected) > 1e-6 {
		t.Errorf("expected %f but got %f", expected, loss)
	}
}
