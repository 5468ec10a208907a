package anyrnn

import (
	"math"
	"testing"

	"github.com/PengSasm/arae/anynet"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anydifftest"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestStackStep(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	lstm := NewLSTM(c, 3, 2, 0.5)
	proj := anynet.NewFC(c, 2, 4)
	stacked := Stack{lstm, &LayerBlock{Layer: proj}}

	input := c.MakeVectorData([]float64{
		2.098950, -0.645579, 2.106542,
		0.085620, 0.762207, -0.279375,
	})
	hidden := lstm.Step(lstm.Start(2), input).Output()
	expected := proj.Apply(anydiff.NewConst(hidden), 2).Output().Data().([]float64)

	res := stacked.Step(stacked.Start(2), input)
	actual := res.Output().Data().([]float64)
	for i, x := range expected {
		if math.Abs(actual[i]-x) > 1e-10 {
			t.Fatalf("expected %v but got %v", expected, actual)
		}
	}
	if len(res.State().(layerStates)) != 2 {
		t.Error("expected one state per block")
	}
}

func TestStackProp(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	inSeq, inVars := randomTestSequence(c, 3)
	block := Stack{
		NewLSTM(c, 3, 2, 0.5),
		&LayerBlock{
			Layer: anynet.NewFC(c, 2, 4),
		},
	}
	if len(block.Parameters()) != 5 {
		t.Errorf("expected 5 parameters, but got %d", len(block.Parameters()))
	}
	checker := &anydifftest.SeqChecker{
		F: func() anyseq.Seq {
			return Map(inSeq, block)
		},
		V: append(inVars, block.Parameters()...),
	}
	checker.FullCheck(t)
}
