package anyrnn

import (
	"errors"
	"fmt"

	"github.com/PengSasm/arae/anynet"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var lstm LSTM
	serializer.RegisterTypedDeserializer(lstm.SerializerType(), DeserializeLSTM)
}

// LSTM is a long short-term memory block with fused
// gates.
//
// The weights hold the input, forget, cell, and output
// gates stacked in that order, so InputWeights is a
// 4*Hidden by InCount matrix and StateWeights is a
// 4*Hidden by Hidden matrix.
//
// The state of each sequence is the vector [h, c], where
// h is the hidden output and c is the cell.
// The start state is all zeros.
type LSTM struct {
	InCount int
	Hidden  int

	InputWeights *anydiff.Var
	StateWeights *anydiff.Var
	Biases       *anydiff.Var
}

// DeserializeLSTM deserializes an LSTM.
func DeserializeLSTM(d []byte) (*LSTM, error) {
	var iw, sw, b *anyvecsave.S
	if err := serializer.DeserializeAny(d, &iw, &sw, &b); err != nil {
		return nil, essentials.AddCtx("deserialize LSTM", err)
	}
	if b.Vector.Len()%4 != 0 {
		return nil, errors.New("deserialize LSTM: invalid bias count")
	}
	hidden := b.Vector.Len() / 4
	if hidden == 0 || sw.Vector.Len() != 4*hidden*hidden ||
		iw.Vector.Len()%(4*hidden) != 0 {
		return nil, errors.New("deserialize LSTM: invalid matrix dimensions")
	}
	return &LSTM{
		InCount:      iw.Vector.Len() / (4 * hidden),
		Hidden:       hidden,
		InputWeights: anydiff.NewVar(iw.Vector),
		StateWeights: anydiff.NewVar(sw.Vector),
		Biases:       anydiff.NewVar(b.Vector),
	}, nil
}

// NewLSTM creates an LSTM with every parameter drawn
// uniformly from [-initRange, initRange).
func NewLSTM(c anyvec.Creator, in, hidden int, initRange float64) *LSTM {
	res := NewLSTMZero(c, in, hidden)
	for _, p := range res.Parameters() {
		anynet.UniformInit(p.Vector, initRange)
	}
	return res
}

// NewLSTMZero creates a zero'd LSTM.
func NewLSTMZero(c anyvec.Creator, in, hidden int) *LSTM {
	return &LSTM{
		InCount:      in,
		Hidden:       hidden,
		InputWeights: anydiff.NewVar(c.MakeVector(4 * hidden * in)),
		StateWeights: anydiff.NewVar(c.MakeVector(4 * hidden * hidden)),
		Biases:       anydiff.NewVar(c.MakeVector(4 * hidden)),
	}
}

// Start produces a zero start state.
func (l *LSTM) Start(n int) State {
	return l.funcBlock().Start(n)
}

// PropagateStart does nothing, since the start state is
// constant.
func (l *LSTM) PropagateStart(s StateGrad, g anydiff.Grad) {
}

// Step applies the block for a single timestep.
func (l *LSTM) Step(s State, in anyvec.Vector) Res {
	return l.funcBlock().Step(s, in)
}

// Parameters returns the input weights, state weights,
// and biases, in that order.
func (l *LSTM) Parameters() []*anydiff.Var {
	return []*anydiff.Var{l.InputWeights, l.StateWeights, l.Biases}
}

// SerializerType returns the unique ID used to serialize
// an LSTM with the serializer package.
func (l *LSTM) SerializerType() string {
	return "github.com/PengSasm/arae/anyrnn.LSTM"
}

// Serialize serializes the LSTM.
func (l *LSTM) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		&anyvecsave.S{Vector: l.InputWeights.Vector},
		&anyvecsave.S{Vector: l.StateWeights.Vector},
		&anyvecsave.S{Vector: l.Biases.Vector},
	)
}

func (l *LSTM) funcBlock() *FuncBlock {
	return &FuncBlock{
		Func: l.apply,
		MakeStart: func(n int) anydiff.Res {
			c := l.Biases.Vector.Creator()
			return anydiff.NewConst(c.MakeVector(n * 2 * l.Hidden))
		},
	}
}

func (l *LSTM) apply(in, state anydiff.Res, n int) (out, newState anydiff.Res) {
	if in.Output().Len() != n*l.InCount {
		panic(fmt.Sprintf("input length should be %d, but got %d",
			n*l.InCount, in.Output().Len()))
	}
	h := l.Hidden

	// Columns of stateT are sequences; the first h rows
	// are the outputs and the rest are the cells.
	stateT := anydiff.Transpose(&anydiff.Matrix{Data: state, Rows: n, Cols: 2 * h})
	prevOut := anydiff.Transpose(&anydiff.Matrix{
		Data: anydiff.Slice(stateT.Data, 0, h*n),
		Rows: h,
		Cols: n,
	})
	prevCellT := anydiff.Slice(stateT.Data, h*n, 2*h*n)

	inPart := anydiff.MatMul(false, true,
		&anydiff.Matrix{Data: in, Rows: n, Cols: l.InCount},
		&anydiff.Matrix{Data: l.InputWeights, Rows: 4 * h, Cols: l.InCount},
	)
	statePart := anydiff.MatMul(false, true, prevOut,
		&anydiff.Matrix{Data: l.StateWeights, Rows: 4 * h, Cols: h})
	gates := anydiff.AddRepeated(anydiff.Add(inPart.Data, statePart.Data), l.Biases)
	gatesT := anydiff.Transpose(&anydiff.Matrix{Data: gates, Rows: n, Cols: 4 * h}).Data

	gate := func(i int) anydiff.Res {
		return anydiff.Slice(gatesT, i*h*n, (i+1)*h*n)
	}
	inGate := anydiff.Sigmoid(gate(0))
	forgetGate := anydiff.Sigmoid(gate(1))
	cellValue := anydiff.Tanh(gate(2))
	outGate := anydiff.Sigmoid(gate(3))

	cellT := anydiff.Add(anydiff.Mul(forgetGate, prevCellT), anydiff.Mul(inGate, cellValue))
	outT := anydiff.Mul(outGate, anydiff.Tanh(cellT))

	out = anydiff.Transpose(&anydiff.Matrix{Data: outT, Rows: h, Cols: n}).Data
	newState = anydiff.Transpose(&anydiff.Matrix{
		Data: anydiff.Concat(outT, cellT),
		Rows: 2 * h,
		Cols: n,
	}).Data
	return
}
