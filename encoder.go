package arae

import (
	"errors"
	"fmt"

	"github.com/PengSasm/arae/anynet"
	"github.com/PengSasm/arae/anyrnn"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// normEpsilon keeps the L2 normalization finite for an
// all-zero hidden state.
const normEpsilon = 1e-8

// A HiddenSelect decides how the final hidden states of a
// multi-layer encoder become one code.
type HiddenSelect string

// These are the supported hidden-state selections.
const (
	// SelectLast uses the final layer's last hidden state.
	SelectLast HiddenSelect = "last"

	// SelectSum adds up the last hidden states of every
	// layer.
	SelectSum HiddenSelect = "sum"
)

func init() {
	var e Encoder
	serializer.RegisterTypedDeserializer(e.SerializerType(), DeserializeEncoder)
}

// An Encoder maps token sequences to latent codes.
//
// The code is the L2-normalized final hidden state,
// optionally perturbed by Gaussian noise.
type Encoder struct {
	Embedding *anynet.Embedding
	Dropout   *anynet.Dropout
	Layers    []*anyrnn.LSTM
	Select    HiddenSelect

	// Noise is the standard deviation of the noise added
	// by Encode.
	Noise float64
}

// DeserializeEncoder deserializes an Encoder.
func DeserializeEncoder(d []byte) (*Encoder, error) {
	var res Encoder
	var layers anyrnn.Stack
	var sel serializer.String
	var noise serializer.Float64
	err := serializer.DeserializeAny(d, &res.Embedding, &res.Dropout, &layers, &sel, &noise)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Encoder", err)
	}
	for _, x := range layers {
		lstm, ok := x.(*anyrnn.LSTM)
		if !ok {
			return nil, fmt.Errorf("deserialize Encoder: unexpected block %T", x)
		}
		res.Layers = append(res.Layers, lstm)
	}
	if len(res.Layers) == 0 {
		return nil, errors.New("deserialize Encoder: no layers")
	}
	res.Select = HiddenSelect(sel)
	res.Noise = float64(noise)
	return &res, nil
}

// Encode computes latent codes for a batch.
// If noise is true and e.Noise is non-zero, fresh
// Gaussian noise is added to every component.
func (e *Encoder) Encode(tokens [][]int, lengths []int, noise bool) anydiff.Res {
	code := e.Normalized(tokens, lengths)
	if !noise || e.Noise == 0 {
		return code
	}
	c := code.Output().Creator()
	noiseVec := c.MakeVector(code.Output().Len())
	anyvec.Rand(noiseVec, anyvec.Normal, nil)
	noiseVec.Scale(c.MakeNumeric(e.Noise))
	return anydiff.Add(code, anydiff.NewConst(noiseVec))
}

// Normalized computes the unit-norm codes without noise.
func (e *Encoder) Normalized(tokens [][]int, lengths []int) anydiff.Res {
	return normalizeRows(e.Hidden(tokens, lengths), len(lengths))
}

// Hidden computes the selected final hidden states, one
// row per sequence.
func (e *Encoder) Hidden(tokens [][]int, lengths []int) anydiff.Res {
	var dropout anynet.Layer
	if e.Dropout != nil {
		dropout = e.Dropout
	}
	seq := EmbedSteps(e.Embedding, dropout, PackTokens(tokens, lengths))
	var finals []anydiff.Res
	for _, layer := range e.Layers {
		seq = anyrnn.Map(seq, layer)
		finals = append(finals, anyrnn.Tail(seq))
	}
	switch e.Select {
	case SelectSum:
		sum := finals[0]
		for _, x := range finals[1:] {
			sum = anydiff.Add(sum, x)
		}
		return sum
	case SelectLast, "":
		return finals[len(finals)-1]
	default:
		panic(fmt.Sprintf("unknown hidden selection: %s", e.Select))
	}
}

// LatentSize returns the size of a code.
func (e *Encoder) LatentSize() int {
	return e.Layers[len(e.Layers)-1].Hidden
}

// Parameters returns the embedding and recurrent
// parameters.
func (e *Encoder) Parameters() []*anydiff.Var {
	res := e.Embedding.Parameters()
	for _, l := range e.Layers {
		res = append(res, l.Parameters()...)
	}
	return res
}

// SerializerType returns the unique ID used to serialize
// an Encoder with the serializer package.
func (e *Encoder) SerializerType() string {
	return "github.com/PengSasm/arae.Encoder"
}

// Serialize serializes the Encoder.
func (e *Encoder) Serialize() ([]byte, error) {
	layers := make(anyrnn.Stack, len(e.Layers))
	for i, l := range e.Layers {
		layers[i] = l
	}
	return serializer.SerializeAny(e.Embedding, dropoutOrOff(e.Dropout), layers,
		serializer.String(e.Select), serializer.Float64(e.Noise))
}

// normalizeRows scales each of the n rows of in to unit
// L2 norm.
func normalizeRows(in anydiff.Res, n int) anydiff.Res {
	cols := in.Output().Len() / n
	c := in.Output().Creator()
	return anydiff.Pool(in, func(in anydiff.Res) anydiff.Res {
		sqNorms := anydiff.SumCols(&anydiff.Matrix{
			Data: anydiff.Square(in),
			Rows: n,
			Cols: cols,
		})
		invNorms := anydiff.Pow(anydiff.AddScalar(sqNorms, c.MakeNumeric(normEpsilon)),
			c.MakeNumeric(-0.5))
		ones := c.MakeVector(cols)
		ones.AddScalar(c.MakeNumeric(1))
		scales := anydiff.MatMul(false, false,
			&anydiff.Matrix{Data: invNorms, Rows: n, Cols: 1},
			&anydiff.Matrix{Data: anydiff.NewConst(ones), Rows: 1, Cols: cols},
		)
		return anydiff.Mul(in, scales.Data)
	})
}
