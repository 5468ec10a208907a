package anynet

import (
	"fmt"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var f FC
	serializer.RegisterTypedDeserializer(f.SerializerType(), DeserializeFC)
}

// FC is a fully-connected layer computing W*x + b for
// every vector x in a batch.
//
// Weights are stored row-major as an OutCount by InCount
// matrix.
type FC struct {
	InCount  int
	OutCount int
	Weights  *anydiff.Var
	Biases   *anydiff.Var
}

// DeserializeFC deserializes an FC.
func DeserializeFC(d []byte) (*FC, error) {
	var in, out serializer.Int
	var weights, biases *anyvecsave.S
	if err := serializer.DeserializeAny(d, &in, &out, &weights, &biases); err != nil {
		return nil, essentials.AddCtx("deserialize FC", err)
	}
	if weights.Vector.Len() != int(in*out) || biases.Vector.Len() != int(out) {
		return nil, fmt.Errorf("deserialize FC: bad shapes for %d -> %d layer", in, out)
	}
	return &FC{
		InCount:  int(in),
		OutCount: int(out),
		Weights:  anydiff.NewVar(weights.Vector),
		Biases:   anydiff.NewVar(biases.Vector),
	}, nil
}

// NewFC creates an FC with normally distributed weights,
// scaled by 1/sqrt(in) so that unit-variance inputs give
// unit-variance outputs.
// The biases start at zero.
func NewFC(c anyvec.Creator, in, out int) *FC {
	res := NewFCZero(c, in, out)
	anyvec.Rand(res.Weights.Vector, anyvec.Normal, nil)
	res.Weights.Vector.Scale(c.MakeNumeric(1 / math.Sqrt(float64(in))))
	return res
}

// NewFCUniform creates an FC whose weights are drawn
// uniformly from [-initRange, initRange).
// The biases start at zero.
func NewFCUniform(c anyvec.Creator, in, out int, initRange float64) *FC {
	res := NewFCZero(c, in, out)
	UniformInit(res.Weights.Vector, initRange)
	return res
}

// NewFCZero creates an FC with all parameters zero.
func NewFCZero(c anyvec.Creator, in, out int) *FC {
	return &FC{
		InCount:  in,
		OutCount: out,
		Weights:  anydiff.NewVar(c.MakeVector(in * out)),
		Biases:   anydiff.NewVar(c.MakeVector(out)),
	}
}

// Apply applies the layer to a batch of n vectors.
func (f *FC) Apply(in anydiff.Res, n int) anydiff.Res {
	if in.Output().Len() != n*f.InCount {
		panic(fmt.Sprintf("FC expects %d inputs for a batch of %d, but got %d",
			n*f.InCount, n, in.Output().Len()))
	}
	product := anydiff.MatMul(false, true,
		&anydiff.Matrix{Data: in, Rows: n, Cols: f.InCount},
		&anydiff.Matrix{Data: f.Weights, Rows: f.OutCount, Cols: f.InCount},
	)
	return anydiff.AddRepeated(product.Data, f.Biases)
}

// Parameters returns the weights and biases.
func (f *FC) Parameters() []*anydiff.Var {
	return []*anydiff.Var{f.Weights, f.Biases}
}

// SerializerType returns the unique ID used to serialize
// an FC with the serializer package.
func (f *FC) SerializerType() string {
	return "github.com/PengSasm/arae/anynet.FC"
}

// Serialize serializes the FC.
func (f *FC) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		serializer.Int(f.InCount),
		serializer.Int(f.OutCount),
		&anyvecsave.S{Vector: f.Weights.Vector},
		&anyvecsave.S{Vector: f.Biases.Vector},
	)
}

// UniformInit overwrites v with values drawn uniformly
// from [-initRange, initRange).
func UniformInit(v anyvec.Vector, initRange float64) {
	c := v.Creator()
	anyvec.Rand(v, anyvec.Uniform, nil)
	v.Scale(c.MakeNumeric(2 * initRange))
	v.AddScalar(c.MakeNumeric(-initRange))
}
