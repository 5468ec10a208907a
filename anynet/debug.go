package anynet

import (
	"fmt"
	"io"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func init() {
	serializer.RegisterTypedDeserializer((&Debug{}).SerializerType(), DeserializeDebug)
}

// Debug is an identity layer that prints statistics
// about the vectors flowing through it, typically latent
// codes.
type Debug struct {
	// Writer to which stats are printed.
	// If nil, the layer is silent.
	Writer io.Writer

	ID            string
	PrintMean     bool
	PrintVariance bool
	PrintNorms    bool
}

// DeserializeDebug deserializes a Debug layer.
// The Writer will be nil.
func DeserializeDebug(d []byte) (*Debug, error) {
	var res Debug
	err := serializer.DeserializeAny(d, &res.ID, &res.PrintMean, &res.PrintVariance,
		&res.PrintNorms)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Debug", err)
	}
	return &res, nil
}

// Apply writes per-dimension statistics and per-vector
// norms of its input, then returns the input untouched.
func (d *Debug) Apply(in anydiff.Res, n int) anydiff.Res {
	if d.Writer == nil || n == 0 {
		return in
	}
	values := Float64s(in.Output().Data())
	cols := len(values) / n
	if d.PrintMean || d.PrintVariance {
		means := make([]float64, cols)
		variances := make([]float64, cols)
		column := make([]float64, n)
		for j := range means {
			for i := range column {
				column[i] = values[i*cols+j]
			}
			means[j], variances[j] = stat.PopMeanVariance(column, nil)
		}
		if d.PrintMean {
			d.println("mean:", means)
		}
		if d.PrintVariance {
			d.println("variance:", variances)
		}
	}
	if d.PrintNorms {
		norms := make([]float64, n)
		for i := range norms {
			norms[i] = floats.Norm(values[i*cols:(i+1)*cols], 2)
		}
		d.println("norms:", norms)
	}
	return in
}

// SerializerType returns the unique ID used to serialize
// a Debug layer with the serializer package.
func (d *Debug) SerializerType() string {
	return "github.com/PengSasm/arae/anynet.Debug"
}

// Serialize serializes the layer.
func (d *Debug) Serialize() ([]byte, error) {
	return serializer.SerializeAny(d.ID, d.PrintMean, d.PrintVariance, d.PrintNorms)
}

func (d *Debug) println(args ...interface{}) {
	newArgs := append([]interface{}{"Debug (" + d.ID + "):"}, args...)
	fmt.Fprintln(d.Writer, newArgs...)
}

// Float64s converts the result of anyvec.Vector.Data()
// or a Numeric into a []float64.
func Float64s(data interface{}) []float64 {
	switch data := data.(type) {
	case []float64:
		return append([]float64{}, data...)
	case []float32:
		res := make([]float64, len(data))
		for i, x := range data {
			res[i] = float64(x)
		}
		return res
	case float64:
		return []float64{data}
	case float32:
		return []float64{float64(data)}
	default:
		panic(fmt.Sprintf("unsupported numeric type: %T", data))
	}
}
