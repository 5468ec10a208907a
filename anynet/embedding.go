package anynet

import (
	"errors"
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var e Embedding
	serializer.RegisterTypedDeserializer(e.SerializerType(), DeserializeEmbedding)
}

// An Embedding maps token IDs to learned dense vectors.
//
// Weights are stored row-major as a Vocab by Dim matrix,
// so row i holds the vector for token i.
type Embedding struct {
	Vocab   int
	Dim     int
	Weights *anydiff.Var
}

// DeserializeEmbedding deserializes an Embedding.
func DeserializeEmbedding(d []byte) (*Embedding, error) {
	var weights *anyvecsave.S
	var dim serializer.Int
	if err := serializer.DeserializeAny(d, &weights, &dim); err != nil {
		return nil, essentials.AddCtx("deserialize Embedding", err)
	}
	if dim <= 0 || weights.Vector.Len()%int(dim) != 0 {
		return nil, errors.New("deserialize Embedding: invalid matrix dimensions")
	}
	return &Embedding{
		Vocab:   weights.Vector.Len() / int(dim),
		Dim:     int(dim),
		Weights: anydiff.NewVar(weights.Vector),
	}, nil
}

// NewEmbedding creates an Embedding with weights drawn
// uniformly from [-initRange, initRange).
func NewEmbedding(c anyvec.Creator, vocab, dim int, initRange float64) *Embedding {
	res := &Embedding{
		Vocab:   vocab,
		Dim:     dim,
		Weights: anydiff.NewVar(c.MakeVector(vocab * dim)),
	}
	UniformInit(res.Weights.Vector, initRange)
	return res
}

// Embed produces a packed batch with one Dim-sized vector
// per ID by gathering rows of the weight matrix.
//
// It panics if an ID is outside [0, Vocab).
func (e *Embedding) Embed(ids []int) anydiff.Res {
	rows := make([]anydiff.Res, len(ids))
	for i, id := range ids {
		if id < 0 || id >= e.Vocab {
			panic(fmt.Sprintf("token ID %d out of range [0, %d)", id, e.Vocab))
		}
		rows[i] = anydiff.Slice(e.Weights, id*e.Dim, (id+1)*e.Dim)
	}
	return anydiff.Concat(rows...)
}

// Parameters returns the embedding matrix.
func (e *Embedding) Parameters() []*anydiff.Var {
	return []*anydiff.Var{e.Weights}
}

// SerializerType returns the unique ID used to serialize
// an Embedding with the serializer package.
func (e *Embedding) SerializerType() string {
	return "github.com/PengSasm/arae/anynet.Embedding"
}

// Serialize serializes the Embedding.
func (e *Embedding) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		&anyvecsave.S{Vector: e.Weights.Vector},
		serializer.Int(e.Dim),
	)
}
