// Package anynet provides the differentiable layers used
// to build the autoencoder, generator, and discriminator.
//
// Layers operate on packed batches: a batch of n vectors
// is stored as one anyvec.Vector with n equally-long
// chunks.
package anynet

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var n Net
	serializer.RegisterTypedDeserializer(n.SerializerType(), DeserializeNet)
}

// A Parameterizer has learnable variables, always
// reported in the same order.
type Parameterizer interface {
	Parameters() []*anydiff.Var
}

// A Layer maps a packed batch of vectors to another
// packed batch with the same number of vectors.
type Layer interface {
	Apply(in anydiff.Res, batchSize int) anydiff.Res
}

// A Net is a feed-forward chain of layers.
type Net []Layer

// DeserializeNet deserializes a Net.
func DeserializeNet(d []byte) (Net, error) {
	objs, err := serializer.DeserializeSlice(d)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Net", err)
	}
	var res Net
	for _, obj := range objs {
		layer, ok := obj.(Layer)
		if !ok {
			return nil, fmt.Errorf("deserialize Net: not a Layer: %T", obj)
		}
		res = append(res, layer)
	}
	return res, nil
}

// Apply feeds the batch through every layer in order.
// An empty Net is the identity.
func (n Net) Apply(in anydiff.Res, batchSize int) anydiff.Res {
	out := in
	for _, layer := range n {
		out = layer.Apply(out, batchSize)
	}
	return out
}

// Parameters gathers the parameters of every layer, from
// first to last.
func (n Net) Parameters() []*anydiff.Var {
	layers := make([]interface{}, len(n))
	for i, l := range n {
		layers[i] = l
	}
	return AllParameters(layers...)
}

// SerializerType returns the unique ID used to serialize
// a Net with the serializer package.
func (n Net) SerializerType() string {
	return "github.com/PengSasm/arae/anynet.Net"
}

// Serialize serializes every layer.
// It fails if a layer is not a serializer.Serializer.
func (n Net) Serialize() ([]byte, error) {
	objs := make([]serializer.Serializer, len(n))
	for i, layer := range n {
		s, ok := layer.(serializer.Serializer)
		if !ok {
			return nil, fmt.Errorf("serialize Net: layer %d is not a Serializer: %T", i, layer)
		}
		objs[i] = s
	}
	return serializer.SerializeSlice(objs)
}

// AllParameters collects the parameters of every object
// that implements Parameterizer, in order.
// Other objects are skipped.
func AllParameters(objs ...interface{}) []*anydiff.Var {
	var res []*anydiff.Var
	for _, x := range objs {
		if p, ok := x.(Parameterizer); ok {
			res = append(res, p.Parameters()...)
		}
	}
	return res
}
