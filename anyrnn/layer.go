package anyrnn

import (
	"fmt"

	"github.com/PengSasm/arae/anynet"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var l LayerBlock
	serializer.RegisterTypedDeserializer(l.SerializerType(), DeserializeLayerBlock)
}

// A LayerBlock applies a feed-forward anynet.Layer to
// every timestep independently.
// It is used as the last block of a Stack, projecting
// recurrent outputs to token logits.
type LayerBlock struct {
	Layer anynet.Layer
}

// DeserializeLayerBlock deserializes a LayerBlock.
func DeserializeLayerBlock(d []byte) (*LayerBlock, error) {
	obj, err := serializer.DeserializeWithType(d)
	if err != nil {
		return nil, essentials.AddCtx("deserialize LayerBlock", err)
	}
	layer, ok := obj.(anynet.Layer)
	if !ok {
		return nil, fmt.Errorf("deserialize LayerBlock: not a Layer: %T", obj)
	}
	return &LayerBlock{Layer: layer}, nil
}

// Start returns a state that only tracks which sequences
// are present.
func (l *LayerBlock) Start(n int) State {
	return presentState(Full(n))
}

// PropagateStart does nothing.
func (l *LayerBlock) PropagateStart(s StateGrad, g anydiff.Grad) {
}

// Step applies the layer to the packed inputs.
func (l *LayerBlock) Step(s State, in anyvec.Vector) Res {
	inVar := anydiff.NewVar(in)
	out := l.Layer.Apply(inVar, s.Present().NumPresent())
	vars := anydiff.MergeVarSets(out.Vars())
	vars.Del(inVar)
	return &layerRes{State_: s.(presentState), In: inVar, Out: out, V: vars}
}

// Parameters returns the layer's parameters, if it has
// any.
func (l *LayerBlock) Parameters() []*anydiff.Var {
	return anynet.AllParameters(l.Layer)
}

// SerializerType returns the unique ID used to serialize
// a LayerBlock with the serializer package.
func (l *LayerBlock) SerializerType() string {
	return "github.com/PengSasm/arae/anyrnn.LayerBlock"
}

// Serialize serializes the block.
// It fails if the layer is not a serializer.Serializer.
func (l *LayerBlock) Serialize() ([]byte, error) {
	s, ok := l.Layer.(serializer.Serializer)
	if !ok {
		return nil, fmt.Errorf("serialize LayerBlock: not a Serializer: %T", l.Layer)
	}
	return serializer.SerializeWithType(s)
}

type layerRes struct {
	State_ presentState
	In     *anydiff.Var
	Out    anydiff.Res
	V      anydiff.VarSet
}

func (l *layerRes) State() State {
	return l.State_
}

func (l *layerRes) Output() anyvec.Vector {
	return l.Out.Output()
}

func (l *layerRes) Vars() anydiff.VarSet {
	return l.V
}

func (l *layerRes) Propagate(u anyvec.Vector, s StateGrad, g anydiff.Grad) (anyvec.Vector,
	StateGrad) {
	down := l.In.Vector.Creator().MakeVector(l.In.Vector.Len())
	g[l.In] = down
	l.Out.Propagate(u, g)
	delete(g, l.In)
	return down, l.State_
}

// presentState is a State and StateGrad with no values.
type presentState PresentMap

func (p presentState) Present() PresentMap {
	return PresentMap(p)
}

func (p presentState) Reduce(pres PresentMap) State {
	return presentState(pres)
}

func (p presentState) Expand(pres PresentMap) StateGrad {
	return presentState(pres)
}
