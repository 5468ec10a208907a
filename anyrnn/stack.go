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
	var s Stack
	serializer.RegisterTypedDeserializer(s.SerializerType(), DeserializeStack)
}

// A Stack runs several Blocks as one, feeding each
// layer's output into the layer above it.
// The state of a Stack holds one state per layer.
//
// A Stack must have at least one layer.
type Stack []Block

// DeserializeStack deserializes a Stack.
func DeserializeStack(d []byte) (Stack, error) {
	objs, err := serializer.DeserializeSlice(d)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Stack", err)
	}
	var res Stack
	for i, obj := range objs {
		block, ok := obj.(Block)
		if !ok {
			return nil, fmt.Errorf("deserialize Stack: layer %d is %T, not a Block", i, obj)
		}
		res = append(res, block)
	}
	return res, nil
}

// Start returns the start state of every layer.
func (s Stack) Start(n int) State {
	if len(s) == 0 {
		panic("cannot start an empty Stack")
	}
	states := make(layerStates, len(s))
	for i, layer := range s {
		states[i] = layer.Start(n)
	}
	return states
}

// PropagateStart hands each layer its share of the start
// state gradient.
func (s Stack) PropagateStart(sg StateGrad, g anydiff.Grad) {
	grads := sg.(layerGrads)
	for i, layer := range s {
		layer.PropagateStart(grads[i], g)
	}
}

// Step runs one timestep through every layer, bottom to
// top.
func (s Stack) Step(st State, in anyvec.Vector) Res {
	states := st.(layerStates)
	res := &stackRes{
		Layers: make([]Res, len(s)),
		Out:    make(layerStates, len(s)),
		V:      anydiff.VarSet{},
	}
	x := in
	for i, layer := range s {
		r := layer.Step(states[i], x)
		res.Layers[i] = r
		res.Out[i] = r.State()
		res.V = anydiff.MergeVarSets(res.V, r.Vars())
		x = r.Output()
	}
	return res
}

// Parameters returns every layer's parameters, bottom
// layer first.
func (s Stack) Parameters() []*anydiff.Var {
	objs := make([]interface{}, len(s))
	for i, layer := range s {
		objs[i] = layer
	}
	return anynet.AllParameters(objs...)
}

// SerializerType returns the unique ID used to serialize
// a Stack with the serializer package.
func (s Stack) SerializerType() string {
	return "github.com/PengSasm/arae/anyrnn.Stack"
}

// Serialize serializes the layers.
// It fails if a layer is not a serializer.Serializer.
func (s Stack) Serialize() ([]byte, error) {
	objs := make([]serializer.Serializer, len(s))
	for i, layer := range s {
		obj, ok := layer.(serializer.Serializer)
		if !ok {
			return nil, fmt.Errorf("serialize Stack: layer %d is not a Serializer: %T", i, layer)
		}
		objs[i] = obj
	}
	return serializer.SerializeSlice(objs)
}

type stackRes struct {
	Layers []Res
	Out    layerStates
	V      anydiff.VarSet
}

func (s *stackRes) State() State {
	return s.Out
}

func (s *stackRes) Output() anyvec.Vector {
	return s.Layers[len(s.Layers)-1].Output()
}

func (s *stackRes) Vars() anydiff.VarSet {
	return s.V
}

// Propagate walks the layers top to bottom, passing each
// layer's input gradient down as the upstream of the
// layer beneath it.
func (s *stackRes) Propagate(u anyvec.Vector, sg StateGrad,
	g anydiff.Grad) (anyvec.Vector, StateGrad) {
	var upstream layerGrads
	if sg != nil {
		upstream = sg.(layerGrads)
	}
	down := make(layerGrads, len(s.Layers))
	for i := len(s.Layers) - 1; i >= 0; i-- {
		var layerUp StateGrad
		if upstream != nil {
			layerUp = upstream[i]
		}
		u, down[i] = s.Layers[i].Propagate(u, layerUp, g)
	}
	return u, down
}

// layerStates is the State of a Stack.
// Every layer shares the same PresentMap.
type layerStates []State

func (l layerStates) Present() PresentMap {
	return l[0].Present()
}

func (l layerStates) Reduce(p PresentMap) State {
	res := make(layerStates, len(l))
	for i, st := range l {
		res[i] = st.Reduce(p)
	}
	return res
}

type layerGrads []StateGrad

func (l layerGrads) Present() PresentMap {
	return l[0].Present()
}

func (l layerGrads) Expand(p PresentMap) StateGrad {
	res := make(layerGrads, len(l))
	for i, sg := range l {
		res[i] = sg.Expand(p)
	}
	return res
}
