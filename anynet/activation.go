package anynet

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var a Activation
	serializer.RegisterTypedDeserializer(a.SerializerType(), DeserializeActivation)
}

// An Activation is an element-wise (or, for LogSoftmax,
// per-vector) nonlinearity.
type Activation int

// These are the supported activation functions.
const (
	Tanh Activation = iota
	LogSoftmax
	Sigmoid
	ReLU
)

var activationNames = []string{"tanh", "logsoftmax", "sigmoid", "relu"}

// ParseActivation finds an Activation by name.
func ParseActivation(name string) (Activation, error) {
	for i, n := range activationNames {
		if n == name {
			return Activation(i), nil
		}
	}
	return 0, fmt.Errorf("unknown activation: %s", name)
}

// DeserializeActivation deserializes an Activation.
func DeserializeActivation(d []byte) (Activation, error) {
	var name string
	if err := serializer.DeserializeAny(d, &name); err != nil {
		return 0, essentials.AddCtx("deserialize Activation", err)
	}
	a, err := ParseActivation(name)
	if err != nil {
		return 0, essentials.AddCtx("deserialize Activation", err)
	}
	return a, nil
}

// String returns the activation's name.
func (a Activation) String() string {
	if a < 0 || int(a) >= len(activationNames) {
		return fmt.Sprintf("Activation(%d)", int(a))
	}
	return activationNames[a]
}

// Apply applies the activation to a batch of n vectors.
func (a Activation) Apply(in anydiff.Res, n int) anydiff.Res {
	switch a {
	case Tanh:
		return anydiff.Tanh(in)
	case LogSoftmax:
		size := in.Output().Len()
		if n <= 0 || size%n != 0 {
			panic(fmt.Sprintf("batch size %d does not divide input length %d", n, size))
		}
		return anydiff.LogSoftmax(in, size/n)
	case Sigmoid:
		return anydiff.Sigmoid(in)
	case ReLU:
		return anydiff.ClipPos(in)
	}
	panic("unknown activation: " + a.String())
}

// SerializerType returns the unique ID used to serialize
// an Activation.
func (a Activation) SerializerType() string {
	return "github.com/PengSasm/arae/anynet.Activation"
}

// Serialize stores the activation by name.
func (a Activation) Serialize() ([]byte, error) {
	return serializer.SerializeAny(a.String())
}
