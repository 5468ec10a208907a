package anynet

import (
	"reflect"
	"testing"

	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/serializer"
)

func TestLayerRoundTrip(t *testing.T) {
	c := anyvec32.DefaultCreator{}
	layers := map[string]serializer.Serializer{
		"fc":        NewFCUniform(c, 7, 5, 0.1),
		"embedding": NewEmbedding(c, 6, 3, 0.1),
		"dropout":   &Dropout{Enabled: true, KeepProb: 0.335},
		"debug":     &Debug{ID: "code", PrintNorms: true},
		"net": Net{
			NewFCUniform(c, 3, 4, 0.1),
			ReLU,
			NewFCUniform(c, 4, 1, 0.1),
			Sigmoid,
		},
	}
	for name, layer := range layers {
		data, err := serializer.SerializeWithType(layer)
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		decoded, err := serializer.DeserializeWithType(data)
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if !reflect.DeepEqual(layer, decoded) {
			t.Errorf("%s: round trip changed the layer", name)
		}
	}
}

func TestActivationNames(t *testing.T) {
	for _, a := range []Activation{Tanh, LogSoftmax, Sigmoid, ReLU} {
		data, err := serializer.SerializeAny(a)
		if err != nil {
			t.Fatal(err)
		}
		var decoded Activation
		if err := serializer.DeserializeAny(data, &decoded); err != nil {
			t.Fatal(err)
		}
		if decoded != a {
			t.Errorf("%s decoded as %s", a, decoded)
		}
	}
	if _, err := ParseActivation("softplus"); err == nil {
		t.Error("expected error for unknown activation")
	}
}

func TestFCBadShape(t *testing.T) {
	fc := NewFCZero(anyvec32.DefaultCreator{}, 2, 3)
	fc.InCount = 4
	data, err := fc.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DeserializeFC(data); err == nil {
		t.Error("expected shape error")
	}
}
