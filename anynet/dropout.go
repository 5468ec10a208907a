package anynet

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var d Dropout
	serializer.RegisterTypedDeserializer(d.SerializerType(), DeserializeDropout)
}

// Dropout zeroes each input with probability 1-KeepProb
// while Enabled, scaling survivors by 1/KeepProb.
// Disabled dropout is the identity.
type Dropout struct {
	Enabled bool

	// KeepProb is the probability of keeping an input.
	// Values of 0 or 1 turn the layer off.
	KeepProb float64
}

// DeserializeDropout deserializes a Dropout.
func DeserializeDropout(d []byte) (*Dropout, error) {
	var res Dropout
	if err := serializer.DeserializeAny(d, &res.KeepProb, &res.Enabled); err != nil {
		return nil, essentials.AddCtx("deserialize Dropout", err)
	}
	return &res, nil
}

// Apply applies dropout to the batch.
func (d *Dropout) Apply(in anydiff.Res, n int) anydiff.Res {
	if !d.active() {
		return in
	}
	return anydiff.Mul(in, anydiff.NewConst(d.mask(in.Output())))
}

func (d *Dropout) active() bool {
	return d.Enabled && d.KeepProb > 0 && d.KeepProb < 1
}

// mask draws a vector of 0 and 1/KeepProb entries shaped
// like v.
func (d *Dropout) mask(v anyvec.Vector) anyvec.Vector {
	c := v.Creator()
	res := c.MakeVector(v.Len())
	anyvec.Rand(res, anyvec.Uniform, nil)
	anyvec.LessThan(res, c.MakeNumeric(d.KeepProb))
	res.Scale(c.MakeNumeric(1 / d.KeepProb))
	return res
}

// SerializerType returns the unique ID used to serialize
// a Dropout with the serializer package.
func (d *Dropout) SerializerType() string {
	return "github.com/PengSasm/arae/anynet.Dropout"
}

// Serialize serializes the Dropout.
func (d *Dropout) Serialize() ([]byte, error) {
	return serializer.SerializeAny(d.KeepProb, d.Enabled)
}
