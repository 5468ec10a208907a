package arae

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/PengSasm/arae/anynet"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var g Generator
	serializer.RegisterTypedDeserializer(g.SerializerType(), DeserializeGenerator)
	var d Discriminator
	serializer.RegisterTypedDeserializer(d.SerializerType(), DeserializeDiscriminator)
}

// A Generator maps noise vectors to synthetic latent
// codes.
//
// The network ends in a ReLU, so generated codes are
// never negative, unlike encoder codes.
type Generator struct {
	NoiseSize int
	Net       anynet.Net
}

// NewGenerator creates a Generator with the layout
// FC, ReLU, FC, ReLU.
func NewGenerator(c anyvec.Creator, noise, hidden, latent int) *Generator {
	return &Generator{
		NoiseSize: noise,
		Net: anynet.Net{
			anynet.NewFC(c, noise, hidden),
			anynet.ReLU,
			anynet.NewFC(c, hidden, latent),
			anynet.ReLU,
		},
	}
}

// DeserializeGenerator deserializes a Generator.
func DeserializeGenerator(d []byte) (*Generator, error) {
	var size serializer.Int
	var net anynet.Net
	if err := serializer.DeserializeAny(d, &size, &net); err != nil {
		return nil, essentials.AddCtx("deserialize Generator", err)
	}
	return &Generator{NoiseSize: int(size), Net: net}, nil
}

// Generate maps a batch of n noise vectors to codes.
func (g *Generator) Generate(noise anydiff.Res, n int) anydiff.Res {
	if noise.Output().Len() != n*g.NoiseSize {
		panic(fmt.Sprintf("noise length should be %d, but got %d",
			n*g.NoiseSize, noise.Output().Len()))
	}
	return g.Net.Apply(noise, n)
}

// Noise draws a batch of n standard normal noise vectors
// from r.
// If r is nil, the global source is used.
func (g *Generator) Noise(c anyvec.Creator, n int, r *rand.Rand) anydiff.Res {
	vec := c.MakeVector(n * g.NoiseSize)
	anyvec.Rand(vec, anyvec.Normal, r)
	return anydiff.NewConst(vec)
}

// Sample generates n codes from noise drawn from r.
func (g *Generator) Sample(c anyvec.Creator, n int, r *rand.Rand) anydiff.Res {
	return g.Generate(g.Noise(c, n, r), n)
}

// Parameters returns the parameters of the network.
func (g *Generator) Parameters() []*anydiff.Var {
	return g.Net.Parameters()
}

// SerializerType returns the unique ID used to serialize
// a Generator with the serializer package.
func (g *Generator) SerializerType() string {
	return "github.com/PengSasm/arae.Generator"
}

// Serialize serializes the Generator.
func (g *Generator) Serialize() ([]byte, error) {
	return serializer.SerializeAny(serializer.Int(g.NoiseSize), g.Net)
}

// A Discriminator scores latent codes by how likely they
// are to come from the encoder rather than the
// Generator.
type Discriminator struct {
	LatentSize int
	Net        anynet.Net
}

// NewDiscriminator creates a Discriminator with the
// layout FC, ReLU, FC.
// The final sigmoid is applied by Discriminate.
func NewDiscriminator(c anyvec.Creator, latent, hidden int) *Discriminator {
	return &Discriminator{
		LatentSize: latent,
		Net: anynet.Net{
			anynet.NewFC(c, latent, hidden),
			anynet.ReLU,
			anynet.NewFC(c, hidden, 1),
		},
	}
}

// DeserializeDiscriminator deserializes a Discriminator.
func DeserializeDiscriminator(d []byte) (*Discriminator, error) {
	var size serializer.Int
	var net anynet.Net
	if err := serializer.DeserializeAny(d, &size, &net); err != nil {
		return nil, essentials.AddCtx("deserialize Discriminator", err)
	}
	if len(net) == 0 {
		return nil, errors.New("deserialize Discriminator: empty network")
	}
	return &Discriminator{LatentSize: int(size), Net: net}, nil
}

// Logits computes one pre-sigmoid score per code.
func (d *Discriminator) Logits(latent anydiff.Res, n int) anydiff.Res {
	if latent.Output().Len() != n*d.LatentSize {
		panic(fmt.Sprintf("latent length should be %d, but got %d",
			n*d.LatentSize, latent.Output().Len()))
	}
	return d.Net.Apply(latent, n)
}

// Discriminate computes, for each code, the probability
// in (0, 1) that it is real.
func (d *Discriminator) Discriminate(latent anydiff.Res, n int) anydiff.Res {
	return anynet.Sigmoid.Apply(d.Logits(latent, n), n)
}

// Parameters returns the parameters of the network.
func (d *Discriminator) Parameters() []*anydiff.Var {
	return d.Net.Parameters()
}

// SerializerType returns the unique ID used to serialize
// a Discriminator with the serializer package.
func (d *Discriminator) SerializerType() string {
	return "github.com/PengSasm/arae.Discriminator"
}

// Serialize serializes the Discriminator.
func (d *Discriminator) Serialize() ([]byte, error) {
	return serializer.SerializeAny(serializer.Int(d.LatentSize), d.Net)
}
