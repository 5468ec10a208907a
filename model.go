// Package arae implements an adversarially regularized
// autoencoder over token sequences.
//
// A recurrent Encoder maps sentences to unit-norm latent
// codes and a recurrent Decoder reconstructs them.
// A Generator learns to map noise into the same latent
// space while a Discriminator tells generated codes from
// encoded ones, so new sentences can be sampled from
// noise alone.
package arae

import (
	"fmt"
	"io/ioutil"

	"github.com/PengSasm/arae/anynet"
	"github.com/PengSasm/arae/anyrnn"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// Default configuration values.
const (
	DefaultHiddenNoise = 0.2
	DefaultInitRange   = 0.1
)

func init() {
	var m Model
	serializer.RegisterTypedDeserializer(m.SerializerType(), DeserializeModel)
}

// Config describes a model's architecture.
//
// Zero-valued numeric fields fall back to defaults where
// a default is documented.
type Config struct {
	// Encoder and Decoder select the recurrent
	// architecture.
	// Only "lstm" is supported; empty means "lstm".
	Encoder string
	Decoder string

	// Latent is the size of a latent code, which is also
	// the hidden size of both recurrent networks.
	Latent int

	// Tokens is the vocabulary size.
	Tokens int

	// Embedding is the token embedding size.
	Embedding int

	// Layers is the recurrent depth.
	// If 0, 1 is used.
	Layers int

	DiscHidden int
	GenHidden  int

	// Noise is the size of the generator's input.
	Noise int

	// HiddenNoise is the standard deviation of the noise
	// added to encoder codes during training.
	// If 0, DefaultHiddenNoise is used; a negative value
	// disables the noise.
	HiddenNoise float64

	// InitRange bounds the uniform initialization of the
	// embeddings, recurrent weights, and output projection.
	// If 0, DefaultInitRange is used.
	InitRange float64

	// HiddenSelect picks how encoder layers become a code.
	// If empty, SelectLast is used.
	HiddenSelect HiddenSelect

	// KeepProb is the keep probability for embedding
	// dropout.
	// If 0 or 1, dropout is disabled.
	KeepProb float64
}

// DefaultConfig returns a configuration with the sizes of
// a small text model.
func DefaultConfig(tokens int) *Config {
	return &Config{
		Encoder:      "lstm",
		Decoder:      "lstm",
		Latent:       300,
		Tokens:       tokens,
		Embedding:    300,
		Layers:       1,
		DiscHidden:   300,
		GenHidden:    300,
		Noise:        100,
		HiddenNoise:  DefaultHiddenNoise,
		InitRange:    DefaultInitRange,
		HiddenSelect: SelectLast,
		KeepProb:     1,
	}
}

func (c *Config) layers() int {
	if c.Layers == 0 {
		return 1
	}
	return c.Layers
}

func (c *Config) hiddenNoise() float64 {
	if c.HiddenNoise == 0 {
		return DefaultHiddenNoise
	} else if c.HiddenNoise < 0 {
		return 0
	}
	return c.HiddenNoise
}

func (c *Config) initRange() float64 {
	if c.InitRange == 0 {
		return DefaultInitRange
	}
	return c.InitRange
}

func (c *Config) validate() error {
	for _, arch := range []string{c.Encoder, c.Decoder} {
		if arch != "" && arch != "lstm" {
			return fmt.Errorf("unsupported architecture: %s", arch)
		}
	}
	switch c.HiddenSelect {
	case "", SelectLast, SelectSum:
	default:
		return fmt.Errorf("unsupported hidden selection: %s", c.HiddenSelect)
	}
	dims := []struct {
		name  string
		value int
	}{
		{"latent", c.Latent},
		{"tokens", c.Tokens},
		{"embedding", c.Embedding},
		{"discriminator hidden", c.DiscHidden},
		{"generator hidden", c.GenHidden},
		{"noise", c.Noise},
	}
	for _, d := range dims {
		if d.value <= 0 {
			return fmt.Errorf("invalid %s size: %d", d.name, d.value)
		}
	}
	if c.Layers < 0 {
		return fmt.Errorf("invalid layer count: %d", c.Layers)
	}
	if c.KeepProb < 0 || c.KeepProb > 1 {
		return fmt.Errorf("invalid keep probability: %f", c.KeepProb)
	}
	return nil
}

// A Model holds the four networks of the autoencoder.
type Model struct {
	Encoder       *Encoder
	Decoder       *Decoder
	Generator     *Generator
	Discriminator *Discriminator
}

// NewModel creates a randomly initialized Model.
//
// The creator decides where and in what precision the
// model computes.
func NewModel(c anyvec.Creator, cfg *Config) (*Model, error) {
	if err := cfg.validate(); err != nil {
		return nil, essentials.AddCtx("new model", err)
	}
	initRange := cfg.initRange()

	encoder := &Encoder{
		Embedding: anynet.NewEmbedding(c, cfg.Tokens, cfg.Embedding, initRange),
		Dropout:   &anynet.Dropout{KeepProb: cfg.KeepProb},
		Select:    cfg.HiddenSelect,
		Noise:     cfg.hiddenNoise(),
	}
	if encoder.Select == "" {
		encoder.Select = SelectLast
	}
	inSize := cfg.Embedding
	for i := 0; i < cfg.layers(); i++ {
		encoder.Layers = append(encoder.Layers, anyrnn.NewLSTM(c, inSize, cfg.Latent, initRange))
		inSize = cfg.Latent
	}

	decoder := &Decoder{
		Embedding: anynet.NewEmbedding(c, cfg.Tokens, cfg.Embedding, initRange),
		Dropout:   &anynet.Dropout{KeepProb: cfg.KeepProb},
	}
	inSize = cfg.Embedding + cfg.Latent
	for i := 0; i < cfg.layers(); i++ {
		decoder.Block = append(decoder.Block, anyrnn.NewLSTM(c, inSize, cfg.Latent, initRange))
		inSize = cfg.Latent
	}
	decoder.Block = append(decoder.Block, &anyrnn.LayerBlock{
		Layer: anynet.NewFCUniform(c, cfg.Latent, cfg.Tokens, initRange),
	})

	return &Model{
		Encoder:       encoder,
		Decoder:       decoder,
		Generator:     NewGenerator(c, cfg.Noise, cfg.GenHidden, cfg.Latent),
		Discriminator: NewDiscriminator(c, cfg.Latent, cfg.DiscHidden),
	}, nil
}

// DeserializeModel deserializes a Model.
func DeserializeModel(d []byte) (*Model, error) {
	var res Model
	err := serializer.DeserializeAny(d, &res.Encoder, &res.Decoder, &res.Generator,
		&res.Discriminator)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Model", err)
	}
	return &res, nil
}

// LoadModel reads a Model saved with SaveModel.
func LoadModel(path string) (*Model, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, essentials.AddCtx("load model", err)
	}
	var res *Model
	if err := serializer.DeserializeAny(data, &res); err != nil {
		return nil, essentials.AddCtx("load model", err)
	}
	return res, nil
}

// SaveModel writes the Model to a file.
func (m *Model) SaveModel(path string) error {
	data, err := serializer.SerializeAny(m)
	if err != nil {
		return essentials.AddCtx("save model", err)
	}
	if err := ioutil.WriteFile(path, data, 0644); err != nil {
		return essentials.AddCtx("save model", err)
	}
	return nil
}

// Creator returns the creator of the model's vectors.
func (m *Model) Creator() anyvec.Creator {
	return m.Encoder.Embedding.Weights.Vector.Creator()
}

// SetTraining enables or disables the stochastic layers.
func (m *Model) SetTraining(training bool) {
	for _, d := range []*anynet.Dropout{m.Encoder.Dropout, m.Decoder.Dropout} {
		if d != nil {
			d.Enabled = training
		}
	}
}

// EncoderParams returns the encoder's parameter group.
func (m *Model) EncoderParams() []*anydiff.Var {
	return m.Encoder.Parameters()
}

// DecoderParams returns the decoder's parameter group.
func (m *Model) DecoderParams() []*anydiff.Var {
	return m.Decoder.Parameters()
}

// GeneratorParams returns the generator's parameter group.
func (m *Model) GeneratorParams() []*anydiff.Var {
	return m.Generator.Parameters()
}

// DiscriminatorParams returns the discriminator's
// parameter group.
func (m *Model) DiscriminatorParams() []*anydiff.Var {
	return m.Discriminator.Parameters()
}

// Parameters returns every parameter of the model.
func (m *Model) Parameters() []*anydiff.Var {
	return anynet.AllParameters(m.Encoder, m.Decoder, m.Generator, m.Discriminator)
}

// SerializerType returns the unique ID used to serialize
// a Model with the serializer package.
func (m *Model) SerializerType() string {
	return "github.com/PengSasm/arae.Model"
}

// Serialize serializes the Model.
func (m *Model) Serialize() ([]byte, error) {
	return serializer.SerializeAny(m.Encoder, m.Decoder, m.Generator, m.Discriminator)
}
