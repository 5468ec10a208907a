package arae

import (
	"errors"

	"github.com/PengSasm/arae/anynet"
	"github.com/PengSasm/arae/anyrnn"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var d Decoder
	serializer.RegisterTypedDeserializer(d.SerializerType(), DeserializeDecoder)
}

// A Decoder reconstructs token sequences from latent
// codes.
//
// At every timestep the block sees the embedding of the
// previous token concatenated with the latent code, and
// emits logits over the vocabulary.
type Decoder struct {
	Embedding *anynet.Embedding
	Dropout   *anynet.Dropout

	// Block is a stack of LSTMs followed by a LayerBlock
	// that projects hidden states to logits.
	Block anyrnn.Stack
}

// DeserializeDecoder deserializes a Decoder.
func DeserializeDecoder(d []byte) (*Decoder, error) {
	var res Decoder
	if err := serializer.DeserializeAny(d, &res.Embedding, &res.Dropout, &res.Block); err != nil {
		return nil, essentials.AddCtx("deserialize Decoder", err)
	}
	if len(res.Block) < 2 {
		return nil, errors.New("deserialize Decoder: block too short")
	}
	return &res, nil
}

// Decode runs the decoder with teacher forcing.
//
// The result has one batch of logits per timestep, with
// the same present sequences as the packed tokens.
func (d *Decoder) Decode(latent anydiff.Res, tokens [][]int, lengths []int) anyseq.Seq {
	steps := PackTokens(tokens, lengths)
	return poolLatent(latent, func(latent anydiff.Res) anyseq.Seq {
		c := latent.Output().Creator()
		batches := make([]*anyseq.ResBatch, len(steps))
		for t, step := range steps {
			n := len(step.IDs)
			emb := d.Embedding.Embed(step.IDs)
			if d.Dropout != nil {
				emb = d.Dropout.Apply(emb, n)
			}
			in := anynet.ConcatMixer{}.Mix(emb, gatherRows(latent, step.Present), n)
			batches[t] = &anyseq.ResBatch{Packed: in, Present: step.Present}
		}
		return anyrnn.Map(anyseq.ResSeq(c, batches), d.Block)
	})
}

// Logits runs Decode and unpacks the result into
// [sequence][timestep][token] scores, covering each
// sequence's true length.
func (d *Decoder) Logits(latent anydiff.Res, tokens [][]int, lengths []int) [][][]float64 {
	return UnpackRows(d.Decode(latent, tokens, lengths).Output())
}

// Start creates a fresh recurrent state for n sequences.
func (d *Decoder) Start(n int) anyrnn.State {
	return d.Block.Start(n)
}

// Step advances the decoder by one token for every
// sequence, given the constant latent codes.
// It returns the logits and the next state.
func (d *Decoder) Step(state anyrnn.State, tokens []int,
	latent anyvec.Vector) (anyvec.Vector, anyrnn.State) {
	n := len(tokens)
	in := anynet.ConcatMixer{}.Mix(d.Embedding.Embed(tokens), anydiff.NewConst(latent), n)
	res := d.Block.Step(state, in.Output())
	return res.Output(), res.State()
}

// Parameters returns the embedding, recurrent, and
// projection parameters.
func (d *Decoder) Parameters() []*anydiff.Var {
	return append(d.Embedding.Parameters(), d.Block.Parameters()...)
}

// SerializerType returns the unique ID used to serialize
// a Decoder with the serializer package.
func (d *Decoder) SerializerType() string {
	return "github.com/PengSasm/arae.Decoder"
}

// Serialize serializes the Decoder.
func (d *Decoder) Serialize() ([]byte, error) {
	return serializer.SerializeAny(d.Embedding, dropoutOrOff(d.Dropout), d.Block)
}

// dropoutOrOff replaces a missing layer with one that
// never drops anything.
func dropoutOrOff(d *anynet.Dropout) *anynet.Dropout {
	if d == nil {
		return &anynet.Dropout{}
	}
	return d
}

// latentSeq lets every timestep read the latent code
// while back-propagating through the code only once.
type latentSeq struct {
	Latent anydiff.Res
	Pool   *anydiff.Var
	Inner  anyseq.Seq
	V      anydiff.VarSet
}

func poolLatent(latent anydiff.Res, f func(latent anydiff.Res) anyseq.Seq) anyseq.Seq {
	pool := anydiff.NewVar(latent.Output())
	inner := f(pool)
	v := anydiff.MergeVarSets(inner.Vars(), latent.Vars())
	v.Del(pool)
	return &latentSeq{Latent: latent, Pool: pool, Inner: inner, V: v}
}

func (l *latentSeq) Creator() anyvec.Creator {
	return l.Inner.Creator()
}

func (l *latentSeq) Output() []*anyseq.Batch {
	return l.Inner.Output()
}

func (l *latentSeq) Vars() anydiff.VarSet {
	return l.V
}

func (l *latentSeq) Propagate(u []*anyseq.Batch, g anydiff.Grad) {
	down := l.Pool.Vector.Creator().MakeVector(l.Pool.Vector.Len())
	g[l.Pool] = down
	l.Inner.Propagate(u, g)
	delete(g, l.Pool)
	if g.Intersects(l.Latent.Vars()) {
		l.Latent.Propagate(down, g)
	}
}
