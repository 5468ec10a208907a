package arae

import (
	"fmt"
	"io/ioutil"
	"math"
	"math/rand"

	"github.com/PengSasm/arae/anysgd"
	"github.com/sirupsen/logrus"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// Default training values.
const (
	DefaultGradClip          = 1.0
	DefaultAutoencoderRate   = 1e-3
	DefaultEncoderAdvRate    = 1e-4
	DefaultGeneratorRate     = 1e-4
	DefaultDiscriminatorRate = 1e-4
)

// TrainConfig configures a Session.
//
// Zero-valued fields fall back to the defaults above.
type TrainConfig struct {
	// Optimizer names the gradient transformer shared by
	// all five optimizers: "adam", "rmsprop", "momentum",
	// or "sgd".
	// If empty, "adam" is used.
	Optimizer string

	// Beta1 is Adam's first decay rate or the momentum
	// coefficient.
	Beta1 float64

	// Learning rates of the parameter groups.
	// A zero rate uses the default; use Freeze to stop a
	// group from training.
	AutoencoderRate   float64
	EncoderAdvRate    float64
	GeneratorRate     float64
	DiscriminatorRate float64

	// Freeze names optimizers whose steps are skipped:
	// "encoder_recon", "encoder_adv", "decoder",
	// "discriminator", or "generator".
	Freeze []string

	// GradClip is the maximum norm of the joint
	// encoder/decoder reconstruction gradient.
	// A negative value disables clipping.
	GradClip float64

	// LogInterval is the number of batches between
	// progress logs.
	// If 0, no progress is logged.
	LogInterval int

	// EvalNoise adds encoder noise during evaluation.
	EvalNoise bool
}

func (t *TrainConfig) gradClip() float64 {
	if t.GradClip == 0 {
		return DefaultGradClip
	}
	return t.GradClip
}

func rateOrDefault(rate, def float64) anysgd.ConstRater {
	if rate == 0 {
		return anysgd.ConstRater(def)
	}
	return anysgd.ConstRater(rate)
}

// A Session owns the optimizers and counters used to
// train a Model.
//
// Each optimizer sees only the gradient of its own
// objective:
// EncoderRecon and Decoder minimize reconstruction,
// Discriminator separates real from fake codes,
// EncoderAdv makes encoder codes look real to the
// discriminator, and Generator does the same for
// generated codes.
type Session struct {
	Model  *Model
	Config *TrainConfig
	Logger *logrus.Logger

	EncoderRecon  *anysgd.Optimizer
	EncoderAdv    *anysgd.Optimizer
	Decoder       *anysgd.Optimizer
	Discriminator *anysgd.Optimizer
	Generator     *anysgd.Optimizer

	// Epoch is the number of completed epochs.
	Epoch int

	// Rand is the source of generator noise.
	// If nil, the math/rand global source is used.
	Rand *rand.Rand

	batches int
}

// NewSession creates a Session for the model.
//
// If logger is nil, logrus.New() is used.
func NewSession(m *Model, cfg *TrainConfig, logger *logrus.Logger) (*Session, error) {
	if cfg == nil {
		cfg = &TrainConfig{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	s := &Session{Model: m, Config: cfg, Logger: logger}
	name := s.optimizerName()
	newOpt := func(group string, params []*anydiff.Var, rate anysgd.Rater) (*anysgd.Optimizer,
		error) {
		t, err := anysgd.NewTransformer(name, cfg.Beta1)
		if err != nil {
			return nil, essentials.AddCtx("new session", err)
		}
		return &anysgd.Optimizer{Name: group, Params: params, Transformer: t, Rater: rate}, nil
	}

	groups := []struct {
		dest   **anysgd.Optimizer
		name   string
		params []*anydiff.Var
		rate   anysgd.Rater
	}{
		{&s.EncoderRecon, "encoder_recon", m.EncoderParams(),
			rateOrDefault(cfg.AutoencoderRate, DefaultAutoencoderRate)},
		{&s.EncoderAdv, "encoder_adv", m.EncoderParams(),
			rateOrDefault(cfg.EncoderAdvRate, DefaultEncoderAdvRate)},
		{&s.Decoder, "decoder", m.DecoderParams(),
			rateOrDefault(cfg.AutoencoderRate, DefaultAutoencoderRate)},
		{&s.Discriminator, "discriminator", m.DiscriminatorParams(),
			rateOrDefault(cfg.DiscriminatorRate, DefaultDiscriminatorRate)},
		{&s.Generator, "generator", m.GeneratorParams(),
			rateOrDefault(cfg.GeneratorRate, DefaultGeneratorRate)},
	}
	frozen := map[string]bool{}
	for _, group := range cfg.Freeze {
		frozen[group] = true
	}
	for _, g := range groups {
		opt, err := newOpt(g.name, g.params, g.rate)
		if err != nil {
			return nil, err
		}
		opt.Frozen = frozen[g.name]
		delete(frozen, g.name)
		*g.dest = opt
	}
	for unknown := range frozen {
		return nil, fmt.Errorf("new session: cannot freeze unknown optimizer %q", unknown)
	}
	return s, nil
}

// Optimizers returns the five optimizers in phase order.
func (s *Session) Optimizers() []*anysgd.Optimizer {
	return []*anysgd.Optimizer{s.EncoderRecon, s.Decoder, s.Discriminator, s.EncoderAdv,
		s.Generator}
}

// BatchLosses stores the losses of one training step.
type BatchLosses struct {
	Examples int

	NLL      float64
	Disc     float64
	AdvEnc   float64
	AdvGen   float64
	GradNorm float64
}

// TrainBatch runs the four training phases on a batch:
//
//     1. reconstruction, updating encoder and decoder
//     2. discrimination of fresh encoder codes from
//        generated codes, updating the discriminator
//     3. adversarial encoding, updating the encoder
//     4. adversarial generation, updating the generator
//
// Every phase draws its own encoder noise and generator
// input.
// If a loss is not finite, a *NonFiniteError is returned
// and the remaining phases are skipped.
func (s *Session) TrainBatch(b *Batch) (*BatchLosses, error) {
	if err := b.Validate(); err != nil {
		return nil, essentials.AddCtx("train batch", err)
	}
	m := s.Model
	m.SetTraining(true)
	defer m.SetTraining(false)

	for _, o := range s.Optimizers() {
		o.ZeroGrad()
	}
	epoch := float64(s.Epoch)
	n := b.Size()
	c := m.Creator()
	res := &BatchLosses{Examples: n}

	// Reconstruction.
	latent := m.Encoder.Encode(b.Source, b.Lengths, true)
	nll := ReconstructionLoss(m.Decoder.Decode(latent, b.Source, b.Lengths), b.Target, b.Lengths)
	if err := finiteLoss("reconstruction", nll, &res.NLL); err != nil {
		return nil, err
	}
	anysgd.Backward(nll, s.EncoderRecon.Grad(), s.Decoder.Grad())
	res.GradNorm = anysgd.ClipNorm(joinGrads(s.EncoderRecon.Grad(), s.Decoder.Grad()),
		s.Config.gradClip())
	s.EncoderRecon.Step(epoch)
	s.Decoder.Step(epoch)

	// Discriminator.
	realCode := anydiff.NewConst(m.Encoder.Encode(b.Source, b.Lengths, true).Output())
	fakeCode := anydiff.NewConst(m.Generator.Sample(c, n, s.Rand).Output())
	disc := DiscriminatorLoss(m.Discriminator, realCode, fakeCode)
	if err := finiteLoss("discriminator", disc, &res.Disc); err != nil {
		return nil, err
	}
	anysgd.Backward(disc, s.Discriminator.Grad())
	s.Discriminator.Step(epoch)

	// Adversarial encoder.
	advEnc := AdversarialLoss(m.Discriminator, m.Encoder.Encode(b.Source, b.Lengths, true))
	if err := finiteLoss("encoder_adversarial", advEnc, &res.AdvEnc); err != nil {
		return nil, err
	}
	anysgd.Backward(advEnc, s.EncoderAdv.Grad())
	s.EncoderAdv.Step(epoch)

	// Adversarial generator.
	advGen := AdversarialLoss(m.Discriminator, m.Generator.Sample(c, n, s.Rand))
	if err := finiteLoss("generator_adversarial", advGen, &res.AdvGen); err != nil {
		return nil, err
	}
	anysgd.Backward(advGen, s.Generator.Grad())
	s.Generator.Step(epoch)

	s.batches++
	if s.Config.LogInterval > 0 && s.batches%s.Config.LogInterval == 0 {
		s.Logger.WithFields(logrus.Fields{
			"epoch":     s.Epoch,
			"batch":     s.batches,
			"nll":       res.NLL,
			"disc":      res.Disc,
			"adv_enc":   res.AdvEnc,
			"adv_gen":   res.AdvGen,
			"grad_norm": res.GradNorm,
		}).Info("Trained batch")
	}
	return res, nil
}

// EpochStats accumulates per-batch losses over an epoch.
//
// Each batch contributes its mean losses; the totals are
// normalized by the number of examples.
type EpochStats struct {
	Epoch    int
	Examples int
	Batches  int

	NLLSum  float64
	AdvSum  float64
	DiscSum float64
	GenSum  float64
}

// Add accumulates the losses of one batch.
func (e *EpochStats) Add(l *BatchLosses) {
	e.Examples += l.Examples
	e.Batches++
	e.NLLSum += l.NLL
	e.AdvSum += l.AdvEnc
	e.DiscSum += l.Disc
	e.GenSum += l.AdvGen
}

// NLL returns the normalized reconstruction loss.
func (e *EpochStats) NLL() float64 {
	return e.normalize(e.NLLSum)
}

// Adv returns the normalized encoder adversarial loss.
func (e *EpochStats) Adv() float64 {
	return e.normalize(e.AdvSum)
}

// Total returns NLL() + Adv().
func (e *EpochStats) Total() float64 {
	return e.NLL() + e.Adv()
}

// Summary formats the epoch line for a pass kind, such as
// "Train" or "Test".
func (e *EpochStats) Summary(kind string) string {
	return fmt.Sprintf("Epoch %d %s Loss : %.4f NLL Loss : %.4f Adv Loss : %.4f",
		e.Epoch, kind, e.Total(), e.NLL(), e.Adv())
}

func (e *EpochStats) normalize(sum float64) float64 {
	if e.Examples == 0 {
		return 0
	}
	return sum / float64(e.Examples)
}

// RunEpoch trains on every batch in order and then
// advances the session's epoch counter.
//
// On error, the stats so far are returned along with the
// error, and the epoch counter is not advanced.
func RunEpoch(s *Session, batches []*Batch) (*EpochStats, error) {
	stats := &EpochStats{Epoch: s.Epoch}
	for i, b := range batches {
		losses, err := s.TrainBatch(b)
		if err != nil {
			return stats, essentials.AddCtx(fmt.Sprintf("epoch %d batch %d", s.Epoch, i), err)
		}
		stats.Add(losses)
	}
	s.Logger.WithFields(logrus.Fields{
		"epoch":    s.Epoch,
		"batches":  stats.Batches,
		"examples": stats.Examples,
		"nll":      stats.NLL(),
		"adv":      stats.Adv(),
	}).Info("Training epoch completed")
	s.Epoch++
	return stats, nil
}

// SaveState writes the epoch counter and the state of
// every optimizer to a file, so that training can resume
// at the next epoch.
// The model itself is saved separately with SaveModel.
func (s *Session) SaveState(path string) error {
	objs := []interface{}{serializer.Int(s.Epoch), s.optimizerName()}
	for _, o := range s.Optimizers() {
		data, err := o.MarshalState()
		if err != nil {
			return essentials.AddCtx("save session", err)
		}
		objs = append(objs, string(data))
	}
	data, err := serializer.SerializeAny(objs...)
	if err != nil {
		return essentials.AddCtx("save session", err)
	}
	if err := ioutil.WriteFile(path, data, 0644); err != nil {
		return essentials.AddCtx("save session", err)
	}
	return nil
}

// LoadState restores a file written by SaveState.
//
// The session must have been created for the same model
// and optimizer type.
func (s *Session) LoadState(path string) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return essentials.AddCtx("load session", err)
	}
	var epoch serializer.Int
	var name string
	opts := s.Optimizers()
	states := make([]string, len(opts))
	dests := []interface{}{&epoch, &name}
	for i := range states {
		dests = append(dests, &states[i])
	}
	if err := serializer.DeserializeAny(data, dests...); err != nil {
		return essentials.AddCtx("load session", err)
	}
	if name != s.optimizerName() {
		return fmt.Errorf("load session: saved with %s optimizer, not %s", name,
			s.optimizerName())
	}
	for i, o := range opts {
		if err := o.UnmarshalState([]byte(states[i])); err != nil {
			return essentials.AddCtx("load session", err)
		}
	}
	s.Epoch = int(epoch)
	return nil
}

func (s *Session) optimizerName() string {
	if s.Config.Optimizer == "" {
		return "adam"
	}
	return s.Config.Optimizer
}

func finiteLoss(phase string, loss anydiff.Res, dest *float64) error {
	value := ScalarValue(loss)
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return &NonFiniteError{Phase: phase, Value: value}
	}
	*dest = value
	return nil
}

func joinGrads(grads ...anydiff.Grad) anydiff.Grad {
	res := anydiff.Grad{}
	for _, g := range grads {
		for v, vec := range g {
			res[v] = vec
		}
	}
	return res
}
