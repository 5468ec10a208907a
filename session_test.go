package arae

import (
	"bytes"
	"errors"
	"io/ioutil"
	"math"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PengSasm/arae/anynet"
	"github.com/PengSasm/arae/anyrnn"
	"github.com/PengSasm/arae/anysgd"
	"github.com/sirupsen/logrus"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

func testLogger(buf *bytes.Buffer) *logrus.Logger {
	logger := logrus.New()
	if buf != nil {
		logger.Out = buf
	} else {
		logger.Out = ioutil.Discard
	}
	return logger
}

func testSession(t *testing.T, m *Model, cfg *TrainConfig, buf *bytes.Buffer) *Session {
	s, err := NewSession(m, cfg, testLogger(buf))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestTrainBatch(t *testing.T) {
	m := testModel(t, float64Creator())
	s := testSession(t, m, nil, nil)

	groups := map[string][]*anydiff.Var{
		"encoder":       m.EncoderParams(),
		"decoder":       m.DecoderParams(),
		"generator":     m.GeneratorParams(),
		"discriminator": m.DiscriminatorParams(),
	}
	before := map[string][][]float64{}
	for name, params := range groups {
		before[name] = copyParams(params)
	}

	losses, err := s.TrainBatch(testBatch())
	if err != nil {
		t.Fatal(err)
	}
	for name, x := range map[string]float64{"nll": losses.NLL, "disc": losses.Disc,
		"adv_enc": losses.AdvEnc, "adv_gen": losses.AdvGen} {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			t.Errorf("%s is not finite: %f", name, x)
		}
	}
	if losses.Examples != 2 {
		t.Errorf("expected 2 examples but got %d", losses.Examples)
	}
	for name, params := range groups {
		if !paramsChanged(before[name], params) {
			t.Errorf("%s parameters did not change", name)
		}
	}
	for _, o := range s.Optimizers() {
		if o.Pending() {
			t.Errorf("optimizer %s still has a gradient", o.Name)
		}
	}
}

func TestTrainBatchFreeze(t *testing.T) {
	m := testModel(t, float64Creator())
	cfg := &TrainConfig{Freeze: []string{"discriminator"}}
	s := testSession(t, m, cfg, nil)
	if !s.Discriminator.Frozen || s.Generator.Frozen {
		t.Fatal("unexpected frozen flags")
	}
	before := copyParams(m.DiscriminatorParams())
	genBefore := copyParams(m.GeneratorParams())
	if _, err := s.TrainBatch(testBatch()); err != nil {
		t.Fatal(err)
	}
	if paramsChanged(before, m.DiscriminatorParams()) {
		t.Error("frozen discriminator moved")
	}
	if !paramsChanged(genBefore, m.GeneratorParams()) {
		t.Error("generator should still train")
	}
	if s.Discriminator.Pending() {
		t.Error("frozen optimizer kept its gradient")
	}

	if _, err := NewSession(m, &TrainConfig{Freeze: []string{"critic"}}, nil); err == nil {
		t.Error("expected an error for an unknown group")
	}
}

// phaseRecord is one optimizer step seen by a
// recordingTransformer.
type phaseRecord struct {
	Name    string
	Grad    anydiff.Grad
	Params  []anyvec.Vector
	Pending []string
}

// recordingTransformer stores the gradient handed to an
// optimizer and a copy of every model parameter at the
// moment of the step, then passes the gradient through.
type recordingTransformer struct {
	Name    string
	Session *Session
	Params  []*anydiff.Var
	Records *[]*phaseRecord
}

func (r *recordingTransformer) Transform(g anydiff.Grad) anydiff.Grad {
	rec := &phaseRecord{Name: r.Name, Grad: anydiff.Grad{}}
	for v, vec := range g {
		rec.Grad[v] = vec.Copy()
	}
	for _, p := range r.Params {
		rec.Params = append(rec.Params, p.Vector.Copy())
	}
	for _, o := range r.Session.Optimizers() {
		if o.Name != r.Name && o.Pending() {
			rec.Pending = append(rec.Pending, o.Name)
		}
	}
	*r.Records = append(*r.Records, rec)
	return g
}

func TestTrainBatchPhaseGradients(t *testing.T) {
	const seed = 1337
	m := testModel(t, float64Creator())
	m.Encoder.Noise = 0
	cfg := &TrainConfig{
		AutoencoderRate:   0.05,
		EncoderAdvRate:    0.05,
		GeneratorRate:     0.05,
		DiscriminatorRate: 0.05,
		GradClip:          -1,
		Optimizer:         "sgd",
	}
	s := testSession(t, m, cfg, nil)
	s.Rand = rand.New(rand.NewSource(seed))

	all := m.Parameters()
	groups := map[string][]*anydiff.Var{
		"encoder_recon": m.EncoderParams(),
		"encoder_adv":   m.EncoderParams(),
		"decoder":       m.DecoderParams(),
		"discriminator": m.DiscriminatorParams(),
		"generator":     m.GeneratorParams(),
	}
	var records []*phaseRecord
	for _, o := range s.Optimizers() {
		o.Transformer = &recordingTransformer{
			Name:    o.Name,
			Session: s,
			Params:  all,
			Records: &records,
		}
	}

	b := testBatch()
	if _, err := s.TrainBatch(b); err != nil {
		t.Fatal(err)
	}
	final := make([]anyvec.Vector, len(all))
	for i, p := range all {
		final[i] = p.Vector.Copy()
	}

	order := []string{"encoder_recon", "decoder", "discriminator", "encoder_adv", "generator"}
	if len(records) != len(order) {
		t.Fatalf("expected %d steps but got %d", len(order), len(records))
	}
	for i, rec := range records {
		if rec.Name != order[i] {
			t.Fatalf("step %d: expected %s but got %s", i, order[i], rec.Name)
		}
		// The decoder steps right after the encoder in the
		// reconstruction phase, so its gradient is still
		// waiting during the encoder's step.
		for _, name := range rec.Pending {
			if !(rec.Name == "encoder_recon" && name == "decoder") {
				t.Errorf("step %s: %s has a gradient from another phase", rec.Name, name)
			}
		}
	}

	// Only the stepping group may move between snapshots.
	for i, rec := range records {
		next := final
		if i+1 < len(records) {
			next = records[i+1].Params
		}
		own := map[*anydiff.Var]bool{}
		for _, p := range groups[rec.Name] {
			own[p] = true
		}
		for j, p := range all {
			if own[p] {
				continue
			}
			if !floatsEqual(vectorFloats(rec.Params[j]), vectorFloats(next[j])) {
				t.Errorf("step %s moved a parameter outside its group", rec.Name)
				break
			}
		}
	}

	restore := func(snapshot []anyvec.Vector) {
		for i, p := range all {
			p.Vector.Set(snapshot[i])
		}
	}
	c := m.Creator()
	n := b.Size()
	replay := rand.New(rand.NewSource(seed))

	restore(records[0].Params)
	recon := ReconstructionLoss(m.Decoder.Decode(m.Encoder.Encode(b.Source, b.Lengths, false),
		b.Source, b.Lengths), b.Target, b.Lengths)
	expected := lossGrad(recon, append(m.EncoderParams(), m.DecoderParams()...))
	checkPhaseGrad(t, records[0], expected, m.EncoderParams())
	checkPhaseGrad(t, records[1], expected, m.DecoderParams())

	restore(records[2].Params)
	realCode := anydiff.NewConst(m.Encoder.Encode(b.Source, b.Lengths, false).Output())
	fakeCode := anydiff.NewConst(m.Generator.Generate(m.Generator.Noise(c, n, replay),
		n).Output())
	disc := DiscriminatorLoss(m.Discriminator, realCode, fakeCode)
	checkPhaseGrad(t, records[2], lossGrad(disc, m.DiscriminatorParams()),
		m.DiscriminatorParams())

	restore(records[3].Params)
	advEnc := AdversarialLoss(m.Discriminator, m.Encoder.Encode(b.Source, b.Lengths, false))
	checkPhaseGrad(t, records[3], lossGrad(advEnc, m.EncoderParams()), m.EncoderParams())

	restore(records[4].Params)
	advGen := AdversarialLoss(m.Discriminator,
		m.Generator.Generate(m.Generator.Noise(c, n, replay), n))
	checkPhaseGrad(t, records[4], lossGrad(advGen, m.GeneratorParams()), m.GeneratorParams())
}

func lossGrad(loss anydiff.Res, params []*anydiff.Var) anydiff.Grad {
	g := anydiff.NewGrad(params...)
	c := loss.Output().Creator()
	loss.Propagate(c.MakeVectorData(c.MakeNumericList([]float64{1})), g)
	return g
}

func checkPhaseGrad(t *testing.T, rec *phaseRecord, expected anydiff.Grad,
	params []*anydiff.Var) {
	if len(rec.Grad) != len(params) {
		t.Errorf("step %s: gradient has %d entries, expected %d", rec.Name, len(rec.Grad),
			len(params))
	}
	for i, p := range params {
		actual, ok := rec.Grad[p]
		if !ok {
			t.Errorf("step %s: missing parameter %d", rec.Name, i)
			continue
		}
		a := vectorFloats(actual)
		x := vectorFloats(expected[p])
		for j := range x {
			if math.Abs(a[j]-x[j]) > 1e-8*math.Max(1, math.Abs(x[j])) {
				t.Errorf("step %s: parameter %d entry %d: expected %f but got %f",
					rec.Name, i, j, x[j], a[j])
				break
			}
		}
	}
}

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i, x := range a {
		if x != b[i] {
			return false
		}
	}
	return true
}

func TestSessionSaveState(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model")
	sessionPath := filepath.Join(dir, "session")

	m := testModel(t, float64Creator())
	m.Encoder.Noise = 0
	s := testSession(t, m, nil, nil)
	if _, err := RunEpoch(s, []*Batch{testBatch(), testBatch()}); err != nil {
		t.Fatal(err)
	}
	if err := m.SaveModel(modelPath); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveState(sessionPath); err != nil {
		t.Fatal(err)
	}

	m1, err := LoadModel(modelPath)
	if err != nil {
		t.Fatal(err)
	}
	s1 := testSession(t, m1, nil, nil)
	if err := s1.LoadState(sessionPath); err != nil {
		t.Fatal(err)
	}
	if s1.Epoch != 1 {
		t.Errorf("expected epoch 1 but got %d", s1.Epoch)
	}
	for i, o := range s1.Optimizers() {
		expected := s.Optimizers()[i].Transformer.(*anysgd.Adam).Steps()
		actual := o.Transformer.(*anysgd.Adam).Steps()
		if expected != 2 || actual != expected {
			t.Errorf("optimizer %s: expected %d steps but got %d", o.Name, expected, actual)
		}
	}

	// With the moments restored, the next step matches an
	// uninterrupted run.
	s.Rand = rand.New(rand.NewSource(3))
	s1.Rand = rand.New(rand.NewSource(3))
	if _, err := s.TrainBatch(testBatch()); err != nil {
		t.Fatal(err)
	}
	if _, err := s1.TrainBatch(testBatch()); err != nil {
		t.Fatal(err)
	}
	params, params1 := m.Parameters(), m1.Parameters()
	for i, p := range params {
		a, b := vectorFloats(p.Vector), vectorFloats(params1[i].Vector)
		for j := range a {
			if math.Abs(a[j]-b[j]) > 1e-9 {
				t.Fatalf("parameter %d diverged after resuming: %f vs %f", i, a[j], b[j])
			}
		}
	}

	s2 := testSession(t, m1, &TrainConfig{Optimizer: "rmsprop"}, nil)
	if err := s2.LoadState(sessionPath); err == nil {
		t.Error("expected an error for a different optimizer")
	}
}

func TestTrainBatchNonFinite(t *testing.T) {
	m := testModel(t, float64Creator())
	s := testSession(t, m, nil, nil)
	proj := m.Decoder.Block[len(m.Decoder.Block)-1].(*anyrnn.LayerBlock).Layer.(*anynet.FC)
	proj.Biases.Vector.SetData(m.Creator().MakeNumericList(
		[]float64{math.NaN(), 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}))

	before := copyParams(m.DiscriminatorParams())
	_, err := s.TrainBatch(testBatch())
	var nonFinite *NonFiniteError
	if !errors.As(err, &nonFinite) {
		t.Fatalf("expected NonFiniteError but got %v", err)
	}
	if nonFinite.Phase != "reconstruction" {
		t.Errorf("unexpected phase: %s", nonFinite.Phase)
	}
	if paramsChanged(before, m.DiscriminatorParams()) {
		t.Error("later phases should be skipped")
	}
}

func TestTrainBatchInvalid(t *testing.T) {
	m := testModel(t, float64Creator())
	s := testSession(t, m, nil, nil)
	b := testBatch()
	b.Lengths = []int{3, 5}
	if _, err := s.TrainBatch(b); err == nil {
		t.Error("expected an error")
	}
}

func TestNewSessionOptimizer(t *testing.T) {
	m := testModel(t, float64Creator())
	if _, err := NewSession(m, &TrainConfig{Optimizer: "lbfgs"}, nil); err == nil {
		t.Error("expected an error")
	}
	s := testSession(t, m, &TrainConfig{Optimizer: "rmsprop"}, nil)
	if len(s.Optimizers()) != 5 {
		t.Errorf("expected 5 optimizers but got %d", len(s.Optimizers()))
	}
	if len(s.EncoderRecon.Params) != len(s.EncoderAdv.Params) {
		t.Error("encoder optimizers should share parameters")
	}
	if s.EncoderRecon.Transformer == s.EncoderAdv.Transformer {
		t.Error("encoder optimizers should not share state")
	}
}

func TestRunEpoch(t *testing.T) {
	m := testModel(t, float64Creator())
	var buf bytes.Buffer
	s := testSession(t, m, &TrainConfig{LogInterval: 1}, &buf)
	batches := []*Batch{testBatch(), testBatch(), testBatch()}
	stats, err := RunEpoch(s, batches)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Examples != 6 || stats.Batches != 3 {
		t.Errorf("unexpected counts: %d examples, %d batches", stats.Examples, stats.Batches)
	}
	if s.Epoch != 1 {
		t.Errorf("expected epoch 1 but got %d", s.Epoch)
	}
	if math.Abs(stats.Total()-(stats.NLL()+stats.Adv())) > 1e-12 {
		t.Error("total should be the sum of NLL and adversarial losses")
	}
	if math.Abs(stats.NLL()-stats.NLLSum/6) > 1e-12 {
		t.Error("NLL should be normalized by the example count")
	}
	if !strings.HasPrefix(stats.Summary("Train"), "Epoch 0 Train Loss : ") {
		t.Errorf("unexpected summary: %s", stats.Summary("Train"))
	}
	out := buf.String()
	if strings.Count(out, "Trained batch") != 3 || !strings.Contains(out, "nll=") {
		t.Errorf("unexpected log output: %s", out)
	}
	if !strings.Contains(out, "Training epoch completed") {
		t.Error("missing epoch log")
	}
}

func TestEpochStatsSummary(t *testing.T) {
	stats := &EpochStats{Epoch: 3}
	stats.Add(&BatchLosses{Examples: 2, NLL: 3, AdvEnc: 1})
	stats.Add(&BatchLosses{Examples: 2, NLL: 1, AdvEnc: 1})
	expected := "Epoch 3 Test Loss : 1.5000 NLL Loss : 1.0000 Adv Loss : 0.5000"
	if actual := stats.Summary("Test"); actual != expected {
		t.Errorf("expected %q but got %q", expected, actual)
	}
	if (&EpochStats{}).Total() != 0 {
		t.Error("empty stats should be zero")
	}
}
