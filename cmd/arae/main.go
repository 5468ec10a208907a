// Command arae trains an adversarially regularized
// autoencoder on a text corpus.
//
// After every epoch it evaluates on held-out sentences,
// writes a reconstruction transcript and sampled
// sentences to the output directory, and saves a
// checkpoint.
// Press ctrl+c once to stop after the current epoch.
package main

import (
	"flag"
	"io"
	"io/ioutil"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/PengSasm/arae"
	"github.com/PengSasm/arae/corpus"
	"github.com/sirupsen/logrus"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

type Flags struct {
	DataPath  string
	OutDir    string
	ModelPath   string
	SessionPath string
	LogPath     string

	MaxLen    int
	MaxWords  int
	Lowercase bool
	TestRatio float64
	BatchSize int
	Epochs    int
	Float64   bool

	Model arae.Config
	Train arae.TrainConfig

	Policy     string
	NumSamples int
	SampleLen  int
}

func main() {
	var f Flags
	var hiddenSelect string
	flag.StringVar(&f.DataPath, "data", "", "corpus with one sentence per line")
	flag.StringVar(&f.OutDir, "out", "output", "directory for artifacts")
	flag.StringVar(&f.ModelPath, "model", "", "checkpoint path (default <out>/model)")
	flag.StringVar(&f.SessionPath, "session", "",
		"optimizer checkpoint path (default <out>/session)")
	flag.StringVar(&f.LogPath, "log", "", "log file (default <out>/log.txt)")
	flag.IntVar(&f.MaxLen, "maxlen", 30, "maximum sentence length")
	flag.IntVar(&f.MaxWords, "vocab", 11000, "maximum vocabulary size (0 for all words)")
	flag.BoolVar(&f.Lowercase, "lowercase", false, "lowercase the corpus")
	flag.Float64Var(&f.TestRatio, "test", 0.1, "fraction of sentences held out")
	flag.IntVar(&f.BatchSize, "batch", 64, "batch size")
	flag.IntVar(&f.Epochs, "epochs", 15, "total number of epochs, including resumed ones")
	flag.BoolVar(&f.Float64, "float64", false, "compute in double precision")

	flag.StringVar(&f.Model.Encoder, "encoder", "lstm", "encoder architecture")
	flag.StringVar(&f.Model.Decoder, "decoder", "lstm", "decoder architecture")
	flag.IntVar(&f.Model.Latent, "latent", 300, "latent code size")
	flag.IntVar(&f.Model.Embedding, "emb", 300, "embedding size")
	flag.IntVar(&f.Model.Layers, "layers", 1, "recurrent layers")
	flag.IntVar(&f.Model.GenHidden, "gen-hidden", 300, "generator hidden size")
	flag.IntVar(&f.Model.DiscHidden, "disc-hidden", 300, "discriminator hidden size")
	flag.IntVar(&f.Model.Noise, "noise", 100, "generator noise size")
	flag.Float64Var(&f.Model.HiddenNoise, "hidden-noise", arae.DefaultHiddenNoise,
		"stddev of encoder noise (negative to disable)")
	flag.Float64Var(&f.Model.InitRange, "init-range", arae.DefaultInitRange,
		"uniform initialization range")
	flag.StringVar(&hiddenSelect, "hidden-select", string(arae.SelectLast),
		"encoder hidden selection (last or sum)")
	flag.Float64Var(&f.Model.KeepProb, "keep-prob", 1, "embedding dropout keep probability")

	flag.StringVar(&f.Train.Optimizer, "optimizer", "adam", "adam, rmsprop, momentum, or sgd")
	flag.Float64Var(&f.Train.Beta1, "beta1", 0, "first moment decay (0 for default)")
	flag.Float64Var(&f.Train.AutoencoderRate, "lr-ae", arae.DefaultAutoencoderRate,
		"autoencoder learning rate")
	flag.Float64Var(&f.Train.EncoderAdvRate, "lr-enc-adv", arae.DefaultEncoderAdvRate,
		"adversarial encoder learning rate")
	flag.Float64Var(&f.Train.GeneratorRate, "lr-gen", arae.DefaultGeneratorRate,
		"generator learning rate")
	flag.Float64Var(&f.Train.DiscriminatorRate, "lr-disc", arae.DefaultDiscriminatorRate,
		"discriminator learning rate")
	flag.Float64Var(&f.Train.GradClip, "clip", arae.DefaultGradClip,
		"autoencoder gradient norm limit (negative to disable)")
	flag.IntVar(&f.Train.LogInterval, "log-interval", 100, "batches between progress logs")
	flag.BoolVar(&f.Train.EvalNoise, "eval-noise", false, "add encoder noise when evaluating")

	flag.StringVar(&f.Policy, "policy", "sampling", "token selection (sampling, greedy, gumbel)")
	flag.IntVar(&f.NumSamples, "samples", 100, "sentences to sample per epoch")
	flag.IntVar(&f.SampleLen, "sample-len", 15, "length of sampled sentences")
	flag.Parse()

	f.Model.HiddenSelect = arae.HiddenSelect(hiddenSelect)
	if f.DataPath == "" {
		logrus.Fatal("missing -data flag")
	}
	if f.ModelPath == "" {
		f.ModelPath = filepath.Join(f.OutDir, "model")
	}
	if f.SessionPath == "" {
		f.SessionPath = filepath.Join(f.OutDir, "session")
	}
	if f.LogPath == "" {
		f.LogPath = filepath.Join(f.OutDir, "log.txt")
	}
	policy, err := arae.ParsePolicy(f.Policy)
	if err != nil {
		logrus.Fatal(err)
	}
	if err := os.MkdirAll(f.OutDir, 0755); err != nil {
		logrus.Fatal(err)
	}

	logger := logrus.New()
	logFile, err := arae.OpenAppend(f.LogPath)
	if err != nil {
		logrus.Fatal(err)
	}
	defer logFile.Close()
	logger.Out = io.MultiWriter(os.Stdout, logFile)

	if err := run(&f, policy, logger); err != nil {
		logger.WithError(err).Error("Training failed")
		os.Exit(1)
	}
}

func run(f *Flags, policy arae.SelectionPolicy, logger *logrus.Logger) error {
	logger.WithField("path", f.DataPath).Info("Loading corpus")
	sentences, err := corpus.LoadSentences(f.DataPath, f.MaxLen, f.Lowercase)
	if err != nil {
		return err
	}
	vocab, err := loadOrBuildVocab(f, sentences)
	if err != nil {
		return err
	}
	train, test := corpus.Split(corpus.NewSentenceList(vocab, sentences), f.TestRatio)
	logger.WithFields(logrus.Fields{
		"vocab": vocab.Len(),
		"train": train.Len(),
		"test":  test.Len(),
	}).Info("Loaded corpus")

	model, resumed, err := loadOrCreateModel(f, vocab)
	if err != nil {
		return err
	}
	session, err := arae.NewSession(model, &f.Train, logger)
	if err != nil {
		return err
	}
	if resumed {
		if _, err := os.Stat(f.SessionPath); err == nil {
			if err := session.LoadState(f.SessionPath); err != nil {
				return err
			}
		}
		logger.WithFields(logrus.Fields{
			"path":  f.ModelPath,
			"epoch": session.Epoch,
		}).Info("Resuming from checkpoint")
	}
	sampler := &arae.Sampler{
		Model:   model,
		Policy:  policy,
		StartID: vocab.StartID(),
		Rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	logger.Info("Press ctrl+c once to stop after the current epoch...")

	for session.Epoch < f.Epochs {
		epoch := session.Epoch
		trainStats, err := arae.RunEpoch(session, corpus.Batches(train, vocab, f.BatchSize, true))
		if err != nil {
			return err
		}
		logger.Info(trainStats.Summary("Train"))

		if test.Len() > 0 {
			if err := evaluate(f, model, vocab, test, epoch, logger); err != nil {
				return err
			}
		}

		ids, err := sampler.Sample(f.NumSamples, f.SampleLen)
		if err != nil {
			return err
		}
		samplePath := arae.SamplingPath(f.OutDir, epoch)
		if err := arae.AppendLines(samplePath, arae.Sentences(vocab, ids)); err != nil {
			return err
		}

		if err := model.SaveModel(f.ModelPath); err != nil {
			return err
		}
		if err := session.SaveState(f.SessionPath); err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{
			"model":   f.ModelPath,
			"session": f.SessionPath,
		}).Info("Saved checkpoint")

		select {
		case <-stop:
			signal.Stop(stop)
			logger.Info("Stopping early")
			return nil
		default:
		}
	}
	return nil
}

func evaluate(f *Flags, model *arae.Model, vocab *corpus.Vocabulary, test corpus.SentenceList,
	epoch int, logger *logrus.Logger) error {
	transcript, err := arae.OpenAppend(arae.ReconstructionPath(f.OutDir, epoch))
	if err != nil {
		return err
	}
	defer transcript.Close()
	stats, err := arae.Evaluate(model, corpus.Batches(test, vocab, f.BatchSize, false), vocab,
		transcript, &arae.EvalOptions{Epoch: epoch, Noise: f.Train.EvalNoise})
	if err != nil {
		return err
	}
	logger.Info(stats.Summary("Test"))
	logger.WithFields(logrus.Fields{
		"epoch":     epoch,
		"real_mean": stats.RealMean,
		"real_std":  stats.RealStd,
		"fake_mean": stats.FakeMean,
		"fake_std":  stats.FakeStd,
	}).Info("Discriminator outputs")
	return nil
}

func loadOrBuildVocab(f *Flags, sentences [][]string) (*corpus.Vocabulary, error) {
	path := filepath.Join(f.OutDir, "vocab")
	if data, err := ioutil.ReadFile(path); err == nil {
		var vocab *corpus.Vocabulary
		if err := serializer.DeserializeAny(data, &vocab); err != nil {
			return nil, essentials.AddCtx("load vocabulary", err)
		}
		return vocab, nil
	}
	vocab := corpus.BuildVocabulary(sentences, f.MaxWords)
	data, err := serializer.SerializeAny(vocab)
	if err != nil {
		return nil, essentials.AddCtx("save vocabulary", err)
	}
	if err := ioutil.WriteFile(path, data, 0644); err != nil {
		return nil, essentials.AddCtx("save vocabulary", err)
	}
	return vocab, nil
}

// loadOrCreateModel reports whether the model was loaded
// from an earlier run.
func loadOrCreateModel(f *Flags, vocab *corpus.Vocabulary) (*arae.Model, bool, error) {
	if _, err := os.Stat(f.ModelPath); err == nil {
		m, err := arae.LoadModel(f.ModelPath)
		return m, true, err
	}
	var c anyvec.Creator = anyvec32.CurrentCreator()
	if f.Float64 {
		c = anyvec64.DefaultCreator{}
	}
	f.Model.Tokens = vocab.Len()
	m, err := arae.NewModel(c, &f.Model)
	return m, false, err
}
