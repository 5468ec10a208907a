package arae

import (
	"bytes"
	"strings"
	"testing"
)

func TestEvaluateTranscript(t *testing.T) {
	m := testModel(t, float64Creator())
	var transcript bytes.Buffer
	stats, err := Evaluate(m, []*Batch{testBatch()}, testVocab(20), &transcript,
		&EvalOptions{Epoch: 4})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Epoch != 4 || stats.Examples != 2 {
		t.Errorf("unexpected stats: %+v", stats.EpochStats)
	}
	lines := strings.Split(transcript.String(), "\n")
	if len(lines) != 7 {
		t.Fatalf("expected 7 lines but got %d: %q", len(lines), transcript.String())
	}
	if lines[0] != "w5 w6 w7 w8 w2" || lines[3] != "w9 w10 w2" {
		t.Errorf("unexpected targets: %q %q", lines[0], lines[3])
	}
	if len(strings.Fields(lines[1])) != 5 || len(strings.Fields(lines[4])) != 3 {
		t.Errorf("predictions should cover the true lengths: %q %q", lines[1], lines[4])
	}
	if lines[2] != "" || lines[5] != "" {
		t.Error("examples should be separated by blank lines")
	}
	for _, x := range []float64{stats.RealMean, stats.FakeMean} {
		if x <= 0 || x >= 1 {
			t.Errorf("mean probability out of range: %f", x)
		}
	}
}

func TestEvaluateNoise(t *testing.T) {
	m := testModel(t, float64Creator())
	batches := []*Batch{testBatch()}

	run := func(noise bool) *EvalStats {
		stats, err := Evaluate(m, batches, testVocab(20), nil, &EvalOptions{Noise: noise})
		if err != nil {
			t.Fatal(err)
		}
		return stats
	}

	clean1, clean2 := run(false), run(false)
	if clean1.NLL() != clean2.NLL() || clean1.Adv() != clean2.Adv() {
		t.Error("evaluation without noise should be deterministic")
	}
	noisy1, noisy2 := run(true), run(true)
	if noisy1.NLL() == noisy2.NLL() && noisy1.Adv() == noisy2.Adv() {
		t.Error("evaluation with noise should vary")
	}
}

func TestEvaluateDoesNotTrain(t *testing.T) {
	m := testModel(t, float64Creator())
	before := copyParams(m.Parameters())
	var debug bytes.Buffer
	_, err := Evaluate(m, []*Batch{testBatch()}, testVocab(20), nil,
		&EvalOptions{Noise: true, Debug: &debug})
	if err != nil {
		t.Fatal(err)
	}
	if paramsChanged(before, m.Parameters()) {
		t.Error("evaluation changed the model")
	}
	if !strings.Contains(debug.String(), "norms:") {
		t.Errorf("missing debug output: %q", debug.String())
	}
}
