package arae

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
)

// testVocab names token i as "w<i>", with the usual
// special IDs.
type testVocab int

func (t testVocab) Len() int            { return int(t) }
func (t testVocab) Token(id int) string { return fmt.Sprintf("w%d", id) }
func (t testVocab) PadID() int          { return 0 }
func (t testVocab) StartID() int        { return 1 }
func (t testVocab) EOSID() int          { return 2 }

func (t testVocab) ID(token string) int {
	id, err := strconv.Atoi(strings.TrimPrefix(token, "w"))
	if err != nil || id >= int(t) {
		return 0
	}
	return id
}

func testConfig() *Config {
	return &Config{
		Latent:     8,
		Tokens:     20,
		Embedding:  4,
		Layers:     1,
		DiscHidden: 6,
		GenHidden:  6,
		Noise:      5,
	}
}

func testModel(t *testing.T, c anyvec.Creator) *Model {
	m, err := NewModel(c, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	return m
}

// testBatch has lengths 5 and 3, padded to 5.
func testBatch() *Batch {
	return &Batch{
		Source: [][]int{
			{1, 5, 6, 7, 8},
			{1, 9, 10, 0, 0},
		},
		Target: [][]int{
			{5, 6, 7, 8, 2},
			{9, 10, 2, 0, 0},
		},
		Lengths: []int{5, 3},
	}
}

func copyParams(params []*anydiff.Var) [][]float64 {
	res := make([][]float64, len(params))
	for i, p := range params {
		res[i] = vectorFloats(p.Vector)
	}
	return res
}

func paramsChanged(before [][]float64, params []*anydiff.Var) bool {
	for i, p := range params {
		for j, x := range vectorFloats(p.Vector) {
			if x != before[i][j] {
				return true
			}
		}
	}
	return false
}

func float64Creator() anyvec.Creator {
	return anyvec64.DefaultCreator{}
}
