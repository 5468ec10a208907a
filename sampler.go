package arae

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/unixpickle/anyvec"
	"gonum.org/v1/gonum/floats"
)

const gumbelEpsilon = 1e-10

// DefaultStartID is the token fed to the decoder before
// the first sampled token.
const DefaultStartID = 1

// A SelectionPolicy decides how a token is picked from
// the decoder's logits.
type SelectionPolicy string

// These are the supported selection policies.
const (
	// PolicySampling draws from softmax(logits).
	PolicySampling SelectionPolicy = "sampling"

	// PolicyGreedy takes the most likely token.
	PolicyGreedy SelectionPolicy = "greedy"

	// PolicyGumbel draws with the Gumbel-max trick, which
	// matches PolicySampling in distribution.
	PolicyGumbel SelectionPolicy = "gumbel"
)

// ParsePolicy parses a policy name.
// "stochastic" is accepted as an alias for "sampling".
func ParsePolicy(name string) (SelectionPolicy, error) {
	switch name {
	case "sampling", "stochastic":
		return PolicySampling, nil
	case "greedy":
		return PolicyGreedy, nil
	case "gumbel":
		return PolicyGumbel, nil
	default:
		return "", fmt.Errorf("unsupported selection policy: %s", name)
	}
}

// A Sampler generates sentences from noise by feeding
// generated codes to the decoder one token at a time.
type Sampler struct {
	Model  *Model
	Policy SelectionPolicy

	// StartID is the first decoder input.
	// If 0, DefaultStartID is used.
	StartID int

	// Rand is the source of generator noise and of the
	// randomness in stochastic policies.
	// If nil, the math/rand global source is used.
	Rand *rand.Rand
}

// Sample generates n sequences of exactly maxLen tokens
// from freshly drawn generator noise.
func (s *Sampler) Sample(n, maxLen int) ([][]int, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sample: invalid count %d", n)
	}
	latent := s.Model.Generator.Sample(s.Model.Creator(), n, s.Rand).Output()
	return s.SampleLatent(latent, maxLen)
}

// SampleLatent generates one sequence of exactly maxLen
// tokens per latent code.
//
// The recurrent state is carried across timesteps and
// each step's input is the previously selected token
// alongside the same code.
func (s *Sampler) SampleLatent(latent anyvec.Vector, maxLen int) ([][]int, error) {
	if maxLen <= 0 {
		return nil, fmt.Errorf("sample: invalid length %d", maxLen)
	}
	if _, err := ParsePolicy(string(s.Policy)); err != nil {
		return nil, err
	}
	latentSize := s.Model.Encoder.LatentSize()
	if latent.Len() == 0 || latent.Len()%latentSize != 0 {
		return nil, fmt.Errorf("sample: latent length %d not divisible by %d",
			latent.Len(), latentSize)
	}
	n := latent.Len() / latentSize

	tokens := make([]int, n)
	for i := range tokens {
		tokens[i] = s.startID()
	}
	res := make([][]int, n)
	state := s.Model.Decoder.Start(n)
	for t := 0; t < maxLen; t++ {
		out, next := s.Model.Decoder.Step(state, tokens, latent)
		state = next
		values := vectorFloats(out)
		numTokens := len(values) / n
		for i := range tokens {
			id, err := s.selectToken(values[i*numTokens : (i+1)*numTokens])
			if err != nil {
				return nil, err
			}
			tokens[i] = id
			res[i] = append(res[i], id)
		}
	}
	return res, nil
}

func (s *Sampler) startID() int {
	if s.StartID == 0 {
		return DefaultStartID
	}
	return s.StartID
}

func (s *Sampler) selectToken(logits []float64) (int, error) {
	for _, x := range logits {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, &NumericError{Op: "select token", Reason: "non-finite logits"}
		}
	}
	switch s.Policy {
	case PolicyGreedy:
		return floats.MaxIdx(logits), nil
	case PolicyGumbel:
		perturbed := make([]float64, len(logits))
		for i, x := range logits {
			u := s.float64()
			perturbed[i] = x - math.Log(-math.Log(u+gumbelEpsilon)+gumbelEpsilon)
		}
		return floats.MaxIdx(perturbed), nil
	default:
		return s.sampleSoftmax(logits)
	}
}

func (s *Sampler) sampleSoftmax(logits []float64) (int, error) {
	probs := append([]float64{}, logits...)
	floats.AddConst(-floats.LogSumExp(logits), probs)
	for i, x := range probs {
		probs[i] = math.Exp(x)
	}
	total := floats.Sum(probs)
	if math.IsNaN(total) || total <= 0 {
		return 0, &NumericError{Op: "select token", Reason: "degenerate distribution"}
	}
	target := s.float64() * total
	var cumulative float64
	last := -1
	for i, p := range probs {
		if p <= 0 {
			continue
		}
		last = i
		cumulative += p
		if cumulative > target {
			return i, nil
		}
	}
	if last < 0 {
		return 0, &NumericError{Op: "select token", Reason: "degenerate distribution"}
	}
	return last, nil
}

func (s *Sampler) float64() float64 {
	if s.Rand == nil {
		return rand.Float64()
	}
	return s.Rand.Float64()
}

// Sentences renders token sequences as space-separated
// strings, cutting each one before its first end token.
func Sentences(vocab Vocab, ids [][]int) []string {
	res := make([]string, len(ids))
	for i, seq := range ids {
		var words []string
		for _, id := range seq {
			if id == vocab.EOSID() {
				break
			}
			words = append(words, vocab.Token(id))
		}
		res[i] = strings.Join(words, " ")
	}
	return res
}
