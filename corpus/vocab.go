package corpus

import (
	"errors"
	"sort"
	"strings"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// Special tokens, which always take the first IDs of a
// Vocabulary in this order.
const (
	PadToken   = "<pad>"
	StartToken = "<sos>"
	EOSToken   = "<eos>"
	OOVToken   = "<oov>"
)

var specialTokens = []string{PadToken, StartToken, EOSToken, OOVToken}

func init() {
	var v Vocabulary
	serializer.RegisterTypedDeserializer(v.SerializerType(), DeserializeVocabulary)
}

// A Vocabulary maps words to dense IDs.
//
// Words outside the vocabulary map to the ID of OOVToken.
type Vocabulary struct {
	tokens []string
	ids    map[string]int
}

// BuildVocabulary creates a Vocabulary of the most
// frequent words in the sentences.
//
// If maxWords is positive, at most maxWords words are
// kept in addition to the special tokens.
// Ties in frequency are broken alphabetically.
func BuildVocabulary(sentences [][]string, maxWords int) *Vocabulary {
	counts := map[string]int{}
	for _, s := range sentences {
		for _, w := range s {
			counts[w]++
		}
	}
	for _, s := range specialTokens {
		delete(counts, s)
	}
	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if maxWords > 0 && len(words) > maxWords {
		words = words[:maxWords]
	}
	return newVocabulary(append(append([]string{}, specialTokens...), words...))
}

// DeserializeVocabulary deserializes a Vocabulary.
func DeserializeVocabulary(d []byte) (*Vocabulary, error) {
	var joined string
	if err := serializer.DeserializeAny(d, &joined); err != nil {
		return nil, essentials.AddCtx("deserialize Vocabulary", err)
	}
	tokens := strings.Split(joined, "\n")
	if len(tokens) < len(specialTokens) {
		return nil, errors.New("deserialize Vocabulary: missing special tokens")
	}
	for i, s := range specialTokens {
		if tokens[i] != s {
			return nil, errors.New("deserialize Vocabulary: missing special tokens")
		}
	}
	return newVocabulary(tokens), nil
}

func newVocabulary(tokens []string) *Vocabulary {
	res := &Vocabulary{tokens: tokens, ids: map[string]int{}}
	for i, t := range tokens {
		res.ids[t] = i
	}
	return res
}

// Len returns the number of tokens, including the
// special tokens.
func (v *Vocabulary) Len() int {
	return len(v.tokens)
}

// Token returns the token for an ID.
// IDs out of range yield OOVToken.
func (v *Vocabulary) Token(id int) string {
	if id < 0 || id >= len(v.tokens) {
		return OOVToken
	}
	return v.tokens[id]
}

// ID returns the ID of a token.
func (v *Vocabulary) ID(token string) int {
	if id, ok := v.ids[token]; ok {
		return id
	}
	return v.OOVID()
}

func (v *Vocabulary) PadID() int   { return 0 }
func (v *Vocabulary) StartID() int { return 1 }
func (v *Vocabulary) EOSID() int   { return 2 }
func (v *Vocabulary) OOVID() int   { return 3 }

// Encode maps words to IDs.
func (v *Vocabulary) Encode(words []string) []int {
	res := make([]int, len(words))
	for i, w := range words {
		res[i] = v.ID(w)
	}
	return res
}

// SerializerType returns the unique ID used to serialize
// a Vocabulary with the serializer package.
func (v *Vocabulary) SerializerType() string {
	return "github.com/PengSasm/arae/corpus.Vocabulary"
}

// Serialize serializes the Vocabulary.
func (v *Vocabulary) Serialize() ([]byte, error) {
	return serializer.SerializeAny(strings.Join(v.tokens, "\n"))
}
