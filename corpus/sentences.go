// Package corpus loads text corpora and turns them into
// padded training batches.
package corpus

import (
	"bufio"
	"encoding/binary"
	"hash/fnv"
	"os"
	"sort"
	"strings"

	"github.com/PengSasm/arae"
	"github.com/PengSasm/arae/anysgd"
	"github.com/unixpickle/essentials"
)

// LoadSentences reads one whitespace-tokenized sentence
// per line.
//
// Blank lines are skipped, as are sentences with more
// than maxLen words when maxLen is positive.
func LoadSentences(path string, maxLen int, lowercase bool) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, essentials.AddCtx("load sentences", err)
	}
	defer f.Close()

	var res [][]string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<24)
	for scanner.Scan() {
		line := scanner.Text()
		if lowercase {
			line = strings.ToLower(line)
		}
		words := strings.Fields(line)
		if len(words) == 0 || (maxLen > 0 && len(words) > maxLen) {
			continue
		}
		res = append(res, words)
	}
	if err := scanner.Err(); err != nil {
		return nil, essentials.AddCtx("load sentences", err)
	}
	return res, nil
}

// A SentenceList is an anysgd.SampleList of encoded
// sentences, without start or end tokens.
type SentenceList [][]int

// NewSentenceList encodes sentences with a vocabulary.
func NewSentenceList(v *Vocabulary, sentences [][]string) SentenceList {
	res := make(SentenceList, len(sentences))
	for i, s := range sentences {
		res[i] = v.Encode(s)
	}
	return res
}

func (s SentenceList) Len() int {
	return len(s)
}

func (s SentenceList) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s SentenceList) Slice(i, j int) anysgd.SampleList {
	return append(SentenceList{}, s[i:j]...)
}

// LenAt returns the length of a sentence.
func (s SentenceList) LenAt(i int) int {
	return len(s[i])
}

// Hash hashes the IDs of a sentence.
func (s SentenceList) Hash(i int) []byte {
	h := fnv.New64a()
	buf := make([]byte, 8)
	for _, id := range s[i] {
		binary.LittleEndian.PutUint64(buf, uint64(id))
		h.Write(buf)
	}
	return h.Sum(nil)
}

// Split deterministically moves roughly testRatio of the
// sentences into a test set.
// Identical sentences always land in the same set.
func Split(s SentenceList, testRatio float64) (train, test SentenceList) {
	left, right := anysgd.HashSplit(append(SentenceList{}, s...), testRatio)
	return right.(SentenceList), left.(SentenceList)
}

// A SortedList wraps a SentenceList so that shuffling
// keeps each batch sorted by descending length.
type SortedList struct {
	SentenceList

	// BatchSize is the size of the chunks that are
	// sorted.
	BatchSize int
}

// Slice produces a subset of the SortedList.
func (s *SortedList) Slice(i, j int) anysgd.SampleList {
	return &SortedList{
		SentenceList: s.SentenceList.Slice(i, j).(SentenceList),
		BatchSize:    s.BatchSize,
	}
}

// PostShuffle sorts every batch of sentences.
func (s *SortedList) PostShuffle() {
	for i := 0; i < s.Len(); i += s.BatchSize {
		end := i + s.BatchSize
		if end > s.Len() {
			end = s.Len()
		}
		chunk := s.SentenceList[i:end]
		sort.SliceStable(chunk, func(a, b int) bool {
			return len(chunk[a]) > len(chunk[b])
		})
	}
}

// Batches splits a list into padded batches.
//
// Each source is the start token followed by the
// sentence, and each target is the sentence followed by
// the end token.
// If shuffle is true, the order of sentences is
// randomized first; the list is modified in place either
// way.
func Batches(s SentenceList, v arae.Vocab, batchSize int, shuffle bool) []*arae.Batch {
	if batchSize <= 0 {
		panic("batch size must be positive")
	}
	sorted := &SortedList{SentenceList: s, BatchSize: batchSize}
	if shuffle {
		anysgd.Shuffle(sorted)
	} else {
		sorted.PostShuffle()
	}
	var res []*arae.Batch
	for i := 0; i < s.Len(); i += batchSize {
		end := i + batchSize
		if end > s.Len() {
			end = s.Len()
		}
		res = append(res, makeBatch(s[i:end], v))
	}
	return res
}

func makeBatch(sentences [][]int, v arae.Vocab) *arae.Batch {
	maxLen := len(sentences[0]) + 1
	b := &arae.Batch{}
	for _, ids := range sentences {
		source := append([]int{v.StartID()}, ids...)
		target := append(append([]int{}, ids...), v.EOSID())
		b.Lengths = append(b.Lengths, len(source))
		for len(source) < maxLen {
			source = append(source, v.PadID())
			target = append(target, v.PadID())
		}
		b.Source = append(b.Source, source)
		b.Target = append(b.Target, target)
	}
	return b
}
