package arae

// A Vocab maps between token IDs and token strings.
//
// IDs are dense in [0, Len()).
type Vocab interface {
	Len() int
	Token(id int) string
	ID(token string) int

	// PadID is the token used to fill rows past a
	// sequence's true length.
	PadID() int

	// StartID is fed to the decoder before the first real
	// token.
	StartID() int

	// EOSID ends a sentence.
	EOSID() int
}
