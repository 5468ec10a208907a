package arae

import "fmt"

// A NumericError indicates that a computation produced
// values which cannot be used, such as non-finite logits
// or a categorical distribution with no mass.
type NumericError struct {
	Op     string
	Reason string
}

func (n *NumericError) Error() string {
	return fmt.Sprintf("%s: %s", n.Op, n.Reason)
}

// A NonFiniteError reports a loss that became NaN or
// infinite during a training or evaluation phase.
// When it is returned from a training step, the
// remaining phases of that batch were not applied.
type NonFiniteError struct {
	Phase string
	Value float64
}

func (n *NonFiniteError) Error() string {
	return fmt.Sprintf("phase %s: non-finite loss %v", n.Phase, n.Value)
}
