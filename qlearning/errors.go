package qlearning

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData is returned when a replay batch is larger than the
	// number of stored transitions.
	ErrInsufficientData = errors.New("qlearning: insufficient data in replay memory")

	// ErrFrozen is returned when a gradient step is attempted on a network
	// that was constructed as non-trainable.
	ErrFrozen = errors.New("qlearning: network is frozen")

	// ErrNonFiniteLoss is returned when a training step produced a NaN or
	// infinite loss.
	ErrNonFiniteLoss = errors.New("qlearning: non-finite loss")

	// ErrShapeMismatch is returned when weights do not fit a network.
	ErrShapeMismatch = errors.New("qlearning: weight shape mismatch")
)

// ConfigurationError reports a count that must be a positive integer.
type ConfigurationError struct {
	Name  string
	Value int
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("expected %s to be a positive integer, but received %d", e.Name, e.Value)
}

// RequirePositive returns a *ConfigurationError if v is not positive.
func RequirePositive(name string, v int) error {
	if v <= 0 {
		return &ConfigurationError{Name: name, Value: v}
	}
	return nil
}
