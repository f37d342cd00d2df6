package valueobjects

import (
	"fmt"

	pkgerrors "agora-backend/pkg/errors"
)

// Confidence is a value object for a node's confidence in [0, 1]
type Confidence struct {
	value float64
}

// NewConfidence creates a confidence with range validation
func NewConfidence(v float64) (Confidence, error) {
	if v < 0 || v > 1 {
		return Confidence{}, pkgerrors.NewValidationError(
			fmt.Sprintf("confidence must be within [0, 1], got %g", v))
	}
	return Confidence{value: v}, nil
}

// MustConfidence creates a confidence, panicking on out-of-range input.
// Reserved for literals in tests and defaults.
func MustConfidence(v float64) Confidence {
	c, err := NewConfidence(v)
	if err != nil {
		panic(err)
	}
	return c
}

// Value returns the confidence as a float64
func (c Confidence) Value() float64 {
	return c.value
}

// Equals checks if two confidences are equal
func (c Confidence) Equals(other Confidence) bool {
	return c.value == other.value
}

// MarshalJSON implements json.Marshaler
func (c Confidence) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%g", c.value)), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (c *Confidence) UnmarshalJSON(data []byte) error {
	var v float64
	if _, err := fmt.Sscanf(string(data), "%g", &v); err != nil {
		return err
	}
	parsed, err := NewConfidence(v)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Weight is a value object for an edge's weight in [0, 1]
type Weight struct {
	value float64
}

// NewWeight creates a weight with range validation
func NewWeight(v float64) (Weight, error) {
	if v < 0 || v > 1 {
		return Weight{}, pkgerrors.NewValidationError(
			fmt.Sprintf("weight must be within [0, 1], got %g", v))
	}
	return Weight{value: v}, nil
}

// MustWeight creates a weight, panicking on out-of-range input
func MustWeight(v float64) Weight {
	w, err := NewWeight(v)
	if err != nil {
		panic(err)
	}
	return w
}

// Value returns the weight as a float64
func (w Weight) Value() float64 {
	return w.value
}

// MarshalJSON implements json.Marshaler
func (w Weight) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%g", w.value)), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (w *Weight) UnmarshalJSON(data []byte) error {
	var v float64
	if _, err := fmt.Sscanf(string(data), "%g", &v); err != nil {
		return err
	}
	parsed, err := NewWeight(v)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
