package valueobjects

import (
	"errors"

	"github.com/google/uuid"
)

// NodeID is a value object representing a unique node identifier
// Value objects are immutable and have no identity beyond their value
type NodeID struct {
	value string
}

// NewNodeID creates a new random NodeID
func NewNodeID() NodeID {
	return NodeID{value: uuid.New().String()}
}

// NewNodeIDFromString creates a NodeID from an existing string
func NewNodeIDFromString(id string) (NodeID, error) {
	if id == "" {
		return NodeID{}, errors.New("node ID cannot be empty")
	}
	if !isValidUUID(id) {
		return NodeID{}, errors.New("node ID must be a valid UUID")
	}
	return NodeID{value: id}, nil
}

// String returns the string representation of the NodeID
func (id NodeID) String() string {
	return id.value
}

// Equals checks if two NodeIDs are equal
func (id NodeID) Equals(other NodeID) bool {
	return id.value == other.value
}

// IsZero checks if the NodeID is the zero value
func (id NodeID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id NodeID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.value + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (id *NodeID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("NodeID must be a string")
	}
	id.value = string(data[1 : len(data)-1])
	return nil
}

// EdgeID is a value object representing a unique edge identifier
type EdgeID struct {
	value string
}

// NewEdgeID creates a new random EdgeID
func NewEdgeID() EdgeID {
	return EdgeID{value: uuid.New().String()}
}

// NewEdgeIDFromString creates an EdgeID from an existing string
func NewEdgeIDFromString(id string) (EdgeID, error) {
	if id == "" {
		return EdgeID{}, errors.New("edge ID cannot be empty")
	}
	return EdgeID{value: id}, nil
}

// String returns the string representation of the EdgeID
func (id EdgeID) String() string {
	return id.value
}

// Equals checks if two EdgeIDs are equal
func (id EdgeID) Equals(other EdgeID) bool {
	return id.value == other.value
}

// IsZero checks if the EdgeID is the zero value
func (id EdgeID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id EdgeID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.value + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (id *EdgeID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("EdgeID must be a string")
	}
	id.value = string(data[1 : len(data)-1])
	return nil
}

// BranchID is a value object identifying one independently evolving
// partition of the reasoning graph
type BranchID struct {
	value string
}

// NewBranchID creates a new random BranchID
func NewBranchID() BranchID {
	return BranchID{value: uuid.New().String()}
}

// NewBranchIDFromString creates a BranchID from an existing string
func NewBranchIDFromString(id string) (BranchID, error) {
	if id == "" {
		return BranchID{}, errors.New("branch ID cannot be empty")
	}
	return BranchID{value: id}, nil
}

// String returns the string representation of the BranchID
func (id BranchID) String() string {
	return id.value
}

// Equals checks if two BranchIDs are equal
func (id BranchID) Equals(other BranchID) bool {
	return id.value == other.value
}

// IsZero checks if the BranchID is the zero value
func (id BranchID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id BranchID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.value + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (id *BranchID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("BranchID must be a string")
	}
	id.value = string(data[1 : len(data)-1])
	return nil
}

// isValidUUID validates UUID format
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
