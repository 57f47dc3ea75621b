package ledger

import (
	"encoding/json"
	"fmt"
)

// ChangeKind distinguishes state change variants.
type ChangeKind int

const (
	// KindUnknown is any variant this node does not recognize.
	KindUnknown ChangeKind = iota
	// KindSet writes Value at Key.
	KindSet
	// KindDelete removes Key.
	KindDelete
)

// String returns the wire name of the kind.
func (k ChangeKind) String() string {
	switch k {
	case KindSet:
		return "set"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the kind by its wire name.
func (k ChangeKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON accepts "set" and "delete" in lower or title case.
// Anything else decodes as KindUnknown rather than failing, so newer
// producers do not break older consumers.
func (k *ChangeKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("change kind: %w", err)
	}
	switch s {
	case "set", "Set":
		*k = KindSet
	case "delete", "Delete":
		*k = KindDelete
	default:
		*k = KindUnknown
	}
	return nil
}

// StateChange is one write observed on the ledger.
// Value is only meaningful for KindSet and is base64 on the wire.
type StateChange struct {
	Kind  ChangeKind `json:"kind"`
	Key   string     `json:"key"`
	Value []byte     `json:"value,omitempty"`
}

// Set builds a KindSet change.
func Set(key string, value []byte) StateChange {
	return StateChange{Kind: KindSet, Key: key, Value: value}
}

// Delete builds a KindDelete change.
func Delete(key string) StateChange {
	return StateChange{Kind: KindDelete, Key: key}
}

// String is used in debug logs.
func (c StateChange) String() string {
	if c.Kind == KindSet {
		return fmt.Sprintf("%s %s (%d bytes)", c.Kind, c.Key, len(c.Value))
	}
	return fmt.Sprintf("%s %s", c.Kind, c.Key)
}

// StateChangeEvent is the unit the ledger publishes after committing a
// batch of writes. IDs are opaque but increase per circuit.
type StateChangeEvent struct {
	ID           string        `json:"id"`
	StateChanges []StateChange `json:"state_changes"`
}
