// Package message implements the threaded chat family.
//
// Each message entity is a named thread holding its latest content, a
// monotonically increasing id, the id it replaced, and the first two
// distinct signers who posted to it. There is no role guard: any signer
// may post.
package message

import (
	"fmt"
	"strconv"

	"github.com/roach88/gameroom/internal/address"
	"github.com/roach88/gameroom/internal/bucket"
	"github.com/roach88/gameroom/internal/family"
)

const (
	// FamilyName is the ledger family and address domain.
	FamilyName = "message"

	// FamilyVersion is the only supported payload version.
	FamilyVersion = "1.0"

	// ContractName is the contract registration whose address acts as
	// the family's genesis key.
	ContractName = "sawtooth_message"

	// DefaultContent is the content of a freshly created thread.
	DefaultContent = "Chat Created"

	// NoPrevious encodes a missing previous id.
	NoPrevious int64 = -1
)

// Type is the content type of a message.
type Type string

const (
	TypeText  Type = "TEXT"
	TypeError Type = "error"
)

// Message is one thread in a bucket.
type Message struct {
	Name    string
	Content string
	Type    Type
	ID      uint32

	// PreviousID is the id replaced by the latest post, or NoPrevious.
	PreviousID int64

	Sender       string
	Participants family.Participants
}

// New returns a freshly created thread.
func New(name string) Message {
	return Message{
		Name:       name,
		Content:    DefaultContent,
		Type:       TypeText,
		PreviousID: NoPrevious,
	}
}

// EntityName implements bucket.Entity.
func (m Message) EntityName() string { return m.Name }

// Canonical implements bucket.Entity. Field order:
// name, content, type, id, previous_id, sender, participant1, participant2.
func (m Message) Canonical() string {
	return bucket.JoinFields(
		m.Name,
		m.Content,
		string(m.Type),
		strconv.FormatUint(uint64(m.ID), 10),
		strconv.FormatInt(m.PreviousID, 10),
		m.Sender,
		m.Participants.First,
		m.Participants.Second,
	)
}

// Parse decodes one canonical message. Content may contain commas.
func Parse(s string) (Message, error) {
	f, err := bucket.SplitFields(s, 1, 6)
	if err != nil {
		return Message{}, err
	}

	m := Message{
		Name:    f[0],
		Content: f[1],
		Sender:  f[5],
		Participants: family.Participants{
			First:  f[6],
			Second: f[7],
		},
	}

	switch Type(f[2]) {
	case TypeText, TypeError:
		m.Type = Type(f[2])
	default:
		return Message{}, fmt.Errorf("%w: message %q: unknown type %q", bucket.ErrInvalidSerialization, f[0], f[2])
	}

	id, err := strconv.ParseUint(f[3], 10, 32)
	if err != nil {
		return Message{}, fmt.Errorf("%w: message %q: id: %v", bucket.ErrInvalidSerialization, f[0], err)
	}
	m.ID = uint32(id)

	prev, err := strconv.ParseInt(f[4], 10, 64)
	if err != nil || prev < NoPrevious || prev > int64(^uint32(0)) {
		return Message{}, fmt.Errorf("%w: message %q: bad previous id %q", bucket.ErrInvalidSerialization, f[0], f[4])
	}
	m.PreviousID = prev

	return m, nil
}

// Post replaces the content and advances the id chain.
func (m *Message) Post(content, sender string) {
	m.Content = content
	m.Sender = sender
	m.PreviousID = int64(m.ID)
	m.ID++
}

// Address returns the ledger key for a thread name.
func Address(name string) string {
	return address.Address(FamilyName, name)
}

// Prefix is the family namespace.
func Prefix() string {
	return address.Prefix(FamilyName)
}

// ContractAddress is the family's genesis key.
func ContractAddress() string {
	return address.ContractAddress(ContractName, FamilyVersion)
}
