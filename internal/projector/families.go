package projector

import (
	"context"
	"math"
	"sort"

	"github.com/roach88/gameroom/internal/bucket"
	"github.com/roach88/gameroom/internal/family/message"
	"github.com/roach88/gameroom/internal/family/status"
	"github.com/roach88/gameroom/internal/projection"
)

// Family binds a ledger family namespace to its projection table.
type Family struct {
	// Name is the ledger family name.
	Name string

	// Prefix is the family namespace; Set changes under it carry buckets.
	Prefix string

	// Contract is the family's genesis key.
	Contract string

	// Created and Updated are notification type prefixes; the entity
	// name is appended after a colon.
	Created string
	Updated string

	// Project decodes a bucket and upserts one row per entity.
	Project func(ctx context.Context, tx *projection.Tx, circuitID string, raw []byte, now int64) ([]Upsert, error)
}

// Upsert reports what happened to one projected entity.
type Upsert struct {
	Name   string
	Change projection.Change
}

// MessageFamily projects message threads.
func MessageFamily() Family {
	return Family{
		Name:     message.FamilyName,
		Prefix:   message.Prefix(),
		Contract: message.ContractAddress(),
		Created:  "new_message_created",
		Updated:  "message_updated",
		Project:  projectMessages,
	}
}

// StatusFamily projects vessel calls.
func StatusFamily() Family {
	return Family{
		Name:     status.FamilyName,
		Prefix:   status.Prefix(),
		Contract: status.ContractAddress(),
		Created:  "status_created",
		Updated:  "status_updated",
		Project:  projectStatuses,
	}
}

// DefaultFamilies returns every family this node projects.
func DefaultFamilies() []Family {
	return []Family{MessageFamily(), StatusFamily()}
}

func sortedNames[E any](m map[string]E) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func projectMessages(ctx context.Context, tx *projection.Tx, circuitID string, raw []byte, now int64) ([]Upsert, error) {
	entities, err := bucket.Decode(raw, message.Parse)
	if err != nil {
		return nil, errDecode{err: err}
	}
	var out []Upsert
	for _, name := range sortedNames(entities) {
		change, err := tx.UpsertMessage(ctx, messageRow(circuitID, entities[name]), now)
		if err != nil {
			return nil, err
		}
		out = append(out, Upsert{Name: name, Change: change})
	}
	return out, nil
}

func messageRow(circuitID string, m message.Message) projection.Message {
	prev := m.PreviousID
	return projection.Message{
		CircuitID:    circuitID,
		Name:         m.Name,
		Content:      m.Content,
		Type:         string(m.Type),
		MessageID:    int64(m.ID),
		PreviousID:   &prev,
		Sender:       m.Sender,
		Participant1: m.Participants.First,
		Participant2: m.Participants.Second,
	}
}

func projectStatuses(ctx context.Context, tx *projection.Tx, circuitID string, raw []byte, now int64) ([]Upsert, error) {
	entities, err := bucket.Decode(raw, status.Parse)
	if err != nil {
		return nil, errDecode{err: err}
	}
	var out []Upsert
	for _, name := range sortedNames(entities) {
		row, err := statusRow(circuitID, entities[name])
		if err != nil {
			return nil, err
		}
		change, err := tx.UpsertStatus(ctx, row, now)
		if err != nil {
			return nil, err
		}
		out = append(out, Upsert{Name: name, Change: change})
	}
	return out, nil
}

func statusRow(circuitID string, s status.Status) (projection.Status, error) {
	row := projection.Status{
		CircuitID:    circuitID,
		Name:         s.Name,
		Sender:       s.Sender,
		Participant1: s.Participants.First,
		Participant2: s.Participants.Second,
		DockingType:  string(s.Docking),
		Logs:         s.Logs,
	}
	if s.Bunkering.Valid {
		v := s.Bunkering.Value
		row.IsBunkering = &v
	}

	targets := []struct {
		field string
		src   status.Millis
		dst   **int64
	}{
		{"eta", s.ETA, &row.ETA},
		{"etb", s.ETB, &row.ETB},
		{"ata", s.ATA, &row.ATA},
		{"eto", s.ETO, &row.ETO},
		{"ato", s.ATO, &row.ATO},
		{"etc", s.ETC, &row.ETC},
		{"etd", s.ETD, &row.ETD},
		{"bunkering_time", s.BunkeringTime, &row.BunkeringTime},
	}
	for _, t := range targets {
		if !t.src.Valid {
			continue
		}
		if t.src.Value > math.MaxInt64 {
			return projection.Status{}, decodeError("status %q: %s %d out of range", s.Name, t.field, t.src.Value)
		}
		v := int64(t.src.Value)
		*t.dst = &v
	}
	return row, nil
}
