// Package bucket implements the canonical serialization of hash-collision
// buckets.
//
// All entities whose names hash to the same address share one ledger value.
// Each entity renders as a fixed-arity, comma-joined field list; the bucket
// renders as those entity strings sorted by full string comparison and
// joined with '|'. Sorting makes the bytes independent of map iteration
// order, which every node must agree on.
//
// Decoding is strict: invalid UTF-8, an entity with the wrong field count,
// a field that does not parse, or two entities with the same name make the
// whole value invalid. Nothing is dropped or defaulted.
package bucket

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// EntitySep separates entities within a bucket.
	EntitySep = "|"

	// FieldSep separates fields within an entity.
	FieldSep = ","
)

// ErrInvalidSerialization marks bucket bytes that cannot be decoded.
var ErrInvalidSerialization = errors.New("invalid serialization")

// Entity is a record that can live in a bucket.
type Entity interface {
	// EntityName is the natural key the entity is addressed by.
	EntityName() string

	// Canonical returns the fixed-arity comma-joined field list.
	Canonical() string
}

// DecodeFunc parses one entity's canonical string.
type DecodeFunc[E Entity] func(s string) (E, error)

// Encode renders a bucket canonically. The map keys are ignored; each
// entity contributes its own Canonical form.
func Encode[E Entity](entities map[string]E) []byte {
	parts := make([]string, 0, len(entities))
	for _, e := range entities {
		parts = append(parts, e.Canonical())
	}
	sort.Strings(parts)
	return []byte(strings.Join(parts, EntitySep))
}

// Decode parses a canonical bucket into a map keyed by entity name.
func Decode[E Entity](raw []byte, decode DecodeFunc[E]) (map[string]E, error) {
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("%w: bucket is not valid UTF-8", ErrInvalidSerialization)
	}

	parts := strings.Split(string(raw), EntitySep)
	out := make(map[string]E, len(parts))
	for i, part := range parts {
		e, err := decode(part)
		if err != nil {
			if errors.Is(err, ErrInvalidSerialization) {
				return nil, fmt.Errorf("entity %d: %w", i, err)
			}
			return nil, fmt.Errorf("%w: entity %d: %v", ErrInvalidSerialization, i, err)
		}
		name := e.EntityName()
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("%w: duplicate entity %q", ErrInvalidSerialization, name)
		}
		out[name] = e
	}
	return out, nil
}

// Normalize re-encodes raw bucket bytes in canonical form.
func Normalize[E Entity](raw []byte, decode DecodeFunc[E]) ([]byte, error) {
	entities, err := Decode(raw, decode)
	if err != nil {
		return nil, err
	}
	return Encode(entities), nil
}

// SplitFields splits an entity string into exactly lead+1+trail fields.
// The tokens between the first lead fields and the last trail fields are
// rejoined with FieldSep to form the free-text field at index lead, so
// free text may itself contain commas.
func SplitFields(s string, lead, trail int) ([]string, error) {
	tokens := strings.Split(s, FieldSep)
	want := lead + 1 + trail
	if len(tokens) < want {
		return nil, fmt.Errorf("%w: got %d fields, want at least %d", ErrInvalidSerialization, len(tokens), want)
	}

	fields := make([]string, 0, want)
	fields = append(fields, tokens[:lead]...)
	fields = append(fields, strings.Join(tokens[lead:len(tokens)-trail], FieldSep))
	fields = append(fields, tokens[len(tokens)-trail:]...)
	return fields, nil
}

// JoinFields renders entity fields in canonical comma-joined form.
func JoinFields(fields ...string) string {
	return strings.Join(fields, FieldSep)
}
