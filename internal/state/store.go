// Package state reads and writes named entities through a ledger context.
//
// A Store resolves an entity name to its address, loads the bucket stored
// there, and rewrites the whole bucket on every change. Raw bucket bytes are
// cached per address for the life of the Store, including addresses known
// to be absent, so one transaction reads each address from the ledger at
// most once and always sees its own writes. A Store must not outlive the
// transaction it was created for.
package state

import (
	"errors"
	"fmt"

	"github.com/roach88/gameroom/internal/address"
	"github.com/roach88/gameroom/internal/bucket"
	"github.com/roach88/gameroom/internal/ledger"
)

// ErrStore marks failures of the underlying ledger context.
var ErrStore = errors.New("state store error")

// Store is a typed view of one entity family in a ledger context.
type Store[E bucket.Entity] struct {
	ctx    ledger.Context
	family string
	codec  address.Codec
	decode bucket.DecodeFunc[E]

	// address -> raw bucket; nil means known absent
	cache map[string]*[]byte
}

// Option configures a Store.
type Option func(*options)

type options struct {
	codec address.Codec
}

// WithCodec overrides the address codec, e.g. to force hash collisions in
// tests.
func WithCodec(c address.Codec) Option {
	return func(o *options) { o.codec = c }
}

// New creates a Store for family over ctx.
func New[E bucket.Entity](ctx ledger.Context, family string, decode bucket.DecodeFunc[E], opts ...Option) *Store[E] {
	o := options{codec: address.Default}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[E]{
		ctx:    ctx,
		family: family,
		codec:  o.codec,
		decode: decode,
		cache:  make(map[string]*[]byte),
	}
}

// Address returns the ledger key name is stored under.
func (s *Store[E]) Address(name string) string {
	return s.codec.Address(s.family, name)
}

// Get returns the entity called name, if present.
func (s *Store[E]) Get(name string) (E, bool, error) {
	var zero E
	entities, err := s.load(s.Address(name))
	if err != nil {
		return zero, false, err
	}
	e, ok := entities[name]
	return e, ok, nil
}

// Set inserts or replaces the entity called name.
func (s *Store[E]) Set(name string, e E) error {
	addr := s.Address(name)
	entities, err := s.load(addr)
	if err != nil {
		return err
	}
	entities[name] = e
	return s.write(addr, entities)
}

// Delete removes the entity called name. The address itself is deleted
// once its bucket is empty. Deleting an absent entity is a no-op.
func (s *Store[E]) Delete(name string) error {
	addr := s.Address(name)
	entities, err := s.load(addr)
	if err != nil {
		return err
	}
	if _, ok := entities[name]; !ok {
		return nil
	}
	delete(entities, name)
	return s.write(addr, entities)
}

// load returns a fresh, mutable copy of the bucket at addr.
func (s *Store[E]) load(addr string) (map[string]E, error) {
	raw, cached := s.cache[addr]
	if !cached {
		v, ok, err := s.ctx.GetState(addr)
		if err != nil {
			return nil, fmt.Errorf("%w: get %s: %v", ErrStore, addr, err)
		}
		if ok {
			raw = &v
		}
		s.cache[addr] = raw
	}

	if raw == nil {
		return make(map[string]E), nil
	}
	entities, err := bucket.Decode(*raw, s.decode)
	if err != nil {
		return nil, fmt.Errorf("bucket %s: %w", addr, err)
	}
	return entities, nil
}

func (s *Store[E]) write(addr string, entities map[string]E) error {
	if len(entities) == 0 {
		if err := s.ctx.DeleteState(addr); err != nil {
			return fmt.Errorf("%w: delete %s: %v", ErrStore, addr, err)
		}
		s.cache[addr] = nil
		return nil
	}

	raw := bucket.Encode(entities)
	if err := s.ctx.SetState(addr, raw); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrStore, addr, err)
	}
	s.cache[addr] = &raw
	return nil
}
