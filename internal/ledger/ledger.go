// Package ledger is the key-value port the gameroom state machine writes
// through, plus local backends that stand in for a ledger node.
//
// The state machine only sees Context: synchronous get/set/delete by
// address within one transaction. A Tx buffers those writes against a
// Backend and, on Commit, applies them atomically and returns the
// StateChangeEvent a ledger would publish for them. That event is the
// input to the projector.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrClosed is returned by operations on a finished transaction.
var ErrClosed = errors.New("ledger: transaction already finished")

// Context is the capability a transaction handler receives. Calls are
// synchronous and must not be used after the transaction ends.
type Context interface {
	// GetState returns the value at address and whether it exists.
	GetState(address string) ([]byte, bool, error)

	// SetState writes value at address.
	SetState(address string, value []byte) error

	// DeleteState removes address. Deleting an absent address is a no-op.
	DeleteState(address string) error
}

// Backend is durable key-value state shared by transactions.
type Backend interface {
	// Get returns the committed value at address.
	Get(ctx context.Context, address string) ([]byte, bool, error)

	// Apply writes all changes atomically, in order.
	Apply(ctx context.Context, changes []StateChange) error

	// Keys lists every committed address in ascending order.
	Keys(ctx context.Context) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// IDGenerator produces event ids.
type IDGenerator interface {
	Generate() string
}

// Tx is a single ledger transaction. Reads see the transaction's own
// uncommitted writes. Tx is not safe for concurrent use.
type Tx struct {
	ctx     context.Context
	backend Backend
	ids     IDGenerator

	pending map[string]*StateChange
	order   []string
	done    bool
}

// Begin starts a transaction over backend. ctx bounds every backend call
// made through the transaction.
func Begin(ctx context.Context, backend Backend, ids IDGenerator) *Tx {
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	return &Tx{
		ctx:     ctx,
		backend: backend,
		ids:     ids,
		pending: make(map[string]*StateChange),
	}
}

// GetState implements Context.
func (t *Tx) GetState(address string) ([]byte, bool, error) {
	if t.done {
		return nil, false, ErrClosed
	}
	if c, ok := t.pending[address]; ok {
		if c.Kind == KindDelete {
			return nil, false, nil
		}
		return c.Value, true, nil
	}
	v, ok, err := t.backend.Get(t.ctx, address)
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", address, err)
	}
	return v, ok, nil
}

// SetState implements Context.
func (t *Tx) SetState(address string, value []byte) error {
	return t.record(Set(address, append([]byte(nil), value...)))
}

// DeleteState implements Context.
func (t *Tx) DeleteState(address string) error {
	return t.record(Delete(address))
}

func (t *Tx) record(c StateChange) error {
	if t.done {
		return ErrClosed
	}
	if _, seen := t.pending[c.Key]; !seen {
		t.order = append(t.order, c.Key)
	}
	t.pending[c.Key] = &c
	return nil
}

// Changes returns the net writes of the transaction in first-write order.
func (t *Tx) Changes() []StateChange {
	out := make([]StateChange, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, *t.pending[k])
	}
	return out
}

// Commit applies the buffered writes and returns the resulting event.
// A transaction with no writes commits nothing and returns an event with
// no changes.
func (t *Tx) Commit() (StateChangeEvent, error) {
	if t.done {
		return StateChangeEvent{}, ErrClosed
	}
	t.done = true

	changes := t.Changes()
	if len(changes) > 0 {
		if err := t.backend.Apply(t.ctx, changes); err != nil {
			return StateChangeEvent{}, fmt.Errorf("commit: %w", err)
		}
	}
	return StateChangeEvent{ID: t.ids.Generate(), StateChanges: changes}, nil
}

// Rollback discards buffered writes. Safe to call after Commit.
func (t *Tx) Rollback() {
	t.done = true
	t.pending = nil
	t.order = nil
}

// Snapshot reads every committed key and value. Used for dumps and
// golden comparisons.
func Snapshot(ctx context.Context, backend Backend) (map[string][]byte, []string, error) {
	keys, err := backend.Keys(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: %w", err)
	}
	sort.Strings(keys)
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		v, ok, err := backend.Get(ctx, k)
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot %s: %w", k, err)
		}
		if ok {
			out[k] = v
		}
	}
	return out, keys, nil
}
