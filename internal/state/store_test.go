package state

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gameroom/internal/address"
	"github.com/roach88/gameroom/internal/bucket"
	"github.com/roach88/gameroom/internal/ledger"
)

type item struct {
	name  string
	value string
}

func (i item) EntityName() string { return i.name }
func (i item) Canonical() string  { return bucket.JoinFields(i.name, i.value) }

func parseItem(s string) (item, error) {
	f, err := bucket.SplitFields(s, 1, 0)
	if err != nil {
		return item{}, err
	}
	return item{name: f[0], value: f[1]}, nil
}

// countingContext records how often each address is read.
type countingContext struct {
	ledger.Context
	reads map[string]int
}

func (c *countingContext) GetState(addr string) ([]byte, bool, error) {
	c.reads[addr]++
	return c.Context.GetState(addr)
}

func newTx(t *testing.T, mem *ledger.Memory) (*ledger.Tx, *countingContext) {
	t.Helper()
	tx := ledger.Begin(context.Background(), mem, ledger.NewSequenceGenerator("evt"))
	return tx, &countingContext{Context: tx, reads: map[string]int{}}
}

var collide = address.Codec{Hash: func(string) string {
	return "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"
}}

func TestStore_SetGet(t *testing.T) {
	tx, ctx := newTx(t, ledger.NewMemory())
	s := New[item](ctx, "status", parseItem)

	_, ok, err := s.Get("alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("alice", item{"alice", "v1"}))
	got, ok, err := s.Get("alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, item{"alice", "v1"}, got)

	ev, err := tx.Commit()
	require.NoError(t, err)
	require.Len(t, ev.StateChanges, 1)
	assert.Equal(t, address.Address("status", "alice"), ev.StateChanges[0].Key)
	assert.Equal(t, "alice,v1", string(ev.StateChanges[0].Value))
}

func TestStore_CachesAbsentAndPresent(t *testing.T) {
	_, ctx := newTx(t, ledger.NewMemory())
	s := New[item](ctx, "status", parseItem)
	addr := s.Address("alice")

	for i := 0; i < 3; i++ {
		_, _, err := s.Get("alice")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, ctx.reads[addr], "absent address read once")

	require.NoError(t, s.Set("alice", item{"alice", "x"}))
	_, _, err := s.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, 1, ctx.reads[addr])
}

func TestStore_CollidingNamesShareBucket(t *testing.T) {
	tx, ctx := newTx(t, ledger.NewMemory())
	s := New[item](ctx, "status", parseItem, WithCodec(collide))
	require.Equal(t, s.Address("alice"), s.Address("bob"))

	require.NoError(t, s.Set("bob", item{"bob", "2"}))
	require.NoError(t, s.Set("alice", item{"alice", "1"}))

	a, ok, err := s.Get("alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", a.value)

	b, ok, err := s.Get("bob")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", b.value)

	ev, err := tx.Commit()
	require.NoError(t, err)
	require.Len(t, ev.StateChanges, 1)
	assert.Equal(t, "alice,1|bob,2", string(ev.StateChanges[0].Value))
}

func TestStore_DeleteLastEntryRemovesAddress(t *testing.T) {
	ctx0 := context.Background()
	mem := ledger.NewMemory()

	tx, ctx := newTx(t, mem)
	s := New[item](ctx, "status", parseItem, WithCodec(collide))
	require.NoError(t, s.Set("alice", item{"alice", "1"}))
	require.NoError(t, s.Set("bob", item{"bob", "2"}))
	_, err := tx.Commit()
	require.NoError(t, err)

	tx, ctx = newTx(t, mem)
	s = New[item](ctx, "status", parseItem, WithCodec(collide))
	require.NoError(t, s.Delete("alice"))
	_, err = tx.Commit()
	require.NoError(t, err)

	v, ok, _ := mem.Get(ctx0, collide.Address("status", "bob"))
	require.True(t, ok)
	assert.Equal(t, "bob,2", string(v))

	tx, ctx = newTx(t, mem)
	s = New[item](ctx, "status", parseItem, WithCodec(collide))
	require.NoError(t, s.Delete("bob"))
	ev, err := tx.Commit()
	require.NoError(t, err)
	assert.Equal(t, []ledger.StateChange{ledger.Delete(collide.Address("status", "bob"))}, ev.StateChanges)

	keys, _ := mem.Keys(ctx0)
	assert.Empty(t, keys)
}

func TestStore_DeleteAbsentIsNoop(t *testing.T) {
	tx, ctx := newTx(t, ledger.NewMemory())
	s := New[item](ctx, "status", parseItem)
	require.NoError(t, s.Delete("ghost"))

	ev, err := tx.Commit()
	require.NoError(t, err)
	assert.Empty(t, ev.StateChanges)
}

func TestStore_CorruptBucket(t *testing.T) {
	mem := ledger.NewMemory()
	addr := address.Address("status", "alice")
	require.NoError(t, mem.Apply(context.Background(), []ledger.StateChange{ledger.Set(addr, []byte("no-fields"))}))

	_, ctx := newTx(t, mem)
	s := New[item](ctx, "status", parseItem)
	_, _, err := s.Get("alice")
	require.Error(t, err)
	assert.True(t, errors.Is(err, bucket.ErrInvalidSerialization))
}

type brokenContext struct{}

func (brokenContext) GetState(string) ([]byte, bool, error) { return nil, false, errors.New("io") }
func (brokenContext) SetState(string, []byte) error         { return errors.New("io") }
func (brokenContext) DeleteState(string) error              { return errors.New("io") }

func TestStore_LedgerFailure(t *testing.T) {
	s := New[item](brokenContext{}, "status", parseItem)
	_, _, err := s.Get("alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStore)
}
