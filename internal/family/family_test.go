package family

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gameroom/internal/bucket"
	"github.com/roach88/gameroom/internal/ledger"
	"github.com/roach88/gameroom/internal/state"
)

type echoHandler struct {
	calls []Request
	err   error
}

func (h *echoHandler) FamilyName() string       { return "echo" }
func (h *echoHandler) FamilyVersions() []string { return []string{"1.0", "2.0"} }
func (h *echoHandler) Namespaces() []string     { return []string{"abcdef"} }
func (h *echoHandler) Apply(req Request, ctx ledger.Context) error {
	h.calls = append(h.calls, req)
	return h.err
}

func TestDispatcher_Routes(t *testing.T) {
	h := &echoHandler{}
	d := NewDispatcher(nil, h)
	ctx := ledger.Begin(context.Background(), ledger.NewMemory(), nil)

	err := d.Apply(Transaction{Family: "echo", Version: "2.0", Request: Request{Signer: "s", Payload: []byte("x")}}, ctx)
	require.NoError(t, err)
	require.Len(t, h.calls, 1)
	assert.Equal(t, "s", h.calls[0].Signer)

	// empty version accepted
	require.NoError(t, d.Apply(Transaction{Family: "echo"}, ctx))
	assert.Equal(t, []string{"echo"}, d.Families())
}

func TestDispatcher_Rejects(t *testing.T) {
	d := NewDispatcher(nil, &echoHandler{})
	ctx := ledger.Begin(context.Background(), ledger.NewMemory(), nil)

	err := d.Apply(Transaction{Family: "nope"}, ctx)
	assert.True(t, IsInvalidTransaction(err))

	err = d.Apply(Transaction{Family: "echo", Version: "9.9"}, ctx)
	assert.True(t, IsInvalidTransaction(err))
}

func TestDispatcher_PropagatesHandlerError(t *testing.T) {
	want := InvalidTransaction("boom")
	d := NewDispatcher(nil, &echoHandler{err: want})
	err := d.Apply(Transaction{Family: "echo"}, ledger.Begin(context.Background(), ledger.NewMemory(), nil))
	assert.Same(t, want, err)
}

func TestNewDispatcher_DuplicatePanics(t *testing.T) {
	assert.Panics(t, func() { NewDispatcher(nil, &echoHandler{}, &echoHandler{}) })
}

func TestSplitPayload(t *testing.T) {
	f, err := SplitPayload([]byte("a,b,c,d"), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, f)

	_, err = SplitPayload([]byte("a,b"), 3)
	assert.True(t, IsInvalidTransaction(err))

	_, err = SplitPayload([]byte{0xfe, ',', 'a', ',', 'b'}, 3)
	assert.True(t, IsSerialization(err))
	assert.ErrorIs(t, err, bucket.ErrInvalidSerialization)
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("alice"))
	assert.True(t, IsInvalidTransaction(ValidateName("")))
	assert.True(t, IsInvalidTransaction(ValidateName("al|ce")))
	assert.True(t, IsInvalidTransaction(ValidateText("log", "a|b")))
	assert.NoError(t, ValidateText("log", "a,b;c"))
}

func TestValidateSigner(t *testing.T) {
	assert.NoError(t, ValidateSigner("02a1a1a1a1a1a1a1"))
	assert.NoError(t, ValidateSigner(""))
	assert.True(t, IsInvalidTransaction(ValidateSigner("x,y")))
	assert.True(t, IsInvalidTransaction(ValidateSigner("x|y")))
}

func TestDispatcher_RejectsDelimiterSigner(t *testing.T) {
	h := &echoHandler{}
	d := NewDispatcher(nil, h)
	mem := ledger.NewMemory()

	_, err := d.Submit(context.Background(), mem, ledger.NewSequenceGenerator("evt"),
		Transaction{Family: "echo", Request: Request{Signer: "x,y", Payload: []byte("victim,add,hello")}})
	assert.True(t, IsInvalidTransaction(err))
	assert.Empty(t, h.calls, "handler must not run")

	keys, err := mem.Keys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFromStore(t *testing.T) {
	ser := FromStore("load", fmt.Errorf("bucket x: %w", bucket.ErrInvalidSerialization))
	assert.Equal(t, ErrSerialization, ser.Kind)

	io := FromStore("load", fmt.Errorf("%w: get: disk", state.ErrStore))
	assert.Equal(t, ErrInternal, io.Kind)
	assert.True(t, IsInternal(io))

	inv := InvalidTransaction("already")
	assert.Same(t, inv, FromStore("x", fmt.Errorf("wrapped: %w", inv)))
}

func TestApplyError_Message(t *testing.T) {
	err := &ApplyError{Kind: ErrInternal, Message: "set", Err: errors.New("io")}
	assert.Equal(t, "INTERNAL: set: io", err.Error())
	assert.Equal(t, "INVALID_TRANSACTION: bad", InvalidTransaction("bad").Error())
	assert.False(t, IsInvalidTransaction(errors.New("plain")))
}

func TestParticipants_Record(t *testing.T) {
	var p Participants
	p.Record("alice")
	p.Record("alice")
	assert.Equal(t, Participants{First: "alice"}, p)

	p.Record("bob")
	p.Record("carol")
	p.Record("")
	assert.Equal(t, Participants{First: "alice", Second: "bob"}, p)

	assert.True(t, p.Has("bob"))
	assert.False(t, p.Has("carol"))
	assert.False(t, p.Has(""))
}

// writeHandler writes its payload at a fixed address, then fails if told to.
type writeHandler struct{ fail bool }

func (writeHandler) FamilyName() string       { return "write" }
func (writeHandler) FamilyVersions() []string { return []string{"1.0"} }
func (writeHandler) Namespaces() []string     { return []string{"abcdef"} }
func (h writeHandler) Apply(req Request, ctx ledger.Context) error {
	if err := ctx.SetState("abcdef01", req.Payload); err != nil {
		return FromStore("set", err)
	}
	if h.fail {
		return InvalidTransaction("rejected after write")
	}
	return nil
}

func TestDispatcher_Submit(t *testing.T) {
	mem := ledger.NewMemory()
	ids := ledger.NewSequenceGenerator("evt")

	ev, err := NewDispatcher(nil, writeHandler{}).Submit(context.Background(), mem, ids,
		Transaction{Family: "write", Request: Request{Payload: []byte("v1")}})
	require.NoError(t, err)
	assert.Equal(t, "evt-000001", ev.ID)
	assert.Equal(t, []ledger.StateChange{ledger.Set("abcdef01", []byte("v1"))}, ev.StateChanges)

	_, err = NewDispatcher(nil, writeHandler{fail: true}).Submit(context.Background(), mem, ids,
		Transaction{Family: "write", Request: Request{Payload: []byte("v2")}})
	require.Error(t, err)
	assert.Equal(t, ErrInvalidTransaction, KindOf(err))

	got, ok, err := mem.Get(context.Background(), "abcdef01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got, "rejected transaction leaves state untouched")
}
