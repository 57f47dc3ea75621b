package message

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gameroom/internal/address"
	"github.com/roach88/gameroom/internal/bucket"
	"github.com/roach88/gameroom/internal/family"
	"github.com/roach88/gameroom/internal/ledger"
	"github.com/roach88/gameroom/internal/state"
)

const (
	alice = "02a1a1a1a1a1a1a1"
	bob   = "03b0b0b0b0b0b0b0"
)

func apply(t *testing.T, h *Handler, mem *ledger.Memory, signer, payload string) (ledger.StateChangeEvent, error) {
	t.Helper()
	tx := ledger.Begin(context.Background(), mem, ledger.NewSequenceGenerator("evt"))
	if err := h.Apply(family.Request{Signer: signer, Payload: []byte(payload)}, tx); err != nil {
		tx.Rollback()
		return ledger.StateChangeEvent{}, err
	}
	return tx.Commit()
}

func load(t *testing.T, mem *ledger.Memory, name string) (Message, bool) {
	t.Helper()
	tx := ledger.Begin(context.Background(), mem, nil)
	m, ok, err := state.New[Message](tx, FamilyName, Parse).Get(name)
	require.NoError(t, err)
	return m, ok
}

func TestCanonical_RoundTrip(t *testing.T) {
	m := Message{
		Name:         "chat-1",
		Content:      "hello, world",
		Type:         TypeText,
		ID:           4,
		PreviousID:   3,
		Sender:       alice,
		Participants: family.Participants{First: alice, Second: bob},
	}

	s := m.Canonical()
	assert.Equal(t, "chat-1,hello, world,TEXT,4,3,"+alice+","+alice+","+bob, s)

	back, err := Parse(s)
	require.NoError(t, err)
	assert.Equal(t, m, back)
}

func TestNew_Defaults(t *testing.T) {
	m := New("chat-1")
	assert.Equal(t, "chat-1,Chat Created,TEXT,0,-1,,,", m.Canonical())
}

func TestParse_Rejects(t *testing.T) {
	for _, s := range []string{
		"chat,only,three",
		"chat,c,BLOB,0,-1,,,",
		"chat,c,TEXT,x,-1,,,",
		"chat,c,TEXT,0,-2,,,",
		"chat,c,TEXT,0,abc,,,",
		"chat,c,TEXT,4294967296,-1,,,",
	} {
		_, err := Parse(s)
		assert.ErrorIs(t, err, bucket.ErrInvalidSerialization, s)
	}
}

func TestBucket_Golden(t *testing.T) {
	b := map[string]Message{}
	for _, n := range []string{"zulu", "alpha", "mike"} {
		b[n] = New(n)
	}
	m := b["mike"]
	m.Participants.Record(alice)
	m.Post("berth, then anchor", alice)
	b["mike"] = m

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "message_bucket", bucket.Encode(b))
}

func TestParsePayload(t *testing.T) {
	tests := []struct {
		payload string
		want    Command
	}{
		{"chat,create,", Create{Name: "chat"}},
		{"chat,add,hi there", Post{Name: "chat", Content: "hi there"}},
		{"chat,add,a,b,c", Post{Name: "chat", Content: "a,b,c"}},
		{"chat,delete,", Delete{Name: "chat"}},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			got, err := ParsePayload([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePayload_Invalid(t *testing.T) {
	for _, p := range []string{
		"chat,create",
		",create,",
		"ch|at,create,",
		"chat,shout,",
		"chat,,x",
		"chat,add,pipe|inside",
	} {
		_, err := ParsePayload([]byte(p))
		assert.True(t, family.IsInvalidTransaction(err), "%q: %v", p, err)
	}
}

func TestHandler_Lifecycle(t *testing.T) {
	mem := ledger.NewMemory()
	h := NewHandler(nil)

	ev, err := apply(t, h, mem, alice, "chat-1,create,")
	require.NoError(t, err)
	require.Len(t, ev.StateChanges, 1)
	assert.Equal(t, Address("chat-1"), ev.StateChanges[0].Key)

	m, ok := load(t, mem, "chat-1")
	require.True(t, ok)
	assert.Equal(t, New("chat-1"), m)

	_, err = apply(t, h, mem, alice, "chat-1,create,")
	assert.True(t, family.IsInvalidTransaction(err))

	_, err = apply(t, h, mem, alice, "chat-1,add,ahoy, captain")
	require.NoError(t, err)
	_, err = apply(t, h, mem, bob, "chat-1,add,aye")
	require.NoError(t, err)
	_, err = apply(t, h, mem, alice, "chat-1,add,third")
	require.NoError(t, err)

	m, _ = load(t, mem, "chat-1")
	assert.Equal(t, "third", m.Content)
	assert.Equal(t, uint32(3), m.ID)
	assert.Equal(t, int64(2), m.PreviousID)
	assert.Equal(t, alice, m.Sender)
	assert.Equal(t, family.Participants{First: alice, Second: bob}, m.Participants)

	ev, err = apply(t, h, mem, bob, "chat-1,delete,")
	require.NoError(t, err)
	assert.Equal(t, []ledger.StateChange{ledger.Delete(Address("chat-1"))}, ev.StateChanges)

	_, ok = load(t, mem, "chat-1")
	assert.False(t, ok)

	_, err = apply(t, h, mem, bob, "chat-1,delete,")
	assert.True(t, family.IsInvalidTransaction(err))
	_, err = apply(t, h, mem, bob, "chat-1,add,late")
	assert.True(t, family.IsInvalidTransaction(err))
}

func TestHandler_CollidingThreads(t *testing.T) {
	collide := address.Codec{Hash: func(string) string {
		return "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
	}}
	mem := ledger.NewMemory()
	h := NewHandler(nil, state.WithCodec(collide))

	_, err := apply(t, h, mem, alice, "a,create,")
	require.NoError(t, err)
	ev, err := apply(t, h, mem, alice, "b,create,")
	require.NoError(t, err)

	assert.Equal(t, New("a").Canonical()+"|"+New("b").Canonical(), string(ev.StateChanges[0].Value))

	ev, err = apply(t, h, mem, alice, "a,delete,")
	require.NoError(t, err)
	assert.Equal(t, ledger.KindSet, ev.StateChanges[0].Kind)
	assert.Equal(t, New("b").Canonical(), string(ev.StateChanges[0].Value))
}

func TestHandler_CorruptState(t *testing.T) {
	mem := ledger.NewMemory()
	require.NoError(t, mem.Apply(context.Background(), []ledger.StateChange{
		ledger.Set(Address("chat"), []byte("chat,broken")),
	}))

	_, err := apply(t, NewHandler(nil), mem, alice, "chat,add,x")
	assert.True(t, family.IsSerialization(err))
}

func TestHandler_RejectsDelimiterSigner(t *testing.T) {
	h := NewHandler(nil)
	mem := ledger.NewMemory()
	_, err := apply(t, h, mem, alice, "chat,create,")
	require.NoError(t, err)

	for _, signer := range []string{"x,y", "x|y"} {
		_, err := apply(t, h, mem, signer, "chat,add,hello")
		assert.True(t, family.IsInvalidTransaction(err), "signer %q: %v", signer, err)
	}

	_, err = apply(t, h, mem, alice, "chat,add,next")
	require.NoError(t, err)
	m, ok := load(t, mem, "chat")
	require.True(t, ok)
	assert.Equal(t, "next", m.Content)
}

func TestAddresses(t *testing.T) {
	assert.Equal(t, "f8daf5", Prefix())
	assert.Equal(t, "00ec02de0e028e72d9c05743472cd0b3707dd2775b601a0692baebfb98a2133b8c276a", ContractAddress())
}
