package projector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gameroom/internal/family"
	"github.com/roach88/gameroom/internal/family/message"
	"github.com/roach88/gameroom/internal/family/status"
	"github.com/roach88/gameroom/internal/ledger"
	"github.com/roach88/gameroom/internal/projection"
	"github.com/roach88/gameroom/internal/testutil"
)

const (
	circuit   = "gameroom-01234"
	node      = "acme-node-000"
	requester = "02aaaaaaaaaaaaaa"
	alice     = "02a1a1a1a1a1a1a1"
)

type fixture struct {
	store   *projection.Store
	proc    *Processor
	metrics *Metrics
	mem     *ledger.Memory
	ids     *ledger.SequenceGenerator
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store, err := projection.Open(context.Background(), projection.DriverSQLite, filepath.Join(t.TempDir(), "projection.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.RegisterCircuit(context.Background(),
		projection.Gameroom{CircuitID: circuit, Alias: "harbor", ManagementType: "gameroom", Status: projection.StatusReady},
		[]projection.Member{{NodeID: node, Status: projection.StatusReady}},
		[]projection.Service{{ServiceID: "a000", ServiceType: "scabbard", Status: projection.StatusReady}},
	))

	m := NewMetrics(prometheus.NewRegistry())
	opts = append([]Option{WithClock(testutil.NewDeterministicClock(1000, 1)), WithMetrics(m)}, opts...)
	return &fixture{
		store:   store,
		proc:    NewProcessor(store, circuit, node, requester, opts...),
		metrics: m,
		mem:     ledger.NewMemory(),
		ids:     ledger.NewSequenceGenerator("evt"),
	}
}

// submit runs one transaction through the family handler and returns the
// committed event.
func (f *fixture) submit(t *testing.T, h family.Handler, signer, payload string) ledger.StateChangeEvent {
	t.Helper()
	tx := ledger.Begin(context.Background(), f.mem, f.ids)
	require.NoError(t, h.Apply(family.Request{Signer: signer, Payload: []byte(payload)}, tx))
	ev, err := tx.Commit()
	require.NoError(t, err)
	return ev
}

func (f *fixture) notifications(t *testing.T) []string {
	t.Helper()
	list, err := f.store.ListNotifications(context.Background(), circuit, projection.Page{})
	require.NoError(t, err)
	var out []string
	for _, n := range list.Items {
		out = append(out, n.Type)
	}
	return out
}

func genesis(id string) ledger.StateChangeEvent {
	return ledger.StateChangeEvent{
		ID:           id,
		StateChanges: []ledger.StateChange{ledger.Set(message.ContractAddress(), []byte("contract"))},
	}
}

func TestHandleEvent_GenesisActivatesCircuit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.proc.HandleEvent(ctx, genesis("evt-000001")))

	g, members, services, err := f.store.Gameroom(ctx, circuit)
	require.NoError(t, err)
	assert.Equal(t, projection.StatusActive, g.Status)
	assert.Equal(t, projection.StatusActive, members[0].Status)
	assert.Equal(t, projection.StatusActive, services[0].Status)

	list, err := f.store.ListNotifications(ctx, circuit, projection.Page{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	n := list.Items[0]
	assert.Equal(t, NotificationCircuitActive, n.Type)
	assert.Equal(t, requester, n.Requester)
	assert.Equal(t, node, n.RequesterNodeID)
	assert.Equal(t, circuit, n.Target)
	assert.False(t, n.Read)

	cur, ok, err := f.store.Cursor(ctx, circuit)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "evt-000001", cur)
}

func TestHandleEvent_MessageLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := message.NewHandler(nil)

	require.NoError(t, f.proc.HandleEvent(ctx, f.submit(t, h, alice, "chat-1,create,")))
	assert.Equal(t, []string{"new_message_created:chat-1"}, f.notifications(t))

	row, err := f.store.FetchMessage(ctx, circuit, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, message.DefaultContent, row.Content)
	assert.Equal(t, int64(0), row.MessageID)
	require.NotNil(t, row.PreviousID)
	assert.Equal(t, message.NoPrevious, *row.PreviousID)

	require.NoError(t, f.proc.HandleEvent(ctx, f.submit(t, h, alice, "chat-1,add,ahoy, captain")))
	assert.Equal(t, []string{"new_message_created:chat-1", "message_updated:chat-1"}, f.notifications(t))

	row, err = f.store.FetchMessage(ctx, circuit, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "ahoy, captain", row.Content)
	assert.Equal(t, int64(1), row.MessageID)
	assert.Equal(t, int64(0), *row.PreviousID)
	assert.Equal(t, alice, row.Sender)
	assert.Equal(t, alice, row.Participant1)
	assert.Equal(t, int64(1000), row.CreatedTime)
	assert.Equal(t, int64(1001), row.UpdatedTime)

	// A second thread in another bucket leaves chat-1 unchanged.
	require.NoError(t, f.proc.HandleEvent(ctx, f.submit(t, h, alice, "chat-2,create,")))
	assert.Equal(t, []string{"new_message_created:chat-1", "message_updated:chat-1", "new_message_created:chat-2"}, f.notifications(t))

	assert.Equal(t, 2.0, promtest.ToFloat64(f.metrics.Changes.WithLabelValues("created")))
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.Changes.WithLabelValues("updated")))
	assert.Equal(t, 3.0, promtest.ToFloat64(f.metrics.Events.WithLabelValues(circuit, OutcomeApplied)))
}

func TestHandleEvent_StatusLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := status.NewHandler(nil)

	require.NoError(t, f.proc.HandleEvent(ctx, f.submit(t, h, alice, "mv-aurora,create,,,,,,,,,,,")))
	require.NoError(t, f.proc.HandleEvent(ctx, f.submit(t, h, alice, "mv-aurora,delay,LOADING,1700000000000,,,,,,,true,,eta set")))

	assert.Equal(t, []string{"status_created:mv-aurora", "status_updated:mv-aurora"}, f.notifications(t))

	row, err := f.store.FetchStatus(ctx, circuit, "mv-aurora")
	require.NoError(t, err)
	assert.Equal(t, "LOADING", row.DockingType)
	require.NotNil(t, row.ETA)
	assert.Equal(t, int64(1700000000000), *row.ETA)
	assert.Nil(t, row.ETB)
	require.NotNil(t, row.IsBunkering)
	assert.True(t, *row.IsBunkering)
	assert.Equal(t, ";eta set", row.Logs)
	assert.Equal(t, alice, row.Participant1)
}

func TestHandleEvent_RedeliverySkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.proc.HandleEvent(ctx, genesis("evt-000001")))
	require.NoError(t, f.proc.HandleEvent(ctx, genesis("evt-000001")))

	assert.Equal(t, []string{NotificationCircuitActive}, f.notifications(t))
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.Events.WithLabelValues(circuit, OutcomeSkipped)))
}

func TestHandleEvent_RedeliveryReappliedWhenSkipDisabled(t *testing.T) {
	f := newFixture(t, WithSkipDelivered(false))
	ctx := context.Background()

	require.NoError(t, f.proc.HandleEvent(ctx, genesis("evt-000002")))
	require.NoError(t, f.proc.HandleEvent(ctx, genesis("evt-000002")))
	require.NoError(t, f.proc.HandleEvent(ctx, genesis("evt-000001")))

	assert.Equal(t, []string{NotificationCircuitActive, NotificationCircuitActive, NotificationCircuitActive}, f.notifications(t))

	cur, _, err := f.store.Cursor(ctx, circuit)
	require.NoError(t, err)
	assert.Equal(t, "evt-000002", cur, "cursor never moves backward")
}

func TestHandleEvent_RedeliveredEntityIsUnchanged(t *testing.T) {
	f := newFixture(t, WithSkipDelivered(false))
	ctx := context.Background()

	tx := ledger.Begin(ctx, f.mem, testutil.NewFixedIDGenerator("evt-000009"))
	require.NoError(t, message.NewHandler(nil).Apply(family.Request{Signer: alice, Payload: []byte("chat-1,create,")}, tx))
	ev, err := tx.Commit()
	require.NoError(t, err)

	require.NoError(t, f.proc.HandleEvent(ctx, ev))
	require.NoError(t, f.proc.HandleEvent(ctx, ev))

	assert.Equal(t, []string{"new_message_created:chat-1"}, f.notifications(t))
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.Changes.WithLabelValues("unchanged")))
}

func TestHandleEvent_IgnoresDeletesAndUnrelatedKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ev := ledger.StateChangeEvent{
		ID: "evt-000001",
		StateChanges: []ledger.StateChange{
			ledger.Delete(message.Address("chat-1")),
			ledger.Set("abcdef"+message.Address("x")[6:], []byte("opaque")),
			{Kind: ledger.KindUnknown, Key: message.Address("chat-1")},
		},
	}
	require.NoError(t, f.proc.HandleEvent(ctx, ev))
	assert.Empty(t, f.notifications(t))

	cur, ok, err := f.store.Cursor(ctx, circuit)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "evt-000001", cur)
}

func TestHandleEvent_MalformedBucketIsPermanent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ev := ledger.StateChangeEvent{
		ID: "evt-000001",
		StateChanges: []ledger.StateChange{
			ledger.Set(status.ContractAddress(), []byte("contract")),
			ledger.Set(message.Address("chat-1"), []byte("chat-1,only,three")),
		},
	}
	err := f.proc.HandleEvent(ctx, ev)
	require.Error(t, err)
	assert.True(t, IsPermanent(err))

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "evt-000001", perr.EventID)
	assert.Equal(t, message.Address("chat-1"), perr.Key)

	// Nothing from the event was committed.
	assert.Empty(t, f.notifications(t))
	_, ok, err := f.store.Cursor(ctx, circuit)
	require.NoError(t, err)
	assert.False(t, ok)
	g, _, _, err := f.store.Gameroom(ctx, circuit)
	require.NoError(t, err)
	assert.Equal(t, projection.StatusReady, g.Status)

	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.Events.WithLabelValues(circuit, OutcomePermanent)))
	assert.Zero(t, promtest.ToFloat64(f.metrics.Notifications.WithLabelValues(NotificationCircuitActive)))
}

func TestHandleEvent_MillisOutOfRangeIsPermanent(t *testing.T) {
	f := newFixture(t)
	s := status.New("mv-aurora")
	s.ETA = status.Ms(1 << 63)

	ev := ledger.StateChangeEvent{
		ID:           "evt-000001",
		StateChanges: []ledger.StateChange{ledger.Set(status.Address("mv-aurora"), []byte(s.Canonical()))},
	}
	err := f.proc.HandleEvent(context.Background(), ev)
	assert.True(t, IsPermanent(err))
}

func TestHandleEvent_DatabaseFailureIsTransient(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Close())

	err := f.proc.HandleEvent(context.Background(), genesis("evt-000001"))
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.Events.WithLabelValues(circuit, OutcomeTransient)))
}
