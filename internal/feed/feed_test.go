package feed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gameroom/internal/family"
	"github.com/roach88/gameroom/internal/family/message"
	"github.com/roach88/gameroom/internal/ledger"
	"github.com/roach88/gameroom/internal/projection"
	"github.com/roach88/gameroom/internal/projector"
)

// recorder counts deliveries and fails the first failures of each event.
type recorder struct {
	mu        sync.Mutex
	seen      []string
	attempts  map[string]int
	failFirst int
	permanent bool
}

func (r *recorder) HandleEvent(_ context.Context, ev ledger.StateChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attempts == nil {
		r.attempts = make(map[string]int)
	}
	r.attempts[ev.ID]++
	if r.attempts[ev.ID] <= r.failFirst {
		return &projector.Error{EventID: ev.ID, Permanent: r.permanent, Err: errors.New("boom")}
	}
	r.seen = append(r.seen, ev.ID)
	return nil
}

func stream(t *testing.T, envs ...Envelope) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	for _, env := range envs {
		require.NoError(t, Encode(&buf, env))
	}
	return &buf
}

func env(circuit, id string) Envelope {
	return Envelope{CircuitID: circuit, Event: ledger.StateChangeEvent{ID: id}}
}

func fastDriver(factory HandlerFactory, opts ...Option) *Driver {
	return NewDriver(factory, append([]Option{WithInitialBackoff(time.Millisecond)}, opts...)...)
}

func TestReader(t *testing.T) {
	r := NewReader(strings.NewReader(`{"circuit_id":"c1","event":{"id":"evt-1","state_changes":[]}}
{"circuit_id":"c1","event":{"id":"evt-2","state_changes":[{"kind":"set","key":"k","value":"aGk="}]}}
`))
	first, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "evt-1", first.Event.ID)

	second, err := r.Next()
	require.NoError(t, err)
	require.Len(t, second.Event.StateChanges, 1)
	assert.Equal(t, []byte("hi"), second.Event.StateChanges[0].Value)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_RejectsMissingCircuit(t *testing.T) {
	_, err := NewReader(strings.NewReader(`{"event":{"id":"evt-1"}}`)).Next()
	assert.ErrorContains(t, err, "circuit_id")
}

func TestDriver_RoutesPerCircuitInOrder(t *testing.T) {
	handlers := map[string]*recorder{"c1": {}, "c2": {}}
	d := fastDriver(func(id string) (Handler, error) { return handlers[id], nil })

	stats, err := d.Run(context.Background(), stream(t,
		env("c1", "evt-1"), env("c2", "evt-1"), env("c1", "evt-2"), env("c2", "evt-2"), env("c1", "evt-3"),
	))
	require.NoError(t, err)
	assert.Equal(t, Stats{Events: 5}, stats)
	assert.Equal(t, []string{"evt-1", "evt-2", "evt-3"}, handlers["c1"].seen)
	assert.Equal(t, []string{"evt-1", "evt-2"}, handlers["c2"].seen)
}

func TestDriver_RedeliversTransientFailures(t *testing.T) {
	h := &recorder{failFirst: 2}
	d := fastDriver(func(string) (Handler, error) { return h, nil })

	stats, err := d.Run(context.Background(), stream(t, env("c1", "evt-1")))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Events)
	assert.Equal(t, 3, h.attempts["evt-1"])
}

func TestDriver_GivesUpAfterMaxRedeliveries(t *testing.T) {
	h := &recorder{failFirst: 100}
	d := fastDriver(func(string) (Handler, error) { return h, nil }, WithMaxRedeliveries(2))

	_, err := d.Run(context.Background(), stream(t, env("c1", "evt-1"), env("c1", "evt-2")))
	require.Error(t, err)
	assert.Equal(t, 3, h.attempts["evt-1"])
	assert.Zero(t, h.attempts["evt-2"], "later events of the circuit are not delivered")
}

func TestDriver_DropsPermanentFailures(t *testing.T) {
	h := &recorder{failFirst: 1, permanent: true}
	d := fastDriver(func(string) (Handler, error) { return h, nil })

	stats, err := d.Run(context.Background(), stream(t, env("c1", "evt-1")))
	require.NoError(t, err)
	assert.Equal(t, Stats{Events: 1, Dropped: 1}, stats)
	assert.Equal(t, 1, h.attempts["evt-1"], "permanent errors are not retried")
}

func TestDriver_FactoryError(t *testing.T) {
	d := fastDriver(func(string) (Handler, error) { return nil, errors.New("no such circuit") })
	_, err := d.Run(context.Background(), stream(t, env("c1", "evt-1")))
	assert.ErrorContains(t, err, "no such circuit")
}

func TestDriver_ProjectsLedgerEvents(t *testing.T) {
	ctx := context.Background()
	store, err := projection.Open(ctx, projection.DriverSQLite, filepath.Join(t.TempDir(), "projection.db"))
	require.NoError(t, err)
	defer store.Close()

	mem := ledger.NewMemory()
	ids := ledger.NewSequenceGenerator("evt")
	var envs []Envelope
	for _, payload := range []string{"chat-1,create,", "chat-1,add,ahoy"} {
		tx := ledger.Begin(ctx, mem, ids)
		require.NoError(t, message.NewHandler(nil).Apply(family.Request{Signer: "02a1", Payload: []byte(payload)}, tx))
		ev, err := tx.Commit()
		require.NoError(t, err)
		envs = append(envs, Envelope{CircuitID: "gameroom-1", Event: ev})
	}
	// Redelivery of the first event is skipped by the processor.
	envs = append(envs, envs[0])

	d := fastDriver(func(id string) (Handler, error) {
		return projector.NewProcessor(store, id, "node-0", "02a1"), nil
	})
	stats, err := d.Run(ctx, stream(t, envs...))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Events)

	row, err := store.FetchMessage(ctx, "gameroom-1", "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "ahoy", row.Content)

	list, err := store.ListNotifications(ctx, "gameroom-1", projection.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, list.Total)
}
