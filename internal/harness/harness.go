package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/gameroom/internal/families"
	"github.com/roach88/gameroom/internal/family"
	"github.com/roach88/gameroom/internal/ledger"
	"github.com/roach88/gameroom/internal/projection"
	"github.com/roach88/gameroom/internal/projector"
	"github.com/roach88/gameroom/internal/testutil"
)

// Node identity recorded on projected notifications.
const (
	NodeID    = "harness-node-000"
	Requester = "harness"
)

// Harness is the scenario execution engine.
// It runs one scenario with deterministic event ids and timestamps.
type Harness struct {
	ledger     *ledger.Memory
	ids        *ledger.SequenceGenerator
	dispatcher *family.Dispatcher
	projection *projection.Store
	processor  *projector.Processor
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory ledger and projection.
//
// Execution flow:
// 1. Register the circuit in the projection
// 2. Execute setup steps, which must succeed
// 3. Execute flow steps with expect validation
// 4. Evaluate assertions and snapshot the ledger
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()
	h, err := newHarness(ctx, scenario.Circuit)
	if err != nil {
		return nil, err
	}
	defer h.projection.Close()

	result := NewResult()
	for i, step := range scenario.Setup {
		ev, err := h.execute(ctx, "setup", i, step)
		if err != nil {
			return nil, err
		}
		result.Trace = append(result.Trace, ev)
		if ev.Outcome != OutcomeOK {
			return nil, fmt.Errorf("setup[%d] failed: %s", i, ev.Outcome)
		}
	}

	for i, step := range scenario.Flow {
		ev, err := h.execute(ctx, "flow", i, step)
		if err != nil {
			return nil, err
		}
		result.Trace = append(result.Trace, ev)

		want := OutcomeOK
		if step.Expect != nil {
			want = step.Expect.Outcome
		}
		if ev.Outcome != want {
			result.AddError(fmt.Sprintf("flow[%d]: expected outcome %s, got %s", i, want, ev.Outcome))
		}
	}

	snapshot, keys, err := ledger.Snapshot(ctx, h.ledger)
	if err != nil {
		return nil, fmt.Errorf("snapshot ledger: %w", err)
	}
	for _, key := range keys {
		result.Ledger = append(result.Ledger, key+" "+string(snapshot[key]))
	}

	actx := &AssertionContext{
		Ctx:        ctx,
		Circuit:    scenario.Circuit,
		Ledger:     h.ledger,
		Projection: h.projection,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(ctx context.Context, circuitID string) (*Harness, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	store, err := projection.Open(ctx, projection.DriverSQLite, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory projection: %w", err)
	}

	clock := testutil.NewDeterministicClock(1_700_000_000_000, 1000)
	err = store.RegisterCircuit(ctx,
		projection.Gameroom{CircuitID: circuitID, Alias: circuitID, ManagementType: "gameroom", Status: projection.StatusReady},
		[]projection.Member{{NodeID: NodeID, Status: projection.StatusReady}},
		[]projection.Service{{ServiceID: "gr00", ServiceType: "scabbard", AllowedNodes: NodeID, Status: projection.StatusReady}},
	)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("register circuit: %w", err)
	}

	return &Harness{
		ledger:     ledger.NewMemory(),
		ids:        ledger.NewSequenceGenerator("evt"),
		dispatcher: families.NewDispatcher(logger),
		projection: store,
		processor: projector.NewProcessor(store, circuitID, NodeID, Requester,
			projector.WithClock(clock),
			projector.WithLogger(logger),
		),
	}, nil
}

// execute runs one step. Rejected transactions are reported through the
// trace outcome; only harness failures return an error.
func (h *Harness) execute(ctx context.Context, phase string, i int, step Step) (TraceEvent, error) {
	ev := TraceEvent{
		Phase:   phase,
		Step:    i,
		Family:  step.Family,
		Signer:  step.Signer,
		Payload: step.Payload,
	}

	var committed ledger.StateChangeEvent
	var err error
	if step.Contract != "" {
		ev.Family = step.Contract
		committed, err = families.RegisterContract(ctx, h.ledger, h.ids, step.Contract)
	} else {
		committed, err = h.dispatcher.Submit(ctx, h.ledger, h.ids, family.Transaction{
			Family:  step.Family,
			Version: step.Version,
			Request: family.Request{Signer: step.Signer, Payload: []byte(step.Payload)},
		})
	}
	if err != nil {
		kind := family.KindOf(err)
		if kind == "" {
			return ev, fmt.Errorf("%s[%d]: %w", phase, i, err)
		}
		ev.Outcome = string(kind)
		return ev, nil
	}

	ev.Outcome = OutcomeOK
	ev.EventID = committed.ID
	for _, c := range committed.StateChanges {
		ev.Changes = append(ev.Changes, c.Kind.String()+" "+c.Key)
	}

	if err := h.processor.HandleEvent(ctx, committed); err != nil {
		return ev, fmt.Errorf("%s[%d]: %w", phase, i, err)
	}
	return ev, nil
}
