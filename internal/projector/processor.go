// Package projector folds ledger state change events into the relational
// projection of one circuit.
//
// Each event is applied in a single projection transaction: the circuit
// cursor, every upserted row and every notification commit together or
// not at all.
package projector

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/gameroom/internal/address"
	"github.com/roach88/gameroom/internal/ledger"
	"github.com/roach88/gameroom/internal/projection"
)

// NotificationCircuitActive is written when a family contract is
// registered on the circuit.
const NotificationCircuitActive = "circuit_active"

// Clock returns the current time in unix milliseconds.
type Clock interface {
	Now() int64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() int64 { return time.Now().UnixMilli() }

// Processor projects the events of one circuit as seen by one node.
// Processor is not safe for concurrent use; the feed runs one per circuit.
type Processor struct {
	store     *projection.Store
	circuitID string
	nodeID    string
	requester string
	families  []Family
	clock     Clock
	metrics   *Metrics
	logger    *slog.Logger

	skipDelivered bool
}

// Option configures a Processor.
type Option func(*Processor)

// WithFamilies replaces the projected families.
func WithFamilies(f ...Family) Option {
	return func(p *Processor) { p.families = f }
}

// WithClock sets the timestamp source.
func WithClock(c Clock) Option {
	return func(p *Processor) { p.clock = c }
}

// WithMetrics records projection metrics.
func WithMetrics(m *Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithSkipDelivered controls redelivery handling. When enabled (the
// default) an event whose id is not after the circuit cursor is ignored.
// When disabled every delivery is applied again, so a redelivered
// genesis event will append a second circuit_active notification.
func WithSkipDelivered(skip bool) Option {
	return func(p *Processor) { p.skipDelivered = skip }
}

// NewProcessor returns a processor for circuitID. nodeID and requester
// are recorded on every notification.
func NewProcessor(store *projection.Store, circuitID, nodeID, requester string, opts ...Option) *Processor {
	p := &Processor{
		store:         store,
		circuitID:     circuitID,
		nodeID:        nodeID,
		requester:     requester,
		families:      DefaultFamilies(),
		clock:         SystemClock{},
		logger:        slog.Default(),
		skipDelivered: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CircuitID returns the circuit this processor projects.
func (p *Processor) CircuitID() string { return p.circuitID }

// HandleEvent applies ev to the projection. The returned error, if any, is
// an *Error and nothing from ev has been committed.
func (p *Processor) HandleEvent(ctx context.Context, ev ledger.StateChangeEvent) error {
	skipped := false
	var failedKey string
	var t tally

	err := p.store.WithTx(ctx, func(tx *projection.Tx) error {
		now := p.clock.Now()

		last, ok, err := tx.Cursor(ctx, p.circuitID)
		if err != nil {
			return err
		}
		if ok && ev.ID <= last {
			if p.skipDelivered {
				skipped = true
				return nil
			}
			p.logger.Debug("reapplying delivered event", "circuit", p.circuitID, "event", ev.ID, "cursor", last)
		} else if err := tx.SetCursor(ctx, p.circuitID, ev.ID, now); err != nil {
			return err
		}

		t = tally{}
		for _, change := range ev.StateChanges {
			if err := p.applyChange(ctx, tx, &t, change, now); err != nil {
				failedKey = change.Key
				return err
			}
		}
		return nil
	})

	switch {
	case err != nil:
		perr := &Error{EventID: ev.ID, Key: failedKey, Err: err}
		var de errDecode
		perr.Permanent = errors.As(err, &de)
		if perr.Permanent {
			p.metrics.event(p.circuitID, OutcomePermanent)
		} else {
			p.metrics.event(p.circuitID, OutcomeTransient)
		}
		p.logger.Warn("event projection failed", "circuit", p.circuitID, "event", ev.ID, "permanent", perr.Permanent, "error", err)
		return perr
	case skipped:
		p.metrics.event(p.circuitID, OutcomeSkipped)
		p.logger.Debug("skipping delivered event", "circuit", p.circuitID, "event", ev.ID)
		return nil
	default:
		p.metrics.event(p.circuitID, OutcomeApplied)
		for _, kind := range t.changes {
			p.metrics.change(kind)
		}
		for _, typ := range t.notifications {
			p.metrics.notification(typ)
		}
		p.logger.Debug("event projected", "circuit", p.circuitID, "event", ev.ID, "changes", len(ev.StateChanges))
		return nil
	}
}

// tally holds metric increments until the projection transaction commits.
type tally struct {
	changes       []string
	notifications []string
}

func (p *Processor) applyChange(ctx context.Context, tx *projection.Tx, t *tally, change ledger.StateChange, now int64) error {
	if change.Kind != ledger.KindSet {
		p.logger.Debug("ignoring state change", "circuit", p.circuitID, "kind", change.Kind, "key", change.Key)
		return nil
	}

	for _, f := range p.families {
		if change.Key == f.Contract {
			return p.activate(ctx, tx, t, f, now)
		}
	}
	for _, f := range p.families {
		if address.HasPrefix(change.Key, f.Prefix) {
			return p.project(ctx, tx, t, f, change, now)
		}
	}

	p.logger.Debug("ignoring unrelated key", "circuit", p.circuitID, "key", change.Key)
	return nil
}

func (p *Processor) activate(ctx context.Context, tx *projection.Tx, t *tally, f Family, now int64) error {
	n, err := tx.ActivateGameroom(ctx, p.circuitID, now)
	if err != nil {
		return err
	}
	if n == 0 {
		p.logger.Warn("activating unregistered circuit", "circuit", p.circuitID, "family", f.Name)
	}
	p.logger.Info("circuit active", "circuit", p.circuitID, "family", f.Name)
	return p.notify(ctx, tx, t, NotificationCircuitActive, "", now)
}

func (p *Processor) project(ctx context.Context, tx *projection.Tx, t *tally, f Family, change ledger.StateChange, now int64) error {
	upserts, err := f.Project(ctx, tx, p.circuitID, change.Value, now)
	if err != nil {
		return err
	}
	for _, u := range upserts {
		t.changes = append(t.changes, u.Change.String())
		switch u.Change {
		case projection.Created:
			err = p.notify(ctx, tx, t, f.Created, u.Name, now)
		case projection.Updated:
			err = p.notify(ctx, tx, t, f.Updated, u.Name, now)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) notify(ctx context.Context, tx *projection.Tx, t *tally, typ, name string, now int64) error {
	full := typ
	if name != "" {
		full = strings.Join([]string{typ, name}, ":")
	}
	err := tx.InsertNotification(ctx, projection.Notification{
		Type:            full,
		Requester:       p.requester,
		RequesterNodeID: p.nodeID,
		Target:          p.circuitID,
		CreatedTime:     now,
	})
	if err != nil {
		return err
	}
	t.notifications = append(t.notifications, typ)
	return nil
}
