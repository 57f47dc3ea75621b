package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/gameroom/internal/ledger"
	"github.com/roach88/gameroom/internal/projector"
)

// Handler projects the events of one circuit. *projector.Processor
// satisfies it.
type Handler interface {
	HandleEvent(ctx context.Context, ev ledger.StateChangeEvent) error
}

// HandlerFactory returns the handler for a circuit seen on the feed.
type HandlerFactory func(circuitID string) (Handler, error)

// Stats summarizes one Run.
type Stats struct {
	Events  int `json:"events"`
	Dropped int `json:"dropped"`
}

// Driver routes feed events to per-circuit handlers.
type Driver struct {
	factory        HandlerFactory
	maxRedelivery  uint64
	initialBackoff time.Duration
	logger         *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// Option configures a Driver.
type Option func(*Driver)

// WithMaxRedeliveries bounds how often a transiently failing event is
// retried before the run fails.
func WithMaxRedeliveries(n uint64) Option {
	return func(d *Driver) { d.maxRedelivery = n }
}

// WithInitialBackoff sets the first retry delay.
func WithInitialBackoff(delay time.Duration) Option {
	return func(d *Driver) { d.initialBackoff = delay }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// NewDriver creates a driver that builds handlers with factory.
func NewDriver(factory HandlerFactory, opts ...Option) *Driver {
	d := &Driver{
		factory:        factory,
		maxRedelivery:  5,
		initialBackoff: 100 * time.Millisecond,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run reads envelopes from r until EOF and projects them. Permanent
// projection errors drop the event and are counted; a transient error that
// survives every redelivery, or a malformed feed line, fails the run.
func (d *Driver) Run(ctx context.Context, r io.Reader) (Stats, error) {
	d.mu.Lock()
	d.stats = Stats{}
	d.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	queues := make(map[string]*queue)

	closeAll := func() {
		for _, q := range queues {
			q.Close()
		}
	}

	reader := NewReader(r)
	readErr := func() error {
		defer closeAll()
		for {
			env, err := reader.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}

			q, ok := queues[env.CircuitID]
			if !ok {
				h, err := d.factory(env.CircuitID)
				if err != nil {
					return fmt.Errorf("handler for circuit %s: %w", env.CircuitID, err)
				}
				q = newQueue()
				queues[env.CircuitID] = q
				circuitID := env.CircuitID
				g.Go(func() error { return d.consume(gctx, circuitID, h, q) })
			}
			if gctx.Err() != nil {
				return nil
			}
			q.Enqueue(env.Event)
		}
	}()

	err := g.Wait()
	if readErr != nil {
		err = errors.Join(readErr, err)
	}
	if err == nil {
		err = ctx.Err()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats, err
}

func (d *Driver) consume(ctx context.Context, circuitID string, h Handler, q *queue) error {
	for {
		ev, ok := q.Next(ctx)
		if !ok {
			return ctx.Err()
		}
		if err := d.deliver(ctx, circuitID, h, ev); err != nil {
			return err
		}
	}
}

// deliver hands ev to h, redelivering transient failures with exponential
// backoff.
func (d *Driver) deliver(ctx context.Context, circuitID string, h Handler, ev ledger.StateChangeEvent) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.initialBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(b, d.maxRedelivery), ctx)

	op := func() error {
		err := h.HandleEvent(ctx, ev)
		if err != nil && projector.IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		d.logger.Warn("redelivering event", "circuit", circuitID, "event", ev.ID, "wait", wait, "error", err)
	}

	err := backoff.RetryNotify(op, policy, notify)

	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case err == nil:
		d.stats.Events++
		return nil
	case projector.IsPermanent(err):
		d.stats.Events++
		d.stats.Dropped++
		d.logger.Error("dropping event", "circuit", circuitID, "event", ev.ID, "error", err)
		return nil
	default:
		return fmt.Errorf("circuit %s: event %s: %w", circuitID, ev.ID, err)
	}
}
