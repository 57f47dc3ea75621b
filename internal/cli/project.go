package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/gameroom/internal/feed"
	"github.com/roach88/gameroom/internal/projection"
	"github.com/roach88/gameroom/internal/projector"
)

// ProjectOptions holds flags for the project command.
type ProjectOptions struct {
	*RootOptions
	MaxRedeliveries uint64
	InitialBackoff  time.Duration
	MetricsAddr     string
}

// ProjectResult summarizes a projection run.
type ProjectResult struct {
	feed.Stats
	Circuits []string `json:"circuits"`
}

// Text prints the run summary.
func (r ProjectResult) Text(w io.Writer) {
	fmt.Fprintf(w, "projected %d events (%d dropped) across %d circuits\n", r.Events, r.Dropped, len(r.Circuits))
}

// NewProjectCommand creates the project command.
func NewProjectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProjectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "project [feed-file]",
		Short: "Project state change events into the read model",
		Long: `Read state change events as JSON lines (one {"circuit_id", "event"}
envelope per line) from feed-file or stdin, and project them into the
configured projection database.

Events of one circuit are applied strictly in feed order. An event that can
never be projected (for example a corrupt bucket) is logged and dropped; a
database failure is redelivered with backoff and fails the run once the
redelivery budget is spent.

Exit codes:
  0 - Feed fully projected (dropped events included)
  1 - Projection failed
  2 - Command error (unreadable feed, unreachable database, etc.)

Examples:
  gameroom apply message "chat-1,create," --signer 02a1 --circuit c1 --emit | gameroom project
  gameroom project events.jsonl --db-driver pgx --db postgres://localhost/gameroom`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("max-redeliveries") {
				opts.MaxRedeliveries = opts.Config.MaxRedeliveries
			}
			return runProject(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().Uint64Var(&opts.MaxRedeliveries, "max-redeliveries", 5, "redeliveries of a transiently failing event")
	cmd.Flags().DurationVar(&opts.InitialBackoff, "initial-backoff", 100*time.Millisecond, "first redelivery delay")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while projecting")

	return cmd
}

func runProject(ctx context.Context, opts *ProjectOptions, args []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.logger()
	cfg := opts.Config

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return WrapExitError(ExitCommandError, "open feed", err)
		}
		defer f.Close()
		in = f
	}

	store, err := projection.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return WrapExitError(ExitCommandError, "open projection", err)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	metrics := projector.NewMetrics(reg)
	if opts.MetricsAddr != "" {
		stop, err := serveMetrics(opts.MetricsAddr, reg, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "serve metrics", err)
		}
		defer stop()
	}

	var circuits []string
	factory := func(circuitID string) (feed.Handler, error) {
		circuits = append(circuits, circuitID)
		logger.Debug("projecting circuit", "circuit", circuitID)
		return projector.NewProcessor(store, circuitID, cfg.NodeID, cfg.Requester,
			projector.WithMetrics(metrics),
			projector.WithLogger(logger),
			projector.WithSkipDelivered(cfg.SkipDelivered),
		), nil
	}

	driver := feed.NewDriver(factory,
		feed.WithMaxRedeliveries(opts.MaxRedeliveries),
		feed.WithInitialBackoff(opts.InitialBackoff),
		feed.WithLogger(logger),
	)
	stats, err := driver.Run(ctx, in)
	if err != nil {
		return opts.formatter(cmd).ProjectionFailed(err, stats)
	}

	return opts.formatter(cmd).Success(ProjectResult{Stats: stats, Circuits: circuits})
}

// serveMetrics exposes reg over HTTP until the returned stop func runs.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	logger.Info("serving metrics", "addr", ln.Addr().String())
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
