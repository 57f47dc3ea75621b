package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/gameroom/internal/projection"
)

// CircuitOptions holds flags for the circuit commands.
type CircuitOptions struct {
	*RootOptions
	Alias    string
	Members  []string // node-id=endpoint
	Services []string // service-id[:service-type]
}

// CircuitResult is a gameroom with its members and services.
type CircuitResult struct {
	Gameroom projection.Gameroom  `json:"gameroom"`
	Members  []projection.Member  `json:"members"`
	Services []projection.Service `json:"services"`
}

// Text prints one line for the gameroom and one per member and service.
func (r CircuitResult) Text(w io.Writer) {
	g := r.Gameroom
	fmt.Fprintf(w, "%s (%s) %s\n", g.CircuitID, g.Alias, g.Status)
	for _, m := range r.Members {
		fmt.Fprintf(w, "  member  %s %s %s\n", m.NodeID, m.Endpoints, m.Status)
	}
	for _, s := range r.Services {
		fmt.Fprintf(w, "  service %s %s %s\n", s.ServiceID, s.ServiceType, s.Status)
	}
}

// NewCircuitCommand creates the circuit command group.
func NewCircuitCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "circuit",
		Short: "Manage gameroom circuits in the read model",
	}
	cmd.AddCommand(newCircuitRegisterCommand(rootOpts))
	cmd.AddCommand(newCircuitShowCommand(rootOpts))
	return cmd
}

func newCircuitRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CircuitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register <circuit-id>",
		Short: "Register a circuit, its members and services",
		Long: `Record a circuit as Ready in the projection database. Members and
services are registered Ready too; the circuit's genesis event moves all of
them to Active.

Registering an existing circuit leaves it unchanged.

Examples:
  gameroom circuit register gameroom-harbor --alias harbor \
    --member acme-node-000=tcps://acme:8044 --member bubba-node-000=tcps://bubba:8044 \
    --service a000:scabbard`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCircuitRegister(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Alias, "alias", "", "human readable circuit name (defaults to the id)")
	cmd.Flags().StringArrayVar(&opts.Members, "member", nil, "member as node-id=endpoint (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Services, "service", nil, "service as id[:type] (repeatable)")

	return cmd
}

func newCircuitShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <circuit-id>",
		Short:         "Show a circuit and its lifecycle status",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProjection(cmd, rootOpts, func(ctx context.Context, store *projection.Store) error {
				g, members, services, err := store.Gameroom(ctx, args[0])
				if err != nil {
					return notFoundOr(rootOpts, cmd, "circuit "+args[0], err)
				}
				return rootOpts.formatter(cmd).Success(CircuitResult{Gameroom: g, Members: members, Services: services})
			})
		},
	}
}

func runCircuitRegister(opts *CircuitOptions, circuitID string, cmd *cobra.Command) error {
	now := time.Now().UnixMilli()
	alias := opts.Alias
	if alias == "" {
		alias = circuitID
	}

	g := projection.Gameroom{
		CircuitID:      circuitID,
		Alias:          alias,
		ManagementType: "gameroom",
		Status:         projection.StatusReady,
		CreatedTime:    now,
		UpdatedTime:    now,
	}

	var members []projection.Member
	var nodeIDs []string
	for _, m := range opts.Members {
		nodeID, endpoint, ok := strings.Cut(m, "=")
		if !ok || nodeID == "" {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid --member %q: want node-id=endpoint", m))
		}
		nodeIDs = append(nodeIDs, nodeID)
		members = append(members, projection.Member{
			NodeID: nodeID, Endpoints: endpoint, Status: projection.StatusReady,
			CreatedTime: now, UpdatedTime: now,
		})
	}

	var services []projection.Service
	for _, s := range opts.Services {
		id, typ, _ := strings.Cut(s, ":")
		if id == "" {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid --service %q: want id[:type]", s))
		}
		if typ == "" {
			typ = "scabbard"
		}
		services = append(services, projection.Service{
			ServiceID: id, ServiceType: typ, AllowedNodes: strings.Join(nodeIDs, ","),
			Status: projection.StatusReady, CreatedTime: now, UpdatedTime: now,
		})
	}

	return withProjection(cmd, opts.RootOptions, func(ctx context.Context, store *projection.Store) error {
		if err := store.RegisterCircuit(ctx, g, members, services); err != nil {
			return WrapExitError(ExitCommandError, "register circuit", err)
		}
		g, members, services, err := store.Gameroom(ctx, circuitID)
		if err != nil {
			return WrapExitError(ExitCommandError, "load circuit", err)
		}
		return opts.formatter(cmd).Success(CircuitResult{Gameroom: g, Members: members, Services: services})
	})
}

// withProjection opens the configured projection database for the
// duration of fn.
func withProjection(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, store *projection.Store) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := projection.Open(ctx, opts.Config.DBDriver, opts.Config.DBDSN)
	if err != nil {
		return WrapExitError(ExitCommandError, "open projection", err)
	}
	defer store.Close()
	return fn(ctx, store)
}

// notFoundOr reports ErrNotFound as a failure with an error response and
// any other error as a command error.
func notFoundOr(opts *RootOptions, cmd *cobra.Command, what string, err error) error {
	if errors.Is(err, projection.ErrNotFound) {
		return opts.formatter(cmd).NotFound(what, err)
	}
	return WrapExitError(ExitCommandError, what, err)
}
