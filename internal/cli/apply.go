package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/gameroom/internal/families"
	"github.com/roach88/gameroom/internal/family"
	"github.com/roach88/gameroom/internal/feed"
	"github.com/roach88/gameroom/internal/ledger"
)

// ApplyOptions holds flags for the apply and contract commands.
type ApplyOptions struct {
	*RootOptions
	Signer  string
	Version string
	Circuit string
	Emit    bool
}

// ApplyResult describes a committed transaction.
type ApplyResult struct {
	Family  string   `json:"family"`
	EventID string   `json:"event_id"`
	Changes []string `json:"changes"`
}

// Text prints the event id followed by one line per state change.
func (r ApplyResult) Text(w io.Writer) {
	fmt.Fprintf(w, "%s %s\n", r.Family, r.EventID)
	for _, c := range r.Changes {
		fmt.Fprintf(w, "  %s\n", c)
	}
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <family> <payload>",
		Short: "Apply a transaction to the ledger",
		Long: `Apply one message or status transaction to the configured ledger and
commit it.

With --emit the committed state change event is written to stdout as a
feed line for "gameroom project" instead of the regular output.

Exit codes:
  0 - Transaction committed
  1 - Transaction rejected
  2 - Command error (bad flags, unreachable ledger, etc.)

Examples:
  gameroom apply message "chat-1,create," --signer 02a1a1a1
  gameroom apply status "mv-aurora,delay,LOADING,1700000000000,,,,,,,true,,eta set" --signer 02a1a1a1
  gameroom apply message "chat-1,add,ahoy" --signer 02a1a1a1 --circuit gameroom-harbor --emit`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd.Context(), opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Signer, "signer", "", "signer public key (required)")
	cmd.Flags().StringVar(&opts.Version, "version", "", "family version (defaults to any supported)")
	addEmitFlags(cmd, opts)
	_ = cmd.MarkFlagRequired("signer")

	return cmd
}

// NewContractCommand creates the contract command, which announces a
// family on the ledger the way a contract registry does on deployment.
func NewContractCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "contract <family>",
		Short: "Register a family contract on the ledger",
		Long: `Write the contract registry entry of a family. Projectors treat the
resulting event as the circuit's genesis and mark the gameroom Active.

Examples:
  gameroom contract message --circuit gameroom-harbor --emit`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContract(cmd.Context(), opts, args[0], cmd)
		},
	}

	addEmitFlags(cmd, opts)
	return cmd
}

func addEmitFlags(cmd *cobra.Command, opts *ApplyOptions) {
	cmd.Flags().StringVar(&opts.Circuit, "circuit", "", "circuit id recorded on emitted feed lines")
	cmd.Flags().BoolVar(&opts.Emit, "emit", false, "write the committed event as a feed line")
}

func runApply(ctx context.Context, opts *ApplyOptions, fam, payload string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Emit && opts.Circuit == "" {
		return NewExitError(ExitCommandError, "--emit requires --circuit")
	}

	backend, err := openLedger(opts.RootOptions)
	if err != nil {
		return err
	}
	defer backend.Close()

	d := families.NewDispatcher(opts.logger())
	ev, err := d.Submit(ctx, backend, ledger.UUIDv7Generator{}, family.Transaction{
		Family:  fam,
		Version: opts.Version,
		Request: family.Request{Signer: opts.Signer, Payload: []byte(payload)},
	})
	if err != nil {
		if kind := family.KindOf(err); kind != "" && kind != family.ErrInternal {
			return opts.formatter(cmd).Rejected(err)
		}
		return WrapExitError(ExitCommandError, "apply transaction", err)
	}

	opts.logger().Debug("transaction committed", "family", fam, "event", ev.ID, "changes", len(ev.StateChanges))
	return writeCommitted(opts, fam, ev, cmd)
}

func runContract(ctx context.Context, opts *ApplyOptions, fam string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Emit && opts.Circuit == "" {
		return NewExitError(ExitCommandError, "--emit requires --circuit")
	}

	backend, err := openLedger(opts.RootOptions)
	if err != nil {
		return err
	}
	defer backend.Close()

	ev, err := families.RegisterContract(ctx, backend, ledger.UUIDv7Generator{}, fam)
	if err != nil {
		return WrapExitError(ExitCommandError, "register contract", err)
	}
	return writeCommitted(opts, fam, ev, cmd)
}

func writeCommitted(opts *ApplyOptions, fam string, ev ledger.StateChangeEvent, cmd *cobra.Command) error {
	if opts.Emit {
		return feed.Encode(cmd.OutOrStdout(), feed.Envelope{CircuitID: opts.Circuit, Event: ev})
	}
	result := ApplyResult{Family: fam, EventID: ev.ID, Changes: make([]string, 0, len(ev.StateChanges))}
	for _, c := range ev.StateChanges {
		result.Changes = append(result.Changes, c.Kind.String()+" "+c.Key)
	}
	return opts.formatter(cmd).Success(result)
}

// openLedger opens the configured ledger backend.
func openLedger(opts *RootOptions) (ledger.Backend, error) {
	cfg := opts.Config
	backend, err := ledger.Open(cfg.LedgerBackend, cfg.LedgerPath, cfg.RedisURL)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open ledger", err)
	}
	return backend, nil
}
