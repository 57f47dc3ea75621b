package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/gameroom/internal/config"
)

// RootOptions holds global flags and the resolved node configuration.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Flag overrides of the environment configuration.
	LedgerBackend string
	LedgerPath    string
	DBDriver      string
	DBDSN         string
	NodeID        string

	Config config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the gameroom CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "gameroom",
		Short: "gameroom - shared ledger state for maritime calls",
		Long: `Apply message and status transactions to a circuit ledger and project
their state change events into a relational read model.

Configuration is read from GAMEROOM_* environment variables; the global
flags below override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.resolve(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LedgerBackend, "ledger-backend", "", "ledger backend (memory|sqlite|redis)")
	cmd.PersistentFlags().StringVar(&opts.LedgerPath, "ledger", "", "SQLite ledger path")
	cmd.PersistentFlags().StringVar(&opts.DBDriver, "db-driver", "", "projection driver (sqlite3|pgx)")
	cmd.PersistentFlags().StringVar(&opts.DBDSN, "db", "", "projection database DSN")
	cmd.PersistentFlags().StringVar(&opts.NodeID, "node-id", "", "node id recorded on notifications")

	cmd.AddCommand(NewAddressCommand(opts))
	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewContractCommand(opts))
	cmd.AddCommand(NewProjectCommand(opts))
	cmd.AddCommand(NewCircuitCommand(opts))
	cmd.AddCommand(NewMessageCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewNotificationCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// resolve loads the environment configuration, applies flag overrides and
// builds the logger. Diagnostics go to stderr so JSON output stays clean.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	flags := cmd.Flags()
	if flags.Changed("ledger-backend") {
		cfg.LedgerBackend = o.LedgerBackend
	}
	if flags.Changed("ledger") {
		cfg.LedgerPath = o.LedgerPath
	}
	if flags.Changed("db-driver") {
		cfg.DBDriver = o.DBDriver
	}
	if flags.Changed("db") {
		cfg.DBDSN = o.DBDSN
	}
	if flags.Changed("node-id") {
		cfg.NodeID = o.NodeID
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	o.Config = cfg
	return nil
}

// formatter returns an OutputFormatter bound to cmd's writers.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:  o.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: o.Verbose,
	}
}

// logger returns the resolved logger, or slog.Default() when a command
// runs without the root pre-run.
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
