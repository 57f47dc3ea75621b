package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/gameroom/internal/address"
	"github.com/roach88/gameroom/internal/families"
)

// AddressOptions holds flags for the address command.
type AddressOptions struct {
	*RootOptions
	Contract bool
}

// AddressResult is the output of the address command.
type AddressResult struct {
	Family  string `json:"family"`
	Name    string `json:"name,omitempty"`
	Prefix  string `json:"prefix"`
	Address string `json:"address"`
}

// Text prints the address alone so it can be used in scripts.
func (r AddressResult) Text(w io.Writer) {
	fmt.Fprintln(w, r.Address)
}

// NewAddressCommand creates the address command.
func NewAddressCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddressOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "address <family> [name]",
		Short: "Compute a ledger address",
		Long: `Compute the ledger address of an entity, the namespace prefix of a
family, or with --contract the contract registry address of a family.

Examples:
  gameroom address message chat-1
  gameroom address status
  gameroom address message --contract`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAddress(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Contract, "contract", false, "print the contract registry address")

	return cmd
}

func runAddress(opts *AddressOptions, args []string, cmd *cobra.Command) error {
	fam := args[0]
	result := AddressResult{Family: fam, Prefix: address.Prefix(fam)}

	switch {
	case opts.Contract:
		if len(args) > 1 {
			return NewExitError(ExitCommandError, "--contract takes no entity name")
		}
		key, _, err := families.Contract(fam)
		if err != nil {
			return WrapExitError(ExitCommandError, "contract address", err)
		}
		result.Prefix = address.ContractPrefix
		result.Address = key
	case len(args) == 2:
		result.Name = args[1]
		result.Address = address.Address(fam, args[1])
	default:
		result.Address = result.Prefix
	}

	return opts.formatter(cmd).Success(result)
}
