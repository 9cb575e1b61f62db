// Package cli implements the rulectl command line: parsing instructions,
// deriving rules from workbooks, and running the engine locally.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/RuleSheet/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "text" | "json" | "yaml"

	// LoadConfig defaults to config.Load.
	LoadConfig func() (*config.Config, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the rulectl root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{LoadConfig: config.Load})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rulectl",
		Short: "Inspect validation and mapping rules and run the engine",
		Long: `rulectl works with the rules embedded in spreadsheet templates.

It parses allowed-value and mapping instructions, derives the rule set a
workbook carries, and runs the validation or mapping engine against a file
using the same configuration as the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	cmd.AddCommand(NewParseCommand(opts))
	cmd.AddCommand(NewDeriveCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))

	return cmd
}
