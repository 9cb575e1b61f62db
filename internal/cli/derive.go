package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/RuleSheet/internal/core"
	"github.com/JonMunkholm/RuleSheet/internal/rules"
	"github.com/JonMunkholm/RuleSheet/internal/workbook"
)

// NewDeriveCommand creates the derive command.
func NewDeriveCommand(rootOpts *RootOptions) *cobra.Command {
	var kind, rulesSheet, templateSheet string

	cmd := &cobra.Command{
		Use:   "derive <workbook>",
		Short: "Print the rules a workbook carries",
		Long: `Derive reads the ValidationRules or MappingRules sheet of a workbook.
Without a rules sheet the template's header row is used instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := core.ParseKind(kind)
			if err != nil {
				return err
			}

			wb, err := workbook.Open(args[0])
			if err != nil {
				return err
			}
			defer wb.Close()

			opts := rules.DeriveOptions{RulesSheet: rulesSheet, TemplateSheet: templateSheet}
			derived, err := derive(wb, k, opts)
			if err != nil {
				return err
			}

			return writeOutput(cmd.OutOrStdout(), rootOpts.Format, derived, func(w io.Writer) error {
				return writeRulesTable(w, derived)
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(core.KindValidation), "rule kind (validation|mapping)")
	cmd.Flags().StringVar(&rulesSheet, "rules-sheet", "", "rules sheet name (default depends on kind)")
	cmd.Flags().StringVar(&templateSheet, "template-sheet", "", "template sheet used when no rules sheet exists")
	return cmd
}

func derive(src rules.SheetSource, k core.Kind, opts rules.DeriveOptions) (any, error) {
	if opts == (rules.DeriveOptions{}) {
		return core.DeriveFrom(src, k)
	}
	if k == core.KindMapping {
		derived, err := rules.DeriveMapping(src, opts)
		if err != nil {
			return nil, err
		}
		return rules.MappingPayloads(derived), nil
	}
	derived, err := rules.DeriveValidation(src, opts)
	if err != nil {
		return nil, err
	}
	return rules.ValidationPayloads(derived), nil
}

func writeRulesTable(w io.Writer, derived any) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	switch v := derived.(type) {
	case []rules.MappingPayload:
		fmt.Fprintln(tw, "TARGET\tRULE")
		for _, p := range v {
			fmt.Fprintf(tw, "%s\t%s\n", p.Target, p.Rule)
		}
	case []rules.ValidationPayload:
		fmt.Fprintln(tw, "FIELD\tCHECKED\tREQUIRED\tMODE\tINSTRUCTION")
		for _, p := range v {
			fmt.Fprintf(tw, "%s\t%t\t%t\t%s\t%s\n",
				p.Field, p.Checked, p.Required, p.AllowedInstructionMode, p.AllowedInstruction)
		}
	}
	return tw.Flush()
}
