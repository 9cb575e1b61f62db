package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/RuleSheet/internal/rules"
)

// ParseResult describes a decoded instruction.
type ParseResult struct {
	Input     string   `json:"input" yaml:"input"`
	Variant   string   `json:"variant" yaml:"variant"`
	Mode      string   `json:"mode,omitempty" yaml:"mode,omitempty"`
	Canonical string   `json:"canonical" yaml:"canonical"`
	Complete  bool     `json:"complete" yaml:"complete"`
	Values    []string `json:"values,omitempty" yaml:"values,omitempty"`
	Sheet     string   `json:"sheet,omitempty" yaml:"sheet,omitempty"`
	Column    string   `json:"column,omitempty" yaml:"column,omitempty"`
	Argument  string   `json:"argument,omitempty" yaml:"argument,omitempty"`
}

// NewParseCommand creates the parse command.
func NewParseCommand(rootOpts *RootOptions) *cobra.Command {
	var mapping bool

	cmd := &cobra.Command{
		Use:   "parse <instruction>",
		Short: "Decode an allowed-value or mapping instruction",
		Example: `  rulectl parse "VALUE=Open;Closed"
  rulectl parse "SHEET=Lists!Country"
  rulectl parse --mapping "COPY=Customer Name"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res ParseResult
			if mapping {
				res = describeMapping(args[0])
			} else {
				res = describeInstruction(args[0])
			}
			return writeOutput(cmd.OutOrStdout(), rootOpts.Format, res, res.writeText)
		},
	}

	cmd.Flags().BoolVar(&mapping, "mapping", false, "treat the argument as a mapping instruction")
	return cmd
}

func describeInstruction(raw string) ParseResult {
	in := rules.Parse(raw)
	res := ParseResult{
		Input:     raw,
		Mode:      string(in.Mode()),
		Canonical: in.String(),
		Complete:  rules.Complete(in),
	}
	switch v := in.(type) {
	case rules.Unconstrained:
		res.Variant = "unconstrained"
	case rules.ValueList:
		res.Variant = "list"
		res.Values = v.Values
	case rules.SheetLookup:
		res.Variant = "sheet"
		res.Sheet, res.Column = v.Sheet, v.Column
	case rules.FreeForm:
		res.Variant = "freeform"
	}
	return res
}

func describeMapping(raw string) ParseResult {
	m := rules.ParseMapping("", raw)
	res := ParseResult{
		Input:     raw,
		Variant:   string(m.Kind),
		Canonical: m.Instruction(),
		Complete:  m.Complete(),
		Argument:  m.Arg,
	}
	if m.Kind == rules.MapLookup {
		res.Sheet, res.Column = m.Lookup.Sheet, m.Lookup.Column
	}
	return res
}

func (r ParseResult) writeText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "variant:   %s\n", r.Variant)
	if r.Mode != "" {
		fmt.Fprintf(&b, "mode:      %s\n", r.Mode)
	}
	fmt.Fprintf(&b, "canonical: %q\n", r.Canonical)
	fmt.Fprintf(&b, "complete:  %t\n", r.Complete)
	if len(r.Values) > 0 {
		fmt.Fprintf(&b, "values:    %s\n", strings.Join(r.Values, ", "))
	}
	if r.Sheet != "" || r.Column != "" {
		fmt.Fprintf(&b, "sheet:     %s\n", r.Sheet)
		fmt.Fprintf(&b, "column:    %s\n", r.Column)
	}
	if r.Argument != "" {
		fmt.Fprintf(&b, "argument:  %s\n", r.Argument)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
