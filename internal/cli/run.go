package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/RuleSheet/internal/application"
	"github.com/JonMunkholm/RuleSheet/internal/core"
)

// RunResult reports where a local run left its artifact.
type RunResult struct {
	Kind     string `json:"kind" yaml:"kind"`
	FileName string `json:"file_name" yaml:"file_name"`
	Path     string `json:"path" yaml:"path"`
	Message  string `json:"message" yaml:"message"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	var kind, rulesFile string

	cmd := &cobra.Command{
		Use:   "run <workbook>",
		Short: "Run the validation or mapping engine on a workbook",
		Long: `Run performs the same sequence as the HTTP API: the workbook and the
optional rules file are staged in the scratch directory, the engine is
invoked, and the produced file's path is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := core.ParseKind(kind)
			if err != nil {
				return err
			}

			var rulesJSON string
			if rulesFile != "" {
				data, err := os.ReadFile(rulesFile)
				if err != nil {
					return fmt.Errorf("read rules: %w", err)
				}
				rulesJSON = string(data)
			}

			cfg, err := rootOpts.LoadConfig()
			if err != nil {
				return err
			}

			app, err := application.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			out, err := app.Service.Run(cmd.Context(), core.Request{
				Kind:     k,
				FileName: filepath.Base(args[0]),
				File:     f,
				Rules:    rulesJSON,
			})
			if err != nil {
				return core.NewUserError(err)
			}

			path, err := app.Service.Artifact(out.FileName)
			if err != nil {
				return err
			}

			res := RunResult{
				Kind:     string(k),
				FileName: out.FileName,
				Path:     path,
				Message:  out.Message,
			}
			return writeOutput(cmd.OutOrStdout(), rootOpts.Format, res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s: %s\n", res.Message, res.Path)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(core.KindValidation), "engine to run (validation|mapping)")
	cmd.Flags().StringVar(&rulesFile, "rules", "", "JSON rules file overriding the workbook's own rules")
	return cmd
}
