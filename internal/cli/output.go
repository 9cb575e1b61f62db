package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/RuleSheet/internal/core"
)

// ErrorText is what rulectl prints for a failed command. Errors with a known
// user message are shown with their code and action; the rest verbatim.
func ErrorText(err error) string {
	if core.IsUserFacing(err) {
		return core.FormatUserError(err)
	}
	return err.Error()
}

// writeOutput renders v in the requested format. text is used for "text".
func writeOutput(w io.Writer, format string, v any, text func(io.Writer) error) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		return text(w)
	}
	return fmt.Errorf("unsupported format %q", format)
}
