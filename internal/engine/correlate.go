package engine

import (
	"path/filepath"
	"strings"
)

// MarkerPrefix starts the stdout line that names the produced artifact.
const MarkerPrefix = "RESULT:"

// ArtifactName returns the file name announced by the first "RESULT:" line of
// stdout. Only the base name is kept. ok is false when no usable marker exists
// and the caller should fall back to the output name it requested.
func ArtifactName(stdout string) (name string, ok bool) {
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(line, MarkerPrefix) {
			continue
		}
		value := strings.TrimSpace(strings.TrimPrefix(line, MarkerPrefix))
		value = filepath.Base(strings.ReplaceAll(value, `\`, "/"))
		switch value {
		case "", ".", "..", "/":
			return "", false
		}
		return value, true
	}
	return "", false
}
