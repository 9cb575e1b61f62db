// Package scratch manages the shared scratch directory: per-request temporary
// files, produced artifacts, and their eventual removal.
//
// Every file a request writes gets a random prefix, so concurrent requests
// never share a path. A Session tracks the paths one request allocated and
// removes all of them on Close, whatever happened in between.
package scratch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested artifact does not exist.
var ErrNotFound = errors.New("artifact not found")

// Dir is the process-wide scratch directory. It is created once and never
// torn down automatically.
type Dir struct {
	path string
}

// New ensures the directory at path exists and returns a handle to it.
// Calling New concurrently for the same path is safe.
func New(path string) (*Dir, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("scratch directory path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve scratch directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	return &Dir{path: abs}, nil
}

// Path returns the absolute directory path.
func (d *Dir) Path() string {
	return d.path
}

// UniqueName prefixes the base name of name with a random token.
func UniqueName(name string) string {
	return uuid.NewString() + "_" + SafeBase(name)
}

// SafeBase returns the final path element of name, stripped of any directory
// segments. Names that reduce to nothing become "file".
func SafeBase(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	base := filepath.Base(strings.TrimSpace(name))
	switch base {
	case "", ".", "..", "/":
		return "file"
	}
	return base
}

// Resolve maps a requested artifact name to a file inside the directory.
// Only the base name is honoured, so "../../etc/passwd" resolves to
// "<dir>/passwd".
func (d *Dir) Resolve(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if base == "" || base == "." || base == ".." || base == "/" {
		return "", ErrNotFound
	}

	path := filepath.Join(d.path, base)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("stat artifact: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return path, nil
}

// create opens a new, uniquely named file for writing.
func (d *Dir) create(name string) (*os.File, error) {
	path := filepath.Join(d.path, UniqueName(name))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}
	return f, nil
}

// copyInto writes r to f and closes it.
func copyInto(f *os.File, r io.Reader) error {
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close scratch file: %w", err)
	}
	return nil
}
