package engine

import (
	"errors"
	"io/fs"
	"os/exec"
	"strings"
)

// ResolveStatus is the outcome of locating one candidate executable.
type ResolveStatus int

const (
	// Found means the candidate can be spawned.
	Found ResolveStatus = iota
	// NotFound means the candidate does not exist; the next one may be tried.
	NotFound
	// Failed means the candidate exists but cannot be used (permissions,
	// invalid path). The search stops.
	Failed
)

func (s ResolveStatus) String() string {
	switch s {
	case Found:
		return "found"
	case NotFound:
		return "not found"
	default:
		return "failed"
	}
}

// Resolution is the typed result of Resolve.
type Resolution struct {
	Candidate string
	Status    ResolveStatus
	Path      string // set when Found
	Err       error  // set when Failed
}

// LookPathFunc locates an executable, like exec.LookPath.
type LookPathFunc func(file string) (string, error)

// Resolve locates candidate with lookPath and classifies the outcome.
func Resolve(candidate string, lookPath LookPathFunc) Resolution {
	res := Resolution{Candidate: candidate}

	if strings.TrimSpace(candidate) == "" {
		res.Status = NotFound
		return res
	}

	path, err := lookPath(candidate)
	switch {
	case err == nil:
		res.Status = Found
		res.Path = path
	case isNotFound(err):
		res.Status = NotFound
	default:
		res.Status = Failed
		res.Err = err
	}
	return res
}

// isNotFound reports whether err means the executable does not exist, as
// opposed to existing but being unusable.
func isNotFound(err error) bool {
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) && pathErr.Op == "chdir" {
		return false
	}
	return errors.Is(err, fs.ErrNotExist)
}
