package scratch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"
)

// Session owns the temporary files of one request.
//
// Usage:
//
//	sess := dir.NewSession()
//	defer sess.Close()
//	input, err := sess.Persist(header.Filename, file)
type Session struct {
	dir *Dir

	mu     sync.Mutex
	paths  []string
	closed bool
}

// NewSession starts tracking a new set of temporary paths.
func (d *Dir) NewSession() *Session {
	return &Session{dir: d}
}

// Persist copies r into a new file derived from name and returns its path.
// The path is registered before any byte is written, so a partial file is
// still removed on Close.
func (s *Session) Persist(name string, r io.Reader) (string, error) {
	f, err := s.dir.create(name)
	if err != nil {
		return "", err
	}
	if err := s.track(f.Name()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := copyInto(f, r); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// Write stores data in a new file derived from name.
func (s *Session) Write(name string, data []byte) (string, error) {
	return s.Persist(name, bytes.NewReader(data))
}

// WriteJSON stores v, JSON encoded, in a new file derived from name.
func (s *Session) WriteJSON(name string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	return s.Write(name, data)
}

// Keep releases path from the session so Close leaves it in place. It is used
// when the engine's artifact turns out to be a path this session allocated.
func (s *Session) Keep(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clean := filepath.Clean(path)
	kept := s.paths[:0]
	for _, p := range s.paths {
		if p != clean {
			kept = append(kept, p)
		}
	}
	s.paths = kept
}

// Paths returns the paths currently owned by the session.
func (s *Session) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Close removes every owned path. Each removal is attempted even if an
// earlier one failed; the combined error is returned for logging only.
// Calling Close more than once is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	paths := s.paths
	s.paths = nil
	s.mu.Unlock()

	var err error
	for _, p := range paths {
		if rmErr := os.Remove(p); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = multierr.Append(err, rmErr)
		}
	}
	return err
}

var errSessionClosed = errors.New("scratch session already closed")

func (s *Session) track(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	s.paths = append(s.paths, filepath.Clean(path))
	return nil
}
