// Package engine invokes the external validation/mapping executable.
//
// The engine is opaque: it receives positional arguments
//
//	[script] <inputPath> <outputDir> [<outputName> [<rulesPath>]]
//
// exits 0 on success, and may announce the artifact it produced with a
// "RESULT:<filename>" line on standard output.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrUnavailable is returned when no candidate executable could be located.
var ErrUnavailable = errors.New("the computation engine is not available on this server")

// UnbufferedEnv is added to the child environment so output is flushed as it
// is produced.
const UnbufferedEnv = "PYTHONUNBUFFERED=1"

const waitDelay = 5 * time.Second

// LaunchError reports a spawn failure other than "executable not found".
type LaunchError struct {
	Executable string
	Err        error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch engine %s: %v", e.Executable, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Invocation holds the positional arguments of one engine run.
type Invocation struct {
	InputPath  string
	OutputDir  string
	OutputName string // optional
	RulesPath  string // optional
}

// Args returns the positional argument list. A rules path without an output
// name gets an empty placeholder so positions are preserved; an absent rules
// path is omitted entirely.
func (inv Invocation) Args() []string {
	args := []string{inv.InputPath, inv.OutputDir}
	switch {
	case inv.RulesPath != "":
		args = append(args, inv.OutputName, inv.RulesPath)
	case inv.OutputName != "":
		args = append(args, inv.OutputName)
	}
	return args
}

// Result is the captured outcome of a finished engine process.
type Result struct {
	Executable string
	Stdout     string
	Stderr     string
	ExitCode   int // -1 when the process was killed without an exit code
	Duration   time.Duration
}

// Succeeded reports whether the engine exited with code 0.
func (r *Result) Succeeded() bool {
	return r.ExitCode == 0
}

// Diagnostic returns the text explaining a failure: standard error, else
// standard output, else a generic message naming the exit code.
func (r *Result) Diagnostic() string {
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	if s := strings.TrimSpace(r.Stdout); s != "" {
		return s
	}
	return fmt.Sprintf("engine exited with code %d", r.ExitCode)
}

// Engine runs one kind of external engine.
type Engine struct {
	// Candidates are tried in order; the first one that exists is used.
	Candidates []string
	// Script, when set, is passed before the positional arguments
	// (e.g. an interpreter candidate plus the engine's script path).
	Script string
	// WorkDir is the child's working directory.
	WorkDir string
	// Env is appended to the inherited environment.
	Env []string

	// LookPath defaults to exec.LookPath.
	LookPath LookPathFunc
}

// Run spawns the first available candidate and waits for it to exit.
//
// A candidate that cannot be located is skipped; any other spawn failure
// aborts with *LaunchError. When every candidate is missing Run returns
// ErrUnavailable. A non-zero exit is not an error: inspect Result.ExitCode.
// Cancelling ctx kills the child.
func (e *Engine) Run(ctx context.Context, inv Invocation) (*Result, error) {
	lookPath := e.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	for _, candidate := range e.Candidates {
		res := Resolve(candidate, lookPath)
		slog.Debug("engine candidate", "candidate", candidate, "status", res.Status.String())

		switch res.Status {
		case NotFound:
			continue
		case Failed:
			return nil, &LaunchError{Executable: candidate, Err: res.Err}
		}

		result, err := e.spawn(ctx, res.Path, inv)
		if err != nil {
			if isNotFound(err) {
				slog.Debug("engine candidate vanished before spawn", "candidate", candidate)
				continue
			}
			return nil, &LaunchError{Executable: candidate, Err: err}
		}
		return result, nil
	}

	return nil, ErrUnavailable
}

func (e *Engine) spawn(ctx context.Context, path string, inv Invocation) (*Result, error) {
	args := inv.Args()
	if e.Script != "" {
		args = append([]string{e.Script}, args...)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = e.WorkDir
	cmd.Env = append(append(os.Environ(), UnbufferedEnv), e.Env...)
	// Grandchildren holding the output pipes must not pin Wait after a kill.
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	slog.Info("engine started", "executable", path, "pid", cmd.Process.Pid, "input", inv.InputPath)

	waitErr := cmd.Wait()
	result := &Result{
		Executable: path,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		ExitCode:   -1,
		Duration:   time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		result.ExitCode = 0
	case errors.As(waitErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		// The process started, so anything else (output copy failure,
		// cancellation) is reported as a failed run rather than a launch error.
		if cmd.ProcessState != nil {
			result.ExitCode = cmd.ProcessState.ExitCode()
		}
		if result.ExitCode == 0 {
			result.ExitCode = -1
		}
		result.Stderr = strings.TrimSpace(result.Stderr + "\n" + waitErr.Error())
	}

	if ctx.Err() != nil && result.ExitCode == 0 {
		result.ExitCode = -1
	}

	slog.Info("engine finished",
		"executable", path,
		"exit_code", result.ExitCode,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}
