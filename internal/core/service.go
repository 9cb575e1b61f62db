package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/RuleSheet/internal/engine"
	"github.com/JonMunkholm/RuleSheet/internal/history"
	"github.com/JonMunkholm/RuleSheet/internal/logging"
	"github.com/JonMunkholm/RuleSheet/internal/rules"
	"github.com/JonMunkholm/RuleSheet/internal/scratch"
	"github.com/JonMunkholm/RuleSheet/internal/workbook"
)

// Kind selects the engine and the rule flavor of an operation.
type Kind string

const (
	KindValidation Kind = "validation"
	KindMapping    Kind = "mapping"
)

// ParseKind accepts "validation" or "mapping", case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindValidation:
		return KindValidation, nil
	case KindMapping:
		return KindMapping, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// outputSuffix is appended to the input stem to name the requested artifact.
func (k Kind) outputSuffix() string {
	if k == KindMapping {
		return "_mapping.xlsx"
	}
	return "_review.xlsx"
}

// DownloadPrefix is the route artifacts are served under.
const DownloadPrefix = "/api/download/"

// rulesFileName is the base name of the rules payload handed to the engine.
const rulesFileName = "rules.json"

// Runner runs one engine invocation. *engine.Engine satisfies it.
type Runner interface {
	Run(ctx context.Context, inv engine.Invocation) (*engine.Result, error)
}

// Options wires a Service.
type Options struct {
	Scratch    *scratch.Dir
	Validation Runner
	Mapping    Runner

	// Timeout bounds one engine run; zero means no bound.
	Timeout       time.Duration
	MaxConcurrent int
	MaxWait       time.Duration

	// History defaults to an in-memory recorder.
	History history.Recorder
}

// Service orchestrates uploads, rule payloads, engine runs and artifacts.
type Service struct {
	scratch *scratch.Dir
	engines map[Kind]Runner
	limiter *EngineLimiter
	history history.Recorder
	timeout time.Duration
}

// NewService validates opts and builds a Service.
func NewService(opts Options) (*Service, error) {
	if opts.Scratch == nil {
		return nil, errors.New("scratch directory is required")
	}
	if opts.Validation == nil || opts.Mapping == nil {
		return nil, errors.New("validation and mapping engines are required")
	}
	rec := opts.History
	if rec == nil {
		rec = history.NewMemory(0)
	}

	return &Service{
		scratch: opts.Scratch,
		engines: map[Kind]Runner{
			KindValidation: opts.Validation,
			KindMapping:    opts.Mapping,
		},
		limiter: NewEngineLimiter(opts.MaxConcurrent, opts.MaxWait),
		history: rec,
		timeout: opts.Timeout,
	}, nil
}

// Request is one validate or mapping upload.
type Request struct {
	Kind     Kind
	FileName string
	File     io.Reader
	// Rules is the optional JSON rule set edited by the user. Blank means
	// the engine uses the workbook's own rules.
	Rules string
}

// Outcome is the successful result of Run.
type Outcome struct {
	Kind        Kind   `json:"-"`
	FileName    string `json:"file_name"`
	DownloadURL string `json:"download_url"`
	Message     string `json:"message"`
}

// Run persists the upload and optional rules, invokes the engine, and
// returns a reference to the produced artifact. Every temporary file the
// request created is removed before Run returns; the artifact is kept.
func (s *Service) Run(ctx context.Context, req Request) (*Outcome, error) {
	runner, ok := s.engines[req.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind)
	}
	if req.File == nil || strings.TrimSpace(req.FileName) == "" {
		return nil, ErrNoFile
	}
	if !workbook.Supported(req.FileName) {
		return nil, fmt.Errorf("%w: %s", workbook.ErrUnsupportedFormat, filepath.Ext(req.FileName))
	}

	payload, err := decodeRules(req.Kind, req.Rules)
	if err != nil {
		return nil, err
	}

	log := logging.WithFields(ctx, "kind", string(req.Kind), "file", req.FileName)

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	sess := s.scratch.NewSession()
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("scratch cleanup incomplete", "error", err)
		}
	}()

	input, err := sess.Persist(req.FileName, req.File)
	if err != nil {
		return nil, fmt.Errorf("persist upload: %w", err)
	}

	inv := engine.Invocation{
		InputPath:  input,
		OutputDir:  s.scratch.Path(),
		OutputName: OutputName(req.Kind, req.FileName),
	}
	if payload != nil {
		rulesPath, err := sess.WriteJSON(rulesFileName, payload)
		if err != nil {
			return nil, fmt.Errorf("persist rules: %w", err)
		}
		inv.RulesPath = rulesPath
	}

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := runner.Run(runCtx, inv)
	run := history.Run{
		Kind:       string(req.Kind),
		FileName:   scratch.SafeBase(req.FileName),
		DurationMS: time.Since(start).Milliseconds(),
	}

	if err != nil {
		run.ExitCode = -1
		run.Status = history.StatusError
		if errors.Is(err, engine.ErrUnavailable) {
			run.Status = history.StatusUnavailable
		}
		run.Error = err.Error()
		s.record(ctx, run)
		return nil, err
	}

	run.ExitCode = res.ExitCode
	if !res.Succeeded() {
		execErr := &ExecutionError{
			ExitCode:   res.ExitCode,
			Diagnostic: res.Diagnostic(),
			TimedOut:   errors.Is(runCtx.Err(), context.DeadlineExceeded),
		}
		run.Status = history.StatusFailed
		run.Error = execErr.Diagnostic
		s.record(ctx, run)
		return nil, execErr
	}

	name, ok := engine.ArtifactName(res.Stdout)
	if !ok {
		name = inv.OutputName
	}
	// The engine may have written over a path this session allocated.
	sess.Keep(filepath.Join(s.scratch.Path(), name))

	run.Status = history.StatusSucceeded
	run.Artifact = name
	s.record(ctx, run)

	log.Info("engine run completed", "artifact", name, "duration_ms", run.DurationMS)

	return &Outcome{
		Kind:        req.Kind,
		FileName:    name,
		DownloadURL: DownloadURL(name),
		Message:     successMessage(req.Kind),
	}, nil
}

func (s *Service) record(ctx context.Context, run history.Run) {
	// History must not fail a request that already has an outcome.
	if err := s.history.Record(context.WithoutCancel(ctx), run); err != nil {
		logging.FromContext(ctx).Warn("failed to record engine run", "error", err)
	}
}

func successMessage(k Kind) string {
	if k == KindMapping {
		return "Mapping completed"
	}
	return "Validation completed"
}

// OutputName derives the requested artifact name: the upload's base name
// without its .xlsx/.xlsm extension, plus a kind-specific suffix.
func OutputName(k Kind, fileName string) string {
	base := scratch.SafeBase(fileName)
	ext := filepath.Ext(base)
	for _, known := range workbook.Extensions {
		if strings.EqualFold(ext, known) {
			base = strings.TrimSuffix(base, ext)
			break
		}
	}
	return base + k.outputSuffix()
}

// DownloadURL returns the relative retrieval reference for an artifact.
func DownloadURL(name string) string {
	return DownloadPrefix + url.PathEscape(name)
}

// decodeRules parses the optional rules JSON into the payload written for the
// engine. A nil payload means no rules file is produced.
func decodeRules(k Kind, raw string) (any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	switch k {
	case KindMapping:
		parsed, err := rules.DecodeMappingJSON([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
		}
		payload := rules.MappingPayloads(parsed)
		if len(payload) == 0 {
			return nil, nil
		}
		return payload, nil
	default:
		parsed, err := rules.DecodeValidationJSON([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
		}
		payload := rules.ValidationPayloads(parsed)
		if len(payload) == 0 {
			return nil, nil
		}
		return payload, nil
	}
}

// Derive reads an uploaded workbook and returns its rules in wire form,
// ready for the editor.
func (s *Service) Derive(ctx context.Context, k Kind, fileName string, file io.Reader) (any, error) {
	if _, ok := s.engines[k]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	if file == nil || strings.TrimSpace(fileName) == "" {
		return nil, ErrNoFile
	}
	if !workbook.Supported(fileName) {
		return nil, fmt.Errorf("%w: %s", workbook.ErrUnsupportedFormat, filepath.Ext(fileName))
	}

	sess := s.scratch.NewSession()
	defer func() {
		if err := sess.Close(); err != nil {
			logging.FromContext(ctx).Warn("scratch cleanup incomplete", "error", err)
		}
	}()

	path, err := sess.Persist(fileName, file)
	if err != nil {
		return nil, fmt.Errorf("persist upload: %w", err)
	}

	wb, err := workbook.Open(path)
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	return DeriveFrom(wb, k)
}

// DeriveFrom derives rules of kind k from src using the default sheet names.
// Result slices are never nil.
func DeriveFrom(src rules.SheetSource, k Kind) (any, error) {
	switch k {
	case KindMapping:
		derived, err := rules.DeriveMapping(src, rules.DeriveOptions{})
		if err != nil {
			return nil, fmt.Errorf("derive mapping rules: %w", err)
		}
		return rules.MappingPayloads(derived), nil
	case KindValidation:
		derived, err := rules.DeriveValidation(src, rules.DeriveOptions{})
		if err != nil {
			return nil, fmt.Errorf("derive validation rules: %w", err)
		}
		return rules.ValidationPayloads(derived), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, k)
}

// Artifact resolves a produced artifact by name. Directory segments in name
// are ignored; a missing file yields scratch.ErrNotFound.
func (s *Service) Artifact(name string) (string, error) {
	return s.scratch.Resolve(name)
}

// EngineStatus reports engine slot usage.
func (s *Service) EngineStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForEngines blocks until running engines finish or ctx is done.
func (s *Service) WaitForEngines(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// RecentRuns lists recorded engine runs, newest first.
func (s *Service) RecentRuns(ctx context.Context, limit int) ([]history.Run, error) {
	return s.history.Recent(ctx, limit)
}
