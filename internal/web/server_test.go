package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/RuleSheet/internal/config"
	"github.com/JonMunkholm/RuleSheet/internal/core"
	"github.com/JonMunkholm/RuleSheet/internal/engine"
	"github.com/JonMunkholm/RuleSheet/internal/history"
	"github.com/JonMunkholm/RuleSheet/internal/scratch"
	"github.com/JonMunkholm/RuleSheet/internal/workbook"
)

// stubEngine writes its requested output and reports success unless fn is set.
type stubEngine struct {
	calls atomic.Int32
	fn    func(ctx context.Context, inv engine.Invocation) (*engine.Result, error)
}

func (e *stubEngine) Run(ctx context.Context, inv engine.Invocation) (*engine.Result, error) {
	e.calls.Add(1)
	if e.fn != nil {
		return e.fn(ctx, inv)
	}
	path := filepath.Join(inv.OutputDir, inv.OutputName)
	if err := os.WriteFile(path, []byte("xlsx-bytes"), 0o644); err != nil {
		return nil, err
	}
	return &engine.Result{}, nil
}

type testServer struct {
	srv        *Server
	dir        *scratch.Dir
	validation *stubEngine
	mapping    *stubEngine
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	cfg, err := config.LoadFrom(func(string) string { return "" })
	require.NoError(t, err)
	cfg.Upload.MaxFileSize = 1 << 20
	if mutate != nil {
		mutate(cfg)
	}

	dir, err := scratch.New(filepath.Join(t.TempDir(), "scratch"))
	require.NoError(t, err)

	ts := &testServer{dir: dir, validation: &stubEngine{}, mapping: &stubEngine{}}
	svc, err := core.NewService(core.Options{
		Scratch:    dir,
		Validation: ts.validation,
		Mapping:    ts.mapping,
		Timeout:    time.Minute,
		History:    history.NewMemory(10),
	})
	require.NoError(t, err)

	ts.srv = NewServer(svc, cfg)
	t.Cleanup(func() { ts.srv.Shutdown(context.Background()) })
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)
	return rec
}

// multipartRequest builds an upload. An empty fileName omits the file part.
func multipartRequest(t *testing.T, target, fileName string, content []byte, rules string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if fileName != "" {
		part, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	if rules != "" {
		require.NoError(t, mw.WriteField("rules", rules))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestValidate_ThenDownload(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(multipartRequest(t, "/api/validate", "book.xlsx", []byte("input"), ""))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[RunResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "book_review.xlsx", resp.FileName)
	assert.Equal(t, "/api/download/book_review.xlsx", resp.DownloadURL)
	assert.Equal(t, "Validation completed", resp.Message)

	rec = ts.do(httptest.NewRequest(http.MethodGet, resp.DownloadURL, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "book_review.xlsx")
	assert.Equal(t, "xlsx-bytes", rec.Body.String())
}

func TestMapping_EscapedDownloadName(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(multipartRequest(t, "/api/mapping", "my template.xlsm", []byte("input"),
		`[{"target":"Name","rule":"copy=Name"}]`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[RunResponse](t, rec)
	assert.Equal(t, "my template_mapping.xlsx", resp.FileName)
	assert.Equal(t, "/api/download/my%20template_mapping.xlsx", resp.DownloadURL)
	assert.Equal(t, "Mapping completed", resp.Message)
	assert.EqualValues(t, 1, ts.mapping.calls.Load())
	assert.Zero(t, ts.validation.calls.Load())

	rec = ts.do(httptest.NewRequest(http.MethodGet, resp.DownloadURL, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestValidate_PercentInFileName(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(multipartRequest(t, "/api/validate", "50%20off.xlsx", []byte("input"), ""))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[RunResponse](t, rec)
	assert.Equal(t, "50%20off_review.xlsx", resp.FileName)
	assert.Equal(t, "/api/download/50%2520off_review.xlsx", resp.DownloadURL)

	rec = ts.do(httptest.NewRequest(http.MethodGet, resp.DownloadURL, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "xlsx-bytes", rec.Body.String())
}

func TestRun_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
		code   string
	}{
		{
			name: "missing file part",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/validate", "", nil, "[]")
			},
			status: http.StatusBadRequest,
			code:   "FILE002",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/validate", strings.NewReader("{}"))
			},
			status: http.StatusBadRequest,
			code:   "FILE002",
		},
		{
			name: "unsupported extension",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/validate", "data.csv", []byte("a,b"), "")
			},
			status: http.StatusBadRequest,
			code:   "FILE003",
		},
		{
			name: "malformed rules",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/mapping", "book.xlsx", []byte("x"), "{not json")
			},
			status: http.StatusBadRequest,
			code:   "RULE001",
		},
		{
			name: "body too large",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/validate", "book.xlsx", bytes.Repeat([]byte("x"), 4096), "")
			},
			status: http.StatusRequestEntityTooLarge,
			code:   "FILE001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, func(c *config.Config) { c.Upload.MaxFileSize = 1024 })

			rec := ts.do(tt.req(t))

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			resp := decode[ErrorResponse](t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Message)
			assert.Zero(t, ts.validation.calls.Load()+ts.mapping.calls.Load())
		})
	}
}

func TestRun_EngineFailures(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(context.Context, engine.Invocation) (*engine.Result, error)
		status  int
		code    string
		message string
	}{
		{
			name: "unavailable",
			fn: func(context.Context, engine.Invocation) (*engine.Result, error) {
				return nil, engine.ErrUnavailable
			},
			status:  http.StatusServiceUnavailable,
			code:    "ENG001",
			message: engine.ErrUnavailable.Error(),
		},
		{
			name: "launch failure",
			fn: func(context.Context, engine.Invocation) (*engine.Result, error) {
				return nil, &engine.LaunchError{Executable: "python3", Err: os.ErrPermission}
			},
			status: http.StatusInternalServerError,
			code:   "ENG002",
		},
		{
			name: "non-zero exit surfaces the diagnostic",
			fn: func(context.Context, engine.Invocation) (*engine.Result, error) {
				return &engine.Result{ExitCode: 2, Stderr: "column Name is missing\n"}, nil
			},
			status:  http.StatusInternalServerError,
			code:    "ENG003",
			message: "column Name is missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.validation.fn = tt.fn

			rec := ts.do(multipartRequest(t, "/api/validate", "book.xlsx", []byte("x"), ""))

			assert.Equal(t, tt.status, rec.Code)
			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, tt.code, resp.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, resp.Message)
			}
		})
	}
}

func TestRun_HTMX(t *testing.T) {
	ts := newTestServer(t, nil)

	req := multipartRequest(t, "/api/validate", "book.xlsx", []byte("x"), "")
	req.Header.Set("HX-Request", "true")
	rec := ts.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `href="/api/download/book_review.xlsx"`)

	req = multipartRequest(t, "/api/validate", "book.txt", []byte("x"), "")
	req.Header.Set("HX-Request", "true")
	rec = ts.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "alert-error")
	assert.Contains(t, rec.Body.String(), "FILE003")
}

func TestDownload_NotFound(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, target := range []string{"/api/download/missing.xlsx", "/api/download/..%2F..%2Fetc%2Fpasswd"} {
		rec := ts.do(httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.Equal(t, "ART001", decode[ErrorResponse](t, rec).Code)
	}
}

func deriveWorkbook(t *testing.T) []byte {
	t.Helper()
	wb := excelize.NewFile()
	defer wb.Close()

	require.NoError(t, wb.SetSheetName("Sheet1", "Template"))
	require.NoError(t, wb.SetSheetRow("Template", "A1", &[]any{"Code", "Label"}))

	buf, err := wb.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestDerive(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(multipartRequest(t, "/api/rules/derive?kind=mapping", "template.xlsx", deriveWorkbook(t), ""))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true,"kind":"mapping","rules":[
		{"target":"Code","rule":"COPY=Code"},
		{"target":"Label","rule":"COPY=Label"}
	]}`, rec.Body.String())

	rec = ts.do(multipartRequest(t, "/api/rules/derive?kind=pivot", "template.xlsx", deriveWorkbook(t), ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDerive_CorruptWorkbook(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(multipartRequest(t, "/api/rules/derive?kind=validation", "broken.xlsx", []byte("not a zip"), ""))
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	resp := decode[ErrorResponse](t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "FILE004", resp.Code)
	assert.Equal(t, "The uploaded workbook could not be read", resp.Message)
}

func TestEngineStatusAndRuns(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"runs":[]}`, rec.Body.String())

	rec = ts.do(multipartRequest(t, "/api/validate", "book.xlsx", []byte("x"), ""))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/runs?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[RunsResponse](t, rec)
	require.Len(t, runs.Runs, 1)
	assert.Equal(t, "validation", runs.Runs[0].Kind)
	assert.Equal(t, history.StatusSucceeded, runs.Runs[0].Status)
	assert.Equal(t, "book_review.xlsx", runs.Runs[0].Artifact)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/engine/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[core.LimiterStatus](t, rec)
	assert.Equal(t, 2, status.MaxConcurrent)
	assert.Equal(t, 0, status.Active)
	assert.Equal(t, 2, status.Available)
}

func TestAPIKeyRequired(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"k1"}
	})

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/engine/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/engine/status", nil)
	req.Header.Set("X-API-Key", "k1")
	rec = ts.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// health stays open for probes
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.Rate.RequestsPerMinute = 2 })

	for i := 0; i < 2; i++ {
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE001", decode[ErrorResponse](t, rec).Code)
}

func TestRateLimiter_WindowResets(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := newRateLimiter(1, time.Minute)
	defer rl.stop()
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.2"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.allow("10.0.0.1"))
}

func TestRespondError_LogLevel(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	tests := []struct {
		name   string
		err    error
		status int
		level  string
		code   string
	}{
		{"mapped client error", core.ErrInvalidRules, http.StatusBadRequest, "WARN", "RULE001"},
		{"unmapped client error", core.ErrUnknownKind, http.StatusBadRequest, "ERROR", "ERR000"},
		{"server error", &core.ExecutionError{ExitCode: 1}, http.StatusInternalServerError, "ERROR", "ENG003"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			rec := httptest.NewRecorder()
			respondError(rec, httptest.NewRequest(http.MethodGet, "/api/validate", nil), tt.err)
			assert.Equal(t, tt.status, rec.Code)

			var entry struct {
				Level string `json:"level"`
				Code  string `json:"code"`
			}
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
			assert.Equal(t, tt.level, entry.Level)
			assert.Equal(t, tt.code, entry.Code)
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, statusFor(core.ErrEngineBusy))
	assert.Equal(t, http.StatusNotFound, statusFor(scratch.ErrNotFound))
	assert.Equal(t, http.StatusBadRequest, statusFor(core.ErrInvalidRules))
	assert.Equal(t, http.StatusBadRequest, statusFor(fmt.Errorf("%w: zip: not a valid zip file", workbook.ErrUnreadable)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(&core.ExecutionError{ExitCode: 1}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(os.ErrClosed))
}
