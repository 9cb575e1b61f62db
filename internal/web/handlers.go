package web

import (
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/RuleSheet/internal/core"
	"github.com/JonMunkholm/RuleSheet/internal/history"
	"github.com/JonMunkholm/RuleSheet/internal/logging"
	"github.com/JonMunkholm/RuleSheet/internal/web/templates"
)

// xlsxContentType is served for every produced artifact.
const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// RunResponse is the JSON body of a successful validation or mapping run.
type RunResponse struct {
	Success     bool   `json:"success"`
	DownloadURL string `json:"download_url"`
	FileName    string `json:"file_name"`
	Message     string `json:"message"`
}

// DeriveResponse carries rules read from an uploaded workbook.
type DeriveResponse struct {
	Success bool   `json:"success"`
	Kind    string `json:"kind"`
	Rules   any    `json:"rules"`
}

// RunsResponse lists recent engine runs.
type RunsResponse struct {
	Success bool          `json:"success"`
	Runs    []history.Run `json:"runs"`
}

// upload is the file part of a multipart request.
type upload struct {
	name string
	file multipart.File
}

// readUpload parses the multipart body, bounded by the configured size, and
// opens the "file" part. The caller must call the returned cleanup.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, nil, core.ErrNoFile
		}
		return nil, nil, err
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		r.MultipartForm.RemoveAll()
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil, core.ErrNoFile
		}
		return nil, nil, err
	}

	cleanup := func() {
		file.Close()
		if err := r.MultipartForm.RemoveAll(); err != nil {
			logging.FromContext(r.Context()).Warn("multipart cleanup failed", "error", err)
		}
	}
	return &upload{name: header.Filename, file: file}, cleanup, nil
}

// handleRun serves POST /api/validate and POST /api/mapping.
func (s *Server) handleRun(kind core.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		up, cleanup, err := s.readUpload(w, r)
		if err != nil {
			respondError(w, r, err)
			return
		}
		defer cleanup()

		out, err := s.service.Run(r.Context(), core.Request{
			Kind:     kind,
			FileName: up.name,
			File:     up.file,
			Rules:    r.FormValue("rules"),
		})
		if err != nil {
			respondError(w, r, err)
			return
		}

		if isHTMX(r) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			if err := templates.ResultAlert(out.Message, out.DownloadURL, out.FileName).Render(r.Context(), w); err != nil {
				logging.FromContext(r.Context()).Error("render result alert", "error", err)
			}
			return
		}

		writeJSON(w, http.StatusOK, RunResponse{
			Success:     true,
			DownloadURL: out.DownloadURL,
			FileName:    out.FileName,
			Message:     out.Message,
		})
	}
}

// handleDerive serves POST /api/rules/derive?kind=validation|mapping.
func (s *Server) handleDerive(w http.ResponseWriter, r *http.Request) {
	kind, err := core.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	up, cleanup, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer cleanup()

	derived, err := s.service.Derive(r.Context(), kind, up.name, up.file)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, DeriveResponse{
		Success: true,
		Kind:    string(kind),
		Rules:   derived,
	})
}

// handleDownload serves GET /api/download/{name}.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	// chi matches against RawPath when it is set, so only then is the
	// segment still escaped.
	name := chi.URLParam(r, "name")
	if r.URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(name); err == nil {
			name = unescaped
		}
	}

	path, err := s.service.Artifact(name)
	if err != nil {
		respondError(w, r, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		respondError(w, r, err)
		return
	}

	base := filepath.Base(path)
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": base}))
	http.ServeContent(w, r, base, info.ModTime(), f)
}

// handleEngineStatus serves GET /api/engine/status.
func (s *Server) handleEngineStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.EngineStatus())
}

// handleRuns serves GET /api/runs?limit=N.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", history.DefaultLimit)

	runs, err := s.service.RecentRuns(r.Context(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	writeJSON(w, http.StatusOK, RunsResponse{Success: true, Runs: runs})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseIntParam parses a positive integer query parameter with a default.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
