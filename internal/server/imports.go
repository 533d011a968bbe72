package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/voyagen/channelvault/internal/fetcher"
	"github.com/voyagen/channelvault/internal/models"
	"github.com/voyagen/channelvault/internal/store"
)

const (
	uploadField  = "m3u_file"
	userIDHeader = "X-User-ID"

	defaultPerPage = 15
	maxPerPage     = 100

	// multipartSlack covers the multipart framing around the file part.
	multipartSlack = 1 << 20
)

// importResponse is an import run as returned by the API.
type importResponse struct {
	*models.ImportRun
	SuccessRate float64 `json:"success_rate"`
	LogURL      string  `json:"log_url,omitempty"`
}

func newImportResponse(run *models.ImportRun) importResponse {
	resp := importResponse{ImportRun: run, SuccessRate: run.SuccessRate()}
	if run.ID > 0 && run.LogFilePath != "" {
		resp.LogURL = fmt.Sprintf("/api/imports/%d/log", run.ID)
	}
	return resp
}

// actingUser reads the caller's user id, set by the authenticating proxy.
func actingUser(r *http.Request) (int64, error) {
	v := r.Header.Get(userIDHeader)
	if v == "" {
		return 0, fmt.Errorf("%s header is required", userIDHeader)
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s: %s", userIDHeader, v)
	}
	return id, nil
}

// handleCreateImport accepts a multipart playlist upload and imports it.
// The file is spooled to disk first so the channel ceiling can be checked
// cheaply before any record is written.
func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		s.writeErr(w, http.StatusUnauthorized, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+multipartSlack)
	mr, err := r.MultipartReader()
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("multipart form expected: %w", err))
		return
	}

	part, err := nextFilePart(mr)
	if err != nil {
		s.writeErr(w, statusForUploadErr(err), err)
		return
	}
	defer part.Close()

	fileName := filepath.Base(part.FileName())
	if !fetcher.IsPlaylistFile(fileName) {
		s.writeErr(w, http.StatusUnprocessableEntity,
			fmt.Errorf("%s must be a file of type: %s", uploadField, strings.Join(fetcher.PlaylistExtensions, ", ")))
		return
	}

	tmp, err := os.CreateTemp("", "channelvault-upload-*.m3u")
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, fmt.Errorf("spool upload: %w", err))
		return
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	size, err := io.Copy(tmp, io.LimitReader(part, s.cfg.MaxUploadBytes+1))
	if err != nil {
		s.writeErr(w, statusForUploadErr(err), fmt.Errorf("read upload: %w", err))
		return
	}
	if size > s.cfg.MaxUploadBytes {
		s.writeErr(w, http.StatusRequestEntityTooLarge,
			fmt.Errorf("%s may not be greater than %d bytes", uploadField, s.cfg.MaxUploadBytes))
		return
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	count, err := fetcher.CountChannels(tmp)
	if err != nil {
		s.writeErr(w, http.StatusUnprocessableEntity, fmt.Errorf("read playlist: %w", err))
		return
	}
	if count > models.MaxChannels {
		s.writeErr(w, http.StatusUnprocessableEntity, fetcher.ErrTooManyChannels)
		return
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}

	run, err := s.importer.Run(r.Context(), tmp, fileName, size, userID)
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newImportResponse(run))
}

var errNoFile = errors.New(uploadField + " is required")

// nextFilePart skips to the playlist file part.
func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, errNoFile
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart: %w", err)
		}
		if part.FormName() == uploadField && part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

func statusForUploadErr(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errNoFile):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := 1, defaultPerPage

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid page: %s", v))
			return
		}
		page = n
	}
	if v := q.Get("per_page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid per_page: %s", v))
			return
		}
		perPage = min(n, maxPerPage)
	}

	filter := store.RunFilter{Limit: perPage, Offset: (page - 1) * perPage}
	if v := q.Get("created_by"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid created_by: %s", v))
			return
		}
		filter.CreatedBy = &id
	}

	runs, total, err := s.runs.ListRuns(r.Context(), filter)
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}

	items := make([]importResponse, 0, len(runs))
	for i := range runs {
		items = append(items, newImportResponse(&runs[i]))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"imports":  items,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, newImportResponse(run))
}

// handleDownloadLog streams the audit log of a run as a text attachment.
func (s *Server) handleDownloadLog(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	if run.LogFilePath == "" || !within(s.cfg.AuditLogDir, run.LogFilePath) {
		s.writeErr(w, http.StatusNotFound, fmt.Errorf("log file not found"))
		return
	}

	f, err := os.Open(run.LogFilePath)
	if errors.Is(err, os.ErrNotExist) {
		s.writeErr(w, http.StatusNotFound, fmt.Errorf("log file not found"))
		return
	}
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(run.LogFilePath)))
	http.ServeContent(w, r, "", info.ModTime(), f)
}

func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*models.ImportRun, bool) {
	id, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return nil, false
	}
	run, err := s.runs.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeErr(w, http.StatusNotFound, fmt.Errorf("import %d not found", id))
			return nil, false
		}
		s.writeErr(w, http.StatusInternalServerError, err)
		return nil, false
	}
	return run, true
}

// within reports whether path lies inside dir.
func within(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
