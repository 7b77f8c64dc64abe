package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/klytics/sheetmerge/internal/errs"
	"github.com/klytics/sheetmerge/internal/history"
	"github.com/klytics/sheetmerge/internal/merge"
	"github.com/klytics/sheetmerge/internal/pipeline"
	"github.com/klytics/sheetmerge/internal/profile"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type createSessionResponse struct {
	ID      string                   `json:"id"`
	Files   []*merge.Source          `json:"files"`
	Skipped []merge.Skip             `json:"skipped,omitempty"`
	Missing []pipeline.MissingColumn `json:"missing_columns,omitempty"`
}

type columnsResponse struct {
	File     string   `json:"file"`
	Sheet    string   `json:"sheet"`
	Columns  []string `json:"columns"`
	Selected []string `json:"selected"`
}

type selectionRequest struct {
	File    string   `json:"file"`
	Sheet   string   `json:"sheet"`
	Columns []int    `json:"columns"` // zero-based indices
	Names   []string `json:"names"`   // used when columns is empty
}

type selectionItem struct {
	File    string   `json:"file"`
	Sheet   string   `json:"sheet"`
	Columns []string `json:"columns"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateSession accepts a ZIP archive as the raw request body.
// ?name= sets the archive name and ?profile= applies a saved profile.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var p *profile.Profile
	if name := r.URL.Query().Get("profile"); name != "" {
		if s.profiles == nil {
			s.respondError(w, http.StatusBadRequest, "profiles are not available")
			return
		}
		var err error
		if p, err = s.profiles.Get(name); err != nil {
			s.respondError(w, http.StatusNotFound, err.Error())
			return
		}
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload.zip"
	}
	name = filepath.Base(name)

	upload, err := s.saveUpload(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("archive exceeds %d MB", s.config.MaxUploadMB))
			return
		}
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.Remove(upload)

	sess, err := merge.Open(r.Context(), upload, s.options)
	if err != nil {
		s.respondFailure(w, err)
		return
	}

	resp := createSessionResponse{Files: sess.Sources(), Skipped: sess.Skipped()}
	if p != nil {
		if resp.Missing, err = pipeline.ApplyProfile(sess, p); err != nil {
			sess.Close()
			s.respondFailure(w, err)
			return
		}
	}

	e := s.add(name, profileName(p), sess)
	resp.ID = e.id
	s.respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request) (string, error) {
	body := http.MaxBytesReader(w, r.Body, s.config.MaxUploadMB<<20)
	defer body.Close()

	f, err := os.CreateTemp(s.options.TempDir, "sheetmerge-upload-*.zip")
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n == 0 {
		err = errors.New("request body is empty; send the ZIP archive as the body")
	}
	if err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"sessions": s.list()})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	e, ok := s.session(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"files":   e.session.Sources(),
		"skipped": e.session.Skipped(),
	})
}

func (s *Server) handleListColumns(w http.ResponseWriter, r *http.Request) {
	e, ok := s.session(w, r)
	if !ok {
		return
	}
	file, sheet := r.URL.Query().Get("file"), r.URL.Query().Get("sheet")
	if file == "" || sheet == "" {
		s.respondError(w, http.StatusBadRequest, "file and sheet are required")
		return
	}

	cols, err := e.session.ListSheetColumns(file, sheet)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, columnsResponse{
		File:     file,
		Sheet:    sheet,
		Columns:  cols,
		Selected: nonNil(e.session.SelectedColumns(file, sheet)),
	})
}

func (s *Server) handleSetSelection(w http.ResponseWriter, r *http.Request) {
	e, ok := s.session(w, r)
	if !ok {
		return
	}

	var req selectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.File == "" || req.Sheet == "" {
		s.respondError(w, http.StatusBadRequest, "file and sheet are required")
		return
	}

	var missing []string
	var err error
	if len(req.Columns) == 0 && len(req.Names) > 0 {
		missing, err = e.session.SelectByName(req.File, req.Sheet, req.Names)
	} else {
		err = e.session.SetSelection(req.File, req.Sheet, req.Columns)
	}
	if err != nil {
		s.respondFailure(w, err)
		return
	}

	resp := map[string]interface{}{
		"file":     req.File,
		"sheet":    req.Sheet,
		"selected": nonNil(e.session.SelectedColumns(req.File, req.Sheet)),
	}
	if len(missing) > 0 {
		resp["missing"] = missing
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	e, ok := s.session(w, r)
	if !ok {
		return
	}
	items := []selectionItem{}
	for _, key := range e.session.Keys() {
		cols := e.session.SelectedColumns(key.File, key.Sheet)
		if len(cols) == 0 {
			continue
		}
		items = append(items, selectionItem{File: key.File, Sheet: key.Sheet, Columns: cols})
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"selection": items})
}

// handleGenerateOutput streams the merged workbook. It is buffered first so a
// failed build still gets a JSON error instead of a truncated download.
func (s *Server) handleGenerateOutput(w http.ResponseWriter, r *http.Request) {
	e, ok := s.session(w, r)
	if !ok {
		return
	}

	start := time.Now()
	var buf bytes.Buffer
	out, err := e.session.WriteOutput(&buf)

	entry := history.Entry{
		Trigger:    "serve",
		Profile:    e.profile,
		Source:     e.name,
		Output:     downloadName(e.name),
		Status:     history.StatusOK,
		DurationMs: time.Since(start).Milliseconds(),
	}
	for _, sk := range e.session.Skipped() {
		entry.Skipped = append(entry.Skipped, sk.File)
	}
	if err != nil {
		entry.Status = history.StatusError
		entry.Error = err.Error()
	} else {
		entry.Sheets = len(out.Sheets)
	}
	runID := s.history.Record(r.Context(), entry)

	if err != nil {
		s.logger.Error("could not build output", zap.String("session", e.id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadName(e.name)))
	if runID != "" {
		w.Header().Set("X-Run-ID", runID)
	}
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.remove(id) {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*entry, bool) {
	e, ok := s.get(chi.URLParam(r, "id"))
	if !ok {
		s.respondError(w, http.StatusNotFound, "session not found")
	}
	return e, ok
}

// respondFailure maps the merge error taxonomy onto status codes.
func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	var selErr *errs.SelectionError
	var archErr *errs.ArchiveError
	switch {
	case errors.Is(err, merge.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &selErr):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &archErr), errors.Is(err, merge.ErrNoData):
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func downloadName(archive string) string {
	stem := strings.TrimSuffix(archive, filepath.Ext(archive))
	if stem == "" {
		stem = "output"
	}
	return stem + "_merged.xlsx"
}

func profileName(p *profile.Profile) string {
	if p == nil {
		return ""
	}
	return p.Name
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
