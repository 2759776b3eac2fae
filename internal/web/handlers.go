package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/formulations/internal/attachment"
	"github.com/JonMunkholm/formulations/internal/core"
	"github.com/JonMunkholm/formulations/internal/logging"
)

// multipartOverhead is allowed on top of the attachment for form fields.
const multipartOverhead = 1 << 20

type importRequest struct {
	Registros []core.Row `json:"registros"`
}

type importResponse struct {
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Errores []core.RowError `json:"errores"`
}

type createResponse struct {
	Message string                 `json:"message"`
	Data    core.SubmissionSummary `json:"data"`
}

// handleImport runs a bulk import from a JSON batch or an uploaded CSV file.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxImportSize)

	var (
		result core.ImportResult
		err    error
	)
	if isMultipart(r) {
		result, err = s.importCSV(r)
	} else {
		var req importRequest
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil && !errors.Is(decodeErr, io.EOF) {
			respondFixed(w, r, decodeErr, http.StatusBadRequest, msgBadRequest)
			return
		}
		result, err = s.service.Import(r.Context(), req.Registros)
	}

	errores := result.Errors
	if errores == nil {
		errores = []core.RowError{}
	}

	switch {
	case err == nil:
		writeJSON(w, r, http.StatusOK, importResponse{Message: msgImportDone, Errores: errores})
	case errors.Is(err, core.ErrEmptyBatch):
		writeJSON(w, r, http.StatusBadRequest, map[string]string{"error": msgImportEmpty})
	case errors.Is(err, core.ErrNothingInserted):
		writeJSON(w, r, http.StatusBadRequest, importResponse{Error: msgImportNothing, Errores: errores})
	case errors.Is(err, core.ErrInvalidCSV):
		respondError(w, r, err, http.StatusBadRequest)
	case errors.Is(err, core.ErrTooManyImports):
		w.Header().Set("Retry-After", "60")
		respondError(w, r, err, http.StatusServiceUnavailable)
	default:
		respondFixed(w, r, err, http.StatusInternalServerError, msgImportInternal)
	}
}

func (s *Server) importCSV(r *http.Request) (core.ImportResult, error) {
	if err := r.ParseMultipartForm(s.cfg.Upload.MaxImportSize); err != nil {
		return core.ImportResult{}, fmt.Errorf("%w: %w", core.ErrInvalidCSV, err)
	}
	f, _, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return core.ImportResult{}, core.ErrEmptyBatch
	}
	if err != nil {
		return core.ImportResult{}, fmt.Errorf("%w: %w", core.ErrInvalidCSV, err)
	}
	defer f.Close()

	return s.service.ImportCSV(r.Context(), f)
}

// handleList returns every record, newest first.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.List(r.Context())
	if err != nil {
		respondFixed(w, r, err, http.StatusInternalServerError, msgListInternal)
		return
	}
	if records == nil {
		records = []core.Record{}
	}
	writeJSON(w, r, http.StatusOK, records)
}

// handleCreate stores one submission. The form is multipart with an
// optional "pdf" file part; a JSON body without attachment is also accepted.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	maxFile := s.cfg.Upload.MaxAttachmentSize
	r.Body = http.MaxBytesReader(w, r.Body, maxFile+multipartOverhead)

	var (
		sub  core.Submission
		file *attachment.File
	)
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxFile + multipartOverhead); err != nil {
			respondFixed(w, r, err, http.StatusBadRequest, msgBadRequest)
			return
		}
		sub = submissionFromForm(r)

		f, err := readAttachment(r, "pdf", maxFile)
		if err != nil {
			respondError(w, r, err, submissionStatus(err))
			return
		}
		file = f
	} else if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		respondFixed(w, r, err, http.StatusBadRequest, msgBadRequest)
		return
	}

	rec, err := s.service.Submit(r.Context(), sub, file)
	if err != nil {
		respondError(w, r, err, submissionStatus(err))
		return
	}
	writeJSON(w, r, http.StatusCreated, createResponse{Message: msgCreated, Data: core.Summarize(rec)})
}

func submissionFromForm(r *http.Request) core.Submission {
	return core.Submission{
		FirstName:          r.FormValue("nombre"),
		PaternalSurname:    r.FormValue("apellidoPaterno"),
		MaternalSurname:    r.FormValue("apellidoMaterno"),
		CURP:               r.FormValue("curp"),
		HomePhone:          r.FormValue("telefonoCasa"),
		MobilePhone:        r.FormValue("telefonoCelular"),
		PersonalEmail:      r.FormValue("correoPersonal"),
		InstitutionalEmail: r.FormValue("correoInstitucional"),
		Institution:        r.FormValue("institucion"),
		Program:            r.FormValue("carrera"),
		Average:            r.FormValue("promedio"),
		Status:             r.FormValue("estado"),
		Group:              r.FormValue("grupo"),
	}
}

// readAttachment returns nil when the form has no file under field.
func readAttachment(r *http.Request, field string, maxSize int64) (*attachment.File, error) {
	f, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}

	inspected, err := attachment.Inspect(header.Filename, data, maxSize)
	if err != nil {
		return nil, err
	}
	logging.FromContext(r.Context()).Debug("attachment received",
		"name", inspected.Name,
		"content_type", inspected.ContentType,
		"bytes", inspected.Size(),
	)
	return &inspected, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, message, code := "OK", "Server is running", http.StatusOK
	if err := s.service.Ping(r.Context()); err != nil {
		logging.FromContext(r.Context()).Warn("health check failed", "error", err)
		status, message, code = "DEGRADED", "Storage is unreachable", http.StatusServiceUnavailable
	}

	writeJSON(w, r, code, map[string]string{
		"status":      status,
		"message":     message,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"environment": s.cfg.Server.Environment,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	endpoints := map[string]string{
		"health":      "/health",
		"formulation": "/api/formulation",
	}
	if s.metrics != nil {
		endpoints["metrics"] = "/metrics"
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"message":   "Backend API is running",
		"version":   Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"endpoints": endpoints,
	})
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && strings.HasPrefix(mt, "multipart/")
}
