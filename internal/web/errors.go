package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/JonMunkholm/formulations/internal/attachment"
	"github.com/JonMunkholm/formulations/internal/core"
	"github.com/JonMunkholm/formulations/internal/logging"
)

// Fixed responses of the admin endpoints.
const (
	msgImportDone     = "Importación completada."
	msgImportEmpty    = "No se recibieron registros para importar."
	msgImportNothing  = "No se insertó ningún registro."
	msgImportInternal = "Error interno al importar registros."
	msgListInternal   = "Error interno del servidor al obtener los registros."
	msgBadRequest     = "Formato de solicitud inválido."
	msgCreated        = "Registro creado correctamente."
)

// respondError logs err with request context and writes the mapped user
// message. Server errors never echo technical detail.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", msg.Code,
		"error", err.Error(),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", attrs...)
	} else {
		logger.Info("request rejected", attrs...)
	}

	writeJSON(w, r, status, msg)
}

// respondFixed logs err and writes {"error": message}.
func respondFixed(w http.ResponseWriter, r *http.Request, err error, status int, message string) {
	logging.FromContext(r.Context()).Error("request failed",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
	)
	writeJSON(w, r, status, map[string]string{"error": message})
}

// submissionStatus picks the HTTP status for a failed submission.
func submissionStatus(err error) int {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, core.ErrDuplicateKey),
		errors.Is(err, attachment.ErrEmptyFile),
		errors.Is(err, attachment.ErrTooLarge),
		errors.Is(err, attachment.ErrUnsupportedType):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Warn("json encode error", "error", err)
	}
}
