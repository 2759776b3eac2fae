package core

// # Error Codes Reference
//
// Errors shown to applicants and administrators carry a short code so a
// support request can be matched with the server log, where the technical
// error is written next to the same code.
//
// # Submission Errors (SUB001-SUB099)
//
//	SUB001 - Validation: a field is missing or malformed
//	         Message: the validation message itself
//	SUB002 - Duplicate CURP: a record with this CURP already exists
//	         Sentinel: ErrDuplicateKey; patterns "duplicate key", "e11000"
//	SUB003 - Attachment rejected: the file is empty, too large or not a PDF/image
//	         Sentinels: attachment.ErrEmptyFile, ErrTooLarge, ErrUnsupportedType
//	SUB004 - Attachment upload: the document store did not accept the file
//	         Sentinel: ErrAttachmentUpload
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Empty batch: no rows were received
//	IMP002 - Nothing inserted: every row was rejected
//	IMP003 - Invalid CSV: the uploaded file could not be parsed
//	IMP004 - Busy: every import slot stayed occupied for the wait time
//	         Sentinel: ErrTooManyImports
//
// # Storage Errors (DB001-DB099)
//
//	DB001 - Unavailable: the record store could not be reached
//	        Sentinel: ErrStorageUnavailable; patterns "connection refused",
//	        "server selection", "no reachable servers"
//	DB002 - Timeout: the operation exceeded its deadline
//	        Patterns: "context deadline exceeded", "timeout"
//
// # Default Error (ERR000)
//
// Returned when nothing matches. Support staff should search the logs for
// the request id of the failing call.

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/formulations/internal/attachment"
)

// UserMessage contains user-friendly error information.
type UserMessage struct {
	Message string `json:"error"`            // What went wrong
	Action  string `json:"accion,omitempty"` // What the user can do about it
	Code    string `json:"codigo"`           // Reference for support
}

var (
	msgDuplicate = UserMessage{
		Message: "Ya existe un registro con esta CURP.",
		Action:  "Verifica la CURP capturada.",
		Code:    "SUB002",
	}
	msgUnavailable = UserMessage{
		Message: "El servicio no está disponible.",
		Action:  "Intenta de nuevo en unos minutos.",
		Code:    "DB001",
	}
	msgTimeout = UserMessage{
		Message: "La operación tardó demasiado.",
		Action:  "Intenta de nuevo con un archivo más pequeño.",
		Code:    "DB002",
	}
)

type sentinelMessage struct {
	targets []error
	msg     UserMessage
}

var sentinelMessages = []sentinelMessage{
	{
		targets: []error{ErrDuplicateKey},
		msg:     msgDuplicate,
	},
	{
		targets: []error{attachment.ErrEmptyFile, attachment.ErrTooLarge, attachment.ErrUnsupportedType},
		msg: UserMessage{
			Message: "El archivo adjunto no es válido.",
			Action:  "Adjunta un PDF o una imagen dentro del tamaño permitido.",
			Code:    "SUB003",
		},
	},
	{
		targets: []error{ErrAttachmentUpload},
		msg: UserMessage{
			Message: "No se pudo subir el archivo adjunto.",
			Action:  "Intenta de nuevo en unos minutos.",
			Code:    "SUB004",
		},
	},
	{
		targets: []error{ErrEmptyBatch},
		msg: UserMessage{
			Message: "No se recibieron registros para importar.",
			Code:    "IMP001",
		},
	},
	{
		targets: []error{ErrNothingInserted},
		msg: UserMessage{
			Message: "No se insertó ningún registro.",
			Action:  "Revisa los errores por fila.",
			Code:    "IMP002",
		},
	},
	{
		targets: []error{ErrInvalidCSV},
		msg: UserMessage{
			Message: "El archivo CSV no es válido.",
			Action:  "Exporta la hoja de cálculo como CSV con encabezados en la primera fila.",
			Code:    "IMP003",
		},
	},
	{
		targets: []error{ErrTooManyImports},
		msg: UserMessage{
			Message: "Hay demasiadas importaciones en curso.",
			Action:  "Intenta de nuevo en unos minutos.",
			Code:    "IMP004",
		},
	},
	{
		targets: []error{ErrStorageUnavailable},
		msg:     msgUnavailable,
	},
}

// errorPattern maps driver error text to a user message when no sentinel matched.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{pattern: "duplicate key", msg: msgDuplicate},
	{pattern: "e11000", msg: msgDuplicate},
	{pattern: "connection refused", msg: msgUnavailable},
	{pattern: "server selection", msg: msgUnavailable},
	{pattern: "no reachable servers", msg: msgUnavailable},
	{pattern: "deadline exceeded", msg: msgTimeout},
	{pattern: "timeout", msg: msgTimeout},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "Ocurrió un error inesperado.",
	Action:  "Intenta de nuevo o contacta a soporte.",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Validation errors keep their own message. Sentinels are matched with
// errors.Is, then the error text is searched for known driver patterns.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return UserMessage{Message: ve.Message, Code: "SUB001"}
	}

	for _, sm := range sentinelMessages {
		for _, target := range sm.targets {
			if errors.Is(err, target) {
				return sm.msg
			}
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display:
// "Message (Código: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	if msg.Action == "" {
		return fmt.Sprintf("%s (Código: %s)", msg.Message, msg.Code)
	}
	return fmt.Sprintf("%s (Código: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
