package core

// validation.go defines the validation error type and the user-facing
// messages shared by bulk import and single submission.
//
// Messages are in Spanish because they are shown verbatim in the admin
// panel and in the submission form.

import (
	"errors"
	"fmt"
)

// Row and field messages.
const (
	MsgMissingCURP        = "Falta el campo CURP."
	MsgCURPLength         = "CURP debe tener 18 caracteres."
	MsgAverageRange       = "Promedio fuera de rango."
	MsgPersonalEmail      = "Correo personal inválido."
	MsgInstitutionalEmail = "Correo institucional inválido."
	MsgStatus             = "Estado inválido."
	MsgRequiredField      = "El campo %s es obligatorio."
)

// CURPLength is the fixed length of a CURP.
const CURPLength = 18

// ErrValidation is matched by every *ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   Field  // Field that failed, empty for row-level problems
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Is makes errors.Is(err, ErrValidation) hold for any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field Field, value, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// ValidationMessage returns the user-facing message of a validation error,
// or "" if err is not one.
func ValidationMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return ""
}
