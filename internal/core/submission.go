package core

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Submission is the form filled in by an applicant. Every personal and
// academic field is mandatory; the institutional email and group are not.
type Submission struct {
	FirstName          string `json:"nombre" validate:"required"`
	PaternalSurname    string `json:"apellidoPaterno" validate:"required"`
	MaternalSurname    string `json:"apellidoMaterno" validate:"required"`
	CURP               string `json:"curp" validate:"required,len=18"`
	HomePhone          string `json:"telefonoCasa" validate:"required"`
	MobilePhone        string `json:"telefonoCelular" validate:"required"`
	PersonalEmail      string `json:"correoPersonal" validate:"required,basicemail"`
	InstitutionalEmail string `json:"correoInstitucional" validate:"omitempty,basicemail"`
	Institution        string `json:"institucion" validate:"required"`
	Program            string `json:"carrera" validate:"required"`
	Average            string `json:"promedio" validate:"required,average"`
	Status             string `json:"estado" validate:"required,oneof=regular irregular"`
	Group              string `json:"grupo"`
}

const (
	basicEmailTag = "basicemail"
	averageTag    = "average"
)

var (
	submissionValidator     *validator.Validate
	submissionValidatorOnce sync.Once
)

func getSubmissionValidator() *validator.Validate {
	submissionValidatorOnce.Do(func() {
		v := validator.New()

		// Report JSON names so messages match the form fields.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		_ = v.RegisterValidation(basicEmailTag, func(fl validator.FieldLevel) bool {
			return IsEmail(fl.Field().String())
		})
		_ = v.RegisterValidation(averageTag, func(fl validator.FieldLevel) bool {
			_, err := ParseAverage(fl.Field().String())
			return err == nil
		})

		submissionValidator = v
	})
	return submissionValidator
}

// normalized returns a copy with every field trimmed, the CURP upper-cased
// and the emails and status lower-cased.
func (s Submission) normalized() Submission {
	s.FirstName = strings.TrimSpace(s.FirstName)
	s.PaternalSurname = strings.TrimSpace(s.PaternalSurname)
	s.MaternalSurname = strings.TrimSpace(s.MaternalSurname)
	s.CURP = strings.ToUpper(strings.TrimSpace(s.CURP))
	s.HomePhone = strings.TrimSpace(s.HomePhone)
	s.MobilePhone = strings.TrimSpace(s.MobilePhone)
	s.PersonalEmail = strings.ToLower(strings.TrimSpace(s.PersonalEmail))
	s.InstitutionalEmail = strings.ToLower(strings.TrimSpace(s.InstitutionalEmail))
	s.Institution = strings.TrimSpace(s.Institution)
	s.Program = strings.TrimSpace(s.Program)
	s.Average = strings.TrimSpace(s.Average)
	s.Status = strings.ToLower(strings.TrimSpace(s.Status))
	s.Group = strings.TrimSpace(s.Group)
	return s
}

// Validate checks the submission and returns the record to store.
// The error, if any, is a *ValidationError describing the first problem found.
func (s Submission) Validate() (Record, error) {
	n := s.normalized()

	if err := getSubmissionValidator().Struct(n); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return Record{}, fieldError(fieldErrs[0])
		}
		return Record{}, fmt.Errorf("validate submission: %w", err)
	}

	// Already checked by the average tag.
	avg, _ := ParseAverage(n.Average)

	return Record{
		FirstName:          n.FirstName,
		PaternalSurname:    n.PaternalSurname,
		MaternalSurname:    n.MaternalSurname,
		CURP:               n.CURP,
		HomePhone:          n.HomePhone,
		MobilePhone:        n.MobilePhone,
		PersonalEmail:      n.PersonalEmail,
		InstitutionalEmail: n.InstitutionalEmail,
		Institution:        n.Institution,
		Program:            n.Program,
		Average:            &avg,
		Status:             Status(n.Status),
		Group:              n.Group,
	}, nil
}

// fieldError translates a validator failure into a Spanish ValidationError.
func fieldError(fe validator.FieldError) *ValidationError {
	field := Field(fe.Field())
	value := fmt.Sprint(fe.Value())

	switch fe.Tag() {
	case "required":
		return invalid(field, value, fmt.Sprintf(MsgRequiredField, field))
	case "len":
		return invalid(field, value, MsgCURPLength)
	case basicEmailTag:
		if field == FieldInstitutionalEmail {
			return invalid(field, value, MsgInstitutionalEmail)
		}
		return invalid(field, value, MsgPersonalEmail)
	case averageTag:
		return invalid(field, value, MsgAverageRange)
	case "oneof":
		return invalid(field, value, MsgStatus)
	default:
		return invalid(field, value, fmt.Sprintf("El campo %s no es válido.", field))
	}
}

// SubmissionSummary is the redacted view of a stored record returned to the
// applicant. Contact data is omitted and the CURP is masked.
type SubmissionSummary struct {
	ID              string    `json:"id"`
	FirstName       string    `json:"nombre"`
	PaternalSurname string    `json:"apellidoPaterno"`
	CURP            string    `json:"curp"`
	Institution     string    `json:"institucion"`
	Program         string    `json:"carrera"`
	Status          Status    `json:"estado"`
	PDFURL          string    `json:"pdfUrl,omitempty"`
	CreatedAt       time.Time `json:"fecha"`
}

// Summarize builds the redacted summary of rec.
func Summarize(rec Record) SubmissionSummary {
	return SubmissionSummary{
		ID:              rec.ID,
		FirstName:       rec.FirstName,
		PaternalSurname: rec.PaternalSurname,
		CURP:            MaskCURP(rec.CURP),
		Institution:     rec.Institution,
		Program:         rec.Program,
		Status:          rec.Status,
		PDFURL:          rec.PDFURL,
		CreatedAt:       rec.CreatedAt,
	}
}

// MaskCURP keeps the first four characters and masks the rest.
func MaskCURP(curp string) string {
	r := []rune(curp)
	if len(r) <= 4 {
		return curp
	}
	return string(r[:4]) + strings.Repeat("*", len(r)-4)
}
