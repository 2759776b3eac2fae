package core

import (
	"context"
	"time"
)

// Status is the academic standing of an applicant.
type Status string

const (
	StatusRegular   Status = "regular"
	StatusIrregular Status = "irregular"
)

// Statuses lists every accepted Status value.
var Statuses = []Status{StatusRegular, StatusIrregular}

// Valid reports whether s is one of the accepted values.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Record is one applicant's formulation submission.
//
// JSON names match the ones the admin panel already consumes. Optional fields
// are left zero when a bulk import row does not supply them.
type Record struct {
	ID                 string    `json:"_id,omitempty"`
	FirstName          string    `json:"nombre,omitempty"`
	PaternalSurname    string    `json:"apellidoPaterno,omitempty"`
	MaternalSurname    string    `json:"apellidoMaterno,omitempty"`
	CURP               string    `json:"curp"`
	HomePhone          string    `json:"telefonoCasa,omitempty"`
	MobilePhone        string    `json:"telefonoCelular,omitempty"`
	PersonalEmail      string    `json:"correoPersonal,omitempty"`
	InstitutionalEmail string    `json:"correoInstitucional,omitempty"`
	Institution        string    `json:"institucion,omitempty"`
	Program            string    `json:"carrera,omitempty"`
	Average            *float64  `json:"promedio,omitempty"`
	Status             Status    `json:"estado,omitempty"`
	Group              string    `json:"grupo,omitempty"`
	PDFURL             string    `json:"pdfUrl,omitempty"`
	Fulfilled          []string  `json:"fulfilled,omitempty"`
	CreatedAt          time.Time `json:"fecha"`
	Active             bool      `json:"activo"`
}

// UpsertPolicy selects how a batch write treats records whose CURP already exists.
type UpsertPolicy int

const (
	// InsertOnly creates missing records and leaves existing ones untouched.
	InsertOnly UpsertPolicy = iota
	// FullUpsert would overwrite existing records. No store supports it;
	// re-imports must never modify what is already stored.
	FullUpsert
)

func (p UpsertPolicy) String() string {
	switch p {
	case InsertOnly:
		return "insert-only"
	case FullUpsert:
		return "full-upsert"
	default:
		return "unknown"
	}
}

// WriteResult summarizes a batch write.
type WriteResult struct {
	Inserted int // records created by this write
	Skipped  int // records whose CURP already existed
}

// RecordStore persists formulation records keyed by CURP.
// Implementations must enforce CURP uniqueness at the storage level.
type RecordStore interface {
	// InsertMany writes records in one batch. Duplicate CURPs are skipped
	// silently; any other failure is reported for the whole batch.
	InsertMany(ctx context.Context, records []Record, policy UpsertPolicy) (WriteResult, error)

	// Create inserts a single record and returns it with its ID populated.
	// Returns ErrDuplicateKey if the CURP is already stored.
	Create(ctx context.Context, record Record) (Record, error)

	// Exists reports whether a record with the given CURP is stored.
	Exists(ctx context.Context, curp string) (bool, error)

	// List returns every record, newest first.
	List(ctx context.Context) ([]Record, error)
}

// Pinger is implemented by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RowError reports why a bulk import row was rejected.
type RowError struct {
	Row    int    `json:"fila"`  // 1-based position in the submitted batch
	Reason string `json:"error"` // user-facing message
}

// ImportResult is the outcome of a bulk import.
type ImportResult struct {
	Total    int        // rows received
	Accepted int        // rows that passed validation
	Inserted int        // records created
	Skipped  int        // accepted rows that matched an existing or repeated CURP
	Errors   []RowError // rejected rows, in input order
}
