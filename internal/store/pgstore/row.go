package pgstore

import (
	"time"

	"github.com/JonMunkholm/formulations/internal/core"
)

type recordRow struct {
	ID                 string    `db:"id"`
	FirstName          string    `db:"nombre"`
	PaternalSurname    string    `db:"apellido_paterno"`
	MaternalSurname    string    `db:"apellido_materno"`
	CURP               string    `db:"curp"`
	HomePhone          string    `db:"telefono_casa"`
	MobilePhone        string    `db:"telefono_celular"`
	PersonalEmail      string    `db:"correo_personal"`
	InstitutionalEmail string    `db:"correo_institucional"`
	Institution        string    `db:"institucion"`
	Program            string    `db:"carrera"`
	Average            *float64  `db:"promedio"`
	Status             string    `db:"estado"`
	Group              string    `db:"grupo"`
	PDFURL             string    `db:"pdf_url"`
	Fulfilled          []string  `db:"fulfilled"`
	CreatedAt          time.Time `db:"fecha"`
	Active             bool      `db:"activo"`
}

func (r recordRow) record() core.Record {
	return core.Record{
		ID:                 r.ID,
		FirstName:          r.FirstName,
		PaternalSurname:    r.PaternalSurname,
		MaternalSurname:    r.MaternalSurname,
		CURP:               r.CURP,
		HomePhone:          r.HomePhone,
		MobilePhone:        r.MobilePhone,
		PersonalEmail:      r.PersonalEmail,
		InstitutionalEmail: r.InstitutionalEmail,
		Institution:        r.Institution,
		Program:            r.Program,
		Average:            r.Average,
		Status:             core.Status(r.Status),
		Group:              r.Group,
		PDFURL:             r.PDFURL,
		Fulfilled:          r.Fulfilled,
		CreatedAt:          r.CreatedAt,
		Active:             r.Active,
	}
}

// values lists rec in column order.
func values(rec core.Record) []any {
	return []any{
		rec.ID,
		rec.FirstName,
		rec.PaternalSurname,
		rec.MaternalSurname,
		rec.CURP,
		rec.HomePhone,
		rec.MobilePhone,
		rec.PersonalEmail,
		rec.InstitutionalEmail,
		rec.Institution,
		rec.Program,
		rec.Average,
		string(rec.Status),
		rec.Group,
		rec.PDFURL,
		rec.Fulfilled,
		rec.CreatedAt,
		rec.Active,
	}
}
