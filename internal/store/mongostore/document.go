package mongostore

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/JonMunkholm/formulations/internal/core"
)

// document is the stored shape of a record. Field names match the
// collection written by earlier versions of the service.
type document struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty"`
	FirstName          string             `bson:"nombre,omitempty"`
	PaternalSurname    string             `bson:"apellidoPaterno,omitempty"`
	MaternalSurname    string             `bson:"apellidoMaterno,omitempty"`
	CURP               string             `bson:"curp"`
	HomePhone          string             `bson:"telefonoCasa,omitempty"`
	MobilePhone        string             `bson:"telefonoCelular,omitempty"`
	PersonalEmail      string             `bson:"correoPersonal,omitempty"`
	InstitutionalEmail string             `bson:"correoInstitucional,omitempty"`
	Institution        string             `bson:"institucion,omitempty"`
	Program            string             `bson:"carrera,omitempty"`
	Average            *float64           `bson:"promedio,omitempty"`
	Status             string             `bson:"estado,omitempty"`
	Group              string             `bson:"grupo,omitempty"`
	PDFURL             string             `bson:"pdfUrl,omitempty"`
	Fulfilled          []string           `bson:"fulfilled,omitempty"`
	CreatedAt          time.Time          `bson:"fecha"`
	Active             bool               `bson:"activo"`
}

func toDocument(rec core.Record) document {
	d := document{
		FirstName:          rec.FirstName,
		PaternalSurname:    rec.PaternalSurname,
		MaternalSurname:    rec.MaternalSurname,
		CURP:               rec.CURP,
		HomePhone:          rec.HomePhone,
		MobilePhone:        rec.MobilePhone,
		PersonalEmail:      rec.PersonalEmail,
		InstitutionalEmail: rec.InstitutionalEmail,
		Institution:        rec.Institution,
		Program:            rec.Program,
		Average:            rec.Average,
		Status:             string(rec.Status),
		Group:              rec.Group,
		PDFURL:             rec.PDFURL,
		Fulfilled:          rec.Fulfilled,
		CreatedAt:          rec.CreatedAt,
		Active:             rec.Active,
	}
	if id, err := primitive.ObjectIDFromHex(rec.ID); err == nil {
		d.ID = id
	}
	return d
}

func (d document) record() core.Record {
	rec := core.Record{
		FirstName:          d.FirstName,
		PaternalSurname:    d.PaternalSurname,
		MaternalSurname:    d.MaternalSurname,
		CURP:               d.CURP,
		HomePhone:          d.HomePhone,
		MobilePhone:        d.MobilePhone,
		PersonalEmail:      d.PersonalEmail,
		InstitutionalEmail: d.InstitutionalEmail,
		Institution:        d.Institution,
		Program:            d.Program,
		Average:            d.Average,
		Status:             core.Status(d.Status),
		Group:              d.Group,
		PDFURL:             d.PDFURL,
		Fulfilled:          d.Fulfilled,
		CreatedAt:          d.CreatedAt,
		Active:             d.Active,
	}
	if !d.ID.IsZero() {
		rec.ID = d.ID.Hex()
	}
	return rec
}
