package core

import (
	"fmt"
	"sync"
)

// Field is the canonical name of a record attribute.
type Field string

const (
	FieldFirstName          Field = "nombre"
	FieldPaternalSurname    Field = "apellidoPaterno"
	FieldMaternalSurname    Field = "apellidoMaterno"
	FieldCURP               Field = "curp"
	FieldHomePhone          Field = "telefonoCasa"
	FieldMobilePhone        Field = "telefonoCelular"
	FieldPersonalEmail      Field = "correoPersonal"
	FieldInstitutionalEmail Field = "correoInstitucional"
	FieldInstitution        Field = "institucion"
	FieldProgram            Field = "carrera"
	FieldAverage            Field = "promedio"
	FieldStatus             Field = "estado"
	FieldGroup              Field = "grupo"
	FieldPDFURL             Field = "pdfUrl"
	FieldFulfilled          Field = "fulfilled"
)

// FieldType determines how a cell is coerced before storage.
type FieldType int

const (
	FieldText FieldType = iota
	FieldIdentifier
	FieldEmail
	FieldNumeric
	FieldEnum
	FieldList
)

// FieldSpec maps a canonical field to the header spellings seen in spreadsheets.
type FieldSpec struct {
	Name    Field
	Type    FieldType
	Aliases []string // compared after NormalizeHeader
}

// FormulationFields is the column mapping used by bulk import.
var FormulationFields = []FieldSpec{
	{Name: FieldFirstName, Aliases: []string{"nombre", "nombrealumno", "nombre-alumno", "nombre alumno", "nombres"}},
	{Name: FieldPaternalSurname, Aliases: []string{"apellidopaterno", "apellido-paterno", "apellido paterno", "apellidop", "apellidopaternoalumno"}},
	{Name: FieldMaternalSurname, Aliases: []string{"apellidomaterno", "apellido-materno", "apellido materno", "apellidom", "apellidomaternoalumno"}},
	{Name: FieldCURP, Type: FieldIdentifier, Aliases: []string{"curp", "curp-alumno", "curp alumno", "curp_alumno"}},
	{Name: FieldHomePhone, Aliases: []string{"telefonocasa", "telefono-casa", "telefono casa", "telcasa", "telcasaalumno"}},
	{Name: FieldMobilePhone, Aliases: []string{"telefonocelular", "telefono-celular", "telefono celular", "telcel", "telcelalumno"}},
	{Name: FieldPersonalEmail, Type: FieldEmail, Aliases: []string{"correopersonal", "correo-personal", "correo personal", "email", "emailpersonal", "correo"}},
	{Name: FieldInstitutionalEmail, Type: FieldEmail, Aliases: []string{"correoinstitucional", "correo-institucional", "correo institucional", "emailinstitucional"}},
	{Name: FieldInstitution, Aliases: []string{"institucion", "institución", "institucion-alumno", "institucion alumno"}},
	{Name: FieldProgram, Aliases: []string{"carrera", "carrera-alumno", "carrera alumno"}},
	{Name: FieldAverage, Type: FieldNumeric, Aliases: []string{"promedio", "promedio-alumno", "promedio alumno"}},
	{Name: FieldStatus, Type: FieldEnum, Aliases: []string{"estado", "estatus", "estatusalumno", "estadoalumno"}},
	{Name: FieldGroup, Aliases: []string{"grupo", "grupo-alumno", "grupo alumno"}},
	{Name: FieldPDFURL, Aliases: []string{"pdfurl", "pdf-url", "pdf url"}},
	{Name: FieldFulfilled, Type: FieldList, Aliases: []string{"fulfilled", "cumplidos", "requisitoscumplidos"}},
}

// HeaderIndex maps a normalized header to the field it populates.
type HeaderIndex map[string]Field

// MakeHeaderIndex normalizes every alias of specs.
// Panics if two fields claim the same normalized alias.
func MakeHeaderIndex(specs []FieldSpec) HeaderIndex {
	idx := make(HeaderIndex)
	for _, spec := range specs {
		for _, alias := range spec.Aliases {
			key := NormalizeHeader(alias)
			if owner, exists := idx[key]; exists && owner != spec.Name {
				panic(fmt.Sprintf("header alias %q claimed by both %s and %s", alias, owner, spec.Name))
			}
			idx[key] = spec.Name
		}
	}
	return idx
}

// Lookup returns the field for a raw (unnormalized) header.
func (idx HeaderIndex) Lookup(header string) (Field, bool) {
	f, ok := idx[NormalizeHeader(header)]
	return f, ok
}

var (
	defaultIndex     HeaderIndex
	defaultIndexOnce sync.Once
)

// DefaultHeaderIndex returns the index built from FormulationFields.
func DefaultHeaderIndex() HeaderIndex {
	defaultIndexOnce.Do(func() {
		defaultIndex = MakeHeaderIndex(FormulationFields)
	})
	return defaultIndex
}
