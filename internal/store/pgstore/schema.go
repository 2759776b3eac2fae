package pgstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS {{table}} (
    id                   TEXT PRIMARY KEY,
    nombre               TEXT NOT NULL DEFAULT '',
    apellido_paterno     TEXT NOT NULL DEFAULT '',
    apellido_materno     TEXT NOT NULL DEFAULT '',
    curp                 TEXT NOT NULL,
    telefono_casa        TEXT NOT NULL DEFAULT '',
    telefono_celular     TEXT NOT NULL DEFAULT '',
    correo_personal      TEXT NOT NULL DEFAULT '',
    correo_institucional TEXT NOT NULL DEFAULT '',
    institucion          TEXT NOT NULL DEFAULT '',
    carrera              TEXT NOT NULL DEFAULT '',
    promedio             DOUBLE PRECISION,
    estado               TEXT NOT NULL DEFAULT '',
    grupo                TEXT NOT NULL DEFAULT '',
    pdf_url              TEXT NOT NULL DEFAULT '',
    fulfilled            TEXT[],
    fecha                TIMESTAMPTZ NOT NULL DEFAULT now(),
    activo               BOOLEAN NOT NULL DEFAULT TRUE,
    CONSTRAINT {{name}}_curp_key UNIQUE (curp)
);
CREATE INDEX IF NOT EXISTS {{name}}_correo_personal_idx ON {{table}} (correo_personal);
CREATE INDEX IF NOT EXISTS {{name}}_fecha_idx ON {{table}} (fecha DESC);
`

// schemaSQL renders the DDL for the store's table.
func (s *Store) schemaSQL() string {
	name := strings.Trim(s.table, `"`)
	return strings.NewReplacer("{{table}}", s.table, "{{name}}", name).Replace(schemaTemplate)
}

// EnsureSchema creates the table, its unique curp constraint and the
// lookup indexes when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, s.schemaSQL()); err != nil {
		return fmt.Errorf("ensure schema %s: %w", s.table, err)
	}
	slog.Info("formulation schema ready", "table", s.table)
	return nil
}
