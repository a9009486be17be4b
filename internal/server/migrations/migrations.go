// Package migrations embeds the server schema for goose, one directory per
// SQL dialect.
package migrations

import (
	"embed"

	"github.com/dmitrijs2005/bizsync/internal/dbx"
)

//go:embed postgres/*.sql mysql/*.sql
var Migrations embed.FS

// Dir returns the directory inside Migrations holding d's scripts.
func Dir(d dbx.Dialect) string {
	return string(d)
}

// GooseDialect maps d onto the dialect name goose expects.
func GooseDialect(d dbx.Dialect) string {
	if d == dbx.Postgres {
		return "pgx"
	}
	return string(d)
}
