// Package db ships the inbox schema as golang-migrate files.
package db

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var MigrationsFS embed.FS

// Migrations returns the schema files with the migrations/ prefix stripped, as iofs expects.
func Migrations() (fs.FS, error) {
	return fs.Sub(MigrationsFS, "migrations")
}
