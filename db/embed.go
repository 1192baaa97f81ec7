// Package db provides the embedded ledger schema migrations.
package db

import "embed"

// Migrations holds the ordered *.sql files applied by postgres.Migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS
