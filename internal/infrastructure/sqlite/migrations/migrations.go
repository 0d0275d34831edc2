package migrations

import "embed"

// Migrations holds the sqlite schema, applied by Store.ApplyMigrations.
//
//go:embed *.sql
var Migrations embed.FS
