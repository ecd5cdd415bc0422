// Package migrations embeds the SQL schema migrations.
package migrations

import "embed"

// FS holds the *.sql migration files, applied with golang-migrate.
//
//go:embed *.sql
var FS embed.FS
