// Package migrations embeds the goose SQL migrations so the binary carries its
// own schema.
package migrations

import "embed"

// Dir is the directory inside FS holding the migration files.
const Dir = "sql"

// FS holds the migration files.
//
//go:embed sql/*.sql
var FS embed.FS
