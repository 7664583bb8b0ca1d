// Package migrations embeds the SQL migration files applied with goose at
// startup.
package migrations

import "embed"

// FS holds the embedded goose migration scripts.
//
//go:embed *.sql
var FS embed.FS
