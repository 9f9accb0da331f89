// Package migrations embeds the SQL migrations for the log document store.
package migrations

import "embed"

// FS contains the goose-annotated SQL files.
//
//go:embed *.sql
var FS embed.FS
