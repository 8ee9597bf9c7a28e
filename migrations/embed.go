// Package migrations embeds the goose SQL migrations for the invoice store.
// cmd/api applies them at startup; testutil applies them before integration tests.
package migrations

import "embed"

// FS holds all *.sql migration files.
//
//go:embed *.sql
var FS embed.FS
