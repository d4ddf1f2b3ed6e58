// Package migrations embeds the ontology store schema migrations.
package migrations

import "embed"

// FS holds the *.sql migration files in golang-migrate naming.
//
//go:embed *.sql
var FS embed.FS
