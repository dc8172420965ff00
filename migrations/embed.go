package migrations

import "embed"

// FS embeds the versioned schema migrations.
//
//go:embed *.sql
var FS embed.FS
