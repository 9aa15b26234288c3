package migrations

import "embed"

// FS содержит SQL-миграции серверной схемы.
//
//go:embed *.sql
var FS embed.FS
