package db

import "embed"

// MigrationFS embeds SQL migration files, one directory per dialect
// (migrations/postgres, migrations/sqlite). Used by the migrate runner.
//
//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var MigrationFS embed.FS
