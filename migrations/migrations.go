// Package migrations embeds the SQL migrations for the optional durable
// artifact store (internal/artifact.BunRecorder), applied via
// internal/infrastructure/storage.Migrator the way the teacher's own
// cmd/migrate wires migrations.FS.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
