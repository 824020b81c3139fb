// Package migrations embeds the SQL migration files so the migrator can run
// them from the binary without a deployed migrations directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
