// Package migrations carries the forward-only schema migrations, embedded so
// a deployed binary needs no migration files on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
