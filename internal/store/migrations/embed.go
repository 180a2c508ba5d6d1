// Package migrations embeds the versioned SQL schema of the store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
