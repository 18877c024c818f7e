// Package migrations embeds the schema of the search index.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
