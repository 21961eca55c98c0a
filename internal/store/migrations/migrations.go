// Package migrations embeds the relay ledger schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
