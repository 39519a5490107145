// Package migrations embeds the resource ledger schema so services, the
// migrate command and the integration suite apply the same files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
