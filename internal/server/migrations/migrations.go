// Package migrations embeds the goose SQL migrations for the server's
// relational bookkeeping (entities, bindings, grants, edges, ledger).
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
