// Package repomanager bundles the relational repositories behind one
// constructor so services receive a single dependency.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/emezins/carevault/internal/server/repositories/bindings"
	"github.com/emezins/carevault/internal/server/repositories/edges"
	"github.com/emezins/carevault/internal/server/repositories/entities"
	"github.com/emezins/carevault/internal/server/repositories/grants"
	"github.com/emezins/carevault/internal/server/repositories/transfers"
)

type RepositoryManager interface {
	Conn() *sql.DB
	Entities() entities.Repository
	Bindings() bindings.Repository
	Grants() grants.Repository
	Edges() edges.Repository
	Transfers() transfers.Repository
	RunMigrations(ctx context.Context) error
	Close() error
}
