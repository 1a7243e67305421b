package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/emezins/carevault/internal/server/migrations"
	"github.com/emezins/carevault/internal/server/repositories/bindings"
	"github.com/emezins/carevault/internal/server/repositories/edges"
	"github.com/emezins/carevault/internal/server/repositories/entities"
	"github.com/emezins/carevault/internal/server/repositories/grants"
	"github.com/emezins/carevault/internal/server/repositories/transfers"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type PostgresRepositoryManager struct {
	db        *sql.DB
	entities  entities.Repository
	bindings  bindings.Repository
	grants    grants.Repository
	edges     edges.Repository
	transfers transfers.Repository
}

func NewPostgresRepositoryManager(dsn string) (RepositoryManager, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	m := &PostgresRepositoryManager{
		db:        db,
		entities:  entities.NewPostgresRepository(db),
		bindings:  bindings.NewPostgresRepository(db),
		grants:    grants.NewPostgresRepository(db),
		edges:     edges.NewPostgresRepository(db),
		transfers: transfers.NewPostgresRepository(db),
	}

	if err := m.RunMigrations(context.Background()); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return m, nil
}

func (m *PostgresRepositoryManager) Conn() *sql.DB {
	return m.db
}

func (m *PostgresRepositoryManager) Entities() entities.Repository {
	return m.entities
}

func (m *PostgresRepositoryManager) Bindings() bindings.Repository {
	return m.bindings
}

func (m *PostgresRepositoryManager) Grants() grants.Repository {
	return m.grants
}

func (m *PostgresRepositoryManager) Edges() edges.Repository {
	return m.edges
}

func (m *PostgresRepositoryManager) Transfers() transfers.Repository {
	return m.transfers
}

func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, m.db, "."); err != nil {
		return err
	}
	return nil
}

func (m *PostgresRepositoryManager) Close() error {
	return m.db.Close()
}
