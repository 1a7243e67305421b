// Package bindings provides the PostgreSQL-backed repository for
// credential-to-entity bindings. A credential resolves to at most one
// entity at any time.
package bindings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/emezins/carevault/internal/common"
	"github.com/emezins/carevault/internal/dbx"
	"github.com/emezins/carevault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new binding. A credential that is already bound
// results in ErrorAlreadyExists; re-pointing it is Rebind's job.
func (r *PostgresRepository) Create(ctx context.Context, binding *models.CredentialBinding) error {
	query := `
		INSERT INTO credential_bindings (credential_id, entity_id, salt, verifier, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (credential_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		binding.CredentialID, binding.EntityID, binding.Salt, binding.Verifier, binding.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorAlreadyExists
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, credentialID string) (*models.CredentialBinding, error) {
	query := `
		SELECT credential_id, entity_id, salt, verifier, created_at FROM credential_bindings
		WHERE credential_id = $1
	`
	binding := &models.CredentialBinding{}
	err := r.db.QueryRowContext(ctx, query, credentialID).
		Scan(&binding.CredentialID, &binding.EntityID, &binding.Salt, &binding.Verifier, &binding.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return binding, nil
}

func (r *PostgresRepository) Rebind(ctx context.Context, credentialID string, newEntityID string) error {
	query := `
		UPDATE credential_bindings SET entity_id = $2
		WHERE credential_id = $1
	`
	res, err := r.db.ExecContext(ctx, query, credentialID, newEntityID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) CountForEntity(ctx context.Context, entityID string) (int, error) {
	query := `
		SELECT count(*) FROM credential_bindings
		WHERE entity_id = $1
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, entityID).Scan(&count); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) DeleteForEntity(ctx context.Context, entityID string) error {
	query := `
		DELETE FROM credential_bindings
		WHERE entity_id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, entityID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
