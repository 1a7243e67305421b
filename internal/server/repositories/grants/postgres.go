// Package grants provides the PostgreSQL-backed repository for one-time
// share and invite grants. A grant row lives from issuance until the
// first redemption attempt or an entity purge, whichever comes first.
package grants

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

// Create inserts a new grant row. Codes are client-minted, so a code
// that is already taken results in ErrorConflict instead of a failed
// insert.
func (r *PostgresRepository) Create(ctx context.Context, grant *models.ShareGrant) error {
	query := `
		INSERT INTO share_grants (code, kind, source_entity_id, property_name, sealed_key, salt, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		grant.Code, string(grant.Kind), grant.SourceEntityID, grant.PropertyName,
		grant.SealedKey, grant.Salt, grant.ExpiresAt, grant.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorConflict
	}
	return nil
}

// Consume deletes the grant and returns it in a single round trip, so a
// code is consumable exactly once even under concurrent redemption.
func (r *PostgresRepository) Consume(ctx context.Context, code string) (*models.ShareGrant, error) {
	query := `
		DELETE FROM share_grants
		WHERE code = $1
		RETURNING code, kind, source_entity_id, property_name, sealed_key, salt, expires_at, created_at
	`
	grant := &models.ShareGrant{}
	var kind string
	err := r.db.QueryRowContext(ctx, query, code).
		Scan(&grant.Code, &kind, &grant.SourceEntityID, &grant.PropertyName,
			&grant.SealedKey, &grant.Salt, &grant.ExpiresAt, &grant.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	grant.Kind = models.GrantKind(kind)
	return grant, nil
}

func (r *PostgresRepository) DeleteForEntity(ctx context.Context, entityID string) error {
	query := `
		DELETE FROM share_grants
		WHERE source_entity_id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, entityID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
