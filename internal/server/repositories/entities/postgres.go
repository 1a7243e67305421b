// Package entities provides the PostgreSQL-backed repository for vault
// owner metadata (role, transfer public key).
package entities

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

func (r *PostgresRepository) Create(ctx context.Context, entity *models.Entity) error {
	query := `
		INSERT INTO entities (id, role, public_key, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, query,
		entity.ID, string(entity.Role), entity.PublicKey, entity.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Entity, error) {
	query := `
		SELECT id, role, public_key, created_at FROM entities
		WHERE id = $1
	`
	entity := &models.Entity{}
	var role string
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&entity.ID, &role, &entity.PublicKey, &entity.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	entity.Role = models.Role(role)
	return entity, nil
}

func (r *PostgresRepository) SetPublicKey(ctx context.Context, id string, publicKey string) error {
	query := `
		UPDATE entities SET public_key = $2
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, publicKey)
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

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `
		DELETE FROM entities
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
