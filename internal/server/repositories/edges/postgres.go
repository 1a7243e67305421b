// Package edges provides the PostgreSQL-backed repository for access
// edges, the bidirectional bookkeeping of disclosure relationships.
package edges

import (
	"context"
	"fmt"

	"github.com/emezins/carevault/internal/dbx"
	"github.com/emezins/carevault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Add(ctx context.Context, edge models.AccessEdge) error {
	query := `
		INSERT INTO access_edges (entity_id, direction, counterparty_id, property_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		edge.EntityID, string(edge.Direction), edge.CounterpartyID, edge.PropertyName)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Remove(ctx context.Context, edge models.AccessEdge) (bool, error) {
	query := `
		DELETE FROM access_edges
		WHERE entity_id = $1 AND direction = $2 AND counterparty_id = $3 AND property_name = $4
	`
	res, err := r.db.ExecContext(ctx, query,
		edge.EntityID, string(edge.Direction), edge.CounterpartyID, edge.PropertyName)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresRepository) List(ctx context.Context, entityID string, direction models.EdgeDirection) ([]models.AccessEdge, error) {
	query := `
		SELECT entity_id, direction, counterparty_id, property_name FROM access_edges
		WHERE entity_id = $1 AND direction = $2
		ORDER BY counterparty_id, property_name
	`
	rows, err := r.db.QueryContext(ctx, query, entityID, string(direction))
	if err != nil {
		return nil, fmt.Errorf("failed to select edges: %w", err)
	}
	defer rows.Close()

	var result []models.AccessEdge
	for rows.Next() {
		var edge models.AccessEdge
		var dir string
		if err := rows.Scan(&edge.EntityID, &dir, &edge.CounterpartyID, &edge.PropertyName); err != nil {
			return nil, err
		}
		edge.Direction = models.EdgeDirection(dir)
		result = append(result, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) DeleteForEntity(ctx context.Context, entityID string) error {
	query := `
		DELETE FROM access_edges
		WHERE entity_id = $1 OR counterparty_id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, entityID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
