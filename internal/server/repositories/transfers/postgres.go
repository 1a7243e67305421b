// Package transfers provides the PostgreSQL-backed repository for the
// global ownership-transfer ledger. Rows are append-only; nothing mutates
// them after insert.
package transfers

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

func (r *PostgresRepository) Create(ctx context.Context, record *models.TransferRecord) error {
	query := `
		INSERT INTO transfer_records (id, record_key, from_entity_id, to_entity_id, transferred_at, auto_share_granted)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.RecordKey, record.FromEntityID, record.ToEntityID,
		record.TransferredAt, record.AutoShareGranted)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListForEntity(ctx context.Context, entityID string) ([]models.TransferRecord, error) {
	query := `
		SELECT id, record_key, from_entity_id, to_entity_id, transferred_at, auto_share_granted FROM transfer_records
		WHERE from_entity_id = $1 OR to_entity_id = $1
		ORDER BY transferred_at
	`
	rows, err := r.db.QueryContext(ctx, query, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to select transfer records: %w", err)
	}
	defer rows.Close()

	var result []models.TransferRecord
	for rows.Next() {
		var rec models.TransferRecord
		if err := rows.Scan(&rec.ID, &rec.RecordKey, &rec.FromEntityID, &rec.ToEntityID,
			&rec.TransferredAt, &rec.AutoShareGranted); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) DeleteForEntity(ctx context.Context, entityID string) error {
	query := `
		DELETE FROM transfer_records
		WHERE from_entity_id = $1 OR to_entity_id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, entityID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
