package transfers

import (
	"context"

	"github.com/emezins/carevault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, record *models.TransferRecord) error
	ListForEntity(ctx context.Context, entityID string) ([]models.TransferRecord, error)
	DeleteForEntity(ctx context.Context, entityID string) error
}
