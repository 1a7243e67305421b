package entities

import (
	"context"

	"github.com/emezins/carevault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, entity *models.Entity) error
	Get(ctx context.Context, id string) (*models.Entity, error)
	SetPublicKey(ctx context.Context, id string, publicKey string) error
	Delete(ctx context.Context, id string) error
}
