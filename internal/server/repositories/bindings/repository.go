package bindings

import (
	"context"

	"github.com/emezins/carevault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, binding *models.CredentialBinding) error
	Get(ctx context.Context, credentialID string) (*models.CredentialBinding, error)
	Rebind(ctx context.Context, credentialID string, newEntityID string) error
	CountForEntity(ctx context.Context, entityID string) (int, error)
	DeleteForEntity(ctx context.Context, entityID string) error
}
