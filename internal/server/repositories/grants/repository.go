package grants

import (
	"context"

	"github.com/emezins/carevault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, grant *models.ShareGrant) error
	// Consume looks up and deletes the grant for code in one statement.
	// An unknown or already-consumed code yields common.ErrorNotFound.
	// Expiry is the caller's concern: the returned grant may be expired.
	Consume(ctx context.Context, code string) (*models.ShareGrant, error)
	DeleteForEntity(ctx context.Context, entityID string) error
}
