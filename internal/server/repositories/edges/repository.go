package edges

import (
	"context"

	"github.com/emezins/carevault/internal/server/models"
)

type Repository interface {
	// Add is idempotent: inserting a duplicate edge is a no-op.
	Add(ctx context.Context, edge models.AccessEdge) error
	// Remove deletes at most one matching edge and reports whether a
	// removal occurred.
	Remove(ctx context.Context, edge models.AccessEdge) (bool, error)
	List(ctx context.Context, entityID string, direction models.EdgeDirection) ([]models.AccessEdge, error)
	// DeleteForEntity removes every edge mentioning the entity on either
	// side. Used by vault reset.
	DeleteForEntity(ctx context.Context, entityID string) error
}
