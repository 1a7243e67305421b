package services

import (
	"context"

	"github.com/emezins/carevault/internal/logging"
	"github.com/emezins/carevault/internal/server/models"
	"github.com/emezins/carevault/internal/server/repositories/edges"
)

// RegistryService exposes the access registry: who has disclosed which
// property to whom. It is bookkeeping only; removing an edge does not
// revoke a capability a counterparty already unsealed.
type RegistryService struct {
	edges  edges.Repository
	logger logging.Logger
}

func NewRegistryService(ed edges.Repository, logger logging.Logger) *RegistryService {
	return &RegistryService{
		edges:  ed,
		logger: logger.With("module", "registry_service"),
	}
}

func (s *RegistryService) ListOutgoing(ctx context.Context, entityID string) ([]models.AccessEdge, error) {
	return s.edges.List(ctx, entityID, models.EdgeOutgoing)
}

func (s *RegistryService) ListIncoming(ctx context.Context, entityID string) ([]models.AccessEdge, error) {
	return s.edges.List(ctx, entityID, models.EdgeIncoming)
}

// Revoke removes the caller's edge and its mirror on the counterparty
// side. The two removals are independent statements, so under partial
// failure the registry can transiently diverge; retrying the revoke
// converges it. Reports whether anything was removed.
func (s *RegistryService) Revoke(ctx context.Context, callerID, counterpartyID, propertyName string, direction models.EdgeDirection) (bool, error) {
	mirror := models.EdgeIncoming
	if direction == models.EdgeIncoming {
		mirror = models.EdgeOutgoing
	}

	removed, err := s.edges.Remove(ctx, models.AccessEdge{
		EntityID:       callerID,
		Direction:      direction,
		CounterpartyID: counterpartyID,
		PropertyName:   propertyName,
	})
	if err != nil {
		return false, err
	}

	mirrorRemoved, err := s.edges.Remove(ctx, models.AccessEdge{
		EntityID:       counterpartyID,
		Direction:      mirror,
		CounterpartyID: callerID,
		PropertyName:   propertyName,
	})
	if err != nil {
		// The caller-side edge is already gone; report the partial state
		// rather than pretending nothing happened.
		s.logger.Warn(ctx, "mirror edge removal failed", "caller", callerID, "counterparty", counterpartyID, "property", propertyName, "error", err.Error())
		return removed, err
	}

	if removed || mirrorRemoved {
		s.logger.Info(ctx, "access revoked", "caller", callerID, "counterparty", counterpartyID, "property", propertyName)
	}
	return removed || mirrorRemoved, nil
}
