package services

import (
	"context"
	"fmt"
	"time"

	"github.com/emezins/carevault/internal/common"
	"github.com/emezins/carevault/internal/logging"
	"github.com/emezins/carevault/internal/server/config"
	"github.com/emezins/carevault/internal/server/models"
	"github.com/emezins/carevault/internal/server/repositories/edges"
	"github.com/emezins/carevault/internal/server/repositories/entities"
	"github.com/emezins/carevault/internal/server/repositories/grants"
)

const shareCodeLength = 10

// ShareService issues and redeems one-time grants: property shares and
// device-link invites. The sealed key inside a grant is produced
// client-side; the server only brokers the code exchange.
type ShareService struct {
	grants   grants.Repository
	edges    edges.Repository
	entities entities.Repository
	config   *config.Config
	logger   logging.Logger
}

func NewShareService(gr grants.Repository, ed edges.Repository, er entities.Repository, cfg *config.Config, logger logging.Logger) *ShareService {
	return &ShareService{
		grants:   gr,
		edges:    ed,
		entities: er,
		config:   cfg,
		logger:   logger.With("module", "share_service"),
	}
}

// Issue stores a share grant for one property under a caller-minted code.
// The code must be minted client-side: the sealed key is derived from it,
// so it has to exist before sealing. Issuing for an already-shared
// property creates an additional independent grant; multiple codes may
// coexist.
func (s *ShareService) Issue(ctx context.Context, sourceEntityID, code, propertyName string, sealedKey, salt []byte, ttl time.Duration) (*models.ShareGrant, error) {
	if propertyName == "" || len(sealedKey) == 0 || len(code) < shareCodeLength {
		return nil, common.ErrorMissingPayload
	}
	if _, err := s.entities.Get(ctx, sourceEntityID); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = s.config.ShareTTL
	}

	grant := &models.ShareGrant{
		Code:           code,
		Kind:           models.GrantShare,
		SourceEntityID: sourceEntityID,
		PropertyName:   propertyName,
		SealedKey:      sealedKey,
		Salt:           salt,
		ExpiresAt:      time.Now().Add(ttl),
		CreatedAt:      time.Now(),
	}
	if err := s.grants.Create(ctx, grant); err != nil {
		return nil, fmt.Errorf("store grant: %w", err)
	}

	s.logger.Info(ctx, "share issued", "source", sourceEntityID, "property", propertyName, "expires_at", grant.ExpiresAt)
	return grant, nil
}

// Redeem consumes a share code exactly once. The grant row is gone after
// the first attempt whatever the outcome: a second redemption, and any
// redemption of an expired code, fails. On success the access registry is
// updated on both sides and the sealed capability is handed back for the
// caller to unseal client-side.
func (s *ShareService) Redeem(ctx context.Context, redeemerEntityID, code string) (*models.ShareGrant, error) {
	grant, err := s.grants.Consume(ctx, code)
	if err != nil {
		return nil, err
	}
	if grant.Kind != models.GrantShare {
		return nil, common.ErrorNotFound
	}
	if grant.Expired(time.Now()) {
		return nil, common.ErrorExpired
	}
	if grant.SourceEntityID == redeemerEntityID {
		// Redeeming your own share would create a self-edge.
		return nil, common.ErrorForbidden
	}

	if err := s.edges.Add(ctx, models.AccessEdge{
		EntityID:       redeemerEntityID,
		Direction:      models.EdgeIncoming,
		CounterpartyID: grant.SourceEntityID,
		PropertyName:   grant.PropertyName,
	}); err != nil {
		return nil, fmt.Errorf("register incoming edge: %w", err)
	}
	if err := s.edges.Add(ctx, models.AccessEdge{
		EntityID:       grant.SourceEntityID,
		Direction:      models.EdgeOutgoing,
		CounterpartyID: redeemerEntityID,
		PropertyName:   grant.PropertyName,
	}); err != nil {
		return nil, fmt.Errorf("register outgoing edge: %w", err)
	}

	s.logger.Info(ctx, "share redeemed", "source", grant.SourceEntityID, "redeemer", redeemerEntityID, "property", grant.PropertyName)
	return grant, nil
}

// IssueInvite stores a device-link grant sealing the entity's master key
// under a code-derived key. Like Issue, the code is minted client-side.
func (s *ShareService) IssueInvite(ctx context.Context, entityID, code string, sealedKey, salt []byte, ttl time.Duration) (*models.ShareGrant, error) {
	if len(sealedKey) == 0 || len(code) < shareCodeLength {
		return nil, common.ErrorMissingPayload
	}
	if _, err := s.entities.Get(ctx, entityID); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = s.config.InviteTTL
	}

	grant := &models.ShareGrant{
		Code:           code,
		Kind:           models.GrantInvite,
		SourceEntityID: entityID,
		SealedKey:      sealedKey,
		Salt:           salt,
		ExpiresAt:      time.Now().Add(ttl),
		CreatedAt:      time.Now(),
	}
	if err := s.grants.Create(ctx, grant); err != nil {
		return nil, fmt.Errorf("store grant: %w", err)
	}
	return grant, nil
}

// RedeemInvite consumes an invite code. No edges are registered: the
// redeemer becomes another device of the same entity, not a counterparty.
func (s *ShareService) RedeemInvite(ctx context.Context, code string) (*models.ShareGrant, error) {
	grant, err := s.grants.Consume(ctx, code)
	if err != nil {
		return nil, err
	}
	if grant.Kind != models.GrantInvite {
		return nil, common.ErrorNotFound
	}
	if grant.Expired(time.Now()) {
		return nil, common.ErrorExpired
	}
	return grant, nil
}
