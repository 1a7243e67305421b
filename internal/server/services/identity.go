package services

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"

	"github.com/emezins/carevault/internal/common"
	"github.com/emezins/carevault/internal/logging"
	"github.com/emezins/carevault/internal/server/auth"
	"github.com/emezins/carevault/internal/server/config"
	"github.com/emezins/carevault/internal/server/eventlog"
	"github.com/emezins/carevault/internal/server/models"
	"github.com/emezins/carevault/internal/server/repositories/bindings"
	"github.com/emezins/carevault/internal/server/repositories/edges"
	"github.com/emezins/carevault/internal/server/repositories/entities"
	"github.com/emezins/carevault/internal/server/repositories/grants"
	"github.com/emezins/carevault/internal/server/repositories/transfers"
)

// IdentityService binds credentials to entities and issues session
// tokens. The verifier scheme keeps the server passphrase-blind: the
// client derives its master key from passphrase and salt, and the server
// stores only a hash of that key.
type IdentityService struct {
	entities  entities.Repository
	bindings  bindings.Repository
	grants    grants.Repository
	edges     edges.Repository
	transfers transfers.Repository
	log       eventlog.Store
	config    *config.Config
	logger    logging.Logger
}

func NewIdentityService(er entities.Repository, br bindings.Repository, gr grants.Repository, ed edges.Repository, tr transfers.Repository, log eventlog.Store, cfg *config.Config, logger logging.Logger) *IdentityService {
	return &IdentityService{
		entities:  er,
		bindings:  br,
		grants:    gr,
		edges:     ed,
		transfers: tr,
		log:       log,
		config:    cfg,
		logger:    logger.With("module", "identity_service"),
	}
}

// Register creates a new entity and binds the credential to it. The role
// is fixed here and never changes afterwards. A credential already bound
// elsewhere yields common.ErrorAlreadyExists.
func (s *IdentityService) Register(ctx context.Context, credentialID string, salt, verifier []byte, role models.Role) (*models.Entity, error) {
	if credentialID == "" || len(salt) == 0 || len(verifier) == 0 {
		return nil, common.ErrorMissingPayload
	}
	if !models.ValidRole(role) {
		return nil, common.ErrorInvalidRole
	}

	entity := &models.Entity{
		ID:   uuid.NewString(),
		Role: role,
	}
	if err := s.entities.Create(ctx, entity); err != nil {
		return nil, fmt.Errorf("create entity: %w", err)
	}

	binding := &models.CredentialBinding{
		CredentialID: credentialID,
		EntityID:     entity.ID,
		Salt:         salt,
		Verifier:     verifier,
	}
	if err := s.bindings.Create(ctx, binding); err != nil {
		// Roll back the entity so a duplicate credential leaves no
		// orphan row behind.
		if delErr := s.entities.Delete(ctx, entity.ID); delErr != nil {
			s.logger.Error(ctx, "orphan entity cleanup failed", "entity", entity.ID, "error", delErr.Error())
		}
		return nil, err
	}

	s.logger.Info(ctx, "entity registered", "entity", entity.ID, "role", role)
	return entity, nil
}

// GetSalt returns the key-derivation salt for a credential so the client
// can recompute its master key before logging in.
func (s *IdentityService) GetSalt(ctx context.Context, credentialID string) ([]byte, error) {
	binding, err := s.bindings.Get(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	return binding.Salt, nil
}

// Login checks the verifier in constant time and issues a session token.
// Any mismatch, including an unknown credential, yields
// common.ErrorUnauthorized.
func (s *IdentityService) Login(ctx context.Context, credentialID string, verifier []byte) (string, error) {
	binding, err := s.bindings.Get(ctx, credentialID)
	if err != nil {
		return "", common.ErrorUnauthorized
	}

	if subtle.ConstantTimeCompare(binding.Verifier, verifier) != 1 {
		return "", common.ErrorUnauthorized
	}

	token, err := auth.GenerateToken(binding.EntityID, []byte(s.config.SecretKey), s.config.AccessTokenValidityDuration)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	s.logger.Info(ctx, "login", "entity", binding.EntityID)
	return token, nil
}

// GetEntity returns the entity's public metadata.
func (s *IdentityService) GetEntity(ctx context.Context, entityID string) (*models.Entity, error) {
	return s.entities.Get(ctx, entityID)
}

// SetPublicKey registers the entity's transfer public key. The key must
// be a base64 32-byte X25519 public key.
func (s *IdentityService) SetPublicKey(ctx context.Context, entityID string, publicKeyB64 string) error {
	raw, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil || len(raw) != 32 {
		return common.ErrorMissingPayload
	}
	return s.entities.SetPublicKey(ctx, entityID, publicKeyB64)
}

// RebindCredential is the caller-facing form of Rebind: the credential
// must currently resolve to the caller's own entity.
func (s *IdentityService) RebindCredential(ctx context.Context, callerID, credentialID, newEntityID string) error {
	binding, err := s.bindings.Get(ctx, credentialID)
	if err != nil {
		return err
	}
	if binding.EntityID != callerID {
		return common.ErrorForbidden
	}
	return s.Rebind(ctx, credentialID, newEntityID)
}

// Rebind points an existing credential at a different entity, typically
// after redeeming a device-link invite. The entity the credential used to
// resolve to is garbage-collected once nothing references it.
func (s *IdentityService) Rebind(ctx context.Context, credentialID string, newEntityID string) error {
	binding, err := s.bindings.Get(ctx, credentialID)
	if err != nil {
		return err
	}
	if binding.EntityID == newEntityID {
		return nil
	}
	if _, err := s.entities.Get(ctx, newEntityID); err != nil {
		return err
	}

	if err := s.bindings.Rebind(ctx, credentialID, newEntityID); err != nil {
		return err
	}

	remaining, err := s.bindings.CountForEntity(ctx, binding.EntityID)
	if err != nil {
		return err
	}
	if remaining == 0 {
		if err := s.purgeEntity(ctx, binding.EntityID); err != nil {
			return fmt.Errorf("collect orphaned entity: %w", err)
		}
		s.logger.Info(ctx, "orphaned entity collected", "entity", binding.EntityID)
	}

	return nil
}

// Reset performs a full vault reset: the entity's log namespace, grants,
// edges, ledger rows, bindings, and the entity row itself are purged.
// Outstanding grants sourced by the entity die with it.
func (s *IdentityService) Reset(ctx context.Context, entityID string) error {
	if _, err := s.entities.Get(ctx, entityID); err != nil {
		return err
	}
	if err := s.purgeEntity(ctx, entityID); err != nil {
		return err
	}
	s.logger.Info(ctx, "vault reset", "entity", entityID)
	return nil
}

func (s *IdentityService) purgeEntity(ctx context.Context, entityID string) error {
	if err := s.log.Purge(ctx, entityID); err != nil {
		return fmt.Errorf("purge log: %w", err)
	}
	if err := s.grants.DeleteForEntity(ctx, entityID); err != nil {
		return fmt.Errorf("purge grants: %w", err)
	}
	if err := s.edges.DeleteForEntity(ctx, entityID); err != nil {
		return fmt.Errorf("purge edges: %w", err)
	}
	if err := s.transfers.DeleteForEntity(ctx, entityID); err != nil {
		return fmt.Errorf("purge ledger: %w", err)
	}
	if err := s.bindings.DeleteForEntity(ctx, entityID); err != nil {
		return fmt.Errorf("purge bindings: %w", err)
	}
	if err := s.entities.Delete(ctx, entityID); err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	return nil
}
