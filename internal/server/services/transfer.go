package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/emezins/carevault/internal/common"
	"github.com/emezins/carevault/internal/envelope"
	"github.com/emezins/carevault/internal/logging"
	"github.com/emezins/carevault/internal/server/config"
	"github.com/emezins/carevault/internal/server/models"
	"github.com/emezins/carevault/internal/server/repositories/edges"
	"github.com/emezins/carevault/internal/server/repositories/entities"
	"github.com/emezins/carevault/internal/server/repositories/grants"
	"github.com/emezins/carevault/internal/server/repositories/transfers"
)

// TransferResult reports what a transfer batch actually did. Transferred
// lists the properties that made it onto the target's log; the caller
// retries the remainder. ShareCode is empty when no reciprocal access was
// requested.
type TransferResult struct {
	Transferred []string
	ShareCode   string
}

// TransferService moves ownership of properties from a doctor's vault to
// a patient's. The caller re-encrypts each property's plaintext under the
// target's public key client-side; the server appends the sealed boxes
// onto the target's log, writes the audit ledger, and optionally issues a
// reciprocal share back to the caller.
type TransferService struct {
	vault     *VaultService
	entities  entities.Repository
	transfers transfers.Repository
	grants    grants.Repository
	edges     edges.Repository
	config    *config.Config
	logger    logging.Logger
}

func NewTransferService(vault *VaultService, er entities.Repository, tr transfers.Repository, gr grants.Repository, ed edges.Repository, cfg *config.Config, logger logging.Logger) *TransferService {
	return &TransferService{
		vault:     vault,
		entities:  er,
		transfers: tr,
		grants:    gr,
		edges:     ed,
		config:    cfg,
		logger:    logger.With("module", "transfer_service"),
	}
}

// Transfer appends the sealed payloads for properties onto the target's
// log and records one ledger entry per property. A property with no
// matching payload is skipped and logged, never fatal to the batch.
// Removing the transferred properties from the caller's own log stays the
// caller's responsibility, so a partial failure loses nothing.
func (s *TransferService) Transfer(ctx context.Context, callerID, targetEntityID string, properties []string, payloads map[string][]byte, sealedKeyForSource, salt []byte) (*TransferResult, error) {
	if len(properties) == 0 {
		return nil, common.ErrorMissingPayload
	}
	if callerID == targetEntityID {
		return nil, common.ErrorForbidden
	}

	caller, err := s.entities.Get(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if caller.Role != models.RoleDoctor {
		return nil, common.ErrorInvalidRole
	}

	target, err := s.entities.Get(ctx, targetEntityID)
	if err != nil {
		return nil, err
	}
	if target.Role != models.RolePatient {
		return nil, common.ErrorInvalidRole
	}
	if target.PublicKey == "" {
		return nil, common.ErrorNoPublicKey
	}

	reciprocal := len(sealedKeyForSource) > 0

	result := &TransferResult{}
	for _, property := range properties {
		payload, ok := payloads[property]
		if !ok || len(payload) == 0 {
			s.logger.Warn(ctx, "transfer skipped property without payload", "from", callerID, "to", targetEntityID, "property", property)
			continue
		}

		env := envelope.Envelope{
			Version:    envelope.Version,
			Algorithm:  envelope.AlgSealedBox,
			Ciphertext: payload,
		}
		if _, err := s.vault.Append(ctx, targetEntityID, env, []string{property}); err != nil {
			s.logger.Error(ctx, "transfer append failed", "from", callerID, "to", targetEntityID, "property", property, "error", err.Error())
			continue
		}

		record := &models.TransferRecord{
			ID:               uuid.NewString(),
			RecordKey:        property,
			FromEntityID:     callerID,
			ToEntityID:       targetEntityID,
			TransferredAt:    time.Now().UTC(),
			AutoShareGranted: reciprocal,
		}
		if err := s.transfers.Create(ctx, record); err != nil {
			// The event is already on the target's log; the ledger entry
			// is what failed. Report the property as not transferred so
			// the caller retries and the ledger stays complete.
			s.logger.Error(ctx, "transfer ledger write failed", "from", callerID, "to", targetEntityID, "property", property, "error", err.Error())
			continue
		}

		result.Transferred = append(result.Transferred, property)
	}

	if reciprocal && len(result.Transferred) > 0 {
		code, err := s.grantReciprocal(ctx, callerID, targetEntityID, result.Transferred, sealedKeyForSource, salt)
		if err != nil {
			// Ownership already moved: the sealed boxes are on the
			// target's log and the ledger rows are written. Only the
			// read-back grant is missing, so the caller still gets the
			// transferred set and can safely delete its own copies.
			s.logger.Error(ctx, "reciprocal grant failed", "from", callerID, "to", targetEntityID, "error", err.Error())
		} else {
			result.ShareCode = code
		}
	}

	s.logger.Info(ctx, "transfer completed", "from", callerID, "to", targetEntityID, "transferred", len(result.Transferred), "requested", len(properties), "reciprocal", reciprocal)
	return result, nil
}

// grantReciprocal issues one share grant per transferred property, all
// under a single code the caller transcribes once. With more than one
// property each grant row is keyed code#property; the caller derives the
// keys from the bare code either way. The grant's disclosing side is the
// target entity, the new owner of the data.
func (s *TransferService) grantReciprocal(ctx context.Context, callerID, targetEntityID string, transferred []string, sealedKey, salt []byte) (string, error) {
	code, err := common.MakeShareCode(shareCodeLength)
	if err != nil {
		return "", fmt.Errorf("code generation: %w", err)
	}

	// A reciprocal grant is sealed under the caller's own master key and
	// has no code-derived salt. The salt column rejects NULL, so an
	// absent salt is stored as an empty value.
	if salt == nil {
		salt = []byte{}
	}

	for _, property := range transferred {
		grantCode := code
		if len(transferred) > 1 {
			grantCode = code + "#" + property
		}
		grant := &models.ShareGrant{
			Code:           grantCode,
			Kind:           models.GrantShare,
			SourceEntityID: targetEntityID,
			PropertyName:   property,
			SealedKey:      sealedKey,
			Salt:           salt,
			ExpiresAt:      time.Now().Add(s.config.TransferShareTTL),
			CreatedAt:      time.Now(),
		}
		if err := s.grants.Create(ctx, grant); err != nil {
			return "", fmt.Errorf("store reciprocal grant: %w", err)
		}

		if err := s.edges.Add(ctx, models.AccessEdge{
			EntityID:       callerID,
			Direction:      models.EdgeIncoming,
			CounterpartyID: targetEntityID,
			PropertyName:   property,
		}); err != nil {
			return "", fmt.Errorf("register incoming edge: %w", err)
		}
		if err := s.edges.Add(ctx, models.AccessEdge{
			EntityID:       targetEntityID,
			Direction:      models.EdgeOutgoing,
			CounterpartyID: callerID,
			PropertyName:   property,
		}); err != nil {
			return "", fmt.Errorf("register outgoing edge: %w", err)
		}
	}

	return code, nil
}

// Ledger returns the transfer records involving the entity on either
// side, newest first as stored.
func (s *TransferService) Ledger(ctx context.Context, entityID string) ([]models.TransferRecord, error) {
	return s.transfers.ListForEntity(ctx, entityID)
}
