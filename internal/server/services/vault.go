// Package services implements the server-side protocol operations on top
// of the repositories and the event log store. The services never see
// plaintext: every payload that passes through here is an opaque envelope.
package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/emezins/carevault/internal/common"
	"github.com/emezins/carevault/internal/envelope"
	"github.com/emezins/carevault/internal/logging"
	"github.com/emezins/carevault/internal/server/eventlog"
	"github.com/emezins/carevault/internal/server/models"
	"github.com/emezins/carevault/internal/server/pubsub"
	"github.com/emezins/carevault/internal/server/repositories/edges"
	"github.com/emezins/carevault/internal/server/repositories/entities"
)

// EntityTopic is the pub/sub topic carrying live pushes for one entity's
// room.
func EntityTopic(entityID string) string {
	return "entity:" + entityID
}

// EventMessage is the wire shape of a live push. SourceEntityID and
// PropertyName are set only on shared-event forwards, where the event
// originates from another entity's log.
type EventMessage struct {
	Type           string                `json:"type"` // "event" or "shared_event"
	SourceEntityID string                `json:"sourceEntityId,omitempty"`
	PropertyName   string                `json:"propertyName,omitempty"`
	Event          models.EncryptedEvent `json:"event"`
}

// VaultService owns appends and replays of the per-entity encrypted
// logs, and the real-time fan-out that observes every append.
type VaultService struct {
	log      eventlog.Store
	entities entities.Repository
	edges    edges.Repository
	broker   pubsub.Broker
	logger   logging.Logger
}

func NewVaultService(log eventlog.Store, er entities.Repository, ed edges.Repository, broker pubsub.Broker, logger logging.Logger) *VaultService {
	return &VaultService{
		log:      log,
		entities: er,
		edges:    ed,
		broker:   broker,
		logger:   logger.With("module", "vault_service"),
	}
}

// Append persists one encrypted event onto the entity's log and fans it
// out. hints optionally names the properties the event touches; only
// hinted properties are forwarded to share counterparties, since the
// server cannot read the ciphertext to find out itself.
func (s *VaultService) Append(ctx context.Context, entityID string, payload envelope.Envelope, hints []string) (*models.EncryptedEvent, error) {
	if _, err := s.entities.Get(ctx, entityID); err != nil {
		return nil, err
	}

	event, err := s.log.Append(ctx, entityID, payload)
	if err != nil {
		return nil, fmt.Errorf("append: %w", err)
	}

	s.fanOut(ctx, entityID, event, hints)

	return event, nil
}

// Replay returns the entity's full ordered log.
func (s *VaultService) Replay(ctx context.Context, entityID string) ([]models.EncryptedEvent, error) {
	if _, err := s.entities.Get(ctx, entityID); err != nil {
		return nil, err
	}
	return s.log.Read(ctx, entityID)
}

// ReplayShared returns another entity's full log to a caller holding at
// least one incoming disclosure from it. The log stays opaque: the caller
// can only decrypt the streams it was granted a capability for.
func (s *VaultService) ReplayShared(ctx context.Context, callerID, sourceEntityID string) ([]models.EncryptedEvent, error) {
	if callerID == sourceEntityID {
		return s.Replay(ctx, callerID)
	}

	incoming, err := s.edges.List(ctx, callerID, models.EdgeIncoming)
	if err != nil {
		return nil, fmt.Errorf("edge lookup: %w", err)
	}

	allowed := false
	for _, edge := range incoming {
		if edge.CounterpartyID == sourceEntityID {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, common.ErrorForbidden
	}

	return s.Replay(ctx, sourceEntityID)
}

// fanOut broadcasts the event to the originating entity's room and, for
// every outgoing access edge whose property matches a hint, forwards the
// same ciphertext to the counterparty's room. Fan-out never carries
// capabilities and is best-effort: failures are logged, not returned.
func (s *VaultService) fanOut(ctx context.Context, entityID string, event *models.EncryptedEvent, hints []string) {
	s.publish(ctx, EntityTopic(entityID), EventMessage{Type: "event", Event: *event})

	if len(hints) == 0 {
		return
	}

	outgoing, err := s.edges.List(ctx, entityID, models.EdgeOutgoing)
	if err != nil {
		s.logger.Warn(ctx, "fan-out edge lookup failed", "entity", entityID, "error", err.Error())
		return
	}

	hinted := make(map[string]struct{}, len(hints))
	for _, h := range hints {
		hinted[h] = struct{}{}
	}

	for _, edge := range outgoing {
		if _, ok := hinted[edge.PropertyName]; !ok {
			continue
		}
		s.publish(ctx, EntityTopic(edge.CounterpartyID), EventMessage{
			Type:           "shared_event",
			SourceEntityID: entityID,
			PropertyName:   edge.PropertyName,
			Event:          *event,
		})
	}
}

func (s *VaultService) publish(ctx context.Context, topic string, msg EventMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error(ctx, "fan-out marshal failed", "error", err.Error())
		return
	}
	if err := s.broker.Publish(ctx, topic, data); err != nil {
		s.logger.Warn(ctx, "fan-out publish failed", "topic", topic, "error", err.Error())
	}
}
