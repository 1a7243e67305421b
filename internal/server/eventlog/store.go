// Package eventlog implements the per-entity append-only encrypted event
// store. The server is content-blind: payloads are opaque envelopes that
// are persisted and replayed verbatim.
package eventlog

import (
	"context"

	"github.com/emezins/carevault/internal/envelope"
	"github.com/emezins/carevault/internal/server/models"
)

// Store persists one append-only log of encrypted events per entity.
//
// Appends for the same entity are strictly serialized; appends to
// different entities proceed in parallel. Any holder of a valid append
// capability may extend a log, not only its owner: the ownership-transfer
// flow appends to the target's log and simply joins the same per-entity
// queue.
type Store interface {
	// Append assigns a unique id and timestamp, persists the event after
	// all prior appends for that entity, and returns it.
	Append(ctx context.Context, entityID string, payload envelope.Envelope) (*models.EncryptedEvent, error)

	// Read returns the full ordered log for the entity. A missing log is
	// an empty log, not an error.
	Read(ctx context.Context, entityID string) ([]models.EncryptedEvent, error)

	// Purge removes the entity's log namespace. Used by vault reset.
	Purge(ctx context.Context, entityID string) error
}
