package models

import (
	"time"

	"github.com/emezins/carevault/internal/envelope"
)

// EncryptedEvent is one immutable record in an entity's append-only log.
// The server assigns ID and Timestamp; Payload is stored and returned
// verbatim.
type EncryptedEvent struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   envelope.Envelope `json:"payload"`
}
