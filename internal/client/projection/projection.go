// Package projection folds a decrypted event sequence into the current
// property state. The fold runs entirely client-side; the server never
// holds the plaintext events this package consumes.
package projection

// Event types understood by the fold. Anything else is kept in the audit
// trail untouched so newer writers do not break older readers.
const (
	TypeEntityCreated   = "EntityCreated"
	TypePropertySet     = "PropertySet"
	TypePropertyDeleted = "PropertyDeleted"
	TypeRecordRenamed   = "RecordRenamed"
	TypeShareCreated    = "ShareCreated"
	TypeShareAccepted   = "ShareAccepted"
	TypeShareRevoked    = "ShareRevoked"

	// TypePropertyKeyAdded records new key material in the owner's log.
	// The fold keeps it out of the property map and strips the material
	// from the audit trail.
	TypePropertyKeyAdded = "PropertyKeyAdded"
)

// Event is one decrypted log entry. Only Type is always set; the other
// fields depend on it.
type Event struct {
	Type           string `json:"type"`
	Key            string `json:"key,omitempty"`
	Value          string `json:"value,omitempty"`
	OldName        string `json:"oldName,omitempty"`
	NewName        string `json:"newName,omitempty"`
	PropertyName   string `json:"propertyName,omitempty"`
	CounterpartyID string `json:"counterpartyId,omitempty"`
}

// AuditEntry is one informational line in the trail: renames and share
// lifecycle events that never mutate property state.
type AuditEntry struct {
	Type           string
	Key            string
	OldName        string
	NewName        string
	PropertyName   string
	CounterpartyID string
}

// Projection is the derived state: the latest value per property plus
// the audit trail, in event order.
type Projection struct {
	Properties map[string]string
	Audit      []AuditEntry
}

func New() *Projection {
	return &Projection{Properties: make(map[string]string)}
}

// Apply folds one event. Later events for the same key supersede earlier
// ones; informational events only extend the audit trail.
func (p *Projection) Apply(event Event) {
	switch event.Type {
	case TypeEntityCreated:
		p.Properties = make(map[string]string)

	case TypePropertySet:
		p.Properties[event.Key] = event.Value

	case TypePropertyDeleted:
		delete(p.Properties, event.Key)

	case TypeRecordRenamed:
		// The value already moved via a preceding PropertySet; only the
		// trail records the rename.
		p.Audit = append(p.Audit, AuditEntry{
			Type:    event.Type,
			Key:     event.Key,
			OldName: event.OldName,
			NewName: event.NewName,
		})

	case TypeShareCreated, TypeShareAccepted, TypeShareRevoked:
		p.Audit = append(p.Audit, AuditEntry{
			Type:           event.Type,
			PropertyName:   event.PropertyName,
			CounterpartyID: event.CounterpartyID,
		})

	default:
		p.Audit = append(p.Audit, AuditEntry{Type: event.Type, Key: event.Key})
	}
}

// Replay folds an ordered sequence from scratch. Replaying the same
// prefix always yields the same state.
func Replay(events []Event) *Projection {
	p := New()
	for _, event := range events {
		p.Apply(event)
	}
	return p
}
