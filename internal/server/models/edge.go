package models

// EdgeDirection distinguishes the two sides of a disclosure relationship.
type EdgeDirection string

const (
	// EdgeOutgoing records "I disclosed this property to counterparty".
	EdgeOutgoing EdgeDirection = "outgoing"
	// EdgeIncoming records "counterparty disclosed this property to me".
	EdgeIncoming EdgeDirection = "incoming"
)

// AccessEdge is long-lived bookkeeping of a disclosure, distinct from the
// cryptographic capability itself. Removing an edge stops fan-out and UI
// visibility but cannot revoke a key a counterparty already unsealed.
type AccessEdge struct {
	EntityID       string
	Direction      EdgeDirection
	CounterpartyID string
	PropertyName   string
}
