package models

import "time"

// GrantKind distinguishes property shares from device-link invites.
type GrantKind string

const (
	// GrantShare seals a property-decryption capability.
	GrantShare GrantKind = "share"
	// GrantInvite seals an entity's master private key for linking a
	// second device to the same entity. PropertyName is empty.
	GrantInvite GrantKind = "invite"
)

// ShareGrant is a one-time, time-boxed capability exchange keyed by its
// code. For multi-property transfer shares the code carries a
// "#<property>" suffix. The row is deleted on redemption; expiry is
// enforced lazily at redemption time.
type ShareGrant struct {
	Code           string
	Kind           GrantKind
	SourceEntityID string
	PropertyName   string
	SealedKey      []byte
	Salt           []byte
	ExpiresAt      time.Time
	CreatedAt      time.Time
}

// Expired reports whether the grant's expiry lies before now.
func (g *ShareGrant) Expired(now time.Time) bool {
	return g.ExpiresAt.Before(now)
}
