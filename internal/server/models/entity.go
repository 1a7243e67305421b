// Package models contains the server-side persistence types. None of them
// ever carry plaintext vault content.
package models

import "time"

// Role of a vault owner. Immutable after first assignment.
type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// ValidRole reports whether r is a known role.
func ValidRole(r Role) bool {
	return r == RoleDoctor || r == RolePatient
}

// Entity is a vault owner. PublicKey is the base64 X25519 key used only
// for transfer sealed boxes; it is empty until the client registers one.
type Entity struct {
	ID        string
	Role      Role
	PublicKey string
	CreatedAt time.Time
}

// CredentialBinding maps one external credential identifier to exactly one
// entity. Salt and Verifier carry the login material: the client derives
// its master key from a passphrase and the salt, and proves knowledge of
// it via the verifier.
type CredentialBinding struct {
	CredentialID string
	EntityID     string
	Salt         []byte
	Verifier     []byte
	CreatedAt    time.Time
}
