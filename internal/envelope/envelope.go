// Package envelope defines the encrypted payload envelope shared by the
// client and the server. The server stores and forwards envelopes verbatim
// and never inspects the ciphertext.
package envelope

import (
	"github.com/emezins/carevault/internal/common"
)

// Supported algorithm tags. New algorithms get new tags so older readers
// can skip payloads they do not understand.
const (
	AlgAESGCM    = "aes-gcm"    // symmetric, 12-byte nonce present
	AlgSealedBox = "sealed-box" // X25519 anonymous box, no nonce
)

// Version is the current envelope format version.
const Version = 1

// Envelope is the tagged variant wrapping a ciphertext. Nonce is omitted
// for sealed-box payloads, where the ephemeral key material is embedded in
// the ciphertext itself.
type Envelope struct {
	Version    int    `json:"version"`
	Algorithm  string `json:"algorithm"`
	Nonce      []byte `json:"nonce,omitempty"`
	Ciphertext []byte `json:"ciphertext"`
}

// Validate checks the structural invariants of an envelope without looking
// at the ciphertext: a known algorithm tag, a nonce if and only if the
// algorithm needs one, and a non-empty ciphertext.
func (e *Envelope) Validate() error {
	if e.Version <= 0 || len(e.Ciphertext) == 0 {
		return common.ErrorInvalidEnvelope
	}
	switch e.Algorithm {
	case AlgAESGCM:
		if len(e.Nonce) == 0 {
			return common.ErrorInvalidEnvelope
		}
	case AlgSealedBox:
		if len(e.Nonce) != 0 {
			return common.ErrorInvalidEnvelope
		}
	default:
		return common.ErrorInvalidEnvelope
	}
	return nil
}
