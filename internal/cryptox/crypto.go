// Package cryptox implements the client-side cryptography of the vault:
// AES-GCM sealing of event payloads and property keys, argon2id key
// derivation for passphrases and share codes, and X25519 sealed boxes for
// ownership transfer. The server never calls into this package except to
// generate opaque material; all plaintext stays with key holders.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"

	"github.com/emezins/carevault/internal/common"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/box"
)

// MakeVerifier returns the SHA-256 digest of a master key. The verifier is
// what the server stores for login checks; the key itself never leaves the
// client.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// DeriveMasterKey stretches a passphrase into a 32-byte master key using
// argon2id with the given salt.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// DeriveCodeKey stretches a share code into a 32-byte sealing key. The salt
// is generated at issue time and travels with the grant; the code itself is
// the only secret.
func DeriveCodeKey(code string, salt []byte) []byte {
	return argon2.IDKey([]byte(code), salt, 1, 64*1024, 4, 32)
}

// Seal encrypts plaintext with AES-256-GCM under key. A fresh random
// 12-byte nonce is generated per call and returned alongside the
// ciphertext.
func Seal(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Open decrypts an AES-GCM ciphertext produced by Seal.
func Open(ciphertext, nonce, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return aesgcm.Open(nil, nonce, ciphertext, nil)
}

// SealJSON serializes v to JSON and encrypts it with AES-GCM under key.
func SealJSON(v any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	return Seal(plaintext, key)
}

// OpenJSON decrypts an AES-GCM ciphertext and unmarshals the plaintext
// into v.
func OpenJSON(ciphertext, nonce, key []byte, v any) error {
	plaintext, err := Open(ciphertext, nonce, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(plaintext, v)
}

// NewPropertyKey returns a fresh random 32-byte symmetric key for one
// property's event stream.
func NewPropertyKey() []byte {
	return common.GenerateRandByteArray(32)
}

// GenerateBoxKeyPair creates an X25519 key pair for sealed-box transfer
// encryption. The public key is returned base64-encoded, ready for
// registration with the server.
func GenerateBoxKeyPair() (publicKeyB64 string, privateKey *[32]byte, err error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return "", nil, err
	}
	return base64.StdEncoding.EncodeToString(pub[:]), priv, nil
}

// DeriveBoxKeyPair derives the X25519 transfer key pair from the master
// key. Any device holding the master key reconstructs the same pair, so
// sealed boxes stay readable across devices and restarts.
func DeriveBoxKeyPair(masterKey []byte) (publicKeyB64 string, privateKey *[32]byte, err error) {
	seed := argon2.IDKey(masterKey, []byte("box:transfer"), 1, 64*1024, 4, 32)
	pub, priv, err := box.GenerateKey(bytes.NewReader(seed))
	if err != nil {
		return "", nil, err
	}
	return base64.StdEncoding.EncodeToString(pub[:]), priv, nil
}

// SealForPublicKey encrypts plaintext so only the holder of the matching
// private key can open it. No shared nonce is required: the ephemeral key
// material is embedded in the sealed box.
func SealForPublicKey(plaintext []byte, publicKeyB64 string) ([]byte, error) {
	pub, err := decodeBoxKey(publicKeyB64)
	if err != nil {
		return nil, err
	}
	return box.SealAnonymous(nil, plaintext, pub, rand.Reader)
}

// OpenSealedBox decrypts a sealed box using the recipient's key pair.
func OpenSealedBox(sealed []byte, publicKeyB64 string, privateKey *[32]byte) ([]byte, error) {
	pub, err := decodeBoxKey(publicKeyB64)
	if err != nil {
		return nil, err
	}
	plaintext, ok := box.OpenAnonymous(nil, sealed, pub, privateKey)
	if !ok {
		return nil, errors.New("sealed box open failed")
	}
	return plaintext, nil
}

func decodeBoxKey(b64 string) (*[32]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, errors.New("invalid public key length")
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}
