package vault

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/emezins/carevault/internal/common"
	"github.com/emezins/carevault/internal/cryptox"
	"github.com/emezins/carevault/internal/envelope"
)

// Keystore persists the master keys of linked entities, each sealed
// under the owning credential's login key. A primary device never needs
// an entry: its login key is the master key. Linked devices write one
// after redeeming an invite so later logins can restore the session
// without a fresh invite.
type Keystore struct {
	path string
}

type keystoreEntry struct {
	EntityID string            `json:"entityId"`
	Sealed   envelope.Envelope `json:"sealed"`
}

type keystoreFile struct {
	Entries map[string]keystoreEntry `json:"entries"`
}

func NewKeystore(path string) *Keystore {
	return &Keystore{path: path}
}

func (k *Keystore) read() (*keystoreFile, error) {
	data, err := os.ReadFile(k.path)
	if os.IsNotExist(err) {
		return &keystoreFile{Entries: make(map[string]keystoreEntry)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}
	var file keystoreFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse keystore: %w", err)
	}
	if file.Entries == nil {
		file.Entries = make(map[string]keystoreEntry)
	}
	return &file, nil
}

// Save seals masterKey under loginKey and stores it for the credential,
// replacing any previous entry.
func (k *Keystore) Save(credentialID, entityID string, masterKey, loginKey []byte) error {
	file, err := k.read()
	if err != nil {
		return err
	}

	ciphertext, nonce, err := cryptox.Seal(masterKey, loginKey)
	if err != nil {
		return fmt.Errorf("seal master key: %w", err)
	}
	file.Entries[credentialID] = keystoreEntry{
		EntityID: entityID,
		Sealed: envelope.Envelope{
			Version:    envelope.Version,
			Algorithm:  envelope.AlgAESGCM,
			Nonce:      nonce,
			Ciphertext: ciphertext,
		},
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(k.path, data, 0o600); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	return nil
}

// Load unseals the credential's master key with loginKey. A missing
// entry returns ErrorNotFound, which callers treat as "primary device".
func (k *Keystore) Load(credentialID string, loginKey []byte) (entityID string, masterKey []byte, err error) {
	file, err := k.read()
	if err != nil {
		return "", nil, err
	}
	entry, ok := file.Entries[credentialID]
	if !ok {
		return "", nil, common.ErrorNotFound
	}
	masterKey, err = cryptox.Open(entry.Sealed.Ciphertext, entry.Sealed.Nonce, loginKey)
	if err != nil {
		return "", nil, fmt.Errorf("unseal master key: %w", err)
	}
	return entry.EntityID, masterKey, nil
}

// Delete removes the credential's entry if present.
func (k *Keystore) Delete(credentialID string) error {
	file, err := k.read()
	if err != nil {
		return err
	}
	if _, ok := file.Entries[credentialID]; !ok {
		return nil
	}
	delete(file.Entries, credentialID)
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(k.path, data, 0o600)
}
