// Package vault holds the client-side key material of one login session
// and turns plaintext log entries into the opaque envelopes the server
// stores. Property keys are random and travel only inside sealed
// capabilities; the master key never leaves the client except sealed
// into a device-link invite.
package vault

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/emezins/carevault/internal/client/projection"
	"github.com/emezins/carevault/internal/common"
	"github.com/emezins/carevault/internal/cryptox"
	"github.com/emezins/carevault/internal/envelope"
)

const (
	keySize  = 32
	saltSize = 16
)

// Session is the in-memory keyring of a logged-in entity: the master
// key, the derived transfer key pair, the keys of owned properties and
// the capabilities redeemed from other entities. All key material is
// wiped on Close.
type Session struct {
	entityID  string
	masterKey []byte
	boxPub    string
	boxPriv   *[32]byte

	mu       sync.Mutex
	own      map[string][]byte
	incoming map[string]map[string][]byte
}

func NewSession(entityID string, masterKey []byte) (*Session, error) {
	pub, priv, err := cryptox.DeriveBoxKeyPair(masterKey)
	if err != nil {
		return nil, fmt.Errorf("derive transfer pair: %w", err)
	}
	return &Session{
		entityID:  entityID,
		masterKey: masterKey,
		boxPub:    pub,
		boxPriv:   priv,
		own:       make(map[string][]byte),
		incoming:  make(map[string]map[string][]byte),
	}, nil
}

func (s *Session) EntityID() string {
	return s.entityID
}

// PublicKey is the base64 transfer public key, ready for registration
// with the server.
func (s *Session) PublicKey() string {
	return s.boxPub
}

// Close wipes every key the session holds.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	common.WipeByteArray(s.masterKey)
	common.WipeByteArray(s.boxPriv[:])
	for _, key := range s.own {
		common.WipeByteArray(key)
	}
	for _, keys := range s.incoming {
		for _, key := range keys {
			common.WipeByteArray(key)
		}
	}
	s.own = make(map[string][]byte)
	s.incoming = make(map[string]map[string][]byte)
}

func sealWith(key []byte, ev projection.Event) (envelope.Envelope, error) {
	ciphertext, nonce, err := cryptox.SealJSON(ev, key)
	if err != nil {
		return envelope.Envelope{}, err
	}
	return envelope.Envelope{
		Version:    envelope.Version,
		Algorithm:  envelope.AlgAESGCM,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}

// SealAudit seals an informational event under the master key. Only the
// entity's own devices can read these.
func (s *Session) SealAudit(ev projection.Event) (envelope.Envelope, error) {
	return sealWith(s.masterKey, ev)
}

// EnsurePropertyKey mints a key for a property on first use. The
// returned envelope, when present, is the master-sealed catalog entry
// that must be appended to the log so other devices learn the key.
func (s *Session) EnsurePropertyKey(name string) (*envelope.Envelope, error) {
	s.mu.Lock()
	_, ok := s.own[name]
	if !ok {
		s.own[name] = cryptox.NewPropertyKey()
	}
	key := s.own[name]
	s.mu.Unlock()
	if ok {
		return nil, nil
	}

	catalog, err := s.SealAudit(projection.Event{
		Type:  projection.TypePropertyKeyAdded,
		Key:   name,
		Value: base64.StdEncoding.EncodeToString(key),
	})
	if err != nil {
		return nil, err
	}
	return &catalog, nil
}

// HasPropertyKey reports whether the session owns a key for the property.
func (s *Session) HasPropertyKey(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.own[name]
	return ok
}

// SealProperty seals a property-touching event under that property's
// key, so holders of the shared capability can read it.
func (s *Session) SealProperty(ev projection.Event) (envelope.Envelope, error) {
	s.mu.Lock()
	key, ok := s.own[ev.Key]
	s.mu.Unlock()
	if !ok {
		return envelope.Envelope{}, fmt.Errorf("no key for property %q", ev.Key)
	}
	return sealWith(key, ev)
}

// SealCapabilityForCode seals a property key under a share code for an
// ad hoc grant. The salt is fresh per call and travels with the grant;
// the code stays the only secret.
func (s *Session) SealCapabilityForCode(name, code string) (sealedKey, salt []byte, err error) {
	s.mu.Lock()
	key, ok := s.own[name]
	s.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("no key for property %q", name)
	}
	salt = common.GenerateRandByteArray(saltSize)
	return sealCapability(key, cryptox.DeriveCodeKey(code, salt)), salt, nil
}

// SealCapabilityForSelf seals a property key under the session's own
// master key. Used for the reciprocal grant of a transfer, where the
// redeemer is the issuer itself and no code-derived key is needed.
func (s *Session) SealCapabilityForSelf(name string) ([]byte, error) {
	s.mu.Lock()
	key, ok := s.own[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no key for property %q", name)
	}
	return sealCapability(key, s.masterKey), nil
}

func sealCapability(plaintext, key []byte) []byte {
	ciphertext, nonce, err := cryptox.Seal(plaintext, key)
	if err != nil {
		// Seal only fails on malformed key material, which both call
		// sites construct at a fixed size.
		panic(err)
	}
	data, err := json.Marshal(envelope.Envelope{
		Version:    envelope.Version,
		Algorithm:  envelope.AlgAESGCM,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	})
	if err != nil {
		panic(err)
	}
	return data
}

func openCapability(sealed, key []byte) ([]byte, error) {
	var env envelope.Envelope
	if err := json.Unmarshal(sealed, &env); err != nil {
		return nil, fmt.Errorf("capability envelope: %w", err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return cryptox.Open(env.Ciphertext, env.Nonce, key)
}

// OpenCapability unseals a redeemed capability. Grants with a salt were
// sealed under the code; reciprocal transfer grants carry no salt and
// open with the session's master key.
func (s *Session) OpenCapability(sealed []byte, code string, salt []byte) ([]byte, error) {
	if len(salt) > 0 {
		return openCapability(sealed, cryptox.DeriveCodeKey(code, salt))
	}
	return openCapability(sealed, s.masterKey)
}

// SealCapabilityMapForSelf bundles the keys of several owned properties
// into one master-sealed blob. A multi-property transfer mints one grant
// per property but every grant carries the same blob; the redeemer picks
// the key its grant names.
func (s *Session) SealCapabilityMapForSelf(names []string) ([]byte, error) {
	keys := make(map[string][]byte, len(names))
	s.mu.Lock()
	for _, name := range names {
		key, ok := s.own[name]
		if !ok {
			s.mu.Unlock()
			return nil, fmt.Errorf("no key for property %q", name)
		}
		keys[name] = key
	}
	s.mu.Unlock()

	plain, err := json.Marshal(keys)
	if err != nil {
		return nil, err
	}
	return sealCapability(plain, s.masterKey), nil
}

// OpenCapabilityMap unseals a bundled capability with the master key.
func (s *Session) OpenCapabilityMap(sealed []byte) (map[string][]byte, error) {
	plain, err := openCapability(sealed, s.masterKey)
	if err != nil {
		return nil, err
	}
	keys := make(map[string][]byte)
	if err := json.Unmarshal(plain, &keys); err != nil {
		return nil, fmt.Errorf("capability bundle: %w", err)
	}
	return keys, nil
}

// SealBlob seals raw attachment bytes under a property's key. The result
// is a self-describing envelope, ready for object storage.
func (s *Session) SealBlob(name string, data []byte) ([]byte, error) {
	s.mu.Lock()
	key, ok := s.own[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no key for property %q", name)
	}
	return sealCapability(data, key), nil
}

// OpenBlob opens attachment bytes sealed with SealBlob.
func (s *Session) OpenBlob(name string, sealed []byte) ([]byte, error) {
	s.mu.Lock()
	key, ok := s.own[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no key for property %q", name)
	}
	return openCapability(sealed, key)
}

// RecordShareAccepted installs a redeemed capability and returns the
// master-sealed log entry that makes it durable: replaying the own log
// restores the keyring on any device.
func (s *Session) RecordShareAccepted(source, name string, key []byte) (envelope.Envelope, error) {
	s.mu.Lock()
	if s.incoming[source] == nil {
		s.incoming[source] = make(map[string][]byte)
	}
	s.incoming[source][name] = key
	s.mu.Unlock()

	return s.SealAudit(projection.Event{
		Type:           projection.TypeShareAccepted,
		PropertyName:   name,
		CounterpartyID: source,
		Value:          base64.StdEncoding.EncodeToString(key),
	})
}

// IncomingSources lists the entities the session holds capabilities
// from, sorted for stable display.
func (s *Session) IncomingSources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sources := make([]string, 0, len(s.incoming))
	for source := range s.incoming {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	return sources
}

// SealMasterForCode seals the master key under an invite code for
// linking another device to this entity.
func (s *Session) SealMasterForCode(code string) (sealedKey, salt []byte) {
	salt = common.GenerateRandByteArray(saltSize)
	return sealCapability(s.masterKey, cryptox.DeriveCodeKey(code, salt)), salt
}

// OpenMasterFromInvite unseals an invited entity's master key. It runs
// before any session exists on the redeeming device.
func OpenMasterFromInvite(sealed []byte, code string, salt []byte) ([]byte, error) {
	return openCapability(sealed, cryptox.DeriveCodeKey(code, salt))
}

// transferPayload is the plaintext inside a sealed-box transfer event:
// the property value plus the key that protects its stream, so the new
// owner keeps authoring under the same key and the reciprocal share
// stays readable.
type transferPayload struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	PropertyKey []byte `json:"propertyKey,omitempty"`
}

// BuildTransferPayload seals one property's value and key to the
// target's public key. Only the target's private key can open it.
func (s *Session) BuildTransferPayload(name, value, targetPublicKey string) ([]byte, error) {
	s.mu.Lock()
	key, ok := s.own[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no key for property %q", name)
	}
	plain, err := json.Marshal(transferPayload{Key: name, Value: value, PropertyKey: key})
	if err != nil {
		return nil, err
	}
	return cryptox.SealForPublicKey(plain, targetPublicKey)
}

// OpenOwnEvent opens one envelope from the entity's own log. Sealed
// boxes open with the derived transfer pair and adopt the delivered
// property key; everything else opens with the master key or an owned
// property key. The keyring grows as catalog and share-accepted entries
// decrypt.
func (s *Session) OpenOwnEvent(env envelope.Envelope) (projection.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openOwnLocked(env)
}

func (s *Session) openOwnLocked(env envelope.Envelope) (projection.Event, bool) {
	if env.Algorithm == envelope.AlgSealedBox {
		plain, err := cryptox.OpenSealedBox(env.Ciphertext, s.boxPub, s.boxPriv)
		if err != nil {
			return projection.Event{}, false
		}
		var tp transferPayload
		if err := json.Unmarshal(plain, &tp); err != nil {
			return projection.Event{}, false
		}
		if len(tp.PropertyKey) == keySize {
			s.own[tp.Key] = tp.PropertyKey
		}
		return projection.Event{Type: projection.TypePropertySet, Key: tp.Key, Value: tp.Value}, true
	}

	var ev projection.Event
	if err := cryptox.OpenJSON(env.Ciphertext, env.Nonce, s.masterKey, &ev); err == nil {
		s.absorbLocked(ev)
		return ev, true
	}
	for _, key := range s.own {
		if err := cryptox.OpenJSON(env.Ciphertext, env.Nonce, key, &ev); err == nil {
			return ev, true
		}
	}
	return projection.Event{}, false
}

// absorbLocked grows the keyring from key material embedded in
// master-sealed entries.
func (s *Session) absorbLocked(ev projection.Event) {
	switch ev.Type {
	case projection.TypePropertyKeyAdded:
		if key, err := base64.StdEncoding.DecodeString(ev.Value); err == nil && len(key) == keySize {
			s.own[ev.Key] = key
		}
	case projection.TypeShareAccepted:
		if ev.Value == "" || ev.CounterpartyID == "" {
			return
		}
		if key, err := base64.StdEncoding.DecodeString(ev.Value); err == nil && len(key) == keySize {
			if s.incoming[ev.CounterpartyID] == nil {
				s.incoming[ev.CounterpartyID] = make(map[string][]byte)
			}
			s.incoming[ev.CounterpartyID][ev.PropertyName] = key
		}
	}
}

// DecryptOwn opens the entity's own replayed log in order. Envelopes no
// available key opens are skipped and counted; order is preserved, so
// catalog entries decrypt before the streams they unlock.
func (s *Session) DecryptOwn(envelopes []envelope.Envelope) (events []projection.Event, skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, env := range envelopes {
		ev, ok := s.openOwnLocked(env)
		if !ok {
			skipped++
			continue
		}
		events = append(events, ev)
	}
	return events, skipped
}

// OpenSharedEvent opens one envelope from another entity's stream using
// the capability redeemed from it.
func (s *Session) OpenSharedEvent(source, propertyName string, env envelope.Envelope) (projection.Event, error) {
	s.mu.Lock()
	key, ok := s.incoming[source][propertyName]
	s.mu.Unlock()
	if !ok {
		return projection.Event{}, fmt.Errorf("no capability for %q from %s", propertyName, source)
	}
	var ev projection.Event
	if err := cryptox.OpenJSON(env.Ciphertext, env.Nonce, key, &ev); err != nil {
		return projection.Event{}, err
	}
	return ev, nil
}

// DecryptShared opens the subset of a source's replayed log sealed
// under capabilities redeemed from it. Everything else in the log stays
// opaque and is counted as skipped.
func (s *Session) DecryptShared(source string, envelopes []envelope.Envelope) (events []projection.Event, skipped int) {
	s.mu.Lock()
	keys := make([][]byte, 0, len(s.incoming[source]))
	for _, key := range s.incoming[source] {
		keys = append(keys, key)
	}
	s.mu.Unlock()

	for _, env := range envelopes {
		if env.Algorithm != envelope.AlgAESGCM {
			skipped++
			continue
		}
		opened := false
		var ev projection.Event
		for _, key := range keys {
			if err := cryptox.OpenJSON(env.Ciphertext, env.Nonce, key, &ev); err == nil {
				opened = true
				break
			}
		}
		if !opened {
			skipped++
			continue
		}
		events = append(events, ev)
	}
	return events, skipped
}
