package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/emezins/carevault/internal/client/projection"
	"github.com/emezins/carevault/internal/client/vault"
	"github.com/emezins/carevault/internal/common"
	"github.com/emezins/carevault/internal/cryptox"
)

// getSimpleText and getPassword are indirections used to facilitate
// testing.
var getSimpleText = GetSimpleText
var getPassword = GetPassword
var getMultiline = GetMultiline

const loginSaltSize = 16

// Register creates an account: a fresh salt and a master key derived
// from the passphrase, of which the server only ever sees a verifier.
// On success the session starts immediately and the entity's log opens
// with its creation event.
func (a *App) Register(ctx context.Context) error {
	credentialID, err := getSimpleText(a.reader, "Enter credential id (email or device id)", os.Stdout)
	if err != nil {
		return err
	}
	role, err := getSimpleText(a.reader, "Enter role (doctor or patient)", os.Stdout)
	if err != nil {
		return err
	}
	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	salt := common.GenerateRandByteArray(loginSaltSize)
	masterKey := cryptox.DeriveMasterKey(password, salt)
	verifier := cryptox.MakeVerifier(masterKey)

	entityID, err := a.api.Register(ctx, credentialID, salt, verifier, role)
	if err != nil {
		log.Printf("Registration unsuccessful: %s", err.Error())
		return err
	}
	if err := a.api.Login(ctx, credentialID, verifier); err != nil {
		log.Printf("Login after registration unsuccessful: %s", err.Error())
		return err
	}

	if err := a.startSession(ctx, credentialID, entityID, masterKey, masterKey); err != nil {
		return err
	}

	created, err := a.session.SealAudit(projection.Event{Type: projection.TypeEntityCreated})
	if err != nil {
		return err
	}
	if _, err := a.api.AppendEvent(ctx, created, nil); err != nil {
		log.Printf("error: %v", err)
		return err
	}

	fmt.Printf("Registered as %s\n", entityID)
	return nil
}

// Login authenticates with the passphrase-derived verifier and opens a
// session. A keystore entry (written by a previous device link) makes
// the session act as the linked entity instead of the credential's own.
func (a *App) Login(ctx context.Context) error {
	credentialID, err := getSimpleText(a.reader, "Enter credential id", os.Stdout)
	if err != nil {
		return err
	}
	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	salt, err := a.api.GetSalt(ctx, credentialID)
	if err != nil {
		log.Printf("Login unsuccessful: %s", err.Error())
		return err
	}
	loginKey := cryptox.DeriveMasterKey(password, salt)
	verifier := cryptox.MakeVerifier(loginKey)

	if err := a.api.Login(ctx, credentialID, verifier); err != nil {
		log.Printf("Login unsuccessful: %s", err.Error())
		return err
	}

	masterKey := loginKey
	entityID, linkedKey, err := a.keystore.Load(credentialID, loginKey)
	switch {
	case err == nil:
		masterKey = linkedKey
	case errors.Is(err, common.ErrorNotFound):
		me, err := a.api.Me(ctx)
		if err != nil {
			return err
		}
		entityID = me.EntityID
	default:
		log.Printf("keystore: %v", err)
		return err
	}

	if err := a.startSession(ctx, credentialID, entityID, masterKey, loginKey); err != nil {
		return err
	}
	log.Printf("Login successful")
	return nil
}

// startSession builds the keyring session and registers the transfer
// public key if the entity has none yet.
func (a *App) startSession(ctx context.Context, credentialID, entityID string, masterKey, loginKey []byte) error {
	session, err := vault.NewSession(entityID, masterKey)
	if err != nil {
		return err
	}
	a.session = session
	a.credentialID = credentialID
	a.loginKey = append([]byte(nil), loginKey...)

	me, err := a.api.Me(ctx)
	if err != nil {
		return err
	}
	if me.PublicKey == "" {
		if err := a.api.SetPublicKey(ctx, session.PublicKey()); err != nil {
			log.Printf("public key registration: %v", err)
		}
	}
	return nil
}

// Logout drops the session and all in-memory key material.
func (a *App) Logout(ctx context.Context) error {
	a.clearSession()
	fmt.Println("Logged out")
	return nil
}

// Reset purges the entity's vault server-side: the log, grants, edges,
// ledger entries and the credential bindings. Irrevocable.
func (a *App) Reset(ctx context.Context) error {
	confirm, err := getSimpleText(a.reader, "Type 'reset' to wipe this vault permanently", os.Stdout)
	if err != nil {
		return err
	}
	if confirm != "reset" {
		fmt.Println("Aborted")
		return nil
	}
	if err := a.api.Reset(ctx); err != nil {
		log.Printf("error: %v", err)
		return err
	}
	_ = a.keystore.Delete(a.credentialID)
	a.clearSession()
	fmt.Println("Vault wiped")
	return nil
}
