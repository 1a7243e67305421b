package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/emezins/carevault/internal/client/api"
	"github.com/emezins/carevault/internal/client/projection"
	"github.com/emezins/carevault/internal/client/vault"
	"github.com/emezins/carevault/internal/common"
	"github.com/emezins/carevault/internal/envelope"
)

// Codes are minted client-side because the sealed capability is derived
// from the code itself; the server only ever stores the sealed half.
const shareCodeSize = 10

// Share mints a one-time code granting read access to one property.
func (a *App) Share(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Enter property name to share", os.Stdout)
	if err != nil {
		return err
	}

	// Replay first so the keyring holds the property key on a fresh
	// session.
	if _, err := a.refreshState(ctx); err != nil {
		log.Printf("error: %v", err)
		return err
	}
	if !a.session.HasPropertyKey(name) {
		fmt.Println("No such property")
		return nil
	}

	code, err := common.MakeShareCode(shareCodeSize)
	if err != nil {
		return err
	}
	sealedKey, salt, err := a.session.SealCapabilityForCode(name, code)
	if err != nil {
		return err
	}
	grant, err := a.api.IssueShare(ctx, code, name, sealedKey, salt, 0)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	audit, err := a.session.SealAudit(projection.Event{
		Type: projection.TypeShareCreated, PropertyName: name,
	})
	if err != nil {
		return err
	}
	if _, err := a.api.AppendEvent(ctx, audit, nil); err != nil {
		log.Printf("error: %v", err)
		return err
	}

	fmt.Printf("Share code: %s (expires %s)\n", grant.Code, grant.ExpiresAt.Format("2006-01-02 15:04"))
	return nil
}

// Redeem consumes a share code and installs the granted key. The key is
// re-sealed under the master key into the redeemer's own log so every
// later session rebuilds the capability from replay.
func (a *App) Redeem(ctx context.Context) error {
	code, err := getSimpleText(a.reader, "Enter share code", os.Stdout)
	if err != nil {
		return err
	}
	if _, err := a.refreshState(ctx); err != nil {
		log.Printf("error: %v", err)
		return err
	}

	redeemed, err := a.api.RedeemShare(ctx, code)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	key, err := a.openGrantKey(redeemed, code)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	defer common.WipeByteArray(key)

	accepted, err := a.session.RecordShareAccepted(redeemed.SourceEntityID, redeemed.PropertyName, key)
	if err != nil {
		return err
	}
	if _, err := a.api.AppendEvent(ctx, accepted, nil); err != nil {
		log.Printf("error: %v", err)
		return err
	}

	fmt.Printf("Access granted to %s from %s\n", redeemed.PropertyName, redeemed.SourceEntityID)
	return nil
}

// openGrantKey unseals a redeemed capability. A grant with a salt was
// sealed under its code; a grant without one is a transfer reciprocal
// whose key map this entity sealed under its own master key.
func (a *App) openGrantKey(redeemed *api.RedeemedShare, code string) ([]byte, error) {
	if len(redeemed.Salt) > 0 {
		return a.session.OpenCapability(redeemed.SealedKey, code, redeemed.Salt)
	}
	keys, err := a.session.OpenCapabilityMap(redeemed.SealedKey)
	if err != nil {
		return nil, err
	}
	key, ok := keys[redeemed.PropertyName]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return key, nil
}

// View replays a counterparty's log and prints the properties this
// entity holds keys for.
func (a *App) View(ctx context.Context) error {
	if _, err := a.refreshState(ctx); err != nil {
		log.Printf("error: %v", err)
		return err
	}

	sources := a.session.IncomingSources()
	if len(sources) == 0 {
		fmt.Println("No shared vaults")
		return nil
	}
	fmt.Printf("Shared vaults: %v\n", sources)

	source, err := getSimpleText(a.reader, "Enter source entity id", os.Stdout)
	if err != nil {
		return err
	}

	events, err := a.api.ReplayOf(ctx, source)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	envelopes := make([]envelope.Envelope, 0, len(events))
	for _, ev := range events {
		envelopes = append(envelopes, ev.Payload)
	}
	decrypted, _ := a.session.DecryptShared(source, envelopes)
	state := projection.Replay(decrypted)

	if len(state.Properties) == 0 {
		fmt.Println("Nothing readable in this vault")
		return nil
	}
	names := make([]string, 0, len(state.Properties))
	for name := range state.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s: %s\n", name, state.Properties[name])
	}
	return nil
}

// Invite mints a device-link code carrying this entity's master key,
// sealed under the code.
func (a *App) Invite(ctx context.Context) error {
	code, err := common.MakeShareCode(shareCodeSize)
	if err != nil {
		return err
	}
	sealedKey, salt := a.session.SealMasterForCode(code)
	grant, err := a.api.IssueInvite(ctx, code, sealedKey, salt, 0)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	fmt.Printf("Invite code: %s (expires %s)\n", grant.Code, grant.ExpiresAt.Format("2006-01-02 15:04"))
	return nil
}

// Link redeems an invite on this device: the credential rebinds to the
// inviting entity and the recovered master key is stored in the local
// keystore, sealed under the login key.
func (a *App) Link(ctx context.Context) error {
	code, err := getSimpleText(a.reader, "Enter invite code", os.Stdout)
	if err != nil {
		return err
	}
	invite, err := a.api.RedeemInvite(ctx, code)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	masterKey, err := vault.OpenMasterFromInvite(invite.SealedKey, code, invite.Salt)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	defer common.WipeByteArray(masterKey)

	if err := a.api.Rebind(ctx, a.credentialID, invite.EntityID); err != nil {
		log.Printf("error: %v", err)
		return err
	}
	if err := a.keystore.Save(a.credentialID, invite.EntityID, masterKey, a.loginKey); err != nil {
		log.Printf("keystore: %v", err)
		return err
	}

	// The token still names the old entity; a fresh login picks up the
	// keystore entry and acts as the linked one.
	credentialID := a.credentialID
	a.clearSession()
	fmt.Printf("Device linked to %s. Log in again as %s to continue.\n", invite.EntityID, credentialID)
	return nil
}
