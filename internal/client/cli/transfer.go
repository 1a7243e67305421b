package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/emezins/carevault/internal/client/projection"
	"github.com/emezins/carevault/internal/common"
)

// Transfer moves ownership of properties to a patient. Each value is
// re-encrypted under the target's public key before it leaves this
// device; on success the properties are deleted from this vault and any
// reciprocal read access is redeemed immediately.
func (a *App) Transfer(ctx context.Context) error {
	target, err := getSimpleText(a.reader, "Enter target entity id", os.Stdout)
	if err != nil {
		return err
	}
	propsLine, err := getSimpleText(a.reader, "Enter property names (comma separated)", os.Stdout)
	if err != nil {
		return err
	}
	keep, err := getSimpleText(a.reader, "Keep read access after transfer? (y/n)", os.Stdout)
	if err != nil {
		return err
	}

	state, err := a.refreshState(ctx)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	targetPublicKey, err := a.api.GetPublicKey(ctx, target)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	var properties []string
	payloads := make(map[string][]byte)
	for _, raw := range strings.Split(propsLine, ",") {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		value, ok := state.Properties[name]
		if !ok {
			fmt.Printf("Skipping %s: no such property\n", name)
			continue
		}
		payload, err := a.session.BuildTransferPayload(name, value, targetPublicKey)
		if err != nil {
			return err
		}
		properties = append(properties, name)
		payloads[name] = payload
	}
	if len(properties) == 0 {
		fmt.Println("Nothing to transfer")
		return nil
	}

	var sealedKeyForSource []byte
	if strings.EqualFold(keep, "y") {
		sealedKeyForSource, err = a.session.SealCapabilityMapForSelf(properties)
		if err != nil {
			return err
		}
	}

	result, err := a.api.Transfer(ctx, target, properties, payloads, sealedKeyForSource, nil)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	// The server never touches this entity's own log; the transferred
	// properties are removed here, after the batch landed.
	for _, name := range result.Transferred {
		if err := a.appendProperty(ctx, projection.Event{
			Type: projection.TypePropertyDeleted, Key: name,
		}); err != nil {
			log.Printf("removing %s after transfer: %v", name, err)
		}
	}

	if result.ShareCode != "" {
		a.redeemReciprocal(ctx, target, result.Transferred, result.ShareCode)
	}

	fmt.Printf("Transferred %d of %d properties to %s\n", len(result.Transferred), len(properties), target)
	return nil
}

// redeemReciprocal consumes the reciprocal grants minted during a
// transfer. With several properties each grant row is keyed
// code#property; failures only cost the read-back access, never the
// transfer itself.
func (a *App) redeemReciprocal(ctx context.Context, target string, transferred []string, code string) {
	for _, name := range transferred {
		grantCode := code
		if len(transferred) > 1 {
			grantCode = code + "#" + name
		}
		redeemed, err := a.api.RedeemShare(ctx, grantCode)
		if err != nil {
			log.Printf("reciprocal access to %s: %v", name, err)
			continue
		}
		key, err := a.openGrantKey(redeemed, code)
		if err != nil {
			log.Printf("reciprocal access to %s: %v", name, err)
			continue
		}
		accepted, err := a.session.RecordShareAccepted(target, name, key)
		common.WipeByteArray(key)
		if err != nil {
			log.Printf("reciprocal access to %s: %v", name, err)
			continue
		}
		if _, err := a.api.AppendEvent(ctx, accepted, nil); err != nil {
			log.Printf("reciprocal access to %s: %v", name, err)
		}
	}
}

// Ledger prints the transfer records involving this entity.
func (a *App) Ledger(ctx context.Context) error {
	entries, err := a.api.TransferLedger(ctx)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No transfers recorded")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s: %s -> %s at %s (reciprocal access: %t)\n",
			e.RecordKey, e.FromEntityID, e.ToEntityID,
			e.TransferredAt.Format("2006-01-02 15:04"), e.AutoShareGranted)
	}
	return nil
}
