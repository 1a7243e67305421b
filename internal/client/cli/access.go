package cli

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/emezins/carevault/internal/client/projection"
)

// Access prints the registry of who can read this vault and whose
// vaults this entity can read.
func (a *App) Access(ctx context.Context) error {
	outgoing, err := a.api.ListAccess(ctx, "outgoing")
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	incoming, err := a.api.ListAccess(ctx, "incoming")
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	fmt.Println("Can read my vault:")
	if len(outgoing) == 0 {
		fmt.Println("  (nobody)")
	}
	for _, e := range outgoing {
		fmt.Printf("  %s: %s\n", e.CounterpartyID, e.PropertyName)
	}
	fmt.Println("Vaults I can read:")
	if len(incoming) == 0 {
		fmt.Println("  (none)")
	}
	for _, e := range incoming {
		fmt.Printf("  %s: %s\n", e.CounterpartyID, e.PropertyName)
	}
	return nil
}

// Revoke removes a counterparty's registry entry for one property. The
// counterparty keeps any key material it already holds; revocation
// stops replay access from now on.
func (a *App) Revoke(ctx context.Context) error {
	counterparty, err := getSimpleText(a.reader, "Enter counterparty entity id", os.Stdout)
	if err != nil {
		return err
	}
	name, err := getSimpleText(a.reader, "Enter property name", os.Stdout)
	if err != nil {
		return err
	}

	removed, err := a.api.RevokeAccess(ctx, counterparty, name, "outgoing")
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	if !removed {
		fmt.Println("No matching access entry")
		return nil
	}

	audit, err := a.session.SealAudit(projection.Event{
		Type: projection.TypeShareRevoked, PropertyName: name, CounterpartyID: counterparty,
	})
	if err != nil {
		return err
	}
	if _, err := a.api.AppendEvent(ctx, audit, nil); err != nil {
		log.Printf("error: %v", err)
		return err
	}
	fmt.Println("Access revoked")
	return nil
}
