package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/emezins/carevault/internal/client/projection"
)

// appendProperty seals a property-touching event and appends it with a
// fan-out hint, minting and cataloging the property key on first use.
func (a *App) appendProperty(ctx context.Context, ev projection.Event) error {
	catalog, err := a.session.EnsurePropertyKey(ev.Key)
	if err != nil {
		return err
	}
	if catalog != nil {
		if _, err := a.api.AppendEvent(ctx, *catalog, nil); err != nil {
			return fmt.Errorf("catalog entry: %w", err)
		}
	}

	env, err := a.session.SealProperty(ev)
	if err != nil {
		return err
	}
	if _, err := a.api.AppendEvent(ctx, env, []string{ev.Key}); err != nil {
		return err
	}
	return nil
}

// Set stores or replaces one property value.
func (a *App) Set(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Enter property name", os.Stdout)
	if err != nil {
		return err
	}
	value, err := getMultiline(a.reader, "Enter value:", os.Stdout)
	if err != nil {
		return err
	}

	err = a.appendProperty(ctx, projection.Event{
		Type: projection.TypePropertySet, Key: name, Value: value,
	})
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	fmt.Println("Saved")
	return nil
}

// Get prints one property's current value from a fresh replay.
func (a *App) Get(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Enter property name", os.Stdout)
	if err != nil {
		return err
	}
	state, err := a.refreshState(ctx)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	value, ok := state.Properties[name]
	if !ok {
		fmt.Println("No such property")
		return nil
	}
	fmt.Println(value)
	return nil
}

// Delete removes one property.
func (a *App) Delete(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Enter property name", os.Stdout)
	if err != nil {
		return err
	}
	err = a.appendProperty(ctx, projection.Event{
		Type: projection.TypePropertyDeleted, Key: name,
	})
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	fmt.Println("Deleted")
	return nil
}

// Rename moves a value to a new property name and records the rename in
// the audit trail. The value moves via an ordinary set and delete, so
// replays stay a pure fold.
func (a *App) Rename(ctx context.Context) error {
	oldName, err := getSimpleText(a.reader, "Enter current property name", os.Stdout)
	if err != nil {
		return err
	}
	newName, err := getSimpleText(a.reader, "Enter new property name", os.Stdout)
	if err != nil {
		return err
	}

	state, err := a.refreshState(ctx)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	value, ok := state.Properties[oldName]
	if !ok {
		fmt.Println("No such property")
		return nil
	}

	if err := a.appendProperty(ctx, projection.Event{
		Type: projection.TypePropertySet, Key: newName, Value: value,
	}); err != nil {
		log.Printf("error: %v", err)
		return err
	}
	if err := a.appendProperty(ctx, projection.Event{
		Type: projection.TypePropertyDeleted, Key: oldName,
	}); err != nil {
		log.Printf("error: %v", err)
		return err
	}

	audit, err := a.session.SealAudit(projection.Event{
		Type: projection.TypeRecordRenamed, OldName: oldName, NewName: newName,
	})
	if err != nil {
		return err
	}
	if _, err := a.api.AppendEvent(ctx, audit, nil); err != nil {
		log.Printf("error: %v", err)
		return err
	}
	fmt.Println("Renamed")
	return nil
}

// List prints every property name with its value.
func (a *App) List(ctx context.Context) error {
	state, err := a.refreshState(ctx)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	if len(state.Properties) == 0 {
		fmt.Println("Vault is empty")
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

// Log prints the audit trail: renames, shares and other informational
// entries, in log order.
func (a *App) Log(ctx context.Context) error {
	state, err := a.refreshState(ctx)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	if len(state.Audit) == 0 {
		fmt.Println("No activity recorded")
		return nil
	}
	for _, entry := range state.Audit {
		switch entry.Type {
		case projection.TypeRecordRenamed:
			fmt.Printf("%s: %s -> %s\n", entry.Type, entry.OldName, entry.NewName)
		case projection.TypeShareCreated, projection.TypeShareAccepted, projection.TypeShareRevoked:
			fmt.Printf("%s: %s (%s)\n", entry.Type, entry.PropertyName, entry.CounterpartyID)
		default:
			fmt.Printf("%s: %s\n", entry.Type, entry.Key)
		}
	}
	return nil
}
