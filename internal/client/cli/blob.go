package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/emezins/carevault/internal/client/projection"
	"github.com/emezins/carevault/internal/filex"
	"github.com/emezins/carevault/internal/netx"
)

// blobValuePrefix marks a property whose value is a storage key rather
// than the data itself.
const blobValuePrefix = "blob:"

// Attach encrypts a file under a property's key, uploads the ciphertext
// to object storage and records the storage key as the property value.
func (a *App) Attach(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Enter property name", os.Stdout)
	if err != nil {
		return err
	}
	path, err := getSimpleText(a.reader, "Enter file path", os.Stdout)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	if _, err := a.refreshState(ctx); err != nil {
		log.Printf("error: %v", err)
		return err
	}
	catalog, err := a.session.EnsurePropertyKey(name)
	if err != nil {
		return err
	}
	if catalog != nil {
		if _, err := a.api.AppendEvent(ctx, *catalog, nil); err != nil {
			log.Printf("error: %v", err)
			return err
		}
	}

	sealed, err := a.session.SealBlob(name, data)
	if err != nil {
		return err
	}
	storageKey, uploadURL, err := a.api.BlobUploadURL(ctx)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	if err := netx.UploadToPresignedURL(uploadURL, sealed); err != nil {
		log.Printf("error: %v", err)
		return err
	}

	env, err := a.session.SealProperty(projection.Event{
		Type: projection.TypePropertySet, Key: name, Value: blobValuePrefix + storageKey,
	})
	if err != nil {
		return err
	}
	if _, err := a.api.AppendEvent(ctx, env, []string{name}); err != nil {
		log.Printf("error: %v", err)
		return err
	}
	fmt.Printf("Attached %s (%d bytes)\n", filepath.Base(path), len(data))
	return nil
}

// Fetch downloads a property's attachment, decrypts it and writes it to
// the download directory.
func (a *App) Fetch(ctx context.Context) error {
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
	if !strings.HasPrefix(value, blobValuePrefix) {
		fmt.Println("Property holds no attachment")
		return nil
	}
	storageKey := strings.TrimPrefix(value, blobValuePrefix)

	downloadURL, err := a.api.BlobDownloadURL(ctx, storageKey)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	sealed, err := netx.DownloadFromPresignedURL(downloadURL)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	data, err := a.session.OpenBlob(name, sealed)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	dir, err := filex.EnsureSubDir(a.config.DownloadDir)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	dest := filepath.Join(dir, filex.SafeFileName(name))
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		log.Printf("error: %v", err)
		return err
	}
	fmt.Printf("Saved to %s\n", dest)
	return nil
}
