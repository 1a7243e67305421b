package eventlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emezins/carevault/internal/envelope"
	"github.com/emezins/carevault/internal/logging"
	"github.com/emezins/carevault/internal/server/models"
	"github.com/google/uuid"
)

const logFileName = "events.json"

// FileStore keeps each entity's log as a single JSON array document under
// <root>/entities/<id>/events.json. Writes are read-whole, append, write
// to a temp file, atomic rename. A per-entity mutex serializes the
// read-modify-write cycle.
type FileStore struct {
	root   string
	locks  *KeyMutex
	logger logging.Logger
}

func NewFileStore(root string, logger logging.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(root, "entities"), 0o770); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", root, err)
	}
	return &FileStore{
		root:   root,
		locks:  NewKeyMutex(),
		logger: logger.With("module", "eventlog"),
	}, nil
}

func (s *FileStore) entityDir(entityID string) (string, error) {
	// Entity ids are server-issued uuids; anything with a path separator
	// is not one of ours.
	if entityID == "" || strings.ContainsAny(entityID, `/\`) || entityID == "." || entityID == ".." {
		return "", fmt.Errorf("invalid entity id %q", entityID)
	}
	return filepath.Join(s.root, "entities", entityID), nil
}

func (s *FileStore) Append(ctx context.Context, entityID string, payload envelope.Envelope) (*models.EncryptedEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	dir, err := s.entityDir(entityID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(entityID)
	defer unlock()

	events, err := s.load(ctx, dir, true)
	if err != nil {
		return nil, err
	}

	event := models.EncryptedEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	events = append(events, event)

	if err := s.write(dir, events); err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *FileStore) Read(ctx context.Context, entityID string) ([]models.EncryptedEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.entityDir(entityID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(entityID)
	defer unlock()

	return s.load(ctx, dir, false)
}

func (s *FileStore) Purge(ctx context.Context, entityID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.entityDir(entityID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(entityID)
	defer unlock()

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("purge %s: %w", entityID, err)
	}
	return nil
}

// load reads and parses the log document. On a parse failure it recovers
// the longest well-formed prefix of complete events, logs the size of the
// discarded suffix, and (when truncate is set) rewrites the file to the
// recovered prefix. A missing file is an empty log.
func (s *FileStore) load(ctx context.Context, dir string, truncate bool) ([]models.EncryptedEvent, error) {
	path := filepath.Join(dir, logFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read log: %w", err)
	}

	var events []models.EncryptedEvent
	if err := json.Unmarshal(data, &events); err == nil {
		return events, nil
	}

	events = recoverPrefix(data)
	s.logger.Warn(ctx, "log corrupted, recovered prefix",
		"path", path, "recovered_events", len(events), "bytes_total", len(data))

	if truncate {
		if err := s.write(dir, events); err != nil {
			return nil, fmt.Errorf("truncate corrupted log: %w", err)
		}
	}
	return events, nil
}

// recoverPrefix scans a broken log document for the longest balanced
// prefix of complete events. If even the opening bracket is unreadable
// the log is treated as empty. Availability wins over completeness here:
// losing an unparseable suffix beats refusing to serve the log at all.
func recoverPrefix(data []byte) []models.EncryptedEvent {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil
	}

	var events []models.EncryptedEvent
	for dec.More() {
		var ev models.EncryptedEvent
		if err := dec.Decode(&ev); err != nil {
			break
		}
		events = append(events, ev)
	}
	return events
}

// write marshals the full log and replaces the document atomically via a
// temp file and rename, so a crash mid-write leaves either the old or the
// new document, never a torn one (torn writes from earlier process
// generations are what recoverPrefix handles).
func (s *FileStore) write(dir string, events []models.EncryptedEvent) error {
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	if events == nil {
		events = []models.EncryptedEvent{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("marshal log: %w", err)
	}

	tmp := filepath.Join(dir, logFileName+".tmp")
	if err := os.WriteFile(tmp, data, 0o660); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, logFileName)); err != nil {
		return fmt.Errorf("rename log: %w", err)
	}
	return nil
}
