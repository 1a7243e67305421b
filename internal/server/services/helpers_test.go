package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/emezins/carevault/internal/common"
	"github.com/emezins/carevault/internal/logging"
	"github.com/emezins/carevault/internal/server/config"
	"github.com/emezins/carevault/internal/server/eventlog"
	"github.com/emezins/carevault/internal/server/models"
)

// --- helpers ---

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.ShareTTL = 15 * time.Minute
	cfg.TransferShareTTL = 24 * time.Hour
	cfg.InviteTTL = 15 * time.Minute
	return cfg
}

func testFileStore(t *testing.T) eventlog.Store {
	t.Helper()
	store, err := eventlog.NewFileStore(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	return store
}

// --- in-memory repository fakes ---

type memEntities struct {
	mu   sync.Mutex
	rows map[string]models.Entity
}

func newMemEntities() *memEntities {
	return &memEntities{rows: make(map[string]models.Entity)}
}

func (m *memEntities) Create(ctx context.Context, entity *models.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[entity.ID]; ok {
		return common.ErrorAlreadyExists
	}
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = time.Now()
	}
	m.rows[entity.ID] = *entity
	return nil
}

func (m *memEntities) Get(ctx context.Context, id string) (*models.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &row, nil
}

func (m *memEntities) SetPublicKey(ctx context.Context, id string, publicKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	row.PublicKey = publicKey
	m.rows[id] = row
	return nil
}

func (m *memEntities) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memEntities) add(t *testing.T, entity models.Entity) {
	t.Helper()
	if err := m.Create(context.Background(), &entity); err != nil {
		t.Fatalf("seed entity %s: %v", entity.ID, err)
	}
}

type memBindings struct {
	mu   sync.Mutex
	rows map[string]models.CredentialBinding
}

func newMemBindings() *memBindings {
	return &memBindings{rows: make(map[string]models.CredentialBinding)}
}

func (m *memBindings) Create(ctx context.Context, binding *models.CredentialBinding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[binding.CredentialID]; ok {
		return common.ErrorAlreadyExists
	}
	m.rows[binding.CredentialID] = *binding
	return nil
}

func (m *memBindings) Get(ctx context.Context, credentialID string) (*models.CredentialBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[credentialID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &row, nil
}

func (m *memBindings) Rebind(ctx context.Context, credentialID string, newEntityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[credentialID]
	if !ok {
		return common.ErrorNotFound
	}
	row.EntityID = newEntityID
	m.rows[credentialID] = row
	return nil
}

func (m *memBindings) CountForEntity(ctx context.Context, entityID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, row := range m.rows {
		if row.EntityID == entityID {
			n++
		}
	}
	return n, nil
}

func (m *memBindings) DeleteForEntity(ctx context.Context, entityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, row := range m.rows {
		if row.EntityID == entityID {
			delete(m.rows, id)
		}
	}
	return nil
}

type memGrants struct {
	mu   sync.Mutex
	rows map[string]models.ShareGrant

	createErr error
}

func newMemGrants() *memGrants {
	return &memGrants{rows: make(map[string]models.ShareGrant)}
}

func (m *memGrants) Create(ctx context.Context, grant *models.ShareGrant) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[grant.Code]; ok {
		return common.ErrorConflict
	}
	m.rows[grant.Code] = *grant
	return nil
}

func (m *memGrants) Consume(ctx context.Context, code string) (*models.ShareGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[code]
	if !ok {
		return nil, common.ErrorNotFound
	}
	delete(m.rows, code)
	return &row, nil
}

func (m *memGrants) DeleteForEntity(ctx context.Context, entityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for code, row := range m.rows {
		if row.SourceEntityID == entityID {
			delete(m.rows, code)
		}
	}
	return nil
}

func (m *memGrants) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memEdges struct {
	mu   sync.Mutex
	rows []models.AccessEdge
}

func newMemEdges() *memEdges {
	return &memEdges{}
}

func (m *memEdges) Add(ctx context.Context, edge models.AccessEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row == edge {
			return nil
		}
	}
	m.rows = append(m.rows, edge)
	return nil
}

func (m *memEdges) Remove(ctx context.Context, edge models.AccessEdge) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, row := range m.rows {
		if row == edge {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *memEdges) List(ctx context.Context, entityID string, direction models.EdgeDirection) ([]models.AccessEdge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AccessEdge
	for _, row := range m.rows {
		if row.EntityID == entityID && row.Direction == direction {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memEdges) DeleteForEntity(ctx context.Context, entityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	for _, row := range m.rows {
		if row.EntityID != entityID && row.CounterpartyID != entityID {
			kept = append(kept, row)
		}
	}
	m.rows = kept
	return nil
}

func (m *memEdges) has(edge models.AccessEdge) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row == edge {
			return true
		}
	}
	return false
}

type memTransfers struct {
	mu   sync.Mutex
	rows []models.TransferRecord
}

func newMemTransfers() *memTransfers {
	return &memTransfers{}
}

func (m *memTransfers) Create(ctx context.Context, record *models.TransferRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, *record)
	return nil
}

func (m *memTransfers) ListForEntity(ctx context.Context, entityID string) ([]models.TransferRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TransferRecord
	for _, row := range m.rows {
		if row.FromEntityID == entityID || row.ToEntityID == entityID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memTransfers) DeleteForEntity(ctx context.Context, entityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	for _, row := range m.rows {
		if row.FromEntityID != entityID && row.ToEntityID != entityID {
			kept = append(kept, row)
		}
	}
	m.rows = kept
	return nil
}
