package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/emezins/carevault/internal/common"
	"github.com/emezins/carevault/internal/cryptox"
	"github.com/emezins/carevault/internal/envelope"
	"github.com/emezins/carevault/internal/logging"
	"github.com/emezins/carevault/internal/server/config"
	"github.com/emezins/carevault/internal/server/eventlog"
	"github.com/emezins/carevault/internal/server/models"
	"github.com/emezins/carevault/internal/server/pubsub"
	"github.com/emezins/carevault/internal/server/services"
)

// --- in-memory repositories ---

type fakeEntities struct{ rows map[string]models.Entity }

func (f *fakeEntities) Create(ctx context.Context, e *models.Entity) error {
	if _, ok := f.rows[e.ID]; ok {
		return common.ErrorAlreadyExists
	}
	f.rows[e.ID] = *e
	return nil
}

func (f *fakeEntities) Get(ctx context.Context, id string) (*models.Entity, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &row, nil
}

func (f *fakeEntities) SetPublicKey(ctx context.Context, id, publicKey string) error {
	row, ok := f.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	row.PublicKey = publicKey
	f.rows[id] = row
	return nil
}

func (f *fakeEntities) Delete(ctx context.Context, id string) error {
	delete(f.rows, id)
	return nil
}

type fakeBindings struct {
	rows map[string]models.CredentialBinding
}

func (f *fakeBindings) Create(ctx context.Context, b *models.CredentialBinding) error {
	if _, ok := f.rows[b.CredentialID]; ok {
		return common.ErrorAlreadyExists
	}
	f.rows[b.CredentialID] = *b
	return nil
}

func (f *fakeBindings) Get(ctx context.Context, credentialID string) (*models.CredentialBinding, error) {
	row, ok := f.rows[credentialID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &row, nil
}

func (f *fakeBindings) Rebind(ctx context.Context, credentialID, newEntityID string) error {
	row, ok := f.rows[credentialID]
	if !ok {
		return common.ErrorNotFound
	}
	row.EntityID = newEntityID
	f.rows[credentialID] = row
	return nil
}

func (f *fakeBindings) CountForEntity(ctx context.Context, entityID string) (int, error) {
	n := 0
	for _, row := range f.rows {
		if row.EntityID == entityID {
			n++
		}
	}
	return n, nil
}

func (f *fakeBindings) DeleteForEntity(ctx context.Context, entityID string) error {
	for id, row := range f.rows {
		if row.EntityID == entityID {
			delete(f.rows, id)
		}
	}
	return nil
}

type fakeGrants struct{ rows map[string]models.ShareGrant }

func (f *fakeGrants) Create(ctx context.Context, g *models.ShareGrant) error {
	if _, ok := f.rows[g.Code]; ok {
		return common.ErrorConflict
	}
	f.rows[g.Code] = *g
	return nil
}

func (f *fakeGrants) Consume(ctx context.Context, code string) (*models.ShareGrant, error) {
	row, ok := f.rows[code]
	if !ok {
		return nil, common.ErrorNotFound
	}
	delete(f.rows, code)
	return &row, nil
}

func (f *fakeGrants) DeleteForEntity(ctx context.Context, entityID string) error {
	for code, row := range f.rows {
		if row.SourceEntityID == entityID {
			delete(f.rows, code)
		}
	}
	return nil
}

type fakeEdges struct{ rows []models.AccessEdge }

func (f *fakeEdges) Add(ctx context.Context, edge models.AccessEdge) error {
	for _, row := range f.rows {
		if row == edge {
			return nil
		}
	}
	f.rows = append(f.rows, edge)
	return nil
}

func (f *fakeEdges) Remove(ctx context.Context, edge models.AccessEdge) (bool, error) {
	for i, row := range f.rows {
		if row == edge {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEdges) List(ctx context.Context, entityID string, direction models.EdgeDirection) ([]models.AccessEdge, error) {
	var out []models.AccessEdge
	for _, row := range f.rows {
		if row.EntityID == entityID && row.Direction == direction {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeEdges) DeleteForEntity(ctx context.Context, entityID string) error {
	kept := f.rows[:0]
	for _, row := range f.rows {
		if row.EntityID != entityID && row.CounterpartyID != entityID {
			kept = append(kept, row)
		}
	}
	f.rows = kept
	return nil
}

type fakeTransfers struct{ rows []models.TransferRecord }

func (f *fakeTransfers) Create(ctx context.Context, record *models.TransferRecord) error {
	f.rows = append(f.rows, *record)
	return nil
}

func (f *fakeTransfers) ListForEntity(ctx context.Context, entityID string) ([]models.TransferRecord, error) {
	var out []models.TransferRecord
	for _, row := range f.rows {
		if row.FromEntityID == entityID || row.ToEntityID == entityID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeTransfers) DeleteForEntity(ctx context.Context, entityID string) error {
	kept := f.rows[:0]
	for _, row := range f.rows {
		if row.FromEntityID != entityID && row.ToEntityID != entityID {
			kept = append(kept, row)
		}
	}
	f.rows = kept
	return nil
}

// --- fixture ---

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	cfg := &config.Config{}
	cfg.LoadDefaults()

	store, err := eventlog.NewFileStore(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}

	er := &fakeEntities{rows: make(map[string]models.Entity)}
	br := &fakeBindings{rows: make(map[string]models.CredentialBinding)}
	gr := &fakeGrants{rows: make(map[string]models.ShareGrant)}
	ed := &fakeEdges{}
	tr := &fakeTransfers{}

	vault := services.NewVaultService(store, er, ed, pubsub.NewInProcessBroker(), logger)
	handler := NewHandler(
		services.NewIdentityService(er, br, gr, ed, tr, store, cfg, logger),
		vault,
		services.NewShareService(gr, ed, er, cfg, logger),
		services.NewRegistryService(ed, logger),
		services.NewTransferService(vault, er, tr, gr, ed, cfg, logger),
		services.NewBlobService(cfg),
		[]byte(cfg.SecretKey),
		logger,
	)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, token string, body any, wantStatus int, out any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest error: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		data, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: status = %d, want %d (body: %s)", method, path, resp.StatusCode, wantStatus, data)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

func registerAndLogin(t *testing.T, srv *httptest.Server, credentialID, role string) (entityID, token string) {
	t.Helper()

	var reg registerResponse
	doJSON(t, srv, http.MethodPost, "/api/register", "", registerRequest{
		CredentialID: credentialID,
		Salt:         []byte("salt"),
		Verifier:     []byte("verifier-" + credentialID),
		Role:         role,
	}, http.StatusOK, &reg)

	var login loginResponse
	doJSON(t, srv, http.MethodPost, "/api/login", "", loginRequest{
		CredentialID: credentialID,
		Verifier:     []byte("verifier-" + credentialID),
	}, http.StatusOK, &login)

	return reg.EntityID, login.Token
}

// --- tests ---

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestRegisterLoginMe(t *testing.T) {
	srv := newTestServer(t)

	entityID, token := registerAndLogin(t, srv, "cred-1", "patient")

	var me entityResponse
	doJSON(t, srv, http.MethodGet, "/api/me", token, nil, http.StatusOK, &me)
	if me.EntityID != entityID || me.Role != "patient" {
		t.Errorf("unexpected /api/me response: %+v", me)
	}
}

func TestLoginRejected(t *testing.T) {
	srv := newTestServer(t)
	registerAndLogin(t, srv, "cred-1", "patient")

	doJSON(t, srv, http.MethodPost, "/api/login", "", loginRequest{
		CredentialID: "cred-1",
		Verifier:     []byte("wrong"),
	}, http.StatusUnauthorized, nil)

	doJSON(t, srv, http.MethodGet, "/api/me", "not-a-token", nil, http.StatusUnauthorized, nil)
}

func TestDuplicateCredentialConflict(t *testing.T) {
	srv := newTestServer(t)
	registerAndLogin(t, srv, "cred-1", "patient")

	doJSON(t, srv, http.MethodPost, "/api/register", "", registerRequest{
		CredentialID: "cred-1",
		Salt:         []byte("salt"),
		Verifier:     []byte("v"),
		Role:         "doctor",
	}, http.StatusConflict, nil)
}

func TestEventsAppendReplay(t *testing.T) {
	srv := newTestServer(t)
	_, token := registerAndLogin(t, srv, "cred-1", "patient")

	payload := envelope.Envelope{
		Version:    envelope.Version,
		Algorithm:  envelope.AlgAESGCM,
		Nonce:      []byte("nonce-nonce!"),
		Ciphertext: []byte("ciphertext"),
	}
	var event models.EncryptedEvent
	doJSON(t, srv, http.MethodPost, "/api/events", token, appendRequest{Payload: payload}, http.StatusOK, &event)
	if event.ID == "" {
		t.Error("appended event has no id")
	}

	var replay replayResponse
	doJSON(t, srv, http.MethodGet, "/api/events", token, nil, http.StatusOK, &replay)
	if len(replay.Events) != 1 || replay.Events[0].ID != event.ID {
		t.Errorf("unexpected replay: %+v", replay)
	}

	// Structurally invalid envelope is rejected before it reaches disk.
	doJSON(t, srv, http.MethodPost, "/api/events", token, appendRequest{
		Payload: envelope.Envelope{Version: envelope.Version, Algorithm: "rot13", Ciphertext: []byte("x")},
	}, http.StatusBadRequest, nil)
}

func TestShareRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	docID, docToken := registerAndLogin(t, srv, "doc", "doctor")
	_, patToken := registerAndLogin(t, srv, "pat", "patient")

	var issued issueShareResponse
	doJSON(t, srv, http.MethodPost, "/api/share", docToken, issueShareRequest{
		Code:         "SHARECODE1",
		PropertyName: "diagnosis",
		SealedKey:    []byte("sealed"),
		Salt:         []byte("salt"),
	}, http.StatusOK, &issued)
	if issued.Code != "SHARECODE1" {
		t.Fatalf("code = %q, want the caller-minted code", issued.Code)
	}

	var redeemed redeemShareResponse
	doJSON(t, srv, http.MethodPost, "/api/share/redeem", patToken, redeemRequest{Code: issued.Code}, http.StatusOK, &redeemed)
	if redeemed.SourceEntityID != docID || redeemed.PropertyName != "diagnosis" {
		t.Errorf("unexpected redemption: %+v", redeemed)
	}

	// One-time: the second redemption fails.
	doJSON(t, srv, http.MethodPost, "/api/share/redeem", patToken, redeemRequest{Code: issued.Code}, http.StatusNotFound, nil)

	// Both registries reflect the disclosure.
	var outgoing accessListResponse
	doJSON(t, srv, http.MethodGet, "/api/access?direction=outgoing", docToken, nil, http.StatusOK, &outgoing)
	if len(outgoing.Edges) != 1 || outgoing.Edges[0].PropertyName != "diagnosis" {
		t.Errorf("unexpected outgoing edges: %+v", outgoing)
	}
	var incoming accessListResponse
	doJSON(t, srv, http.MethodGet, "/api/access?direction=incoming", patToken, nil, http.StatusOK, &incoming)
	if len(incoming.Edges) != 1 || incoming.Edges[0].CounterpartyID != docID {
		t.Errorf("unexpected incoming edges: %+v", incoming)
	}

	// Revoking from the source side empties both registries.
	var revoked revokeResponse
	doJSON(t, srv, http.MethodPost, "/api/access/revoke", docToken, revokeRequest{
		CounterpartyID: outgoing.Edges[0].CounterpartyID,
		PropertyName:   "diagnosis",
		Direction:      "outgoing",
	}, http.StatusOK, &revoked)
	if !revoked.Removed {
		t.Error("revoke reported no removal")
	}

	doJSON(t, srv, http.MethodGet, "/api/access?direction=outgoing", docToken, nil, http.StatusOK, &outgoing)
	if len(outgoing.Edges) != 0 {
		t.Errorf("outgoing edges after revoke: %+v", outgoing)
	}
	doJSON(t, srv, http.MethodGet, "/api/access?direction=incoming", patToken, nil, http.StatusOK, &incoming)
	if len(incoming.Edges) != 0 {
		t.Errorf("incoming edges after revoke: %+v", incoming)
	}
}

func TestTransferFlow(t *testing.T) {
	srv := newTestServer(t)
	_, docToken := registerAndLogin(t, srv, "doc", "doctor")
	patID, patToken := registerAndLogin(t, srv, "pat", "patient")

	pubKey, _, err := cryptox.GenerateBoxKeyPair()
	if err != nil {
		t.Fatalf("GenerateBoxKeyPair error: %v", err)
	}
	doJSON(t, srv, http.MethodPost, "/api/pubkey", patToken, setPublicKeyRequest{PublicKey: pubKey}, http.StatusOK, nil)

	// The discloser looks the key up before sealing.
	var target entityResponse
	doJSON(t, srv, http.MethodGet, "/api/pubkey?entityId="+patID, docToken, nil, http.StatusOK, &target)
	if target.PublicKey != pubKey {
		t.Fatalf("public key lookup = %q", target.PublicKey)
	}

	var result transferResponse
	doJSON(t, srv, http.MethodPost, "/api/transfer", docToken, transferRequest{
		TargetEntityID: patID,
		Properties:     []string{"diagnosis", "missing"},
		Payloads:       map[string][]byte{"diagnosis": []byte("sealed-box")},
	}, http.StatusOK, &result)
	if len(result.Transferred) != 1 || result.Transferred[0] != "diagnosis" {
		t.Errorf("transferred = %v", result.Transferred)
	}

	var replay replayResponse
	doJSON(t, srv, http.MethodGet, "/api/events", patToken, nil, http.StatusOK, &replay)
	if len(replay.Events) != 1 || replay.Events[0].Payload.Algorithm != envelope.AlgSealedBox {
		t.Errorf("unexpected target log: %+v", replay)
	}

	var ledger ledgerResponse
	doJSON(t, srv, http.MethodGet, "/api/transfers", patToken, nil, http.StatusOK, &ledger)
	if len(ledger.Transfers) != 1 || ledger.Transfers[0].RecordKey != "diagnosis" {
		t.Errorf("unexpected ledger: %+v", ledger)
	}
}

func TestTransferForbiddenForPatientCaller(t *testing.T) {
	srv := newTestServer(t)
	_, patToken := registerAndLogin(t, srv, "pat", "patient")
	pat2ID, _ := registerAndLogin(t, srv, "pat2", "patient")

	doJSON(t, srv, http.MethodPost, "/api/transfer", patToken, transferRequest{
		TargetEntityID: pat2ID,
		Properties:     []string{"diagnosis"},
		Payloads:       map[string][]byte{"diagnosis": []byte("x")},
	}, http.StatusForbidden, nil)
}

func TestInviteRedeemAndRebind(t *testing.T) {
	srv := newTestServer(t)
	patID, patToken := registerAndLogin(t, srv, "phone", "patient")
	_, laptopToken := registerAndLogin(t, srv, "laptop", "patient")

	var issued issueShareResponse
	doJSON(t, srv, http.MethodPost, "/api/invite", patToken, issueInviteRequest{
		Code:      "INVITECODE",
		SealedKey: []byte("sealed-master-key"),
		Salt:      []byte("salt"),
	}, http.StatusOK, &issued)

	var redeemed redeemInviteResponse
	doJSON(t, srv, http.MethodPost, "/api/invite/redeem", "", redeemRequest{Code: issued.Code}, http.StatusOK, &redeemed)
	if redeemed.EntityID != patID {
		t.Fatalf("invite entity = %q, want %q", redeemed.EntityID, patID)
	}

	// The second device repoints its credential at the shared entity.
	doJSON(t, srv, http.MethodPost, "/api/rebind", laptopToken, rebindRequest{
		CredentialID: "laptop",
		NewEntityID:  redeemed.EntityID,
	}, http.StatusOK, nil)

	var login loginResponse
	doJSON(t, srv, http.MethodPost, "/api/login", "", loginRequest{
		CredentialID: "laptop",
		Verifier:     []byte("verifier-laptop"),
	}, http.StatusOK, &login)

	var me entityResponse
	doJSON(t, srv, http.MethodGet, "/api/me", login.Token, nil, http.StatusOK, &me)
	if me.EntityID != patID {
		t.Errorf("rebound credential resolves to %q, want %q", me.EntityID, patID)
	}
}

func TestReset(t *testing.T) {
	srv := newTestServer(t)
	_, token := registerAndLogin(t, srv, "cred-1", "patient")

	payload := envelope.Envelope{
		Version:    envelope.Version,
		Algorithm:  envelope.AlgAESGCM,
		Nonce:      []byte("nonce-nonce!"),
		Ciphertext: []byte("ciphertext"),
	}
	doJSON(t, srv, http.MethodPost, "/api/events", token, appendRequest{Payload: payload}, http.StatusOK, nil)

	doJSON(t, srv, http.MethodPost, "/api/reset", token, nil, http.StatusOK, nil)

	// The entity is gone: the session no longer resolves to anything.
	doJSON(t, srv, http.MethodGet, "/api/events", token, nil, http.StatusNotFound, nil)
	doJSON(t, srv, http.MethodPost, "/api/login", "", loginRequest{
		CredentialID: "cred-1",
		Verifier:     []byte("verifier-cred-1"),
	}, http.StatusUnauthorized, nil)
}
