package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emezins/carevault/internal/common"
	"github.com/emezins/carevault/internal/server/models"
)

func newShareFixture(t *testing.T) (*ShareService, *memGrants, *memEdges, *memEntities) {
	t.Helper()
	gr := newMemGrants()
	ed := newMemEdges()
	er := newMemEntities()
	er.add(t, models.Entity{ID: "doc-1", Role: models.RoleDoctor})
	er.add(t, models.Entity{ID: "pat-1", Role: models.RolePatient})
	return NewShareService(gr, ed, er, testConfig(), testLogger()), gr, ed, er
}

func TestShareIssue(t *testing.T) {
	s, gr, _, _ := newShareFixture(t)

	grant, err := s.Issue(context.Background(), "doc-1", "A2C4E6G8J0", "diagnosis", []byte("sealed"), []byte("salt"), 0)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if grant.Code != "A2C4E6G8J0" {
		t.Errorf("code = %q, want the caller-minted code", grant.Code)
	}
	if grant.Kind != models.GrantShare {
		t.Errorf("kind = %q, want %q", grant.Kind, models.GrantShare)
	}
	if grant.Expired(time.Now()) {
		t.Error("fresh grant already expired")
	}
	if gr.count() != 1 {
		t.Errorf("stored grants = %d, want 1", gr.count())
	}
}

func TestShareIssue_Validation(t *testing.T) {
	s, _, _, _ := newShareFixture(t)

	if _, err := s.Issue(context.Background(), "doc-1", "A2C4E6G8J0", "", []byte("sealed"), nil, 0); !errors.Is(err, common.ErrorMissingPayload) {
		t.Errorf("empty property: err = %v, want ErrorMissingPayload", err)
	}
	if _, err := s.Issue(context.Background(), "doc-1", "A2C4E6G8J0", "diagnosis", nil, nil, 0); !errors.Is(err, common.ErrorMissingPayload) {
		t.Errorf("empty sealed key: err = %v, want ErrorMissingPayload", err)
	}
	if _, err := s.Issue(context.Background(), "doc-1", "short", "diagnosis", []byte("sealed"), nil, 0); !errors.Is(err, common.ErrorMissingPayload) {
		t.Errorf("short code: err = %v, want ErrorMissingPayload", err)
	}
	if _, err := s.Issue(context.Background(), "ghost", "A2C4E6G8J0", "diagnosis", []byte("sealed"), nil, 0); !errors.Is(err, common.ErrorNotFound) {
		t.Errorf("unknown entity: err = %v, want ErrorNotFound", err)
	}
}

func TestShareIssue_MultipleCodesCoexist(t *testing.T) {
	s, gr, _, _ := newShareFixture(t)

	if _, err := s.Issue(context.Background(), "doc-1", "A2C4E6G8J0", "diagnosis", []byte("a"), nil, 0); err != nil {
		t.Fatalf("first Issue error: %v", err)
	}
	if _, err := s.Issue(context.Background(), "doc-1", "B3D5F7H9K1", "diagnosis", []byte("b"), nil, 0); err != nil {
		t.Fatalf("second Issue error: %v", err)
	}
	if gr.count() != 2 {
		t.Errorf("stored grants = %d, want 2 independent grants", gr.count())
	}
}

func TestShareRedeem(t *testing.T) {
	s, _, ed, _ := newShareFixture(t)

	issued, err := s.Issue(context.Background(), "doc-1", "SHARECODE1", "diagnosis", []byte("sealed"), []byte("salt"), 0)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	grant, err := s.Redeem(context.Background(), "pat-1", issued.Code)
	if err != nil {
		t.Fatalf("Redeem error: %v", err)
	}
	if grant.SourceEntityID != "doc-1" || grant.PropertyName != "diagnosis" {
		t.Errorf("unexpected grant: %+v", grant)
	}
	if string(grant.SealedKey) != "sealed" {
		t.Errorf("sealed key = %q", grant.SealedKey)
	}

	if !ed.has(models.AccessEdge{EntityID: "pat-1", Direction: models.EdgeIncoming, CounterpartyID: "doc-1", PropertyName: "diagnosis"}) {
		t.Error("incoming edge not registered for redeemer")
	}
	if !ed.has(models.AccessEdge{EntityID: "doc-1", Direction: models.EdgeOutgoing, CounterpartyID: "pat-1", PropertyName: "diagnosis"}) {
		t.Error("outgoing edge not registered for source")
	}
}

func TestShareRedeem_ConsumesExactlyOnce(t *testing.T) {
	s, gr, _, _ := newShareFixture(t)

	issued, err := s.Issue(context.Background(), "doc-1", "ONCECODE11", "diagnosis", []byte("sealed"), nil, 0)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	if _, err := s.Redeem(context.Background(), "pat-1", issued.Code); err != nil {
		t.Fatalf("first Redeem error: %v", err)
	}
	if _, err := s.Redeem(context.Background(), "pat-1", issued.Code); !errors.Is(err, common.ErrorNotFound) {
		t.Errorf("second Redeem: err = %v, want ErrorNotFound", err)
	}
	if gr.count() != 0 {
		t.Errorf("grant row survived redemption")
	}
}

func TestShareRedeem_LazyExpiry(t *testing.T) {
	s, gr, ed, _ := newShareFixture(t)

	// The expired row still physically exists; only the redemption
	// attempt notices, after consuming it.
	stale := &models.ShareGrant{
		Code:           "STALECODE1",
		Kind:           models.GrantShare,
		SourceEntityID: "doc-1",
		PropertyName:   "diagnosis",
		SealedKey:      []byte("sealed"),
		ExpiresAt:      time.Now().Add(-time.Minute),
	}
	if err := gr.Create(context.Background(), stale); err != nil {
		t.Fatalf("seed grant: %v", err)
	}

	if _, err := s.Redeem(context.Background(), "pat-1", stale.Code); !errors.Is(err, common.ErrorExpired) {
		t.Fatalf("Redeem expired: err = %v, want ErrorExpired", err)
	}
	if gr.count() != 0 {
		t.Error("expired grant not consumed by the attempt")
	}
	if ed.has(models.AccessEdge{EntityID: "pat-1", Direction: models.EdgeIncoming, CounterpartyID: "doc-1", PropertyName: "diagnosis"}) {
		t.Error("edge registered for an expired redemption")
	}
}

func TestShareRedeem_SelfRedeemForbidden(t *testing.T) {
	s, _, _, _ := newShareFixture(t)

	issued, err := s.Issue(context.Background(), "doc-1", "SELFCODE11", "diagnosis", []byte("sealed"), nil, 0)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, err := s.Redeem(context.Background(), "doc-1", issued.Code); !errors.Is(err, common.ErrorForbidden) {
		t.Errorf("self redeem: err = %v, want ErrorForbidden", err)
	}
}

func TestInviteLifecycle(t *testing.T) {
	s, _, ed, _ := newShareFixture(t)

	issued, err := s.IssueInvite(context.Background(), "pat-1", "INVITECODE", []byte("sealed-master"), []byte("salt"), 0)
	if err != nil {
		t.Fatalf("IssueInvite error: %v", err)
	}
	if issued.Kind != models.GrantInvite {
		t.Fatalf("kind = %q, want %q", issued.Kind, models.GrantInvite)
	}

	grant, err := s.RedeemInvite(context.Background(), issued.Code)
	if err != nil {
		t.Fatalf("RedeemInvite error: %v", err)
	}
	if grant.SourceEntityID != "pat-1" {
		t.Errorf("source = %q, want pat-1", grant.SourceEntityID)
	}
	if len(ed.rows) != 0 {
		t.Error("invite redemption registered access edges")
	}
	if _, err := s.RedeemInvite(context.Background(), issued.Code); !errors.Is(err, common.ErrorNotFound) {
		t.Errorf("second RedeemInvite: err = %v, want ErrorNotFound", err)
	}
}

func TestRedeem_KindMismatch(t *testing.T) {
	s, _, _, _ := newShareFixture(t)

	invite, err := s.IssueInvite(context.Background(), "pat-1", "INVCODE999", []byte("sealed-master"), nil, 0)
	if err != nil {
		t.Fatalf("IssueInvite error: %v", err)
	}
	if _, err := s.Redeem(context.Background(), "doc-1", invite.Code); !errors.Is(err, common.ErrorNotFound) {
		t.Errorf("Redeem of invite code: err = %v, want ErrorNotFound", err)
	}

	share, err := s.Issue(context.Background(), "doc-1", "SHRCODE999", "diagnosis", []byte("sealed"), nil, 0)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, err := s.RedeemInvite(context.Background(), share.Code); !errors.Is(err, common.ErrorNotFound) {
		t.Errorf("RedeemInvite of share code: err = %v, want ErrorNotFound", err)
	}
}
