// Package api is the REST client for the vault server. It speaks the
// same JSON bodies the server's httpapi package defines and maps HTTP
// statuses back onto the shared sentinel errors.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/emezins/carevault/internal/common"
	"github.com/emezins/carevault/internal/envelope"
)

type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// SetToken installs the session token used on authenticated calls.
func (c *Client) SetToken(token string) {
	c.token = token
}

func (c *Client) Token() string {
	return c.token
}

// Event mirrors the server's encrypted log record.
type Event struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   envelope.Envelope `json:"payload"`
}

// Push is one live fan-out message from the websocket endpoint.
// SourceEntityID and PropertyName are set only on shared-event forwards.
type Push struct {
	Type           string `json:"type"`
	SourceEntityID string `json:"sourceEntityId,omitempty"`
	PropertyName   string `json:"propertyName,omitempty"`
	Event          Event  `json:"event"`
}

// Entity mirrors the server's public entity metadata.
type Entity struct {
	EntityID  string `json:"entityId"`
	Role      string `json:"role"`
	PublicKey string `json:"publicKey,omitempty"`
}

func errorFromStatus(status int) error {
	switch status {
	case http.StatusNotFound:
		return common.ErrorNotFound
	case http.StatusConflict:
		return common.ErrorAlreadyExists
	case http.StatusGone:
		return common.ErrorExpired
	case http.StatusForbidden:
		return common.ErrorForbidden
	case http.StatusUnauthorized:
		return common.ErrorUnauthorized
	case http.StatusBadRequest:
		return common.ErrorMissingPayload
	default:
		return fmt.Errorf("%w: unexpected status %d", common.ErrorInternal, status)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errorFromStatus(resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

type registerRequest struct {
	CredentialID string `json:"credentialId"`
	Salt         []byte `json:"salt"`
	Verifier     []byte `json:"verifier"`
	Role         string `json:"role"`
}

type registerResponse struct {
	EntityID string `json:"entityId"`
	Role     string `json:"role"`
}

func (c *Client) Register(ctx context.Context, credentialID string, salt, verifier []byte, role string) (string, error) {
	var resp registerResponse
	err := c.do(ctx, http.MethodPost, "/api/register", registerRequest{
		CredentialID: credentialID,
		Salt:         salt,
		Verifier:     verifier,
		Role:         role,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.EntityID, nil
}

type saltResponse struct {
	Salt []byte `json:"salt"`
}

func (c *Client) GetSalt(ctx context.Context, credentialID string) ([]byte, error) {
	var resp saltResponse
	err := c.do(ctx, http.MethodGet, "/api/salt?credentialId="+url.QueryEscape(credentialID), nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Salt, nil
}

type loginRequest struct {
	CredentialID string `json:"credentialId"`
	Verifier     []byte `json:"verifier"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login authenticates and installs the returned session token.
func (c *Client) Login(ctx context.Context, credentialID string, verifier []byte) error {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "/api/login", loginRequest{CredentialID: credentialID, Verifier: verifier}, &resp)
	if err != nil {
		return err
	}
	c.token = resp.Token
	return nil
}

func (c *Client) Me(ctx context.Context) (*Entity, error) {
	var resp Entity
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type setPublicKeyRequest struct {
	PublicKey string `json:"publicKey"`
}

func (c *Client) SetPublicKey(ctx context.Context, publicKey string) error {
	return c.do(ctx, http.MethodPost, "/api/pubkey", setPublicKeyRequest{PublicKey: publicKey}, nil)
}

func (c *Client) GetPublicKey(ctx context.Context, entityID string) (string, error) {
	var resp Entity
	err := c.do(ctx, http.MethodGet, "/api/pubkey?entityId="+url.QueryEscape(entityID), nil, &resp)
	if err != nil {
		return "", err
	}
	return resp.PublicKey, nil
}

type appendRequest struct {
	Payload envelope.Envelope `json:"payload"`
	Hints   []string          `json:"hints,omitempty"`
}

func (c *Client) AppendEvent(ctx context.Context, payload envelope.Envelope, hints []string) (*Event, error) {
	var resp Event
	err := c.do(ctx, http.MethodPost, "/api/events", appendRequest{Payload: payload, Hints: hints}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

type replayResponse struct {
	Events []Event `json:"events"`
}

func (c *Client) Replay(ctx context.Context) ([]Event, error) {
	var resp replayResponse
	if err := c.do(ctx, http.MethodGet, "/api/events", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// ReplayOf replays another entity's log. The server admits the read only
// when the caller holds an incoming disclosure from that entity.
func (c *Client) ReplayOf(ctx context.Context, entityID string) ([]Event, error) {
	var resp replayResponse
	path := "/api/events?entityId=" + url.QueryEscape(entityID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

type issueShareRequest struct {
	PropertyName string        `json:"propertyName"`
	SealedKey    []byte        `json:"sealedKey"`
	Salt         []byte        `json:"salt"`
	TTL          time.Duration `json:"ttl,omitempty"`
	Code         string        `json:"code"`
}

// IssuedGrant is the caller-visible half of a new grant.
type IssuedGrant struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IssueShare stores a grant under a caller-minted code. The code is
// minted client-side because the sealed key is derived from it.
func (c *Client) IssueShare(ctx context.Context, code, propertyName string, sealedKey, salt []byte, ttl time.Duration) (*IssuedGrant, error) {
	var resp IssuedGrant
	err := c.do(ctx, http.MethodPost, "/api/share", issueShareRequest{
		Code:         code,
		PropertyName: propertyName,
		SealedKey:    sealedKey,
		Salt:         salt,
		TTL:          ttl,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

type redeemRequest struct {
	Code string `json:"code"`
}

// RedeemedShare carries the sealed capability back to the redeemer.
type RedeemedShare struct {
	SourceEntityID string `json:"sourceEntityId"`
	PropertyName   string `json:"propertyName"`
	SealedKey      []byte `json:"sealedKey"`
	Salt           []byte `json:"salt"`
}

func (c *Client) RedeemShare(ctx context.Context, code string) (*RedeemedShare, error) {
	var resp RedeemedShare
	if err := c.do(ctx, http.MethodPost, "/api/share/redeem", redeemRequest{Code: code}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type issueInviteRequest struct {
	Code      string        `json:"code"`
	SealedKey []byte        `json:"sealedKey"`
	Salt      []byte        `json:"salt"`
	TTL       time.Duration `json:"ttl,omitempty"`
}

func (c *Client) IssueInvite(ctx context.Context, code string, sealedKey, salt []byte, ttl time.Duration) (*IssuedGrant, error) {
	var resp IssuedGrant
	err := c.do(ctx, http.MethodPost, "/api/invite", issueInviteRequest{Code: code, SealedKey: sealedKey, Salt: salt, TTL: ttl}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// RedeemedInvite carries the sealed master key of the inviting entity.
type RedeemedInvite struct {
	EntityID  string `json:"entityId"`
	SealedKey []byte `json:"sealedKey"`
	Salt      []byte `json:"salt"`
}

func (c *Client) RedeemInvite(ctx context.Context, code string) (*RedeemedInvite, error) {
	var resp RedeemedInvite
	if err := c.do(ctx, http.MethodPost, "/api/invite/redeem", redeemRequest{Code: code}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type rebindRequest struct {
	CredentialID string `json:"credentialId"`
	NewEntityID  string `json:"newEntityId"`
}

func (c *Client) Rebind(ctx context.Context, credentialID, newEntityID string) error {
	return c.do(ctx, http.MethodPost, "/api/rebind", rebindRequest{CredentialID: credentialID, NewEntityID: newEntityID}, nil)
}

type transferRequest struct {
	TargetEntityID     string            `json:"targetEntityId"`
	Properties         []string          `json:"properties"`
	Payloads           map[string][]byte `json:"payloads"`
	SealedKeyForSource []byte            `json:"sealedKeyForSource,omitempty"`
	Salt               []byte            `json:"salt,omitempty"`
}

// TransferResult reports which properties moved and the reciprocal code,
// when one was requested.
type TransferResult struct {
	Transferred []string `json:"transferred"`
	ShareCode   string   `json:"shareCode,omitempty"`
}

func (c *Client) Transfer(ctx context.Context, targetEntityID string, properties []string, payloads map[string][]byte, sealedKeyForSource, salt []byte) (*TransferResult, error) {
	var resp TransferResult
	err := c.do(ctx, http.MethodPost, "/api/transfer", transferRequest{
		TargetEntityID:     targetEntityID,
		Properties:         properties,
		Payloads:           payloads,
		SealedKeyForSource: sealedKeyForSource,
		Salt:               salt,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// LedgerEntry is one transfer audit record involving the caller.
type LedgerEntry struct {
	ID               string    `json:"id"`
	RecordKey        string    `json:"recordKey"`
	FromEntityID     string    `json:"fromEntityId"`
	ToEntityID       string    `json:"toEntityId"`
	TransferredAt    time.Time `json:"transferredAt"`
	AutoShareGranted bool      `json:"autoShareGranted"`
}

type ledgerResponse struct {
	Transfers []LedgerEntry `json:"transfers"`
}

func (c *Client) TransferLedger(ctx context.Context) ([]LedgerEntry, error) {
	var resp ledgerResponse
	if err := c.do(ctx, http.MethodGet, "/api/transfers", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Transfers, nil
}

// AccessEdge is one registry row as the API reports it.
type AccessEdge struct {
	CounterpartyID string `json:"counterpartyId"`
	PropertyName   string `json:"propertyName"`
}

type accessListResponse struct {
	Direction string       `json:"direction"`
	Edges     []AccessEdge `json:"edges"`
}

func (c *Client) ListAccess(ctx context.Context, direction string) ([]AccessEdge, error) {
	var resp accessListResponse
	if err := c.do(ctx, http.MethodGet, "/api/access?direction="+url.QueryEscape(direction), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Edges, nil
}

type revokeRequest struct {
	CounterpartyID string `json:"counterpartyId"`
	PropertyName   string `json:"propertyName"`
	Direction      string `json:"direction"`
}

type revokeResponse struct {
	Removed bool `json:"removed"`
}

func (c *Client) RevokeAccess(ctx context.Context, counterpartyID, propertyName, direction string) (bool, error) {
	var resp revokeResponse
	err := c.do(ctx, http.MethodPost, "/api/access/revoke", revokeRequest{
		CounterpartyID: counterpartyID,
		PropertyName:   propertyName,
		Direction:      direction,
	}, &resp)
	if err != nil {
		return false, err
	}
	return resp.Removed, nil
}

type uploadURLResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// BlobUploadURL requests a presigned PUT URL for one attachment, along
// with the storage key to reference it by.
func (c *Client) BlobUploadURL(ctx context.Context) (key, uploadURL string, err error) {
	var resp uploadURLResponse
	if err := c.do(ctx, http.MethodPost, "/api/blob/upload-url", nil, &resp); err != nil {
		return "", "", err
	}
	return resp.Key, resp.URL, nil
}

type downloadURLResponse struct {
	URL string `json:"url"`
}

// BlobDownloadURL requests a presigned GET URL for a stored attachment.
func (c *Client) BlobDownloadURL(ctx context.Context, key string) (string, error) {
	var resp downloadURLResponse
	path := "/api/blob/download-url?key=" + url.QueryEscape(key)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

type successResponse struct {
	Success bool `json:"success"`
}

func (c *Client) Reset(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/reset", nil, &successResponse{})
}

func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errorFromStatus(resp.StatusCode)
	}
	return nil
}
