package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/emezins/carevault/internal/client/api"
	"github.com/emezins/carevault/internal/client/config"
	"github.com/emezins/carevault/internal/client/projection"
	"github.com/emezins/carevault/internal/client/vault"
	"github.com/emezins/carevault/internal/common"
	"github.com/emezins/carevault/internal/envelope"
)

// App wires the REST client, the keystore and the per-login session
// behind the interactive commands.
type App struct {
	config       *config.Config
	api          *api.Client
	keystore     *vault.Keystore
	session      *vault.Session
	credentialID string
	loginKey     []byte
	reader       *bufio.Reader
}

func NewApp(c *config.Config) *App {
	return &App{
		config:   c,
		api:      api.NewClient(c.ServerEndpointAddr),
		keystore: vault.NewKeystore(c.KeystorePath),
		reader:   bufio.NewReader(os.Stdin),
	}
}

func (a *App) isLoggedIn() bool {
	return a.session != nil
}

func (a *App) getStatus() string {
	if a.session == nil {
		return ""
	}
	return fmt.Sprintf("(%s %s)", a.credentialID, a.session.EntityID())
}

// refreshState replays and decrypts the entity's own log into the
// current projection.
func (a *App) refreshState(ctx context.Context) (*projection.Projection, error) {
	events, err := a.api.Replay(ctx)
	if err != nil {
		return nil, err
	}
	envelopes := make([]envelope.Envelope, 0, len(events))
	for _, ev := range events {
		envelopes = append(envelopes, ev.Payload)
	}
	plain, skipped := a.session.DecryptOwn(envelopes)
	if skipped > 0 {
		fmt.Printf("(%d log entries not readable on this device)\n", skipped)
	}
	return projection.Replay(plain), nil
}

// clearSession drops all in-memory key material.
func (a *App) clearSession() {
	if a.session != nil {
		a.session.Close()
		a.session = nil
	}
	common.WipeByteArray(a.loginKey)
	a.loginKey = nil
	a.credentialID = ""
	a.api.SetToken("")
}

func (a *App) Run(ctx context.Context) {
	defer a.clearSession()
	fmt.Println("CareVault CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.getStatus, scanner)
}
