// Package cli provides the interactive CareVault command-line client.
//
// It wires configuration, the REST API client, the local keystore and a
// per-login keyring session behind an interactive REPL. All encryption
// happens here: property values are sealed before they leave the
// process and the server only ever stores ciphertext.
//
// Key features:
//   - Register / Login (passphrase-derived keys, verifier-only auth)
//   - Set / Get / Delete / Rename properties, with an audit log
//   - Share properties via one-time codes and view shared vaults
//   - Transfer ownership to a patient, with an optional reciprocal share
//   - Link additional devices through invite codes
//   - Attach and fetch encrypted files
//   - Watch live vault activity over a websocket
//
// The REPL is started via App.Run(ctx), which blocks until the user
// exits. See App and runREPL for details.
package cli
