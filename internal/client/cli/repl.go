package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface defines the command surface the REPL dispatches to. The
// real App type satisfies it; tests provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Set(ctx context.Context) error
	Get(ctx context.Context) error
	Delete(ctx context.Context) error
	Rename(ctx context.Context) error
	List(ctx context.Context) error
	Log(ctx context.Context) error
	Share(ctx context.Context) error
	Redeem(ctx context.Context) error
	View(ctx context.Context) error
	Invite(ctx context.Context) error
	Link(ctx context.Context) error
	Transfer(ctx context.Context) error
	Ledger(ctx context.Context) error
	Access(ctx context.Context) error
	Revoke(ctx context.Context) error
	Attach(ctx context.Context) error
	Fetch(ctx context.Context) error
	Watch(ctx context.Context) error
	Reset(ctx context.Context) error
}

// runREPL reads a line, parses the first token as the command and
// dispatches to methods on 'a'. The loop exits on scanner EOF or when
// the user types "exit" or "quit". Command handlers log their own
// errors; the loop stays up whatever they return.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("cv> %s", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		switch cmd {
		case "help":
			printHelp(a.isLoggedIn())

		case "register":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			if !a.isLoggedIn() {
				printlnFn("Please log in first")
				continue
			}
			dispatch(ctx, a, cmd)
		}
	}
}

func printHelp(loggedIn bool) {
	if !loggedIn {
		printlnFn("Available commands: register, login, exit")
		return
	}
	printlnFn("Vault:    set, get, del, rename, (l)ist, log, attach, fetch")
	printlnFn("Sharing:  share, redeem, view, access, revoke")
	printlnFn("Transfer: transfer, ledger")
	printlnFn("Devices:  invite, link")
	printlnFn("Session:  watch, logout, reset, exit")
}

func dispatch(ctx context.Context, a execIface, cmd string) {
	switch cmd {
	case "logout":
		_ = a.Logout(ctx)

	case "set":
		_ = a.Set(ctx)

	case "get":
		_ = a.Get(ctx)

	case "del", "delete":
		_ = a.Delete(ctx)

	case "rename":
		_ = a.Rename(ctx)

	case "l", "list":
		_ = a.List(ctx)

	case "log":
		_ = a.Log(ctx)

	case "share":
		_ = a.Share(ctx)

	case "redeem":
		_ = a.Redeem(ctx)

	case "view":
		_ = a.View(ctx)

	case "invite":
		_ = a.Invite(ctx)

	case "link":
		_ = a.Link(ctx)

	case "transfer":
		_ = a.Transfer(ctx)

	case "ledger":
		_ = a.Ledger(ctx)

	case "access":
		_ = a.Access(ctx)

	case "revoke":
		_ = a.Revoke(ctx)

	case "attach":
		_ = a.Attach(ctx)

	case "fetch":
		_ = a.Fetch(ctx)

	case "watch":
		_ = a.Watch(ctx)

	case "reset":
		_ = a.Reset(ctx)

	default:
		printlnFn("Unknown command:", cmd)
	}
}
