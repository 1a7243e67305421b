package cli

import (
	"bufio"
	"context"
	"strings"
	"testing"
)

type fakeExec struct {
	loggedIn bool
	calls    []string
}

func (f *fakeExec) record(name string) error {
	f.calls = append(f.calls, name)
	return nil
}

func (f *fakeExec) isLoggedIn() bool { return f.loggedIn }
func (f *fakeExec) Register(ctx context.Context) error {
	return f.record("register")
}
func (f *fakeExec) Login(ctx context.Context) error {
	f.loggedIn = true
	return f.record("login")
}
func (f *fakeExec) Logout(ctx context.Context) error {
	f.loggedIn = false
	return f.record("logout")
}
func (f *fakeExec) Set(ctx context.Context) error      { return f.record("set") }
func (f *fakeExec) Get(ctx context.Context) error      { return f.record("get") }
func (f *fakeExec) Delete(ctx context.Context) error   { return f.record("delete") }
func (f *fakeExec) Rename(ctx context.Context) error   { return f.record("rename") }
func (f *fakeExec) List(ctx context.Context) error     { return f.record("list") }
func (f *fakeExec) Log(ctx context.Context) error      { return f.record("log") }
func (f *fakeExec) Share(ctx context.Context) error    { return f.record("share") }
func (f *fakeExec) Redeem(ctx context.Context) error   { return f.record("redeem") }
func (f *fakeExec) View(ctx context.Context) error     { return f.record("view") }
func (f *fakeExec) Invite(ctx context.Context) error   { return f.record("invite") }
func (f *fakeExec) Link(ctx context.Context) error     { return f.record("link") }
func (f *fakeExec) Transfer(ctx context.Context) error { return f.record("transfer") }
func (f *fakeExec) Ledger(ctx context.Context) error   { return f.record("ledger") }
func (f *fakeExec) Access(ctx context.Context) error   { return f.record("access") }
func (f *fakeExec) Revoke(ctx context.Context) error   { return f.record("revoke") }
func (f *fakeExec) Attach(ctx context.Context) error   { return f.record("attach") }
func (f *fakeExec) Fetch(ctx context.Context) error    { return f.record("fetch") }
func (f *fakeExec) Watch(ctx context.Context) error    { return f.record("watch") }
func (f *fakeExec) Reset(ctx context.Context) error    { return f.record("reset") }

func TestRunREPL_LoginFlowAndCommands(t *testing.T) {
	origPrint := printlnFn
	printlnFn = func(...any) (int, error) { return 0, nil }
	t.Cleanup(func() { printlnFn = origPrint })

	input := strings.NewReader(strings.Join([]string{
		"help",
		"set",
		"login",
		"help",
		"set",
		"l",
		"share",
		"foobar",
		"exit",
	}, "\n"))

	exec := &fakeExec{loggedIn: false}
	sc := bufio.NewScanner(input)

	runREPL(context.Background(), exec, func() string { return "status" }, sc)

	want := []string{"login", "set", "list", "share"}
	if len(exec.calls) != len(want) {
		t.Fatalf("calls mismatch: got %v, want %v", exec.calls, want)
	}
	for i, c := range exec.calls {
		if c != want[i] {
			t.Fatalf("calls mismatch: got %v, want %v", exec.calls, want)
		}
	}
}

func TestRunREPL_QuitWithoutCommands(t *testing.T) {
	origPrint := printlnFn
	printlnFn = func(...any) (int, error) { return 0, nil }
	t.Cleanup(func() { printlnFn = origPrint })

	input := strings.NewReader("\n\nquit\n")
	exec := &fakeExec{loggedIn: true}
	sc := bufio.NewScanner(input)

	runREPL(context.Background(), exec, func() string { return "s" }, sc)

	if len(exec.calls) != 0 {
		t.Fatalf("unexpected calls: %v", exec.calls)
	}
}
