package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/deliorder/iox"
	"github.com/pithecene-io/deliorder/registry/sqlite"
	"github.com/pithecene-io/deliorder/runtime"
	"github.com/pithecene-io/deliorder/storage"
	"github.com/pithecene-io/deliorder/types"
)

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	hasTUI := false
	for _, f := range ReadOnlyFlags() {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}
	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestGlobalFlags(t *testing.T) {
	want := map[string]bool{"config": false, "registry": false, "verbose": false}
	for _, f := range GlobalFlags() {
		want[f.Names()[0]] = true
	}
	for name, ok := range want {
		if !ok {
			t.Errorf("GlobalFlags missing --%s", name)
		}
	}
}

func TestIsStderrTTY(_ *testing.T) {
	_ = isStderrTTY()
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" yes ", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"maybe\n", false},
	}
	for _, tt := range tests {
		var out strings.Builder
		got, err := confirm(strings.NewReader(tt.input), &out, "Run?")
		if err != nil {
			t.Fatalf("confirm(%q) error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if out.String() != "Run? [y/N] " {
			t.Errorf("prompt = %q", out.String())
		}
	}
}

func TestBacklogKey(t *testing.T) {
	if got := backlogKey(""); got != "deliorder:package_executed:backlog" {
		t.Errorf("backlogKey(\"\") = %q", got)
	}
	if got := backlogKey("events"); got != "events:backlog" {
		t.Errorf("backlogKey(events) = %q", got)
	}
}

func TestProgressPrinter(t *testing.T) {
	var out strings.Builder
	emit := progressPrinter(&out)
	emit(types.ExecutionOutcome{OrderIndex: 0, Succeeded: true, Message: "a.txt created"})
	emit(types.ExecutionOutcome{OrderIndex: 1, Message: "critical path violation"})

	want := "✓ 1. a.txt created\n✗ 2. critical path violation\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

// testEnv is a config file with a sqlite registry and an fs ledger under
// a temp dir.
type testEnv struct {
	dir      string
	config   string
	registry string
	ledger   string
	stdin    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("DELIORDER_TOKEN", "")
	t.Setenv("DELIORDER_REFRESH_TOKEN", "")
	t.Setenv("DELIORDER_USER_ID", "")
	t.Setenv("DELIORDER_CONFIG", "")

	dir := t.TempDir()
	env := &testEnv{
		dir:      dir,
		config:   filepath.Join(dir, "deliorder.yaml"),
		registry: filepath.Join(dir, "registry.db"),
		ledger:   filepath.Join(dir, "ledger"),
	}
	cfg := "registry:\n" +
		"  backend: sqlite\n" +
		"  path: " + env.registry + "\n" +
		"ledger:\n" +
		"  backend: fs\n" +
		"  path: " + env.ledger + "\n"
	env.write(t, "deliorder.yaml", cfg)
	return env
}

func (e *testEnv) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (e *testEnv) run(args ...string) error {
	app := &cli.App{
		Name:      "deliorder",
		Flags:     GlobalFlags(),
		Reader:    strings.NewReader(e.stdin),
		Writer:    io.Discard,
		ErrWriter: io.Discard,
		Commands: []*cli.Command{
			ComposeCommand(),
			ReceiveCommand(),
			HistoryCommand(),
			ExecutionsCommand(),
			CheckCommand(),
			ValidateCommand(),
			PruneCommand(),
			VersionCommand("test"),
		},
		ExitErrHandler: func(*cli.Context, error) {},
	}
	return app.Run(append([]string{"deliorder", "--config", e.config}, args...))
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		return exitCoder.ExitCode()
	}
	return -1
}

// submittedSerials returns author's serials straight from the sqlite file.
func (e *testEnv) submittedSerials(t *testing.T, author string) []string {
	t.Helper()
	store, err := sqlite.Open(e.registry)
	if err != nil {
		t.Fatal(err)
	}
	defer iox.DiscardClose(store)
	pkgs, err := store.History(context.Background(), author)
	if err != nil {
		t.Fatal(err)
	}
	serials := make([]string, 0, len(pkgs))
	for _, p := range pkgs {
		serials = append(serials, p.SerialNumber)
	}
	return serials
}

const protectedOrders = `author: alice
orders:
  - action: delete
    attachment_name: deliorder-test-missing.txt
    execution_path: /etc
`

func TestComposeAndReceive_GuardRejects(t *testing.T) {
	env := newTestEnv(t)
	orders := env.write(t, "orders.yaml", protectedOrders)

	if err := env.run("compose", "--format", "json", orders); err != nil {
		t.Fatalf("compose: %v", err)
	}
	serials := env.submittedSerials(t, "alice")
	if len(serials) != 1 {
		t.Fatalf("serials = %v", serials)
	}
	serial := serials[0]

	err := env.run("receive", "--yes", "--format", "json", serial)
	if code := exitCode(err); code != runtime.ExitCodeOrderFailed {
		t.Fatalf("receive exit code = %d (%v), want %d", code, err, runtime.ExitCodeOrderFailed)
	}

	ledger, err := storage.NewFSLedger(env.ledger, nil)
	if err != nil {
		t.Fatal(err)
	}
	entries, err := ledger.Entries(context.Background(), serial)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 || entries[0].State != types.OrderRejected {
		t.Errorf("entries = %+v", entries)
	}

	if err := env.run("executions", "--format", "json", serial); err != nil {
		t.Errorf("executions: %v", err)
	}
	if err := env.run("history", "--format", "json", "--author", "alice"); err != nil {
		t.Errorf("history: %v", err)
	}
}

func TestReceive_DeepLink(t *testing.T) {
	env := newTestEnv(t)
	orders := env.write(t, "orders.yaml", protectedOrders)
	if err := env.run("compose", "--format", "json", orders); err != nil {
		t.Fatal(err)
	}
	serial := env.submittedSerials(t, "alice")[0]

	link := "deliorder://open?packageId=" + serial
	if code := exitCode(env.run("receive", "--yes", "--format", "json", link)); code != runtime.ExitCodeOrderFailed {
		t.Errorf("exit code = %d, want %d", code, runtime.ExitCodeOrderFailed)
	}
}

func TestReceive_Declined(t *testing.T) {
	env := newTestEnv(t)
	orders := env.write(t, "orders.yaml", protectedOrders)
	if err := env.run("compose", "--format", "json", orders); err != nil {
		t.Fatal(err)
	}
	serial := env.submittedSerials(t, "alice")[0]

	env.stdin = "n\n"
	if err := env.run("receive", "--format", "json", serial); err != nil {
		t.Fatalf("declined receive: %v", err)
	}

	ledger, err := storage.NewFSLedger(env.ledger, nil)
	if err != nil {
		t.Fatal(err)
	}
	if entries, _ := ledger.Entries(context.Background(), serial); len(entries) != 0 {
		t.Errorf("declined package was recorded: %+v", entries)
	}
}

func TestReceive_ExitCodes(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"unknown serial", []string{"receive", "--yes", "000000"}, runtime.ExitCodeRegistry},
		{"missing serial", []string{"receive", "--yes"}, runtime.ExitCodeInvalidInput},
		{"bad deep link", []string{"receive", "--yes", "https://example.com/?packageId=1"}, runtime.ExitCodeInvalidInput},
		{"unknown backend", []string{"--registry", "carrier-pigeon", "receive", "--yes", "123456"}, runtime.ExitCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := exitCode(env.run(tt.args...)); code != tt.want {
				t.Errorf("exit code = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestCompose_DryRunSubmitsNothing(t *testing.T) {
	env := newTestEnv(t)
	orders := env.write(t, "orders.yaml", protectedOrders)

	if err := env.run("compose", "--dry-run", "--format", "json", orders); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if serials := env.submittedSerials(t, "alice"); len(serials) != 0 {
		t.Errorf("dry run submitted %v", serials)
	}
}

func TestCompose_InvalidOrders(t *testing.T) {
	env := newTestEnv(t)
	tooMany := "author: alice\norders:\n" + strings.Repeat(
		"  - { action: execute, attachment_name: a.txt, execution_path: /opt }\n", types.MaxOrders+1)

	tests := []struct {
		name    string
		content string
	}{
		{"unknown action", "orders:\n  - { action: launch, attachment_name: a.txt, execution_path: /opt }\n"},
		{"missing path", "orders:\n  - { action: delete, attachment_name: a.txt }\n"},
		{"too many", tooMany},
		{"empty", "author: alice\norders: []\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := env.write(t, "orders.yaml", tt.content)
			if code := exitCode(env.run("compose", "--format", "json", orders)); code != runtime.ExitCodeInvalidInput {
				t.Errorf("exit code = %d, want %d", code, runtime.ExitCodeInvalidInput)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	env := newTestEnv(t)

	rejected := env.write(t, "rejected.yaml", protectedOrders)
	if code := exitCode(env.run("validate", "--format", "json", rejected)); code != runtime.ExitCodeInvalidInput {
		t.Errorf("guarded exit code = %d, want %d", code, runtime.ExitCodeInvalidInput)
	}
	if err := env.run("validate", "--no-guard", "--format", "json", rejected); err != nil {
		t.Errorf("--no-guard: %v", err)
	}

	missing := filepath.Join(env.dir, "nope.yaml")
	if code := exitCode(env.run("validate", missing)); code != runtime.ExitCodeInvalidInput {
		t.Errorf("missing file exit code = %d", code)
	}
}

func TestCheck(t *testing.T) {
	env := newTestEnv(t)

	if code := exitCode(env.run("check", "--format", "json", "/etc/hosts")); code != runtime.ExitCodeOrderFailed {
		t.Errorf("protected path exit code = %d, want %d", code, runtime.ExitCodeOrderFailed)
	}
	if code := exitCode(env.run("check")); code != runtime.ExitCodeInvalidInput {
		t.Errorf("no paths exit code = %d", code)
	}
	if code := exitCode(env.run("check", "--tui", "/etc")); code != 1 {
		t.Errorf("--tui exit code = %d, want 1", code)
	}
}

func TestHistory_RequiresAuthor(t *testing.T) {
	env := newTestEnv(t)
	if code := exitCode(env.run("history", "--format", "json")); code != runtime.ExitCodeInvalidInput {
		t.Errorf("exit code = %d, want %d", code, runtime.ExitCodeInvalidInput)
	}

	t.Setenv("DELIORDER_USER_ID", "alice")
	if err := env.run("history", "--format", "json"); err != nil {
		t.Errorf("history with DELIORDER_USER_ID: %v", err)
	}
}

func TestExecutions_NoLedger(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "deliorder.yaml", "registry:\n  backend: memory\n")
	if code := exitCode(env.run("executions", "123456")); code != runtime.ExitCodeInvalidInput {
		t.Errorf("exit code = %d, want %d", code, runtime.ExitCodeInvalidInput)
	}
}

func TestPrune(t *testing.T) {
	env := newTestEnv(t)
	if err := env.run("prune", "--format", "json"); err != nil {
		t.Errorf("sqlite prune: %v", err)
	}
	if code := exitCode(env.run("--registry", "memory", "prune")); code != runtime.ExitCodeInvalidInput {
		t.Errorf("memory prune exit code = %d, want %d", code, runtime.ExitCodeInvalidInput)
	}
}

func TestInvalidConfig(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "deliorder.yaml", "serial_length: 99\n")
	if code := exitCode(env.run("history", "--author", "alice")); code != runtime.ExitCodeInvalidInput {
		t.Errorf("exit code = %d, want %d", code, runtime.ExitCodeInvalidInput)
	}
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)
	if err := env.run("version", "--format", "json"); err != nil {
		t.Errorf("version: %v", err)
	}
	if code := exitCode(env.run("version", "--tui")); code != 1 {
		t.Errorf("--tui exit code = %d, want 1", code)
	}
}
