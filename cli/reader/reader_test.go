package reader

import (
	"errors"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/deliorder/compose"
	"github.com/pithecene-io/deliorder/guard"
	"github.com/pithecene-io/deliorder/registry"
	"github.com/pithecene-io/deliorder/runtime"
	"github.com/pithecene-io/deliorder/storage"
	"github.com/pithecene-io/deliorder/types"
)

var epoch = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func testPackage(author string, created time.Time) *types.Package {
	return types.NewPackage(author, []types.Order{
		&types.Copy{Dest: types.Target{AttachmentName: "a.txt", ExecutionPath: "/d"}},
		&types.Rename{Dest: types.Target{AttachmentName: "b.txt", ExecutionPath: "/d"}, EditingName: "c.txt"},
	}, created)
}

func testResult() *runtime.RunResult {
	pkg := testPackage("alice", epoch)
	pkg.SerialNumber = "123456"
	return &runtime.RunResult{
		ExecutionID: "exec-1",
		Package:     pkg,
		StartedAt:   epoch.Add(time.Minute),
		Duration:    2 * time.Second,
		Outcomes: []types.ExecutionOutcome{
			{OrderIndex: 0, Action: types.ActionCopy, Succeeded: true, State: types.OrderSucceeded, Message: "a.txt copied to a (copy).txt"},
			{OrderIndex: 1, Action: types.ActionRename, State: types.OrderFailed, Message: "rename: does not exist"},
		},
	}
}

func TestNewRunView(t *testing.T) {
	view := NewRunView(testResult())

	if view.SerialNumber != "123456" || view.Author != "alice" || view.ExecutionID != "exec-1" {
		t.Errorf("view = %+v", view)
	}
	if view.Status != string(runtime.StatusPartial) {
		t.Errorf("Status = %q", view.Status)
	}
	if view.Succeeded != 1 || view.Failed != 1 || view.Rejected != 0 {
		t.Errorf("counts = %d/%d/%d", view.Succeeded, view.Failed, view.Rejected)
	}
	if view.DurationMs != 2000 {
		t.Errorf("DurationMs = %d", view.DurationMs)
	}
	if len(view.Outcomes) != 2 || view.Outcomes[0].Index != 1 || view.Outcomes[1].State != "failed" {
		t.Errorf("Outcomes = %+v", view.Outcomes)
	}
}

func TestNewOverviewView(t *testing.T) {
	pkg := testPackage("alice", epoch)
	pkg.SerialNumber = "654321"

	view := NewOverviewView(runtime.BuildOverview(pkg), epoch.Add(10*time.Minute))
	if view.Remaining != "20m0s" {
		t.Errorf("Remaining = %q", view.Remaining)
	}
	if len(view.Orders) != 2 || view.StartPath != "/d" {
		t.Errorf("view = %+v", view)
	}

	late := NewOverviewView(runtime.BuildOverview(pkg), epoch.Add(time.Hour))
	if late.Remaining != "-" {
		t.Errorf("expired Remaining = %q", late.Remaining)
	}
}

func TestReader_History(t *testing.T) {
	now := epoch
	reg := registry.NewMemory(registry.WithClock(func() time.Time { return now }))
	older, err := reg.Submit(t.Context(), testPackage("alice", epoch))
	if err != nil {
		t.Fatal(err)
	}
	now = epoch.Add(40 * time.Minute)
	newer, err := reg.Submit(t.Context(), testPackage("alice", now))
	if err != nil {
		t.Fatal(err)
	}

	r := New(reg, nil, func() time.Time { return now })
	items, err := r.History(t.Context(), "alice", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].SerialNumber != newer || items[0].State != "live" || items[0].Orders != 2 {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].SerialNumber != older || items[1].State != "expired" || items[1].Remaining != "-" {
		t.Errorf("items[1] = %+v", items[1])
	}

	items, err = r.History(t.Context(), "alice", true)
	if err != nil {
		t.Fatal(err)
	}
	if items[0].SerialNumber != older {
		t.Errorf("oldest first: items[0] = %q", items[0].SerialNumber)
	}
}

func TestReader_Executions(t *testing.T) {
	r := New(registry.NewMemory(), nil, nil)
	if _, err := r.Executions(t.Context(), "123456"); !errors.Is(err, ErrNoLedger) {
		t.Errorf("expected ErrNoLedger, got %v", err)
	}

	store := lode.NewMemory()
	ledger, err := storage.NewLedger(func() (lode.Store, error) { return store, nil }, nil)
	if err != nil {
		t.Fatal(err)
	}
	r = New(registry.NewMemory(), ledger, nil)

	items, err := r.Executions(t.Context(), "123456")
	if err != nil || len(items) != 0 {
		t.Fatalf("empty ledger = %v, %v", items, err)
	}

	if err := ledger.Append(t.Context(), testResult()); err != nil {
		t.Fatal(err)
	}
	items, err = r.Executions(t.Context(), "123456")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].ExecutionID != "exec-1" || items[0].Index != 1 {
		t.Errorf("items = %+v", items)
	}
}

func TestNewSubmitView(t *testing.T) {
	pkg := testPackage("alice", epoch)

	dry := NewSubmitView(pkg, "")
	if dry.SerialNumber != "" || dry.DeepLink != "" {
		t.Errorf("dry run view = %+v", dry)
	}
	if len(dry.Orders) != 2 || !strings.HasPrefix(dry.Orders[0], "1. ") {
		t.Errorf("Orders = %v", dry.Orders)
	}
	if !dry.ValidUntil.Equal(epoch.Add(types.PackageTTL)) {
		t.Errorf("ValidUntil = %v", dry.ValidUntil)
	}

	v := NewSubmitView(pkg, "654321")
	if v.DeepLink != registry.DeepLink("654321") {
		t.Errorf("DeepLink = %q", v.DeepLink)
	}
}

func testGuard(t *testing.T) (g *guard.Guard, root, system string) {
	t.Helper()
	root = t.TempDir()
	system = filepath.Join(root, "System")
	if err := os.MkdirAll(system, 0o755); err != nil {
		t.Fatal(err)
	}
	dl, err := guard.NewDenylist(goruntime.GOOS, false, root, []guard.Entry{
		{Path: system, Scope: guard.ScopeSystem},
	})
	if err != nil {
		t.Fatal(err)
	}
	return guard.New(dl), root, system
}

func TestNewPathCheckItem(t *testing.T) {
	g, root, system := testGuard(t)

	free := NewPathCheckItem(g, root)
	if free.Protected || free.Entry != "" {
		t.Errorf("root item = %+v", free)
	}

	hit := NewPathCheckItem(g, filepath.Join(system, "x.txt"))
	if !hit.Protected {
		t.Fatalf("system item = %+v", hit)
	}
	if hit.Entry != system {
		t.Errorf("Entry = %q, want %q", hit.Entry, system)
	}
}

func TestNewOrderCheckItems(t *testing.T) {
	g, root, system := testGuard(t)

	recs := []types.OrderRecord{
		{Action: "copy", AttachmentName: "a.txt", ExecutionPath: root},
		{Action: "delete", AttachmentName: "x.txt", ExecutionPath: system},
		{Action: "launch", AttachmentName: "a.txt", ExecutionPath: root},
		{Action: "execute", AttachmentName: "a.txt", ExecutionPath: root},
		{Action: "execute", AttachmentName: "a.txt", ExecutionPath: root},
		{Action: "execute", AttachmentName: "a.txt", ExecutionPath: root},
	}
	items := NewOrderCheckItems(recs, g)
	if len(items) != len(recs) {
		t.Fatalf("len = %d", len(items))
	}
	if !items[0].Valid || items[0].Index != 1 {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[0].Target != filepath.Join(root, "a.txt") {
		t.Errorf("Target = %q", items[0].Target)
	}
	if items[1].Valid || !strings.Contains(items[1].Error, "critical path") {
		t.Errorf("items[1] = %+v", items[1])
	}
	if items[2].Valid || items[2].Error == "" {
		t.Errorf("items[2] = %+v", items[2])
	}
	if !items[4].Valid {
		t.Errorf("items[4] = %+v", items[4])
	}
	if items[5].Valid || items[5].Error != compose.ErrMaxOrderLimit.Error() {
		t.Errorf("items[5] = %+v", items[5])
	}

	unguarded := NewOrderCheckItems(recs[1:2], nil)
	if !unguarded[0].Valid {
		t.Errorf("without a guard = %+v", unguarded[0])
	}
}
