package guard

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pithecene-io/deliorder/types"
)

// fixture lays out:
//
//	root/
//	  system/          (system entry)
//	    child/file.txt
//	  home/            (user entry)
//	    Desktop/
//	  free/
//	    a.txt
type fixture struct {
	root, system, home, desktop, free string
	guard                             *Guard
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		root:    root,
		system:  filepath.Join(root, "system"),
		home:    filepath.Join(root, "home"),
		desktop: filepath.Join(root, "home", "Desktop"),
		free:    filepath.Join(root, "free"),
	}
	for _, dir := range []string{filepath.Join(f.system, "child"), f.desktop, f.free} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	writeFile(t, filepath.Join(f.system, "child", "file.txt"))
	writeFile(t, filepath.Join(f.free, "a.txt"))

	dl, err := NewDenylist(goosForTest(), false, f.home, []Entry{
		{Path: f.system, Scope: ScopeSystem},
		{Path: "~/Desktop", Scope: ScopeUser},
	})
	if err != nil {
		t.Fatalf("NewDenylist failed: %v", err)
	}
	f.guard = New(dl)
	return f
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestIsProtected(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"equal to entry", f.system, true},
		{"descendant directory", filepath.Join(f.system, "child"), true},
		{"descendant file", filepath.Join(f.system, "child", "file.txt"), true},
		{"ancestor of entry", f.root, true},
		{"ancestor of user entry", f.home, true},
		{"user entry itself", f.desktop, true},
		{"unrelated directory", f.free, false},
		{"unrelated file", filepath.Join(f.free, "a.txt"), false},
		{"dot-dot into entry", filepath.Join(f.free, "..", "system", "child"), true},
		{"dot-dot to free", filepath.Join(f.system, "..", "free"), false},
		{"missing path", filepath.Join(f.free, "missing.txt"), true},
		{"empty path", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.guard.IsProtected(tt.path); got != tt.want {
				t.Errorf("IsProtected(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestIsProtected_SiblingWithSharedPrefix(t *testing.T) {
	f := newFixture(t)
	sibling := f.system + "-backup"
	if err := os.MkdirAll(sibling, 0o755); err != nil {
		t.Fatal(err)
	}
	if f.guard.IsProtected(sibling) {
		t.Errorf("%s shares a name prefix with an entry but is not below it", sibling)
	}
}

func TestIsProtected_Symlink(t *testing.T) {
	f := newFixture(t)
	link := filepath.Join(f.free, "link")
	if err := os.Symlink(filepath.Join(f.system, "child"), link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if !f.guard.IsProtected(link) {
		t.Error("symlink into a protected root must be protected")
	}
}

func TestCheck_ViolationCarriesEntry(t *testing.T) {
	f := newFixture(t)
	err := f.guard.Check(filepath.Join(f.system, "child"))

	var violation *types.CriticalPathViolation
	if !errors.As(err, &violation) {
		t.Fatalf("expected CriticalPathViolation, got %v", err)
	}
	if violation.Entry == "" {
		t.Error("violation should name the colliding entry")
	}
}

func TestCheckRoot(t *testing.T) {
	f := newFixture(t)

	if !f.guard.IsProtectedRoot(f.system) {
		t.Error("system entry must be refused as a destination")
	}
	if f.guard.IsProtectedRoot(f.desktop) {
		t.Error("user folders are valid destinations for create/execute")
	}
	if f.guard.IsProtectedRoot(filepath.Join(f.system, "child")) {
		t.Error("only an exact system root is refused")
	}
	if !f.guard.IsProtectedRoot(filepath.Join(f.root, "nope")) {
		t.Error("unresolvable destination must be refused")
	}
}

func TestCheckOrder(t *testing.T) {
	f := newFixture(t)
	target := func(name, dir string) types.Target {
		return types.Target{AttachmentName: name, ExecutionPath: dir}
	}

	tests := []struct {
		name    string
		order   types.Order
		blocked bool
	}{
		{"delete inside system", &types.Delete{Dest: target("file.txt", filepath.Join(f.system, "child"))}, true},
		{"delete free file", &types.Delete{Dest: target("a.txt", f.free)}, false},
		{"delete root directory", &types.Delete{Dest: target(filepath.Base(f.root), f.root), Directory: true}, true},
		{"move out of system", &types.Move{Dest: target("file.txt", f.free), SourcePath: filepath.Join(f.system, "child")}, true},
		{"move into system", &types.Move{Dest: target("a.txt", f.system), SourcePath: f.free}, true},
		{"move free to free", &types.Move{Dest: target("a.txt", f.free), SourcePath: f.free}, false},
		{"rename free", &types.Rename{Dest: target("a.txt", f.free), EditingName: "b.txt"}, false},
		{"create into desktop", &types.Create{Dest: target("report.pdf", f.desktop)}, false},
		{"create into system root", &types.Create{Dest: target("x", f.system)}, true},
		{"execute on desktop", &types.Execute{Dest: target("report.pdf", f.desktop)}, false},
		{"copy in free", &types.Copy{Dest: target("a.txt", f.free)}, false},
		{"decompress missing archive", &types.Decompress{Dest: target("a.zip", f.free)}, true},
		{"create climbing into system", &types.Create{Dest: target("../system/evil.txt", f.free)}, true},
		{"copy climbing into system", &types.Copy{Dest: target("../system/child/file.txt", f.free)}, true},
		{"move climbing into system", &types.Move{Dest: target("../system/a.txt", f.free), SourcePath: f.free}, true},
		{"execute climbing out", &types.Execute{Dest: target("../system/child/file.txt", f.free)}, true},
		{"create with nested name", &types.Create{Dest: target("sub/x.txt", f.free)}, true},
		{"create with backslash name", &types.Create{Dest: target(`..\x.txt`, f.free)}, true},
		{"create dot name", &types.Create{Dest: target(".", f.free)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.guard.CheckOrder(tt.order)
			if tt.blocked && err == nil {
				t.Error("expected guard rejection")
			}
			if !tt.blocked && err != nil {
				t.Errorf("unexpected rejection: %v", err)
			}
		})
	}
}

func TestCheckOrder_EscapeIsViolation(t *testing.T) {
	f := newFixture(t)
	err := f.guard.CheckOrder(&types.Create{Dest: types.Target{AttachmentName: "../system/evil.txt", ExecutionPath: f.free}})
	var v *types.CriticalPathViolation
	if !errors.As(err, &v) {
		t.Fatalf("expected CriticalPathViolation, got %T: %v", err, err)
	}
	if v.Reason == "" {
		t.Error("escape rejection should carry a reason")
	}
}

func TestCaseInsensitiveFolding(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "protected")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	dl, err := NewDenylist(goosForTest(), true, "", []Entry{{Path: filepath.Join(root, "PROTECTED"), Scope: ScopeSystem}})
	if err != nil {
		t.Fatal(err)
	}
	if !New(dl).IsProtected(dir) {
		t.Error("case-folded entry should match differently cased path")
	}
}

func TestScenarioB_SystemDeleteRejected(t *testing.T) {
	dl, err := LoadDenylist("darwin", "/Users/tester")
	if err != nil {
		t.Fatalf("LoadDenylist failed: %v", err)
	}
	g := New(dl)
	err = g.CheckOrder(&types.Delete{Dest: types.Target{AttachmentName: "x.txt", ExecutionPath: "/System"}})
	var violation *types.CriticalPathViolation
	if !errors.As(err, &violation) {
		t.Fatalf("expected CriticalPathViolation, got %v", err)
	}
}

func TestContains(t *testing.T) {
	base := filepath.Join(string(filepath.Separator), "dest")
	tests := []struct {
		child string
		want  bool
	}{
		{base, true},
		{filepath.Join(base, "a.txt"), true},
		{filepath.Join(base, "sub", "b.txt"), true},
		{filepath.Join(base, "..data"), true},
		{filepath.Join(base, "..", "etc", "passwd"), false},
		{filepath.Join(string(filepath.Separator), "elsewhere"), false},
	}
	for _, tt := range tests {
		if got := Contains(base, tt.child); got != tt.want {
			t.Errorf("Contains(%q, %q) = %v, want %v", base, tt.child, got, tt.want)
		}
	}
}
