// Package guard keeps orders away from critical system and user directories.
//
// A path is protected when its canonical form equals, descends from, or is
// an ancestor of any denylist entry. The ancestor case blocks operations on
// a parent that would transitively destroy a protected child (deleting
// /Users takes the home directory with it). Paths that cannot be resolved
// are always protected.
package guard

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pithecene-io/deliorder/types"
)

// Guard is a pure predicate over paths and an injected denylist.
// Safe for concurrent use; it holds no mutable state.
type Guard struct {
	denylist *Denylist
}

// New creates a guard over dl.
func New(dl *Denylist) *Guard {
	return &Guard{denylist: dl}
}

// Denylist returns the list the guard was built with.
func (g *Guard) Denylist() *Denylist {
	return g.denylist
}

// IsProtected reports whether any action on path must be refused.
func (g *Guard) IsProtected(path string) bool {
	return g.Check(path) != nil
}

// Check returns a CriticalPathViolation if path is protected.
func (g *Guard) Check(path string) error {
	canonical, err := g.Canonicalize(path)
	if err != nil {
		return &types.CriticalPathViolation{Path: path}
	}
	for _, e := range g.denylist.entries {
		if related(canonical, e.Path) {
			return &types.CriticalPathViolation{Path: canonical, Entry: e.Path}
		}
	}
	return nil
}

// IsProtectedRoot reports whether dir is itself a system root. Create, Copy
// and Execute write into or launch from a directory without destroying it,
// so only an exact system-root match refuses them.
func (g *Guard) IsProtectedRoot(dir string) bool {
	return g.CheckRoot(dir) != nil
}

// CheckRoot returns a CriticalPathViolation if dir is a system root or
// cannot be resolved.
func (g *Guard) CheckRoot(dir string) error {
	canonical, err := g.Canonicalize(dir)
	if err != nil {
		return &types.CriticalPathViolation{Path: dir}
	}
	for _, e := range g.denylist.entries {
		if e.Scope == ScopeSystem && canonical == e.Path {
			return &types.CriticalPathViolation{Path: canonical, Entry: e.Path}
		}
	}
	return nil
}

// CheckOrder applies the checks an order's action requires before its
// handler may run. The attachment name must be a single path element, so
// every path an order touches lies directly inside the directory checked
// for it.
func (g *Guard) CheckOrder(o types.Order) error {
	t := o.Target()
	if !types.IsPlainName(t.AttachmentName) || !Contains(t.ExecutionPath, t.Path()) {
		return &types.CriticalPathViolation{Path: t.Path(), Reason: "escapes its execution path"}
	}
	dir := filepath.Dir(t.Path())
	switch v := o.(type) {
	case *types.Delete:
		if v.Directory {
			return g.Check(v.DirPath())
		}
		return g.Check(t.Path())
	case *types.Move:
		if err := g.Check(v.SourceFile()); err != nil {
			return err
		}
		return g.Check(dir)
	case *types.Rename:
		return g.Check(t.Path())
	case *types.Decompress:
		if err := g.Check(t.Path()); err != nil {
			return err
		}
		return g.Check(dir)
	case *types.Create, *types.Copy, *types.Execute:
		return g.CheckRoot(dir)
	default:
		return &types.CriticalPathViolation{Path: t.Path()}
	}
}

// Canonicalize returns the absolute, symlink-resolved, case-normalized
// form of path. It fails when path does not exist.
func (g *Guard) Canonicalize(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", os.ErrNotExist
	}
	resolved, err := resolve(path)
	if err != nil {
		return "", err
	}
	return g.denylist.normalize(resolved), nil
}

// Contains reports whether child resolves inside parent (or is parent).
// Used for archive-entry containment where child may not exist yet.
func Contains(parent, child string) bool {
	rel, err := filepath.Rel(filepath.Clean(parent), filepath.Clean(child))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel))
}

func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return filepath.Clean(resolved), nil
}

// related reports equality, descent or ancestry between two canonical paths.
func related(candidate, entry string) bool {
	if candidate == entry {
		return true
	}
	return isWithin(candidate, entry) || isWithin(entry, candidate)
}

// isWithin reports whether child is strictly below parent.
func isWithin(child, parent string) bool {
	prefix := parent
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(child, prefix)
}
