package action

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/pithecene-io/deliorder/guard"
	"github.com/pithecene-io/deliorder/iox"
	"github.com/pithecene-io/deliorder/types"
)

// decompress expands a zip archive into its own directory. Every entry is
// checked before anything is written: it must resolve inside the
// directory after following existing symlinks, and it must not collide
// with an existing file or another entry. A failing entry leaves the
// destination untouched.
func decompress(_ context.Context, o types.Order) (string, error) {
	d, ok := o.(*types.Decompress)
	if !ok {
		return "", mismatch(types.ActionDecompress, o)
	}
	archive := d.Dest.Path()
	dest := filepath.Clean(d.Dest.ExecutionPath)

	r, err := zip.OpenReader(archive)
	if err != nil {
		if corrupt(err) {
			return "", types.NewFSError(types.ErrCorruptArchive, "decompress", archive, err)
		}
		return "", types.WrapFSError(err, "decompress", archive)
	}
	defer iox.DiscardClose(r)

	targets, err := planEntries(dest, r.File)
	if err != nil {
		return "", err
	}

	files := 0
	for i, f := range r.File {
		if err := extract(f, targets[i]); err != nil {
			return "", types.WrapFSError(err, "decompress", targets[i])
		}
		if !f.FileInfo().IsDir() {
			files++
		}
	}
	return fmt.Sprintf("%s extracted (%d files)", d.Dest.AttachmentName, files), nil
}

// planEntries returns the target path of every entry, or the first
// reason the archive cannot be extracted.
func planEntries(dest string, files []*zip.File) ([]string, error) {
	root, err := filepath.EvalSymlinks(dest)
	if err != nil {
		return nil, types.WrapFSError(err, "decompress", dest)
	}

	targets := make([]string, len(files))
	claimed := make(map[string]bool, len(files))
	for i, f := range files {
		target, err := entryPath(dest, f.Name)
		if err != nil {
			return nil, types.NewFSError(types.ErrPathTraversal, "decompress", f.Name, err)
		}
		if f.Mode()&os.ModeSymlink != 0 {
			return nil, types.NewFSError(types.ErrPathTraversal, "decompress", f.Name, fmt.Errorf("symlink entries are not extracted"))
		}
		resolved, err := resolveTarget(target)
		if err != nil {
			return nil, types.WrapFSError(err, "decompress", target)
		}
		if !guard.Contains(root, resolved) {
			return nil, types.NewFSError(types.ErrPathTraversal, "decompress", f.Name, fmt.Errorf("entry %q resolves outside %s", f.Name, dest))
		}
		for dir := filepath.Dir(target); guard.Contains(dest, dir) && dir != dest; dir = filepath.Dir(dir) {
			if claimed[dir] {
				return nil, types.NewFSError(types.ErrNotDirectory, "decompress", dir, nil)
			}
		}

		if f.FileInfo().IsDir() {
			if info, err := os.Stat(target); err == nil && !info.IsDir() {
				return nil, types.NewFSError(types.ErrNotDirectory, "decompress", target, nil)
			}
		} else {
			if claimed[target] || exists(target) {
				return nil, types.NewFSError(types.ErrExist, "decompress", target, nil)
			}
			claimed[target] = true
		}
		targets[i] = target
	}
	return targets, nil
}

// resolveTarget follows symlinks in the deepest existing ancestor of
// target and re-attaches the part that does not exist yet.
func resolveTarget(target string) (string, error) {
	existing := target
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		existing = parent
	}
	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}
	rest, err := filepath.Rel(existing, target)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolved, rest), nil
}

// entryPath resolves an archive entry name below dest.
func entryPath(dest, name string) (string, error) {
	clean := strings.ReplaceAll(name, `\`, "/")
	if clean == "" || strings.HasPrefix(clean, "/") || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("absolute entry name %q", name)
	}
	target := filepath.Join(dest, filepath.FromSlash(clean))
	if !guard.Contains(dest, target) {
		return "", fmt.Errorf("entry %q resolves outside %s", name, dest)
	}
	return target, nil
}

func extract(f *zip.File, target string) error {
	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return types.NewFSError(types.ErrCorruptArchive, "decompress", f.Name, err)
	}
	defer iox.DiscardClose(rc)

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	if err := writeFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm, rc); err != nil {
		if corrupt(err) {
			return types.NewFSError(types.ErrCorruptArchive, "decompress", f.Name, err)
		}
		return err
	}
	return nil
}

func corrupt(err error) bool {
	return errors.Is(err, zip.ErrFormat) ||
		errors.Is(err, zip.ErrAlgorithm) ||
		errors.Is(err, zip.ErrChecksum) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
