package action

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pithecene-io/deliorder/types"
)

// maxCopyAttempts bounds the collision-suffix search.
const maxCopyAttempts = 1000

// copyOrder duplicates the target alongside itself as "name (copy).ext",
// then "name (copy 2).ext" and so on. Destinations are created exclusively,
// so an existing file is never overwritten even under a race.
func copyOrder(_ context.Context, o types.Order) (string, error) {
	c, ok := o.(*types.Copy)
	if !ok {
		return "", mismatch(types.ActionCopy, o)
	}
	src := c.Dest.Path()

	info, err := os.Stat(src)
	if err != nil {
		return "", types.WrapFSError(err, "copy", src)
	}

	for n := 1; n <= maxCopyAttempts; n++ {
		name := CopyName(c.Dest.AttachmentName, n, info.IsDir())
		dst := filepath.Join(c.Dest.ExecutionPath, name)

		if info.IsDir() {
			err = copyDir(src, dst)
		} else {
			err = copyFile(src, dst, info.Mode().Perm())
		}
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", types.WrapFSError(err, "copy", dst)
		}
		return fmt.Sprintf("%s copied to %s", c.Dest.AttachmentName, name), nil
	}
	return "", types.NewFSError(types.ErrExist, "copy", src, fmt.Errorf("no free name after %d attempts", maxCopyAttempts))
}

// copyDir claims dst with an exclusive mkdir, then copies the tree into it.
func copyDir(src, dst string) error {
	if err := os.Mkdir(dst, 0o755); err != nil {
		return err
	}
	if err := os.CopyFS(dst, os.DirFS(src)); err != nil {
		_ = os.RemoveAll(dst)
		// The claimed directory was empty, so ErrExist here is not a
		// name collision.
		if errors.Is(err, fs.ErrExist) {
			return types.NewFSError(types.ErrUnknownFS, "copy", dst, fmt.Errorf("copy tree: %v", err))
		}
		return err
	}
	return nil
}

// CopyName returns the n-th collision-free candidate for name.
// Directories keep dots in their names as-is.
func CopyName(name string, n int, dir bool) string {
	stem, ext := name, ""
	if !dir {
		if e := filepath.Ext(name); e != "" && e != name {
			stem, ext = strings.TrimSuffix(name, e), e
		}
	}
	if n <= 1 {
		return stem + " (copy)" + ext
	}
	return fmt.Sprintf("%s (copy %d)%s", stem, n, ext)
}
