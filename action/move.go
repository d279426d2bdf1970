package action

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/pithecene-io/deliorder/iox"
	"github.com/pithecene-io/deliorder/types"
)

func move(_ context.Context, o types.Order) (string, error) {
	m, ok := o.(*types.Move)
	if !ok {
		return "", mismatch(types.ActionMove, o)
	}
	src := m.SourceFile()
	dst := m.Dest.Path()

	info, err := os.Lstat(src)
	if err != nil {
		return "", types.WrapFSError(err, "move", src)
	}
	if err := ensureDir(m.Dest.ExecutionPath); err != nil {
		return "", types.WrapFSError(err, "move", m.Dest.ExecutionPath)
	}
	if exists(dst) {
		return "", types.NewFSError(types.ErrExist, "move", dst, nil)
	}

	if err := os.Rename(src, dst); err != nil {
		if !errors.Is(err, syscall.EXDEV) || info.IsDir() {
			return "", types.WrapFSError(err, "move", src)
		}
		// Cross-device: copy then remove the source.
		if err := copyFile(src, dst, info.Mode().Perm()); err != nil {
			return "", types.WrapFSError(err, "move", dst)
		}
		if err := os.Remove(src); err != nil {
			return "", types.WrapFSError(err, "move", src)
		}
	}
	return fmt.Sprintf("%s moved to %s", m.Dest.AttachmentName, m.Dest.ExecutionPath), nil
}

// copyFile copies a regular file to a path that must not exist yet.
func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(in)
	return writeFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm, in)
}

func ensureDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return types.NewFSError(types.ErrNotDirectory, "stat", dir, nil)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
