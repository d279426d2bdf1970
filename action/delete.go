package action

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pithecene-io/deliorder/types"
)

func deleteOrder(_ context.Context, o types.Order) (string, error) {
	d, ok := o.(*types.Delete)
	if !ok {
		return "", mismatch(types.ActionDelete, o)
	}

	if d.Directory {
		dir := d.DirPath()
		info, err := os.Lstat(dir)
		if err != nil {
			return "", types.WrapFSError(err, "delete", dir)
		}
		if !info.IsDir() {
			return "", types.NewFSError(types.ErrNotDirectory, "delete", dir, nil)
		}
		if err := os.RemoveAll(dir); err != nil {
			return "", types.WrapFSError(err, "delete", dir)
		}
		return filepath.Base(dir) + " deleted", nil
	}

	path := d.Dest.Path()
	info, err := os.Lstat(path)
	if err != nil {
		return "", types.WrapFSError(err, "delete", path)
	}
	if info.IsDir() {
		return "", types.NewFSError(types.ErrIsDirectory, "delete", path, nil)
	}
	if err := os.Remove(path); err != nil {
		return "", types.WrapFSError(err, "delete", path)
	}
	return d.Dest.AttachmentName + " deleted", nil
}
