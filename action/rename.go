package action

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pithecene-io/deliorder/types"
)

func rename(_ context.Context, o types.Order) (string, error) {
	r, ok := o.(*types.Rename)
	if !ok {
		return "", mismatch(types.ActionRename, o)
	}
	src := r.Dest.Path()

	name := strings.TrimSpace(r.EditingName)
	if !types.IsPlainName(name) {
		return "", types.NewFSError(types.ErrInvalidName, "rename", name, nil)
	}
	if !types.HasExtension(name) {
		return "", types.NewFSError(types.ErrInvalidName, "rename", name, fmt.Errorf("missing extension"))
	}

	if _, err := os.Lstat(src); err != nil {
		return "", types.WrapFSError(err, "rename", src)
	}
	dst := filepath.Join(r.Dest.ExecutionPath, name)
	if exists(dst) {
		return "", types.NewFSError(types.ErrExist, "rename", dst, nil)
	}
	if err := os.Rename(src, dst); err != nil {
		return "", types.WrapFSError(err, "rename", src)
	}
	return fmt.Sprintf("%s renamed to %s", r.Dest.AttachmentName, name), nil
}
