package action

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	goruntime "runtime"
	"strings"

	"github.com/pithecene-io/deliorder/types"
)

// Launcher opens files with the host's default handler and folders in the
// external editor.
type Launcher interface {
	Open(ctx context.Context, path string) error
	OpenEditor(ctx context.Context, dir string) error
}

// SystemLauncher shells out to the platform opener: open on darwin,
// "cmd /c start" on windows, xdg-open elsewhere. The editor is the `code`
// command on PATH.
type SystemLauncher struct{}

// Open launches path with the default handler.
func (SystemLauncher) Open(ctx context.Context, path string) error {
	name, args := openCommand(goruntime.GOOS, path)
	return run(ctx, name, args...)
}

// OpenEditor opens dir in the editor.
func (SystemLauncher) OpenEditor(ctx context.Context, dir string) error {
	if goruntime.GOOS == "windows" {
		// code is a .cmd shim on windows and must go through the shell.
		return run(ctx, "cmd", "/c", "code", dir)
	}
	return run(ctx, "code", dir)
}

func openCommand(goos, path string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{path}
	case "windows":
		// The empty argument is start's window title.
		return "cmd", []string{"/c", "start", "", path}
	default:
		return "xdg-open", []string{path}
	}
}

func run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (s *Set) execute(ctx context.Context, o types.Order) (string, error) {
	e, ok := o.(*types.Execute)
	if !ok {
		return "", mismatch(types.ActionExecute, o)
	}
	target := e.Dest.Path()

	info, err := os.Stat(target)
	if err != nil {
		return "", types.WrapFSError(err, "execute", target)
	}

	if e.UseVSCode && info.IsDir() {
		if err := s.launcher.OpenEditor(ctx, target); err != nil {
			return "", types.NewFSError(types.ErrLaunch, "execute", target, err)
		}
		return e.Dest.AttachmentName + " opened in editor", nil
	}

	if err := s.launcher.Open(ctx, target); err != nil {
		return "", types.NewFSError(types.ErrLaunch, "execute", target, err)
	}
	return e.Dest.AttachmentName + " opened", nil
}
