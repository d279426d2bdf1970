package ipc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
)

// ErrDialogCanceled is returned when the user dismisses a picker.
var ErrDialogCanceled = errors.New("dialog canceled")

// Dialog shows the host's native file and folder pickers.
type Dialog interface {
	PickFolder(ctx context.Context) (string, error)
	PickFile(ctx context.Context) (string, error)
}

// commandRunner runs a command and returns its stdout and stderr.
type commandRunner func(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)

// NativeDialog shells out to osascript on darwin, PowerShell on windows
// and zenity elsewhere.
type NativeDialog struct {
	goos string
	run  commandRunner
}

// NewNativeDialog returns a dialog for the running platform.
func NewNativeDialog() *NativeDialog {
	return &NativeDialog{goos: goruntime.GOOS, run: runCommand}
}

// PickFolder asks for a directory.
func (d *NativeDialog) PickFolder(ctx context.Context) (string, error) {
	name, args := folderCommand(d.goos)
	return d.pick(ctx, name, args)
}

// PickFile asks for a single file.
func (d *NativeDialog) PickFile(ctx context.Context) (string, error) {
	name, args := fileCommand(d.goos)
	return d.pick(ctx, name, args)
}

func (d *NativeDialog) pick(ctx context.Context, name string, args []string) (string, error) {
	stdout, stderr, err := d.run(ctx, name, args...)
	if err != nil {
		if canceled(err, stderr) {
			return "", ErrDialogCanceled
		}
		if msg := strings.TrimSpace(stderr); msg != "" {
			return "", fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return "", fmt.Errorf("%s: %w", name, err)
	}
	path := strings.TrimSpace(stdout)
	if path == "" {
		return "", ErrDialogCanceled
	}
	return filepath.Clean(path), nil
}

// canceled recognizes a dismissed picker: zenity exits 1 with no output,
// osascript exits 1 with error -128.
func canceled(err error, stderr string) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
		return false
	}
	msg := strings.TrimSpace(stderr)
	return msg == "" || strings.Contains(msg, "-128")
}

const (
	psFolder = `Add-Type -AssemblyName System.Windows.Forms; ` +
		`$d = New-Object System.Windows.Forms.FolderBrowserDialog; ` +
		`if ($d.ShowDialog() -eq 'OK') { $d.SelectedPath }`
	psFile = `Add-Type -AssemblyName System.Windows.Forms; ` +
		`$d = New-Object System.Windows.Forms.OpenFileDialog; ` +
		`if ($d.ShowDialog() -eq 'OK') { $d.FileName }`
)

func folderCommand(goos string) (string, []string) {
	switch goos {
	case "darwin":
		return "osascript", []string{"-e", "POSIX path of (choose folder)"}
	case "windows":
		return "powershell", []string{"-NoProfile", "-STA", "-Command", psFolder}
	default:
		return "zenity", []string{"--file-selection", "--directory"}
	}
}

func fileCommand(goos string) (string, []string) {
	switch goos {
	case "darwin":
		return "osascript", []string{"-e", "POSIX path of (choose file)"}
	case "windows":
		return "powershell", []string{"-NoProfile", "-STA", "-Command", psFile}
	default:
		return "zenity", []string{"--file-selection"}
	}
}

func runCommand(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}
