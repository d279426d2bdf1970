package types

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"
)

// ValidationKind names the first required field an order is missing.
type ValidationKind string

// Validation kinds, checked in this order.
const (
	UndefinedAction        ValidationKind = "undefined_action"
	UndefinedAttachment    ValidationKind = "undefined_attachment"
	InvalidAttachment      ValidationKind = "invalid_attachment"
	UndefinedExecutionPath ValidationKind = "undefined_execution_path"
	UndefinedSourcePath    ValidationKind = "undefined_source_path"
	UndefinedEditingName   ValidationKind = "undefined_editing_name"
	UndefinedExtensionName ValidationKind = "undefined_extension_name"
)

var validationMessages = map[ValidationKind]string{
	UndefinedAction:        "choose an action",
	UndefinedAttachment:    "choose a file to act on",
	InvalidAttachment:      "the file name cannot contain a path",
	UndefinedExecutionPath: "choose the folder the action runs in",
	UndefinedSourcePath:    "choose the folder to move from",
	UndefinedEditingName:   "enter the new file name",
	UndefinedExtensionName: "the new file name needs an extension",
}

// ValidationError rejects an order before it may join a package.
type ValidationError struct {
	Kind ValidationKind
}

func (e *ValidationError) Error() string {
	if msg, ok := validationMessages[e.Kind]; ok {
		return msg
	}
	return string(e.Kind)
}

// Is matches another ValidationError of the same kind.
func (e *ValidationError) Is(target error) bool {
	var other *ValidationError
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// CriticalPathViolation is a guard rejection. The filesystem is not touched.
type CriticalPathViolation struct {
	// Path is the canonical path that was checked.
	Path string
	// Entry is the denylist entry it collided with; empty when the path
	// could not be resolved.
	Entry string
	// Reason, when set, explains a rejection that is not a denylist match.
	Reason string
}

func (e *CriticalPathViolation) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("critical path violation: %s %s", e.Path, e.Reason)
	}
	if e.Entry == "" {
		return fmt.Sprintf("critical path violation: %s cannot be resolved", e.Path)
	}
	return fmt.Sprintf("critical path violation: %s is protected (%s)", e.Path, e.Entry)
}

// Sentinel kinds for FileSystemError. Use errors.Is(err, ErrXxx).
var (
	ErrNotExist       = errors.New("does not exist")
	ErrExist          = errors.New("already exists")
	ErrPermission     = errors.New("permission denied")
	ErrNotDirectory   = errors.New("not a directory")
	ErrIsDirectory    = errors.New("is a directory")
	ErrDiskFull       = errors.New("no space left on device")
	ErrCorruptArchive = errors.New("corrupt archive")
	ErrPathTraversal  = errors.New("archive entry escapes destination")
	ErrNoPayload      = errors.New("no payload to materialize")
	ErrLaunch         = errors.New("cannot launch")
	ErrInvalidName    = errors.New("invalid file name")
	ErrUnknownFS      = errors.New("filesystem error")
)

// FileSystemError is a handler-level failure. It is recorded as a failed
// outcome and never aborts the remaining orders.
type FileSystemError struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Kind)
	}
	if errors.Is(e.Err, e.Kind) {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *FileSystemError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *FileSystemError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// NewFSError builds a FileSystemError of a known kind.
func NewFSError(kind error, op, path string, err error) *FileSystemError {
	return &FileSystemError{Kind: kind, Op: op, Path: path, Err: err}
}

// WrapFSError classifies err and wraps it. Returns nil if err is nil.
// An err that is already a FileSystemError is returned unchanged.
func WrapFSError(err error, op, path string) error {
	if err == nil {
		return nil
	}
	var fsErr *FileSystemError
	if errors.As(err, &fsErr) {
		return err
	}
	return NewFSError(ClassifyFS(err), op, path, err)
}

// ClassifyFS maps an I/O error onto a FileSystemError kind.
// Typed checks run first; message patterns cover errors from subprocesses
// and archive readers that do not wrap io/fs sentinels.
func ClassifyFS(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotExist
	case errors.Is(err, fs.ErrExist):
		return ErrExist
	case errors.Is(err, fs.ErrPermission):
		return ErrPermission
	case errors.Is(err, syscall.ENOTDIR):
		return ErrNotDirectory
	case errors.Is(err, syscall.EISDIR):
		return ErrIsDirectory
	case errors.Is(err, syscall.ENOSPC):
		return ErrDiskFull
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "no such file", "does not exist", "cannot find"):
		return ErrNotExist
	case containsAny(msg, "file exists", "already exists"):
		return ErrExist
	case containsAny(msg, "permission denied", "access is denied", "operation not permitted"):
		return ErrPermission
	case containsAny(msg, "not a directory"):
		return ErrNotDirectory
	case containsAny(msg, "is a directory"):
		return ErrIsDirectory
	case containsAny(msg, "no space left", "disk full"):
		return ErrDiskFull
	case containsAny(msg, "zip: not a valid zip file", "zip: checksum error", "unexpected eof"):
		return ErrCorruptArchive
	default:
		return ErrUnknownFS
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Registry-level sentinels. A run never starts when retrieval fails.
var (
	ErrPackageExpired  = errors.New("package expired")
	ErrPackageNotFound = errors.New("package not found")
	ErrAuthExpired     = errors.New("authorization expired")
)

// RegistryError wraps a registry failure with the serial number involved.
type RegistryError struct {
	Kind   error
	Op     string
	Serial string
	Err    error
}

func (e *RegistryError) Error() string {
	subject := e.Op
	if e.Serial != "" {
		subject = fmt.Sprintf("%s %s", e.Op, e.Serial)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", subject, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", subject, e.Kind)
}

// Unwrap returns the underlying error.
func (e *RegistryError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *RegistryError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// NewRegistryError builds a classified registry error.
func NewRegistryError(kind error, op, serial string, err error) *RegistryError {
	return &RegistryError{Kind: kind, Op: op, Serial: serial, Err: err}
}
