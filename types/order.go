package types

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Action identifies the filesystem effect an order requests.
// The set is closed; ParseAction rejects anything else.
type Action string

// Action values as they appear on the wire.
const (
	ActionCreate     Action = "create"
	ActionMove       Action = "move"
	ActionCopy       Action = "copy"
	ActionRename     Action = "rename"
	ActionExecute    Action = "execute"
	ActionDelete     Action = "delete"
	ActionDecompress Action = "decompress"
)

// actionAliases maps alternate names used by older clients.
var actionAliases = map[string]Action{
	"replicate": ActionCopy,
	"edit":      ActionRename,
	"unzip":     ActionDecompress,
	"download":  ActionCreate,
}

// Actions returns every action in display order.
func Actions() []Action {
	return []Action{
		ActionCreate,
		ActionMove,
		ActionCopy,
		ActionRename,
		ActionExecute,
		ActionDelete,
		ActionDecompress,
	}
}

// ParseAction parses a wire action name, accepting legacy aliases.
func ParseAction(s string) (Action, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, a := range Actions() {
		if string(a) == name {
			return a, nil
		}
	}
	if a, ok := actionAliases[name]; ok {
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Target names the file an order acts on and the directory it acts in.
// Every order variant carries one.
type Target struct {
	AttachmentName string
	ExecutionPath  string
}

// Path returns executionPath/attachmentName.
func (t Target) Path() string {
	return filepath.Join(t.ExecutionPath, t.AttachmentName)
}

// Order is a single validated filesystem request.
// Implementations are the variant structs below; each carries only the
// fields its action needs, so a Move without a source path cannot exist.
type Order interface {
	Action() Action
	Target() Target
	isOrder()
}

// Payload is file content embedded directly in a Create order.
type Payload struct {
	Data     []byte
	MimeType string
}

// Create materializes a payload at executionPath/attachmentName.
// Exactly one of Payload or URL is set once the package is submitted.
type Create struct {
	Dest      Target
	Payload   *Payload
	URL       string
	Overwrite bool
}

// Move relocates sourcePath/attachmentName into executionPath.
type Move struct {
	Dest       Target
	SourcePath string
}

// Copy duplicates executionPath/attachmentName alongside the original.
type Copy struct {
	Dest Target
}

// Rename renames executionPath/attachmentName to EditingName in place.
type Rename struct {
	Dest        Target
	EditingName string
}

// Execute opens executionPath/attachmentName with the host default handler,
// or opens a directory in the editor when UseVSCode is set.
type Execute struct {
	Dest      Target
	UseVSCode bool
}

// Delete removes executionPath/attachmentName, or a whole directory when
// Directory is set.
type Delete struct {
	Dest      Target
	Directory bool
}

// DirPath returns the directory a directory-targeting Delete removes.
// A folder pick stores the folder itself as executionPath with its base name
// as attachmentName; otherwise the folder lives inside executionPath.
func (d Delete) DirPath() string {
	if filepath.Base(filepath.Clean(d.Dest.ExecutionPath)) == d.Dest.AttachmentName {
		return filepath.Clean(d.Dest.ExecutionPath)
	}
	return d.Dest.Path()
}

// Decompress expands the archive at executionPath/attachmentName into
// executionPath.
type Decompress struct {
	Dest Target
}

func (o *Create) Action() Action     { return ActionCreate }
func (o *Move) Action() Action       { return ActionMove }
func (o *Copy) Action() Action       { return ActionCopy }
func (o *Rename) Action() Action     { return ActionRename }
func (o *Execute) Action() Action    { return ActionExecute }
func (o *Delete) Action() Action     { return ActionDelete }
func (o *Decompress) Action() Action { return ActionDecompress }

func (o *Create) Target() Target     { return o.Dest }
func (o *Move) Target() Target       { return o.Dest }
func (o *Copy) Target() Target       { return o.Dest }
func (o *Rename) Target() Target     { return o.Dest }
func (o *Execute) Target() Target    { return o.Dest }
func (o *Delete) Target() Target     { return o.Dest }
func (o *Decompress) Target() Target { return o.Dest }

func (*Create) isOrder()     {}
func (*Move) isOrder()       {}
func (*Copy) isOrder()       {}
func (*Rename) isOrder()     {}
func (*Execute) isOrder()    {}
func (*Delete) isOrder()     {}
func (*Decompress) isOrder() {}

// SourceFile returns sourcePath/attachmentName.
func (o *Move) SourceFile() string {
	return filepath.Join(o.SourcePath, o.Dest.AttachmentName)
}

// HasExtension reports whether name ends in a ".ext" suffix.
// A trailing dot ("a.") does not count.
func HasExtension(name string) bool {
	base := name
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	dot := strings.LastIndex(base, ".")
	return dot >= 0 && dot < len(base)-1
}

// IsPlainName reports whether name is a single path element: not empty,
// not "." or "..", and free of path separators on any platform.
func IsPlainName(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// CloneOrder returns a copy of o that shares no memory with it.
func CloneOrder(o Order) Order {
	switch v := o.(type) {
	case *Create:
		c := *v
		if v.Payload != nil {
			p := *v.Payload
			p.Data = append([]byte(nil), v.Payload.Data...)
			c.Payload = &p
		}
		return &c
	case *Move:
		c := *v
		return &c
	case *Copy:
		c := *v
		return &c
	case *Rename:
		c := *v
		return &c
	case *Execute:
		c := *v
		return &c
	case *Delete:
		c := *v
		return &c
	case *Decompress:
		c := *v
		return &c
	default:
		return o
	}
}

// Describe renders a one-line human summary of an order.
func Describe(o Order) string {
	t := o.Target()
	switch v := o.(type) {
	case *Rename:
		return fmt.Sprintf("%s -> %s (rename in %s)", t.AttachmentName, v.EditingName, t.ExecutionPath)
	case *Move:
		return fmt.Sprintf("%s from %s to %s (move)", t.AttachmentName, v.SourcePath, t.ExecutionPath)
	case *Execute:
		if v.UseVSCode {
			return fmt.Sprintf("%s in %s (execute with vscode)", t.AttachmentName, t.ExecutionPath)
		}
	}
	return fmt.Sprintf("%s in %s (%s)", t.AttachmentName, t.ExecutionPath, o.Action())
}
