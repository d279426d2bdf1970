package ipc

import (
	"github.com/pithecene-io/deliorder/types"
)

// Op names one process-boundary operation.
type Op string

// Operations accepted by Server.
const (
	OpOpenFolderDialog  Op = "openFolderDialog"
	OpOpenFileDialog    Op = "openFileDialog"
	OpDeleteFile        Op = "deleteFile"
	OpEditFileName      Op = "editFileName"
	OpDownloadFile      Op = "downloadFile"
	OpMoveFile          Op = "moveFile"
	OpExecuteFile       Op = "executeFile"
	OpReplicateFile     Op = "replicateFile"
	OpUnzipFile         Op = "unzipFile"
	OpGetAttachmentName Op = "getAttachmentName"
)

// orderOps maps each order-carrying operation to the action it runs.
var orderOps = map[Op]types.Action{
	OpDeleteFile:    types.ActionDelete,
	OpEditFileName:  types.ActionRename,
	OpDownloadFile:  types.ActionCreate,
	OpMoveFile:      types.ActionMove,
	OpExecuteFile:   types.ActionExecute,
	OpReplicateFile: types.ActionCopy,
	OpUnzipFile:     types.ActionDecompress,
}

// OpFor returns the operation that runs action a.
func OpFor(a types.Action) (Op, bool) {
	for op, action := range orderOps {
		if action == a {
			return op, true
		}
	}
	return "", false
}

// Request is one call from the caller.
type Request struct {
	ID uint64 `msgpack:"id"`
	Op Op     `msgpack:"op"`
	// Order is set for the order-carrying operations.
	Order *types.OrderRecord `msgpack:"order,omitempty"`
	// Action is the openFileDialog argument.
	Action string `msgpack:"action,omitempty"`
	// Path is the getAttachmentName argument.
	Path string `msgpack:"path,omitempty"`
}

// Response answers the Request with the same ID.
type Response struct {
	ID uint64 `msgpack:"id"`
	OK bool   `msgpack:"ok"`
	// Result is the confirmation or failure string shown to the user.
	Result  string                  `msgpack:"result,omitempty"`
	Error   string                  `msgpack:"error,omitempty"`
	Outcome *types.ExecutionOutcome `msgpack:"outcome,omitempty"`
	Dialog  *DialogResult           `msgpack:"dialog,omitempty"`
}

// DialogResult is what a file or folder picker returned.
type DialogResult struct {
	Canceled bool   `msgpack:"canceled,omitempty"`
	FilePath string `msgpack:"filePath,omitempty"`
	// AttachmentName and RelativePath split FilePath into the two order
	// fields: base name and containing directory.
	AttachmentName string `msgpack:"attachmentName,omitempty"`
	RelativePath   string `msgpack:"relativePath,omitempty"`
	// Data, MimeType and BaseName are set only when picking a create payload.
	Data     []byte `msgpack:"data,omitempty"`
	MimeType string `msgpack:"mimeType,omitempty"`
	BaseName string `msgpack:"baseName,omitempty"`
}
