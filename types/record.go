package types

// Attachment types recorded by the composing client.
const (
	AttachmentFile   = "file"
	AttachmentString = "string"
	AttachmentFolder = "folder"
)

// OrderRecord is the flat wire form of an order, as the composing client
// fills it in and as the registry stores it. Fields irrelevant to the action
// are left empty. compose.Build turns a valid record into an Order.
type OrderRecord struct {
	Action         string `json:"action" msgpack:"action" yaml:"action"`
	AttachmentName string `json:"attachmentName" msgpack:"attachmentName" yaml:"attachment_name"`
	AttachmentType string `json:"attachmentType,omitempty" msgpack:"attachmentType,omitempty" yaml:"attachment_type,omitempty"`
	AttachmentURL  string `json:"attachmentUrl,omitempty" msgpack:"attachmentUrl,omitempty" yaml:"attachment_url,omitempty"`
	AttachmentData []byte `json:"attachmentData,omitempty" msgpack:"attachmentData,omitempty" yaml:"-"`
	MimeType       string `json:"mimeType,omitempty" msgpack:"mimeType,omitempty" yaml:"mime_type,omitempty"`
	SourcePath     string `json:"sourcePath,omitempty" msgpack:"sourcePath,omitempty" yaml:"source_path,omitempty"`
	ExecutionPath  string `json:"executionPath" msgpack:"executionPath" yaml:"execution_path"`
	EditingName    string `json:"editingName,omitempty" msgpack:"editingName,omitempty" yaml:"editing_name,omitempty"`
	UseVSCode      bool   `json:"useVscode,omitempty" msgpack:"useVscode,omitempty" yaml:"use_vscode,omitempty"`
	Overwrite      bool   `json:"overwrite,omitempty" msgpack:"overwrite,omitempty" yaml:"overwrite,omitempty"`

	// LocalFile is a composer-side convenience: a path whose contents become
	// AttachmentData for create orders. Never sent over the wire.
	LocalFile string `json:"-" msgpack:"-" yaml:"local_file,omitempty"`
}

// ToRecord converts a typed order back to its wire form.
func ToRecord(o Order) OrderRecord {
	t := o.Target()
	rec := OrderRecord{
		Action:         string(o.Action()),
		AttachmentName: t.AttachmentName,
		AttachmentType: AttachmentFile,
		ExecutionPath:  t.ExecutionPath,
	}

	switch v := o.(type) {
	case *Create:
		rec.AttachmentURL = v.URL
		rec.Overwrite = v.Overwrite
		if v.Payload != nil {
			rec.AttachmentData = v.Payload.Data
			rec.MimeType = v.Payload.MimeType
		}
	case *Move:
		rec.SourcePath = v.SourcePath
	case *Rename:
		rec.EditingName = v.EditingName
	case *Execute:
		rec.UseVSCode = v.UseVSCode
		if v.UseVSCode {
			rec.AttachmentType = AttachmentFolder
		}
	case *Delete:
		if v.Directory {
			rec.AttachmentType = AttachmentFolder
		}
	}

	return rec
}
