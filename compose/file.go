package compose

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/deliorder/types"
)

// OrdersFile is the YAML document the compose command reads.
//
//	author: alice
//	orders:
//	  - action: create
//	    attachment_name: report.pdf
//	    execution_path: ~/Desktop
//	    local_file: ./report.pdf
//	  - action: execute
//	    attachment_name: report.pdf
//	    execution_path: ~/Desktop
type OrdersFile struct {
	Author string              `yaml:"author"`
	Orders []types.OrderRecord `yaml:"orders"`
}

// LoadOrdersFile reads an orders file, expands "~" in paths against home,
// and inlines local_file contents as create payloads.
// Records are not validated here; feed them through a Composer.
func LoadOrdersFile(path, home string) (*OrdersFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("orders file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read orders file %q: %w", path, err)
	}

	var f OrdersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range f.Orders {
		rec := &f.Orders[i]
		rec.ExecutionPath = expandHome(rec.ExecutionPath, home)
		rec.SourcePath = expandHome(rec.SourcePath, home)
		if rec.LocalFile == "" {
			continue
		}
		local := expandHome(rec.LocalFile, home)
		if !filepath.IsAbs(local) {
			local = filepath.Join(base, local)
		}
		payload, err := ReadPayload(local)
		if err != nil {
			return nil, &OrderError{Index: i, Err: err}
		}
		rec.AttachmentData = payload.Data
		rec.MimeType = payload.MimeType
		if rec.AttachmentName == "" {
			rec.AttachmentName = filepath.Base(local)
		}
	}
	return &f, nil
}

// ReadPayload loads a local file as a create payload. The MIME type comes
// from the extension, falling back to content sniffing.
func ReadPayload(path string) (*types.Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.WrapFSError(err, "read", path)
	}
	return &types.Payload{Data: data, MimeType: DetectMIME(path, data)}, nil
}

// DetectMIME guesses a MIME type for a file name and its content.
func DetectMIME(name string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		return t
	}
	return http.DetectContentType(data)
}

func expandHome(p, home string) string {
	if home == "" {
		return p
	}
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, filepath.FromSlash(p[2:]))
	}
	return p
}
