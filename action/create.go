package action

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/pithecene-io/deliorder/iox"
	"github.com/pithecene-io/deliorder/types"
)

// Fetcher resolves a create payload that was off-loaded to a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// HTTPFetcher downloads payloads with a plain GET.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher. A nil client gets a 60s timeout.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPFetcher{client: client}
}

// Fetch returns the response body. Non-2xx responses are errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		iox.DiscardClose(resp.Body)
		return nil, fmt.Errorf("payload fetch returned %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (s *Set) create(ctx context.Context, o types.Order) (string, error) {
	c, ok := o.(*types.Create)
	if !ok {
		return "", mismatch(types.ActionCreate, o)
	}
	dst := c.Dest.Path()

	var src io.Reader
	switch {
	case c.Payload != nil:
		src = bytes.NewReader(c.Payload.Data)
	case c.URL != "" && s.fetcher != nil:
		body, err := s.fetcher.Fetch(ctx, c.URL)
		if err != nil {
			return "", types.NewFSError(types.ErrNoPayload, "fetch", c.URL, err)
		}
		defer iox.DiscardClose(body)
		src = body
	default:
		return "", types.NewFSError(types.ErrNoPayload, "create", dst, nil)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if c.Overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	if err := writeFile(dst, flags, 0o644, src); err != nil {
		return "", types.WrapFSError(err, "create", dst)
	}
	return c.Dest.AttachmentName + " created", nil
}

// writeFile copies src into path, removing a partially written file on
// failure unless it existed beforehand.
func writeFile(path string, flags int, perm os.FileMode, src io.Reader) error {
	f, err := os.OpenFile(path, flags, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		iox.DiscardClose(f)
		if flags&os.O_EXCL != 0 {
			_ = os.Remove(path)
		}
		return err
	}
	return f.Close()
}
