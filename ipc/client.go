package ipc

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pithecene-io/deliorder/types"
)

// Client issues Requests to a Server over a frame stream, one at a time.
type Client struct {
	mu     sync.Mutex
	enc    *FrameEncoder
	dec    *FrameDecoder
	nextID uint64
}

// NewClient returns a client that writes requests to w and reads
// responses from r.
func NewClient(r io.Reader, w io.Writer) *Client {
	return &Client{enc: NewFrameEncoder(w), dec: NewFrameDecoder(r)}
}

// Call sends req with a fresh ID and waits for its response.
func (c *Client) Call(req Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	req.ID = c.nextID
	if err := c.enc.WriteFrame(&req); err != nil {
		return nil, fmt.Errorf("send %s: %w", req.Op, err)
	}
	payload, err := c.dec.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("receive %s: %w", req.Op, err)
	}
	resp, err := DecodeResponse(payload)
	if err != nil {
		return nil, err
	}
	if resp.ID != req.ID {
		return nil, fmt.Errorf("response id %d does not match request %d", resp.ID, req.ID)
	}
	return resp, nil
}

// RunOrder sends rec under the operation for its action.
func (c *Client) RunOrder(rec types.OrderRecord) (*Response, error) {
	action, err := types.ParseAction(rec.Action)
	if err != nil {
		return nil, err
	}
	op, ok := OpFor(action)
	if !ok {
		return nil, fmt.Errorf("no operation for action %q", action)
	}
	return c.Call(Request{Op: op, Order: &rec})
}

// AttachmentName asks for the attachment name of path.
func (c *Client) AttachmentName(path string) (string, error) {
	resp, err := c.Call(Request{Op: OpGetAttachmentName, Path: path})
	if err != nil {
		return "", err
	}
	if !resp.OK {
		return "", errors.New(resp.Error)
	}
	return resp.Result, nil
}
