package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/pithecene-io/deliorder/compose"
	"github.com/pithecene-io/deliorder/log"
	"github.com/pithecene-io/deliorder/types"
)

// OrderExecutor runs one order. *runtime.Engine satisfies it.
type OrderExecutor interface {
	ExecuteOrder(ctx context.Context, o types.Order) types.ExecutionOutcome
}

// Server answers Requests read from a frame stream.
type Server struct {
	exec   OrderExecutor
	dialog Dialog
	logger *log.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithDialog replaces the native pickers.
func WithDialog(d Dialog) ServerOption {
	return func(s *Server) { s.dialog = d }
}

// WithServerLogger sets the request logger.
func WithServerLogger(l *log.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer returns a server that runs orders through exec.
func NewServer(exec OrderExecutor, opts ...ServerOption) *Server {
	s := &Server{exec: exec}
	for _, opt := range opts {
		opt(s)
	}
	if s.dialog == nil {
		s.dialog = NewNativeDialog()
	}
	if s.logger == nil {
		s.logger = log.Nop()
	}
	return s
}

// Serve reads requests from r and writes one response per request to w,
// in order, until r reaches EOF or ctx is done. Requests are handled one
// at a time. A frame that cannot be decoded gets an error response with
// ID 0; a truncated or oversized frame ends the stream.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	dec := NewFrameDecoder(r)
	enc := NewFrameEncoder(w)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := dec.ReadFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		var resp *Response
		req, err := DecodeRequest(payload)
		if err != nil {
			s.logger.Warn("undecodable request", map[string]any{"error": err.Error()})
			resp = &Response{Error: err.Error()}
		} else {
			resp = s.Handle(ctx, req)
		}

		if err := enc.WriteFrame(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
}

// Handle answers a single request.
func (s *Server) Handle(ctx context.Context, req *Request) *Response {
	resp := s.handle(ctx, req)
	resp.ID = req.ID

	fields := map[string]any{"id": req.ID, "op": string(req.Op), "ok": resp.OK}
	if resp.Error != "" {
		fields["error"] = resp.Error
	}
	s.logger.Debug("ipc request", fields)
	return resp
}

func (s *Server) handle(ctx context.Context, req *Request) *Response {
	switch req.Op {
	case OpOpenFolderDialog:
		path, err := s.dialog.PickFolder(ctx)
		if err != nil {
			return dialogFailure(err)
		}
		return &Response{OK: true, Result: path, Dialog: &DialogResult{FilePath: path}}
	case OpOpenFileDialog:
		return s.openFile(ctx, req.Action)
	case OpGetAttachmentName:
		name := attachmentName(req.Path)
		if name == "" {
			return failure("path is required")
		}
		return &Response{OK: true, Result: name}
	}

	action, ok := orderOps[req.Op]
	if !ok {
		return failure(fmt.Sprintf("unknown operation %q", req.Op))
	}
	if req.Order == nil {
		return failure(fmt.Sprintf("%s requires an order", req.Op))
	}
	o, err := compose.Build(*req.Order)
	if err != nil {
		return failure(err.Error())
	}
	if o.Action() != action {
		return failure(fmt.Sprintf("%s cannot run a %s order", req.Op, o.Action()))
	}

	outcome := s.exec.ExecuteOrder(ctx, o)
	resp := &Response{OK: outcome.Succeeded, Result: outcome.Message, Outcome: &outcome}
	if !outcome.Succeeded {
		resp.Error = outcome.Message
	}
	return resp
}

// openFile picks a file and splits it into order fields. For create the
// file's contents travel back as the payload.
func (s *Server) openFile(ctx context.Context, actionName string) *Response {
	var action types.Action
	if actionName != "" {
		a, err := types.ParseAction(actionName)
		if err != nil {
			return failure(err.Error())
		}
		action = a
	}

	path, err := s.dialog.PickFile(ctx)
	if err != nil {
		return dialogFailure(err)
	}
	res := &DialogResult{
		FilePath:       path,
		AttachmentName: filepath.Base(path),
		RelativePath:   filepath.Dir(path),
	}
	if action == types.ActionCreate {
		payload, err := compose.ReadPayload(path)
		if err != nil {
			return failure(err.Error())
		}
		res.Data = payload.Data
		res.MimeType = payload.MimeType
		res.BaseName = res.AttachmentName
	}
	return &Response{OK: true, Result: path, Dialog: res}
}

func failure(msg string) *Response {
	return &Response{Error: msg}
}

// dialogFailure reports a dismissed picker as an empty, successful result.
func dialogFailure(err error) *Response {
	if errors.Is(err, ErrDialogCanceled) {
		return &Response{OK: true, Dialog: &DialogResult{Canceled: true}}
	}
	return failure(err.Error())
}

// attachmentName returns the last element of path, or "" when there is none.
func attachmentName(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	name := filepath.Base(filepath.Clean(path))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return name
}
