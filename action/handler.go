// Package action implements one filesystem handler per order variant.
//
// Handlers assume the guard has already cleared the order. Every failure
// is returned as a *types.FileSystemError; the success string is the only
// thing surfaced to the caller.
package action

import (
	"context"
	"fmt"

	"github.com/pithecene-io/deliorder/types"
)

// Handler performs a single order.
type Handler interface {
	Handle(ctx context.Context, o types.Order) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, o types.Order) (string, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, o types.Order) (string, error) {
	return f(ctx, o)
}

// Set routes orders to the handler registered for their action.
type Set struct {
	handlers map[types.Action]Handler
	fetcher  Fetcher
	launcher Launcher
}

// Option configures a Set.
type Option func(*Set)

// WithFetcher sets how Create resolves payloads off-loaded to a URL.
func WithFetcher(f Fetcher) Option {
	return func(s *Set) { s.fetcher = f }
}

// WithLauncher sets how Execute opens files and folders.
func WithLauncher(l Launcher) Option {
	return func(s *Set) { s.launcher = l }
}

// WithHandler overrides the handler for one action.
func WithHandler(a types.Action, h Handler) Option {
	return func(s *Set) { s.handlers[a] = h }
}

// NewSet returns a set with the default handler for every action.
// Without options, Create fetches over HTTP and Execute uses the host's
// default opener.
func NewSet(opts ...Option) *Set {
	s := &Set{
		handlers: make(map[types.Action]Handler, len(types.Actions())),
		fetcher:  NewHTTPFetcher(nil),
		launcher: SystemLauncher{},
	}
	s.handlers[types.ActionCreate] = HandlerFunc(s.create)
	s.handlers[types.ActionMove] = HandlerFunc(move)
	s.handlers[types.ActionCopy] = HandlerFunc(copyOrder)
	s.handlers[types.ActionRename] = HandlerFunc(rename)
	s.handlers[types.ActionExecute] = HandlerFunc(s.execute)
	s.handlers[types.ActionDelete] = HandlerFunc(deleteOrder)
	s.handlers[types.ActionDecompress] = HandlerFunc(decompress)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dispatch runs o through its handler. An attachment name that is not a
// single path element is refused before any handler runs.
func (s *Set) Dispatch(ctx context.Context, o types.Order) (string, error) {
	h, ok := s.handlers[o.Action()]
	if !ok {
		return "", fmt.Errorf("no handler for action %q", o.Action())
	}
	if name := o.Target().AttachmentName; !types.IsPlainName(name) {
		return "", types.NewFSError(types.ErrInvalidName, string(o.Action()), name, nil)
	}
	return h.Handle(ctx, o)
}

// Handle makes a Set usable wherever a single Handler is expected.
func (s *Set) Handle(ctx context.Context, o types.Order) (string, error) {
	return s.Dispatch(ctx, o)
}

// mismatch reports a handler receiving the wrong variant.
func mismatch(want types.Action, o types.Order) error {
	return fmt.Errorf("%s handler received %s order", want, o.Action())
}
