// Package remote is an HTTP client for the hosted package registry.
//
// Endpoints:
//
//	POST /packages/new          {"orders": [...]}       -> {"serialNumber": "..."}
//	GET  /packages/{serial}                             -> {"existPackage": {...}}
//	GET  /users/{id}/history                            -> {"history": [...]}
//
// Errors come back as {"error": "..."}. A 401 whose error is "Token expired"
// triggers one token refresh and one retry of that request.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pithecene-io/deliorder/compose"
	"github.com/pithecene-io/deliorder/iox"
	"github.com/pithecene-io/deliorder/log"
	"github.com/pithecene-io/deliorder/metrics"
	"github.com/pithecene-io/deliorder/registry"
	"github.com/pithecene-io/deliorder/types"
)

// DefaultTimeout bounds each registry request.
const DefaultTimeout = 30 * time.Second

// Client talks to the registry over HTTP. It implements registry.Registry.
type Client struct {
	baseURL   string
	http      *http.Client
	tokens    TokenSource
	now       registry.Clock
	logger    *log.Logger
	collector *metrics.Collector
}

var _ registry.Registry = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTokens sets the bearer token source.
func WithTokens(ts TokenSource) Option {
	return func(cl *Client) { cl.tokens = ts }
}

// WithClock overrides the time source used for the local expiry check.
func WithClock(c registry.Clock) Option {
	return func(cl *Client) { cl.now = c }
}

// WithLogger attaches a logger.
func WithLogger(l *log.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithCollector attaches a metrics collector.
func WithCollector(c *metrics.Collector) Option {
	return func(cl *Client) { cl.collector = c }
}

// New creates a client for the registry at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid registry url %q", baseURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		tokens:  StaticToken(""),
		now:     time.Now,
		logger:  log.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type submitRequest struct {
	Orders     []types.OrderRecord `json:"orders"`
	CreatedAt  time.Time           `json:"createdAt"`
	ValidUntil time.Time           `json:"validUntil"`
}

type submitResponse struct {
	SerialNumber string `json:"serialNumber"`
}

// Submit uploads pkg and returns the serial number the registry assigned.
// Create payloads should already be offloaded to object storage.
func (c *Client) Submit(ctx context.Context, pkg *types.Package) (string, error) {
	if err := registry.CheckSubmittable(pkg, c.now()); err != nil {
		return "", err
	}
	rec := types.ToPackageRecord(pkg)
	var out submitResponse
	err := c.do(ctx, http.MethodPost, "/packages/new", submitRequest{
		Orders:     rec.Orders,
		CreatedAt:  rec.CreatedAt,
		ValidUntil: rec.ValidUntil,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.SerialNumber == "" {
		return "", errors.New("submit: registry returned no serial number")
	}
	return out.SerialNumber, nil
}

type retrieveResponse struct {
	ExistPackage *types.PackageRecord `json:"existPackage"`
	Message      string               `json:"message"`
}

// Retrieve fetches the package while it is live. The expiry is checked
// locally as well as by the registry.
func (c *Client) Retrieve(ctx context.Context, serial string) (*types.Package, error) {
	var out retrieveResponse
	err := c.do(ctx, http.MethodGet, "/packages/"+url.PathEscape(serial), nil, &out)
	if err != nil {
		return nil, classifyRetrieve(err, serial)
	}
	if out.ExistPackage == nil {
		return nil, types.NewRegistryError(types.ErrPackageNotFound, "retrieve", serial, nil)
	}

	pkg, err := decodePackage(*out.ExistPackage, serial)
	if err != nil {
		return nil, types.NewRegistryError(types.ErrPackageNotFound, "retrieve", serial, err)
	}
	if err := registry.CheckLive(pkg, c.now(), serial); err != nil {
		return nil, err
	}
	pkg.State = types.PackageRetrieved
	return pkg, nil
}

type historyResponse struct {
	History []types.PackageRecord `json:"history"`
}

// History lists the packages of author (a registry user id), newest first.
// Entries the client cannot decode are skipped and logged.
func (c *Client) History(ctx context.Context, author string) ([]*types.Package, error) {
	var out historyResponse
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(author)+"/history", nil, &out); err != nil {
		return nil, err
	}

	now := c.now()
	pkgs := make([]*types.Package, 0, len(out.History))
	for _, rec := range out.History {
		pkg, err := decodePackage(rec, rec.SerialNumber)
		if err != nil {
			c.logger.Warn("skipping undecodable history entry", map[string]any{
				"serial_number": rec.SerialNumber,
				"error":         err.Error(),
			})
			continue
		}
		if pkg.Author == "" {
			pkg.Author = author
		}
		if pkg.ExpiredAt(now) {
			pkg.State = types.PackageExpired
		}
		pkgs = append(pkgs, pkg)
	}
	registry.SortNewestFirst(pkgs)
	return pkgs, nil
}

// decodePackage rebuilds a package, deriving ValidUntil when the registry
// omitted it.
func decodePackage(rec types.PackageRecord, serial string) (*types.Package, error) {
	if rec.SerialNumber == "" {
		rec.SerialNumber = serial
	}
	if rec.ValidUntil.IsZero() {
		rec.ValidUntil = rec.CreatedAt.Add(types.PackageTTL)
	}
	return compose.FromPackageRecord(rec)
}

// statusError is a non-2xx registry response.
type statusError struct {
	Status  int
	Message string
}

func (e *statusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("registry returned %d", e.Status)
	}
	return fmt.Sprintf("registry returned %d: %s", e.Status, e.Message)
}

func classifyRetrieve(err error, serial string) error {
	var se *statusError
	if !errors.As(err, &se) {
		return err
	}
	switch {
	case se.Status == http.StatusNotFound:
		return types.NewRegistryError(types.ErrPackageNotFound, "retrieve", serial, err)
	case se.Status == http.StatusGone, strings.Contains(strings.ToLower(se.Message), "expired"):
		return types.NewRegistryError(types.ErrPackageExpired, "retrieve", serial, err)
	default:
		return err
	}
}

// do sends one request, refreshing the token and retrying once when the
// registry reports an expired token.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	err = c.send(ctx, method, path, token, body, out)
	if !errors.Is(err, errTokenExpired) {
		return err
	}

	c.logger.Info("access token expired, refreshing", map[string]any{"path": path})
	c.collector.IncAuthRefresh()
	if token, err = c.tokens.Refresh(ctx); err != nil {
		return err
	}
	err = c.send(ctx, method, path, token, body, out)
	if errors.Is(err, errTokenExpired) {
		return fmt.Errorf("%w: token rejected after refresh", types.ErrAuthExpired)
	}
	return err
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) send(ctx context.Context, method, path, token string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		msg := eb.Error
		if msg == "" {
			msg = eb.Message
		}
		if resp.StatusCode == http.StatusUnauthorized {
			if msg == "Token expired" {
				return errTokenExpired
			}
			return fmt.Errorf("%w: %s", types.ErrAuthExpired, msg)
		}
		return &statusError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
