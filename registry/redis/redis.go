// Package redis is a Redis-backed package registry.
//
// Each package is stored msgpack-encoded under <prefix>:package:<serial>.
// The key outlives the package by the history retention, so a retrieve
// after expiry still reports "expired" rather than "not found". Each
// author has a list of serials under <prefix>:history:<author>.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/deliorder/compose"
	"github.com/pithecene-io/deliorder/registry"
	"github.com/pithecene-io/deliorder/types"
)

// DefaultPrefix namespaces every key.
const DefaultPrefix = "deliorder"

// DefaultRetention is how long an expired package stays visible in history.
const DefaultRetention = 7 * 24 * time.Hour

// maxSerialAttempts bounds collision retries when assigning a serial.
const maxSerialAttempts = 16

// Config configures the Redis registry.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Prefix is the key namespace (default: deliorder).
	Prefix string
	// Retention is how long packages remain after expiry (default 7d).
	Retention time.Duration
	// SerialLength is the serial number length (default 6).
	SerialLength int
}

// Registry stores packages in Redis. It implements registry.Registry.
type Registry struct {
	client    *goredis.Client
	prefix    string
	retention time.Duration
	serials   registry.Serials
	now       registry.Clock
}

var _ registry.Registry = (*Registry)(nil)

// New creates a Redis registry from cfg.
func New(cfg Config) (*Registry, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis registry requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis registry: invalid URL: %w", err)
	}
	return NewWithClient(goredis.NewClient(opts), cfg), nil
}

// NewWithClient wraps an existing client. cfg.URL is ignored.
func NewWithClient(client *goredis.Client, cfg Config) *Registry {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	return &Registry{
		client:    client,
		prefix:    cfg.Prefix,
		retention: cfg.Retention,
		serials:   registry.NewSerials(cfg.SerialLength),
		now:       time.Now,
	}
}

// SetClock overrides the time source.
func (r *Registry) SetClock(c registry.Clock) { r.now = c }

func (r *Registry) packageKey(serial string) string {
	return r.prefix + ":package:" + serial
}

func (r *Registry) historyKey(author string) string {
	return r.prefix + ":history:" + author
}

// Submit stores pkg under a fresh serial (or its pre-set one, if free).
func (r *Registry) Submit(ctx context.Context, pkg *types.Package) (string, error) {
	now := r.now()
	if err := registry.CheckSubmittable(pkg, now); err != nil {
		return "", err
	}

	ttl := pkg.ValidUntil.Sub(now) + r.retention

	for range maxSerialAttempts {
		serial := pkg.SerialNumber
		if serial == "" {
			var err error
			if serial, err = r.serials.New(); err != nil {
				return "", err
			}
		} else if err := r.serials.Validate(serial); err != nil {
			return "", err
		}

		rec := types.ToPackageRecord(pkg)
		rec.SerialNumber = serial
		data, err := msgpack.Marshal(rec)
		if err != nil {
			return "", fmt.Errorf("redis registry: encode package: %w", err)
		}

		ok, err := r.client.SetNX(ctx, r.packageKey(serial), data, ttl).Result()
		if err != nil {
			return "", fmt.Errorf("redis registry: store package: %w", err)
		}
		if !ok {
			if pkg.SerialNumber != "" {
				return "", fmt.Errorf("serial number %s already in use", serial)
			}
			continue
		}

		_, err = r.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.LPush(ctx, r.historyKey(pkg.Author), serial)
			p.Expire(ctx, r.historyKey(pkg.Author), ttl)
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("redis registry: record history: %w", err)
		}
		return serial, nil
	}
	return "", fmt.Errorf("no free serial number after %d attempts", maxSerialAttempts)
}

// Retrieve returns the package while it is live.
func (r *Registry) Retrieve(ctx context.Context, serial string) (*types.Package, error) {
	data, err := r.client.Get(ctx, r.packageKey(serial)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, types.NewRegistryError(types.ErrPackageNotFound, "retrieve", serial, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("redis registry: load package %s: %w", serial, err)
	}

	pkg, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("redis registry: package %s: %w", serial, err)
	}
	if err := registry.CheckLive(pkg, r.now(), serial); err != nil {
		return nil, err
	}
	pkg.State = types.PackageRetrieved
	return pkg, nil
}

// History lists author's retained packages, newest first.
func (r *Registry) History(ctx context.Context, author string) ([]*types.Package, error) {
	serials, err := r.client.LRange(ctx, r.historyKey(author), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis registry: load history: %w", err)
	}
	if len(serials) == 0 {
		return nil, nil
	}

	keys := make([]string, len(serials))
	for i, s := range serials {
		keys[i] = r.packageKey(s)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis registry: load history packages: %w", err)
	}

	now := r.now()
	pkgs := make([]*types.Package, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			// Retention elapsed.
			continue
		}
		pkg, err := decode([]byte(s))
		if err != nil {
			return nil, err
		}
		if pkg.ExpiredAt(now) {
			pkg.State = types.PackageExpired
		}
		pkgs = append(pkgs, pkg)
	}
	registry.SortNewestFirst(pkgs)
	return pkgs, nil
}

// Close releases the Redis connection.
func (r *Registry) Close() error {
	return r.client.Close()
}

func decode(data []byte) (*types.Package, error) {
	var rec types.PackageRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode package: %w", err)
	}
	return compose.FromPackageRecord(rec)
}
