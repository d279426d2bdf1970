package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	goruntime "runtime"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/deliorder/adapter"
	redisadapter "github.com/pithecene-io/deliorder/adapter/redis"
	"github.com/pithecene-io/deliorder/adapter/webhook"
	"github.com/pithecene-io/deliorder/cli/config"
	"github.com/pithecene-io/deliorder/guard"
	"github.com/pithecene-io/deliorder/iox"
	"github.com/pithecene-io/deliorder/log"
	"github.com/pithecene-io/deliorder/metrics"
	"github.com/pithecene-io/deliorder/registry"
	redisregistry "github.com/pithecene-io/deliorder/registry/redis"
	"github.com/pithecene-io/deliorder/registry/remote"
	"github.com/pithecene-io/deliorder/registry/sqlite"
	"github.com/pithecene-io/deliorder/runtime"
	"github.com/pithecene-io/deliorder/storage"
	"github.com/pithecene-io/deliorder/types"
)

// defaultRegistryFile is the sqlite registry used when nothing is configured.
const defaultRegistryFile = "registry.db"

// deps holds what a command builds from the config file, the environment
// and the global flags. Close releases every opened backend.
type deps struct {
	cfg       *config.Config
	creds     config.Credentials
	backend   string
	platform  string
	logger    *log.Logger
	collector *metrics.Collector
	closers   []io.Closer
}

// loadDeps reads the config and credentials and applies the global flags.
// Errors carry ExitCodeInvalidInput.
func loadDeps(c *cli.Context) (*deps, error) {
	cfg, err := config.LoadOrDefault(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), runtime.ExitCodeInvalidInput)
	}
	creds, err := config.LoadCredentials()
	if err != nil {
		return nil, cli.Exit(err.Error(), runtime.ExitCodeInvalidInput)
	}

	backend := cfg.Registry.Backend
	if v := c.String("registry"); v != "" {
		backend = v
	}
	if backend == "" {
		backend = config.RegistrySQLite
	}

	platform := cfg.Guard.Platform
	if platform == "" {
		platform = goruntime.GOOS
	}

	logger := log.Nop()
	if c.Bool("verbose") {
		logger = log.NewLogger(log.Context{})
	}

	return &deps{
		cfg:       cfg,
		creds:     creds,
		backend:   backend,
		platform:  platform,
		logger:    logger,
		collector: metrics.NewCollector(backend, platform),
	}, nil
}

// Close releases opened backends in reverse order and flushes the logger.
func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			d.logger.Warn("close failed", map[string]any{"error": err.Error()})
		}
	}
	d.closers = nil
	iox.DiscardErr(d.logger.Sync)
}

func (d *deps) track(c io.Closer) {
	d.closers = append(d.closers, c)
}

// author resolves the package author: flag, then config, then user id.
func (d *deps) author(flag string) string {
	switch {
	case flag != "":
		return flag
	case d.cfg.Author != "":
		return d.cfg.Author
	default:
		return d.creds.UserID
	}
}

// registry opens the configured registry backend.
func (d *deps) registry() (registry.Registry, error) {
	rc := d.cfg.Registry
	switch d.backend {
	case config.RegistryRemote:
		if rc.URL == "" {
			return nil, errors.New("remote registry requires registry.url")
		}
		httpClient := &http.Client{Timeout: remote.DefaultTimeout}
		if rc.Timeout.Duration > 0 {
			httpClient.Timeout = rc.Timeout.Duration
		}
		var tokens remote.TokenSource = remote.StaticToken(d.creds.Token)
		if d.creds.CanRefresh() {
			tokens = remote.NewRefreshingTokens(rc.URL, httpClient, d.creds.UserID, d.creds.Token, d.creds.RefreshToken)
		}
		return remote.New(rc.URL,
			remote.WithHTTPClient(httpClient),
			remote.WithTokens(tokens),
			remote.WithLogger(d.logger),
			remote.WithCollector(d.collector),
		)

	case config.RegistryRedis:
		reg, err := redisregistry.New(redisregistry.Config{
			URL:          rc.URL,
			Prefix:       rc.Prefix,
			Retention:    rc.HistoryRetention.Duration,
			SerialLength: d.cfg.SerialLength,
		})
		if err != nil {
			return nil, err
		}
		d.track(reg)
		return reg, nil

	case config.RegistrySQLite:
		path := rc.Path
		if path == "" {
			var err error
			if path, err = defaultRegistryPath(); err != nil {
				return nil, err
			}
		}
		store, err := sqlite.Open(path, sqlite.WithSerialLength(d.cfg.SerialLength))
		if err != nil {
			return nil, err
		}
		d.track(store)
		return store, nil

	case config.RegistryMemory:
		return registry.NewMemory(registry.WithSerialLength(d.cfg.SerialLength)), nil

	default:
		return nil, fmt.Errorf("unknown registry backend %q", d.backend)
	}
}

// defaultRegistryPath places the sqlite registry in the user config dir.
func defaultRegistryPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	dir = filepath.Join(dir, "deliorder")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return filepath.Join(dir, defaultRegistryFile), nil
}

// guard builds the critical-path guard for the configured platform.
func (d *deps) guard() (*guard.Guard, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("locate home dir: %w", err)
	}
	dl, err := guard.LoadDenylist(d.platform, home)
	if err != nil {
		return nil, err
	}
	if len(d.cfg.Guard.Extra) > 0 {
		if dl, err = dl.With(home, d.cfg.Guard.Extra...); err != nil {
			return nil, err
		}
	}
	return guard.New(dl), nil
}

// engine builds an engine over the configured guard. onOutcome may be nil.
func (d *deps) engine(onOutcome func(types.ExecutionOutcome)) (*runtime.Engine, error) {
	g, err := d.guard()
	if err != nil {
		return nil, err
	}
	return runtime.NewEngine(runtime.EngineConfig{
		Guard:     g,
		Logger:    d.logger,
		Collector: d.collector,
		OnOutcome: onOutcome,
	})
}

// ledger opens the outcome ledger. Returns nil when none is configured.
func (d *deps) ledger(ctx context.Context) (*storage.Ledger, error) {
	lc := d.cfg.Ledger
	switch lc.Backend {
	case "":
		return nil, nil
	case config.LedgerFS:
		return storage.NewFSLedger(lc.Path, d.collector)
	case config.LedgerS3:
		bucket, prefix := storage.ParseS3Path(lc.Path)
		return storage.NewS3Ledger(ctx, storage.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       lc.Region,
			Endpoint:     lc.Endpoint,
			UsePathStyle: lc.S3PathStyle,
		}, d.collector)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", lc.Backend)
	}
}

// payloads opens the S3 payload store. Returns nil when storage is off.
func (d *deps) payloads(ctx context.Context) (*storage.PayloadStore, error) {
	sc := d.cfg.Storage
	if !sc.Enabled() {
		return nil, nil
	}
	bucket, prefix := storage.ParseS3Path(sc.Path)
	opts := []storage.PayloadOption{
		storage.WithPayloadLogger(d.logger),
		storage.WithPayloadCollector(d.collector),
	}
	if sc.PresignTTL.Duration > 0 {
		opts = append(opts, storage.WithPresignTTL(sc.PresignTTL.Duration))
	}
	return storage.NewS3PayloadStore(ctx, storage.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       sc.Region,
		Endpoint:     sc.Endpoint,
		UsePathStyle: sc.S3PathStyle,
	}, opts...)
}

// adapter builds the notification adapter. Returns nil when none is
// configured.
func (d *deps) adapter() (adapter.Adapter, error) {
	ac := d.cfg.Adapter
	switch ac.Type {
	case "":
		return nil, nil
	case config.AdapterWebhook:
		retries := webhook.DefaultRetries
		if ac.Retries != nil {
			retries = *ac.Retries
		}
		a, err := webhook.New(webhook.Config{
			URL:     ac.URL,
			Headers: ac.Headers,
			Secret:  ac.Secret,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		d.track(a)
		return a, nil
	case config.AdapterRedis:
		cfg := redisadapter.Config{
			URL:         ac.URL,
			Channel:     ac.Channel,
			BacklogSize: int64(ac.BacklogSize),
			Timeout:     ac.Timeout.Duration,
		}
		if ac.Retries != nil {
			cfg.Retries = *ac.Retries
		}
		if ac.Backlog {
			cfg.Backlog = backlogKey(cfg.Channel)
		}
		a, err := redisadapter.New(cfg)
		if err != nil {
			return nil, err
		}
		d.track(a)
		return a, nil
	default:
		return nil, fmt.Errorf("unknown adapter type %q", ac.Type)
	}
}

func backlogKey(channel string) string {
	if channel == "" {
		channel = redisadapter.DefaultChannel
	}
	return channel + ":backlog"
}
