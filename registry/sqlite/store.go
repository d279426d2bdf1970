// Package sqlite provides a SQLite-backed local package registry.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/pithecene-io/deliorder/compose"
	"github.com/pithecene-io/deliorder/registry"
	"github.com/pithecene-io/deliorder/types"
)

// maxSerialAttempts bounds collision retries when assigning a serial.
const maxSerialAttempts = 16

const schema = `
CREATE TABLE IF NOT EXISTS packages (
	serial_number TEXT PRIMARY KEY,
	author        TEXT NOT NULL,
	orders        TEXT NOT NULL,
	created_at    INTEGER NOT NULL,
	valid_until   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS packages_author_created ON packages (author, created_at DESC);
`

var errSerialTaken = errors.New("serial number already in use")

// Store persists packages in SQLite. It implements registry.Registry.
type Store struct {
	sqlDB   *sql.DB
	serials registry.Serials
	now     registry.Clock
}

var _ registry.Registry = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(c registry.Clock) Option {
	return func(s *Store) { s.now = c }
}

// WithSerialLength sets the serial number length.
func WithSerialLength(n int) Option {
	return func(s *Store) { s.serials = registry.NewSerials(n) }
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite registry at path and applies the schema.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{
		sqlDB:   sqlDB,
		serials: registry.NewSerials(registry.DefaultSerialLength),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Submit stores pkg under a fresh serial (or its pre-set one, if free).
func (s *Store) Submit(ctx context.Context, pkg *types.Package) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := registry.CheckSubmittable(pkg, s.now()); err != nil {
		return "", err
	}

	rec := types.ToPackageRecord(pkg)
	orders, err := json.Marshal(rec.Orders)
	if err != nil {
		return "", fmt.Errorf("encode orders: %w", err)
	}

	if pkg.SerialNumber != "" {
		if err := s.serials.Validate(pkg.SerialNumber); err != nil {
			return "", err
		}
		if err := s.insert(ctx, pkg.SerialNumber, rec, orders); err != nil {
			return "", err
		}
		return pkg.SerialNumber, nil
	}

	for range maxSerialAttempts {
		serial, err := s.serials.New()
		if err != nil {
			return "", err
		}
		err = s.insert(ctx, serial, rec, orders)
		if errors.Is(err, errSerialTaken) {
			continue
		}
		if err != nil {
			return "", err
		}
		return serial, nil
	}
	return "", fmt.Errorf("no free serial number after %d attempts", maxSerialAttempts)
}

func (s *Store) insert(ctx context.Context, serial string, rec types.PackageRecord, orders []byte) error {
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO packages (serial_number, author, orders, created_at, valid_until)
		 VALUES (?, ?, ?, ?, ?)`,
		serial,
		rec.Author,
		string(orders),
		toMillis(rec.CreatedAt),
		toMillis(rec.ValidUntil),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", errSerialTaken, serial)
		}
		return fmt.Errorf("insert package: %w", err)
	}
	return nil
}

// Retrieve returns the package while it is live.
func (s *Store) Retrieve(ctx context.Context, serial string) (*types.Package, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT serial_number, author, orders, created_at, valid_until
		 FROM packages WHERE serial_number = ?`,
		serial,
	)
	pkg, err := scanPackage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewRegistryError(types.ErrPackageNotFound, "retrieve", serial, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get package %s: %w", serial, err)
	}
	if err := registry.CheckLive(pkg, s.now(), serial); err != nil {
		return nil, err
	}
	pkg.State = types.PackageRetrieved
	return pkg, nil
}

// History lists author's packages, newest first.
func (s *Store) History(ctx context.Context, author string) ([]*types.Package, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT serial_number, author, orders, created_at, valid_until
		 FROM packages WHERE author = ?
		 ORDER BY created_at DESC, serial_number DESC`,
		author,
	)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	now := s.now()
	var pkgs []*types.Package
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if pkg.ExpiredAt(now) {
			pkg.State = types.PackageExpired
		}
		pkgs = append(pkgs, pkg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return pkgs, nil
}

// Prune deletes packages that expired before cutoff and reports how many.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM packages WHERE valid_until < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune packages: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPackage(row scanner) (*types.Package, error) {
	var (
		rec                   types.PackageRecord
		orders                string
		createdAt, validUntil int64
	)
	if err := row.Scan(&rec.SerialNumber, &rec.Author, &orders, &createdAt, &validUntil); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(orders), &rec.Orders); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	rec.CreatedAt = fromMillis(createdAt)
	rec.ValidUntil = fromMillis(validUntil)
	return compose.FromPackageRecord(rec)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") &&
		strings.Contains(message, "packages.serial_number")
}
