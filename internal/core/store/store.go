package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/padillasconcrete/siteapi/internal/config"
)

const (
	driverLibsql = "libsql"
	memoryPath   = ":memory:"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("record already exists")
)

// localPragmas apply to file and in-memory databases. Some return a row, so
// they run through QueryContext. fileOnly pragmas are skipped for :memory:.
var localPragmas = []struct {
	stmt     string
	fileOnly bool
}{
	{stmt: "PRAGMA foreign_keys=ON"},
	{stmt: "PRAGMA journal_mode=WAL", fileOnly: true},
	{stmt: "PRAGMA busy_timeout=5000", fileOnly: true},
}

// Store holds the site database: attempt logs, contact messages, admin
// users and projects.
type Store struct {
	DB     *sql.DB
	driver string
}

// location is a resolved database target.
type location struct {
	dsn   string
	local bool
}

func (l location) memory() bool { return l.dsn == memoryPath }

// Open connects to the configured database. Local databases are limited to
// one connection, which serializes writers the way SQLite expects.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	driver := strings.TrimSpace(cfg.Driver)
	if driver == "" {
		driver = driverLibsql
	}
	if driver != driverLibsql {
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}

	loc, err := resolveLocation(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverLibsql, loc.dsn)
	if err != nil {
		return nil, fmt.Errorf("open libsql store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping libsql store: %w", err)
	}
	if loc.local {
		if err := configureLocal(ctx, db, loc); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &Store{DB: db, driver: driver}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// CheckHealth pings the database.
func (s *Store) CheckHealth(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	return s.DB.PingContext(ctx)
}

func (s *Store) Driver() string {
	if s == nil {
		return ""
	}
	return s.driver
}

// resolveLocation turns store config into a libsql DSN. A URL wins over a
// path; plain paths become file: DSNs and get their directory created.
func resolveLocation(cfg config.StoreConfig) (location, error) {
	if raw := strings.TrimSpace(cfg.URL); raw != "" {
		dsn, err := withAuthToken(raw, cfg.AuthToken)
		if err != nil {
			return location{}, err
		}
		return location{dsn: dsn, local: strings.HasPrefix(dsn, "file:")}, nil
	}

	path := strings.TrimSpace(cfg.Path)
	switch {
	case path == "":
		return location{}, errors.New("store path or url is required")
	case path == memoryPath:
		return location{dsn: memoryPath, local: true}, nil
	case strings.HasPrefix(path, "libsql:"):
		return location{dsn: path}, nil
	case strings.HasPrefix(path, "file:"):
		u, err := url.Parse(path)
		if err != nil {
			return location{}, fmt.Errorf("invalid store path: %w", err)
		}
		filePath := u.Path
		if filePath == "" {
			filePath = u.Opaque
		}
		if err := ensureParentDir(strings.TrimPrefix(filePath, "//")); err != nil {
			return location{}, err
		}
		return location{dsn: path, local: true}, nil
	default:
		if err := ensureParentDir(path); err != nil {
			return location{}, err
		}
		return location{dsn: "file:" + filepath.Clean(path), local: true}, nil
	}
}

func configureLocal(ctx context.Context, db *sql.DB, loc location) error {
	db.SetMaxOpenConns(1)

	for _, p := range localPragmas {
		if p.fileOnly && loc.memory() {
			continue
		}
		rows, err := db.QueryContext(ctx, p.stmt)
		if err != nil {
			return fmt.Errorf("%s: %w", p.stmt, err)
		}
		_ = rows.Close()
	}
	return nil
}

// withAuthToken adds authToken to a remote DSN unless it already has one.
func withAuthToken(dsn, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}
	q := u.Query()
	if q.Get("authToken") == "" {
		q.Set("authToken", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func ensureParentDir(path string) error {
	if path == "" || path == memoryPath {
		return nil
	}
	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	// #nosec G301 -- data directories use 0755 for multi-user access compatibility
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}
