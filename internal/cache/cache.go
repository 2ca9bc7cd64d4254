// Package cache implements the fingerprint cache: a content-addressable
// memo of oracle, embedding and preprocessing results.
//
// An entry is addressed by the producer's module type and name, the hash of
// its canonical arguments and the hash of the exact input. Entries are
// append-only. A key may hold several distinct payloads; Lookup returns the
// first one that decodes and validates, so a malformed entry is shadowed by
// the next valid put instead of blocking it. Storing a payload that the key
// already holds is a no-op.
//
// A Cache is an explicit handle that is passed to every component needing
// it; it is safe for concurrent use. Puts are serialized and committed before
// they return, and lookups observe every put that returned before them.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/logging"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/storage"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/storage/postgres"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/storage/sqlite"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

// DatabaseFile is the name of the SQLite cache file inside the cache directory.
const DatabaseFile = "cache.sqlite3"

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options configure where the cache lives.
type Options struct {
	Driver string // sqlite (default) or postgres
	Dir    string // directory of the SQLite file
	DSN    string // PostgreSQL connection string
	RunID  string // stamped on every stored entry; generated when empty
	Logger *zap.Logger
}

// Cache is a handle to one cache database.
type Cache struct {
	db     *sql.DB
	driver string
	runID  string
	logger *zap.Logger

	mu sync.Mutex
}

// Open opens or creates the cache described by opts.
func Open(opts Options) (*Cache, error) {
	logger := logging.OrNop(opts.Logger)
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	var (
		db  *sql.DB
		err error
	)
	switch opts.Driver {
	case "", DriverSQLite:
		if opts.Dir == "" {
			return nil, fmt.Errorf("%w: cache directory is required", config.ErrConfiguration)
		}
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("cache: failed to create directory: %w", err)
		}
		db, err = sqlite.Open(filepath.Join(opts.Dir, DatabaseFile), sqliteSchema, logger)
		opts.Driver = DriverSQLite
	case DriverPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("%w: cache DSN is required", config.ErrConfiguration)
		}
		db, err = postgres.Open(opts.DSN, postgresSchema)
	default:
		return nil, fmt.Errorf("%w: unknown cache driver %q", config.ErrConfiguration, opts.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	return &Cache{db: db, driver: opts.Driver, runID: runID, logger: logger}, nil
}

// RunID returns the identifier stamped on entries written through this handle.
func (c *Cache) RunID() string { return c.runID }

// Put stores payload for (cfg, input). payload is serialized canonically; a
// json.RawMessage is stored as the JSON document it holds. If the key
// already holds an identical payload, the call is a no-op.
func (c *Cache) Put(ctx context.Context, cfg types.ModuleConfiguration, input string, payload any) error {
	configHash, configJSON, err := ConfigHash(cfg.Args)
	if err != nil {
		return err
	}
	if raw, ok := payload.(json.RawMessage); ok && !json.Valid(raw) {
		return fmt.Errorf("%w: payload is not valid JSON", storage.ErrInvalidInput)
	}
	data, err := Canonicalize(payload)
	if err != nil {
		return err
	}

	inputHash := Hash(input)

	c.mu.Lock()
	defer c.mu.Unlock()

	var exists int
	err = c.db.QueryRowContext(ctx, c.rebind(`
		SELECT COUNT(*) FROM cache
		WHERE module = ? AND name = ? AND config_hash = ? AND input_hash = ? AND data = ?`),
		cfg.Type, cfg.Name, configHash, inputHash, data).Scan(&exists)
	if err != nil {
		return fmt.Errorf("cache: failed to check entry for %s/%s: %w", cfg.Type, cfg.Name, err)
	}
	if exists > 0 {
		return nil
	}

	_, err = c.db.ExecContext(ctx, c.rebind(`
		INSERT INTO cache (module, name, config_hash, config, input_hash, input, data, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		cfg.Type, cfg.Name, configHash, configJSON, inputHash, input, data, c.runID)
	if err != nil {
		return fmt.Errorf("cache: failed to store entry for %s/%s: %w", cfg.Type, cfg.Name, err)
	}
	return nil
}

// Get returns every payload stored for (cfg, input) in insertion order, or
// an empty slice on a miss.
func (c *Cache) Get(ctx context.Context, cfg types.ModuleConfiguration, input string) ([]json.RawMessage, error) {
	configHash, _, err := ConfigHash(cfg.Args)
	if err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, c.rebind(`
		SELECT data FROM cache
		WHERE module = ? AND name = ? AND config_hash = ? AND input_hash = ?
		ORDER BY id`),
		cfg.Type, cfg.Name, configHash, Hash(input))
	if err != nil {
		return nil, fmt.Errorf("cache: lookup failed for %s/%s: %w", cfg.Type, cfg.Name, err)
	}
	defer func() { _ = rows.Close() }()

	payloads := []json.RawMessage{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("cache: failed to scan entry: %w", err)
		}
		payloads = append(payloads, json.RawMessage(data))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache: failed to read entries: %w", err)
	}
	return payloads, nil
}

// Validator is implemented by payload types that can reject a decoded value.
type Validator interface {
	Validate() error
}

// Lookup decodes the first usable payload stored for (cfg, input) into a T.
// Payloads that do not decode, or whose *T fails validation, are skipped with
// a warning, so a malformed entry only costs a recomputation.
func Lookup[T any](ctx context.Context, c *Cache, cfg types.ModuleConfiguration, input string) (T, bool, error) {
	return LookupWith[T](ctx, c, cfg, input, nil)
}

// LookupWith is Lookup with an extra acceptance check. A payload for which
// accept returns an error is skipped like a malformed one. accept may be nil.
func LookupWith[T any](ctx context.Context, c *Cache, cfg types.ModuleConfiguration, input string, accept func(T) error) (T, bool, error) {
	var zero T
	payloads, err := c.Get(ctx, cfg, input)
	if err != nil {
		return zero, false, err
	}
	for _, p := range payloads {
		v, err := decode[T](p)
		if err == nil && accept != nil {
			if aerr := accept(v); aerr != nil {
				err = fmt.Errorf("%w: %v", storage.ErrCacheRead, aerr)
			}
		}
		if err != nil {
			c.logger.Warn("skipping malformed cache entry",
				zap.String("module", cfg.Type),
				zap.String("name", cfg.Name),
				zap.String("input_hash", Hash(input)),
				zap.Error(err))
			continue
		}
		return v, true, nil
	}
	return zero, false, nil
}

func decode[T any](p json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(p, &v); err != nil {
		return v, fmt.Errorf("%w: %v", storage.ErrCacheRead, err)
	}
	if val, ok := any(&v).(Validator); ok {
		if err := val.Validate(); err != nil {
			return v, fmt.Errorf("%w: %v", storage.ErrCacheRead, err)
		}
	}
	return v, nil
}

// Stat summarizes the entries of one producer.
type Stat struct {
	Module         string
	Name           string
	Entries        int
	Configurations int
}

// Stats returns entry counts grouped by producer.
func (c *Cache) Stats(ctx context.Context) ([]Stat, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT module, name, COUNT(*), COUNT(DISTINCT config_hash)
		FROM cache GROUP BY module, name ORDER BY module, name`)
	if err != nil {
		return nil, fmt.Errorf("cache: stats query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []Stat
	for rows.Next() {
		var s Stat
		if err := rows.Scan(&s.Module, &s.Name, &s.Entries, &s.Configurations); err != nil {
			return nil, fmt.Errorf("cache: failed to scan stats: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	if err := c.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (c *Cache) rebind(query string) string {
	if c.driver != DriverPostgres {
		return query
	}
	var (
		b strings.Builder
		n int
	)
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
