package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/logging"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/storage"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

// DatabaseFile is the name of the element database inside a store's path.
const DatabaseFile = "elements.sqlite3"

// Schema creates the collection and element tables.
const Schema = `
CREATE TABLE IF NOT EXISTS collections (
    key TEXT PRIMARY KEY,
    store TEXT NOT NULL,
    direction TEXT NOT NULL,
    metric TEXT NOT NULL,
    stage_fingerprint TEXT NOT NULL,
    element_count INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS elements (
    collection_key TEXT NOT NULL REFERENCES collections(key) ON DELETE CASCADE,
    ordinal INTEGER NOT NULL,
    identifier TEXT NOT NULL,
    type TEXT NOT NULL,
    content TEXT NOT NULL,
    granularity INTEGER NOT NULL,
    parent_id TEXT,
    compare INTEGER NOT NULL,
    embedding BLOB NOT NULL,
    dimension INTEGER NOT NULL,
    PRIMARY KEY (collection_key, identifier)
);

CREATE INDEX IF NOT EXISTS idx_elements_ordinal ON elements(collection_key, ordinal);
`

// ElementStore implements storage.ElementStore on a SQLite database.
// Elements are persisted per collection key and ranked in memory after
// ingestion, scoring every comparable element.
type ElementStore struct {
	db     *sql.DB
	name   string
	opts   storage.Options
	logger *zap.Logger

	mu         sync.RWMutex
	key        string
	collection *storage.Collection
}

var _ storage.ElementStore = (*ElementStore)(nil)

// NewElementStore opens (or creates) the element database below opts.Path.
// name is the configured store name and becomes part of the collection key.
func NewElementStore(name string, opts storage.Options, logger *zap.Logger) (*ElementStore, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("%w: missing required argument %q", config.ErrConfiguration, "path")
	}
	if err := os.MkdirAll(opts.Path, 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: failed to create store directory: %w", err)
	}
	logger = logging.OrNop(logger)

	db, err := Open(filepath.Join(opts.Path, DatabaseFile), Schema, logger)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return &ElementStore{db: db, name: name, opts: opts, logger: logger}, nil
}

// Ingest implements storage.Ingester.
func (s *ElementStore) Ingest(ctx context.Context, stageFingerprint string, entries []types.EmbeddedElement) error {
	key := storage.CollectionKey(s.name, s.opts.Direction, s.opts.Metric, stageFingerprint)

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT element_count FROM collections WHERE key = ?`, key).Scan(&count)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return s.create(ctx, key, stageFingerprint, entries)
	case err != nil:
		return fmt.Errorf("sqlite: failed to look up collection: %w", err)
	}

	stored, err := s.load(ctx, key)
	if err != nil {
		return err
	}
	if s.opts.VerifyEntries {
		if err := stored.Verify(entries, 0); err != nil {
			return fmt.Errorf("sqlite: collection %s: %w", key, err)
		}
	}
	s.logger.Info("reusing stored collection",
		zap.String("direction", s.opts.Direction),
		zap.String("key", key),
		zap.Int("elements", stored.Len()))

	s.mu.Lock()
	s.key, s.collection = key, stored
	s.mu.Unlock()
	return nil
}

func (s *ElementStore) create(ctx context.Context, key, stageFingerprint string, entries []types.EmbeddedElement) error {
	collection, err := storage.NewCollection(entries)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO collections (key, store, direction, metric, stage_fingerprint, element_count)
		VALUES (?, ?, ?, ?, ?, ?)`,
		key, s.name, s.opts.Direction, string(s.opts.Metric), stageFingerprint, len(entries)); err != nil {
		return fmt.Errorf("sqlite: failed to create collection: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO elements (collection_key, ordinal, identifier, type, content, granularity, parent_id, compare, embedding, dimension)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, entry := range entries {
		e := entry.Element
		var parent sql.NullString
		if e.Granularity > 0 {
			parent = sql.NullString{String: e.ParentID, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, key, i, e.Identifier, e.Type, e.Content, e.Granularity, parent,
			e.Compare, serializeEmbedding(entry.Embedding), len(entry.Embedding)); err != nil {
			return fmt.Errorf("sqlite: failed to store element %q: %w", e.Identifier, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit collection: %w", err)
	}

	s.logger.Info("created collection",
		zap.String("direction", s.opts.Direction),
		zap.String("key", key),
		zap.Int("elements", len(entries)))

	s.mu.Lock()
	s.key, s.collection = key, collection
	s.mu.Unlock()
	return nil
}

func (s *ElementStore) load(ctx context.Context, key string) (*storage.Collection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identifier, type, content, granularity, parent_id, compare, embedding, dimension
		FROM elements WHERE collection_key = ? ORDER BY ordinal`, key)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load collection: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []types.EmbeddedElement
	for rows.Next() {
		var (
			e         types.Element
			parent    sql.NullString
			blob      []byte
			dimension int
		)
		if err := rows.Scan(&e.Identifier, &e.Type, &e.Content, &e.Granularity, &parent, &e.Compare, &blob, &dimension); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan element: %w", err)
		}
		e.ParentID = parent.String
		vec, err := deserializeEmbedding(blob, dimension)
		if err != nil {
			return nil, fmt.Errorf("sqlite: element %q: %w", e.Identifier, err)
		}
		entries = append(entries, types.EmbeddedElement{Element: &e, Embedding: vec})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to read collection: %w", err)
	}

	collection, err := storage.NewCollection(entries)
	if err != nil {
		return nil, fmt.Errorf("sqlite: stored collection %s: %w", key, err)
	}
	return collection, nil
}

// current returns the ingested collection.
func (s *ElementStore) current() (*storage.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.collection == nil {
		return nil, storage.ErrNotIngested
	}
	return s.collection, nil
}

// FindSimilar implements storage.SimilaritySearcher.
func (s *ElementStore) FindSimilar(ctx context.Context, query types.Embedding) ([]*types.Element, error) {
	matches, err := s.FindSimilarWithDistances(ctx, query)
	if err != nil {
		return nil, err
	}
	return storage.Elements(matches), nil
}

// FindSimilarWithDistances implements storage.SimilaritySearcher.
func (s *ElementStore) FindSimilarWithDistances(ctx context.Context, query types.Embedding) ([]storage.Match, error) {
	collection, err := s.current()
	if err != nil {
		return nil, err
	}
	if collection.Comparable() == 0 {
		return nil, storage.ErrNotIngested
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ranked, err := collection.Rank(query, s.opts.Metric)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return storage.Select(ranked, s.opts.Results, s.opts.Threshold), nil
}

// GetByID implements storage.ElementReader.
func (s *ElementStore) GetByID(_ context.Context, identifier string) (*types.Element, error) {
	collection, err := s.current()
	if err != nil {
		return nil, err
	}
	entry, ok := collection.Get(identifier)
	if !ok {
		return nil, fmt.Errorf("%w: element %q", storage.ErrNotFound, identifier)
	}
	return entry.Element, nil
}

// GetByParentID implements storage.ElementReader.
func (s *ElementStore) GetByParentID(_ context.Context, parentID string) ([]types.EmbeddedElement, error) {
	collection, err := s.current()
	if err != nil {
		return nil, err
	}
	return collection.Children(parentID), nil
}

// GetAll implements storage.ElementReader.
func (s *ElementStore) GetAll(_ context.Context, compareOnly bool) ([]types.EmbeddedElement, error) {
	collection, err := s.current()
	if err != nil {
		return nil, err
	}
	return collection.All(compareOnly), nil
}

// Close closes the database connection.
func (s *ElementStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// serializeEmbedding encodes a vector as little-endian float64 values.
func serializeEmbedding(embedding types.Embedding) []byte {
	buf := make([]byte, len(embedding)*8)
	for i, v := range embedding {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// deserializeEmbedding decodes a vector written by serializeEmbedding.
func deserializeEmbedding(buf []byte, dimension int) (types.Embedding, error) {
	if len(buf) != dimension*8 {
		return nil, fmt.Errorf("embedding size mismatch: expected %d bytes, got %d", dimension*8, len(buf))
	}
	out := make(types.Embedding, dimension)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out, nil
}
