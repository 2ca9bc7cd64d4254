package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/logging"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/storage"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

// embeddingTolerance bounds the float32 rounding of stored vectors when
// verifying a reused collection.
const embeddingTolerance = 1e-6

// ElementStore implements storage.ElementStore on PostgreSQL with pgvector.
// Similarity ranking runs in the database over every comparable element of
// the collection; the hierarchy is held in memory for identifier lookups.
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

// NewElementStore connects to the database identified by dsn.
func NewElementStore(dsn, name string, opts storage.Options, logger *zap.Logger) (*ElementStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: missing required argument %q", config.ErrConfiguration, "dsn")
	}
	db, err := Open(dsn, Schema)
	if err != nil {
		return nil, err
	}
	return &ElementStore{db: db, name: name, opts: opts, logger: logging.OrNop(logger)}, nil
}

// Ingest implements storage.Ingester.
func (s *ElementStore) Ingest(ctx context.Context, stageFingerprint string, entries []types.EmbeddedElement) error {
	key := storage.CollectionKey(s.name, s.opts.Direction, s.opts.Metric, stageFingerprint)

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT element_count FROM element_collections WHERE key = $1`, key).Scan(&count)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return s.create(ctx, key, stageFingerprint, entries)
	case err != nil:
		return fmt.Errorf("postgres: failed to look up collection: %w", err)
	}

	stored, err := s.load(ctx, key)
	if err != nil {
		return err
	}
	if s.opts.VerifyEntries {
		if err := stored.Verify(entries, embeddingTolerance); err != nil {
			return fmt.Errorf("postgres: collection %s: %w", key, err)
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
		return fmt.Errorf("postgres: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO element_collections (key, store, direction, metric, stage_fingerprint, element_count)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		key, s.name, s.opts.Direction, string(s.opts.Metric), stageFingerprint, len(entries)); err != nil {
		return fmt.Errorf("postgres: failed to create collection: %w", err)
	}

	for i, entry := range entries {
		e := entry.Element
		if len(entry.Embedding) == 0 {
			return fmt.Errorf("%w: element %q has an empty embedding", storage.ErrInvalidInput, e.Identifier)
		}
		var parent sql.NullString
		if e.Granularity > 0 {
			parent = sql.NullString{String: e.ParentID, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO collection_elements (collection_key, ordinal, identifier, type, content, granularity, parent_id, compare, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			key, i, e.Identifier, e.Type, e.Content, e.Granularity, parent, e.Compare,
			pgvector.NewVector(entry.Embedding.Float32())); err != nil {
			return fmt.Errorf("postgres: failed to store element %q: %w", e.Identifier, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: failed to commit collection: %w", err)
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
		SELECT identifier, type, content, granularity, parent_id, compare, embedding
		FROM collection_elements WHERE collection_key = $1 ORDER BY ordinal`, key)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to load collection: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []types.EmbeddedElement
	for rows.Next() {
		var (
			e      types.Element
			parent sql.NullString
			vec    pgvector.Vector
		)
		if err := rows.Scan(&e.Identifier, &e.Type, &e.Content, &e.Granularity, &parent, &e.Compare, &vec); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan element: %w", err)
		}
		e.ParentID = parent.String
		entries = append(entries, types.EmbeddedElement{Element: &e, Embedding: types.FromFloat32(vec.Slice())})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to read collection: %w", err)
	}

	collection, err := storage.NewCollection(entries)
	if err != nil {
		return nil, fmt.Errorf("postgres: stored collection %s: %w", key, err)
	}
	return collection, nil
}

func (s *ElementStore) current() (string, *storage.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.collection == nil {
		return "", nil, storage.ErrNotIngested
	}
	return s.key, s.collection, nil
}

// distanceExpr maps a metric onto the pgvector operators so that lower
// values mean more similar elements, matching storage.Metric.Distance.
func distanceExpr(m storage.Metric) (string, error) {
	switch m {
	case storage.MetricCosine:
		return "embedding <=> $2", nil
	case storage.MetricL2:
		return "(embedding <-> $2) ^ 2", nil
	case storage.MetricInnerProduct:
		// <#> is the negative inner product.
		return "1 + (embedding <#> $2)", nil
	default:
		return "", fmt.Errorf("%w: unknown similarity function %q", config.ErrConfiguration, string(m))
	}
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
	key, collection, err := s.current()
	if err != nil {
		return nil, err
	}
	if collection.Comparable() == 0 {
		return nil, storage.ErrNotIngested
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", storage.ErrInvalidInput)
	}
	expr, err := distanceExpr(s.opts.Metric)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT identifier, `+expr+` AS distance
		FROM collection_elements
		WHERE collection_key = $1 AND compare
		ORDER BY distance, identifier`,
		key, pgvector.NewVector(query.Float32()))
	if err != nil {
		return nil, fmt.Errorf("postgres: similarity query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	matches := make([]storage.Match, 0, collection.Comparable())
	for rows.Next() {
		var (
			identifier string
			distance   float64
		)
		if err := rows.Scan(&identifier, &distance); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan match: %w", err)
		}
		entry, ok := collection.Get(identifier)
		if !ok {
			return nil, fmt.Errorf("%w: element %q", storage.ErrNotFound, identifier)
		}
		if math.IsNaN(distance) {
			// Cosine distance against a zero vector.
			distance = 1
		}
		matches = append(matches, storage.Match{Element: entry.Element, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to read matches: %w", err)
	}

	storage.SortMatches(matches)
	return storage.Select(matches, s.opts.Results, s.opts.Threshold), nil
}

// GetByID implements storage.ElementReader.
func (s *ElementStore) GetByID(_ context.Context, identifier string) (*types.Element, error) {
	_, collection, err := s.current()
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
	_, collection, err := s.current()
	if err != nil {
		return nil, err
	}
	return collection.Children(parentID), nil
}

// GetAll implements storage.ElementReader.
func (s *ElementStore) GetAll(_ context.Context, compareOnly bool) ([]types.EmbeddedElement, error) {
	_, collection, err := s.current()
	if err != nil {
		return nil, err
	}
	return collection.All(compareOnly), nil
}

// Close closes the database connection pool.
func (s *ElementStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
