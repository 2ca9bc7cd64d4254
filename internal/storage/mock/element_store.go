// Package mock provides an in-memory element store that proposes every
// comparable element as a candidate. It is used to run pipelines without a
// retrieval stage and in tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/storage"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

// ElementStore keeps ingested entries in memory. Nothing is persisted and
// every Ingest replaces the previous entries.
type ElementStore struct {
	mu         sync.RWMutex
	collection *storage.Collection
}

var _ storage.ElementStore = (*ElementStore)(nil)

// NewElementStore creates an empty store.
func NewElementStore() *ElementStore {
	return &ElementStore{}
}

// Ingest implements storage.Ingester.
func (s *ElementStore) Ingest(_ context.Context, _ string, entries []types.EmbeddedElement) error {
	collection, err := storage.NewCollection(entries)
	if err != nil {
		return fmt.Errorf("mock store: %w", err)
	}
	s.mu.Lock()
	s.collection = collection
	s.mu.Unlock()
	return nil
}

func (s *ElementStore) current() (*storage.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.collection == nil {
		return nil, storage.ErrNotIngested
	}
	return s.collection, nil
}

// FindSimilar returns every comparable element in ingestion order.
func (s *ElementStore) FindSimilar(ctx context.Context, query types.Embedding) ([]*types.Element, error) {
	matches, err := s.FindSimilarWithDistances(ctx, query)
	if err != nil {
		return nil, err
	}
	return storage.Elements(matches), nil
}

// FindSimilarWithDistances returns every comparable element with distance 0.
func (s *ElementStore) FindSimilarWithDistances(_ context.Context, _ types.Embedding) ([]storage.Match, error) {
	collection, err := s.current()
	if err != nil {
		return nil, err
	}
	all := collection.All(true)
	matches := make([]storage.Match, len(all))
	for i, e := range all {
		matches[i] = storage.Match{Element: e.Element}
	}
	return matches, nil
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

// Close is a no-op.
func (s *ElementStore) Close() error { return nil }
