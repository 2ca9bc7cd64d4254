// Package storage provides the similarity store interfaces and the ranking
// logic shared by every backend.
//
// An element store holds the embedded elements of one artifact collection.
// It is written once per run by Ingest and read concurrently afterwards.
// The interfaces are small so that consumers depend only on what they use:
// the sibling context provider needs an ElementReader, candidate retrieval
// needs a SimilaritySearcher.
package storage

import (
	"context"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

// Ingester creates or reuses the persisted collection of a store.
type Ingester interface {
	// Ingest stores entries under a key derived from the store's identity,
	// its direction, its metric and stageFingerprint. If the key already
	// holds data, the persisted data is loaded instead and entries are
	// ignored unless entry verification is enabled.
	Ingest(ctx context.Context, stageFingerprint string, entries []types.EmbeddedElement) error
}

// SimilaritySearcher serves nearest neighbour queries over comparable
// elements.
type SimilaritySearcher interface {
	// FindSimilar returns the elements closest to query, most similar first.
	FindSimilar(ctx context.Context, query types.Embedding) ([]*types.Element, error)

	// FindSimilarWithDistances is FindSimilar including each distance.
	FindSimilarWithDistances(ctx context.Context, query types.Embedding) ([]Match, error)
}

// ElementReader provides identifier based access to ingested elements.
type ElementReader interface {
	// GetByID returns the element with the given identifier.
	// Returns ErrNotFound if no such element exists.
	GetByID(ctx context.Context, identifier string) (*types.Element, error)

	// GetByParentID returns the children of an element sorted by identifier.
	GetByParentID(ctx context.Context, parentID string) ([]types.EmbeddedElement, error)

	// GetAll returns every element in ingestion order, or only the
	// comparable ones when compareOnly is set.
	GetAll(ctx context.Context, compareOnly bool) ([]types.EmbeddedElement, error)
}

// ElementStore is the full similarity store.
type ElementStore interface {
	Ingester
	SimilaritySearcher
	ElementReader

	// Close releases the resources held by the store.
	Close() error
}
