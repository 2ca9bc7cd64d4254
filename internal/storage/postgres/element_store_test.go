package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/storage"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

// postgresTestDSN returns the DSN for the test database.
// If POSTGRES_TEST_DSN is not set, tests are skipped.
func postgresTestDSN(t *testing.T) string {
	t.Helper()

	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T, opts storage.Options) *ElementStore {
	t.Helper()

	if opts.Direction == "" {
		opts.Direction = "target"
	}
	if opts.Metric == "" {
		opts.Metric = storage.MetricCosine
	}
	if !opts.Results.All && opts.Results.K == 0 {
		opts.Results = storage.ResultCount{K: storage.DefaultResults}
	}
	if opts.Threshold == 0 {
		opts.Threshold = storage.DefaultThreshold
	}

	s, err := NewElementStore(postgresTestDSN(t), "postgres", opts, nil)
	require.NoError(t, err)
	require.NoError(t, s.TruncateForTest(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testEntries() []types.EmbeddedElement {
	doc := types.NewArtifact("Doc", "requirement", "")
	return []types.EmbeddedElement{
		{Element: doc, Embedding: types.Embedding{0, 0}},
		{Element: types.NewElement("Doc$0", "requirement", "a", doc, true), Embedding: types.Embedding{1, 0}},
		{Element: types.NewElement("Doc$1", "requirement", "b", doc, true), Embedding: types.Embedding{0, 1}},
	}
}

func TestNewElementStore_RequiresDSN(t *testing.T) {
	_, err := NewElementStore("", "postgres", storage.Options{}, nil)
	assert.ErrorIs(t, err, config.ErrConfiguration)
}

func TestDistanceExpr(t *testing.T) {
	for _, m := range []storage.Metric{storage.MetricCosine, storage.MetricL2, storage.MetricInnerProduct} {
		expr, err := distanceExpr(m)
		require.NoError(t, err)
		assert.Contains(t, expr, "embedding")
	}
	_, err := distanceExpr("hamming")
	assert.ErrorIs(t, err, config.ErrConfiguration)
}

func TestElementStore_FindSimilarThreshold(t *testing.T) {
	s := newTestStore(t, storage.Options{Threshold: 0.5})
	ctx := context.Background()
	require.NoError(t, s.Ingest(ctx, "fp", testEntries()))

	elements, err := s.FindSimilar(ctx, types.Embedding{1, 0})
	require.NoError(t, err)
	require.Len(t, elements, 1)
	assert.Equal(t, "Doc$0", elements[0].Identifier)
}

func TestElementStore_ReuseAndVerify(t *testing.T) {
	s := newTestStore(t, storage.Options{VerifyEntries: true})
	ctx := context.Background()
	require.NoError(t, s.Ingest(ctx, "fp", testEntries()))
	require.NoError(t, s.Ingest(ctx, "fp", testEntries()), "float32 storage stays within tolerance")

	changed := testEntries()
	changed[1].Element.Content = "changed"
	assert.ErrorIs(t, s.Ingest(ctx, "fp", changed), storage.ErrStorageConsistency)

	children, err := s.GetByParentID(ctx, "Doc")
	require.NoError(t, err)
	assert.Len(t, children, 2)
}
