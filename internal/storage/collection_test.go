package storage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

func embedded(e *types.Element, vec ...float64) types.EmbeddedElement {
	return types.EmbeddedElement{Element: e, Embedding: types.Embedding(vec)}
}

func ids(elements []*types.Element) []string {
	out := make([]string, len(elements))
	for i, e := range elements {
		out[i] = e.Identifier
	}
	return out
}

func TestMetricDistance(t *testing.T) {
	a := types.Embedding{1, 0}
	b := types.Embedding{0, 1}

	d, err := MetricCosine.Distance(a, a)
	require.NoError(t, err)
	assert.InDelta(t, 0, d, 1e-12)

	d, err = MetricCosine.Distance(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1, d, 1e-12)

	d, err = MetricCosine.Distance(types.Embedding{0, 0}, a)
	require.NoError(t, err)
	assert.Equal(t, 1.0, d, "zero vectors are treated as unrelated")

	d, err = MetricL2.Distance(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 2, d, 1e-12)

	d, err = MetricInnerProduct.Distance(a, a)
	require.NoError(t, err)
	assert.InDelta(t, 0, d, 1e-12)

	_, err = MetricCosine.Distance(a, types.Embedding{1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	undefined := types.Embedding{math.NaN(), 1}
	for _, m := range []Metric{MetricCosine, MetricL2, MetricInnerProduct} {
		d, err = m.Distance(undefined, a)
		require.NoError(t, err)
		assert.Equal(t, 1.0, d, "%s: undefined distances rank like unrelated vectors", m)
	}
}

func TestParseResultCount(t *testing.T) {
	rc, err := ParseResultCount("all")
	require.NoError(t, err)
	assert.True(t, rc.All)

	rc, err = ParseResultCount(float64(5))
	require.NoError(t, err)
	assert.Equal(t, ResultCount{K: 5}, rc)

	rc, err = ParseResultCount("3")
	require.NoError(t, err)
	assert.Equal(t, 3, rc.K)

	_, err = ParseResultCount("dynamic")
	assert.ErrorIs(t, err, config.ErrNotSupported)

	_, err = ParseResultCount(-1)
	assert.ErrorIs(t, err, config.ErrConfiguration)
}

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions(map[string]any{"direction": "target"})
	require.NoError(t, err)
	assert.Equal(t, MetricCosine, opts.Metric)
	assert.Equal(t, ResultCount{K: DefaultResults}, opts.Results)
	assert.Equal(t, DefaultThreshold, opts.Threshold)
	assert.False(t, opts.VerifyEntries)

	_, err = ParseOptions(map[string]any{})
	assert.ErrorIs(t, err, config.ErrConfiguration, "direction is required")

	_, err = ParseOptions(map[string]any{"direction": "target", "similarity_function": "manhattan"})
	assert.ErrorIs(t, err, config.ErrConfiguration)

	_, err = ParseOptions(map[string]any{"direction": "target", "n_results": "dynamic"})
	assert.ErrorIs(t, err, config.ErrNotSupported)

	_, err = ParseOptions(map[string]any{"direction": "target", "dynamic_n": true})
	assert.ErrorIs(t, err, config.ErrNotSupported)
}

func TestCollectionKey(t *testing.T) {
	base := CollectionKey("sqlite", "target", MetricCosine, "abc")
	assert.Len(t, base, 64)
	assert.Equal(t, base, CollectionKey("sqlite", "target", MetricCosine, "abc"))
	assert.NotEqual(t, base, CollectionKey("sqlite", "source", MetricCosine, "abc"))
	assert.NotEqual(t, base, CollectionKey("sqlite", "target", MetricL2, "abc"))
	assert.NotEqual(t, base, CollectionKey("sqlite", "target", MetricCosine, "abd"))
	assert.NotEqual(t, CollectionKey("ab", "c", MetricCosine, ""), CollectionKey("a", "bc", MetricCosine, ""))
}

func TestCollection_RankAndSelectThreshold(t *testing.T) {
	a := types.NewElement("A", "req", "a", nil, true)
	b := types.NewElement("B", "req", "b", nil, true)
	c, err := NewCollection([]types.EmbeddedElement{embedded(a, 1, 0), embedded(b, 0, 1)})
	require.NoError(t, err)

	ranked, err := c.Rank(types.Embedding{1, 0}, MetricCosine)
	require.NoError(t, err)
	selected := Select(ranked, ResultCount{K: 10}, 0.5)

	require.Len(t, selected, 1)
	assert.Equal(t, "A", selected[0].Element.Identifier)
	assert.InDelta(t, 0, selected[0].Distance, 1e-12)
}

func TestCollection_UndefinedDistanceRanksLast(t *testing.T) {
	a := types.NewElement("A", "req", "a", nil, true)
	n := types.NewElement("N", "req", "n", nil, true)
	c, err := NewCollection([]types.EmbeddedElement{embedded(a, 1, 0.5), embedded(n, math.NaN(), 0)})
	require.NoError(t, err)

	ranked, err := c.Rank(types.Embedding{1, 0}, MetricCosine)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "N"}, ids(Elements(ranked)))
	assert.Equal(t, []string{"A"}, ids(Elements(Select(ranked, ResultCount{All: true}, 0.5))))
}

func TestCollection_RankMatchesBruteForce(t *testing.T) {
	root := types.NewArtifact("doc", "code", "")
	vectors := map[string][]float64{
		"doc$1": {1, 0.1},
		"doc$2": {0.2, 1},
		"doc$3": {1, 0.1}, // ties with doc$1
		"doc$4": {-1, 0},
		"doc$5": {0.7, 0.7},
	}
	entries := []types.EmbeddedElement{embedded(root, 0, 0)}
	for _, id := range []string{"doc$5", "doc$3", "doc$4", "doc$1", "doc$2"} {
		entries = append(entries, embedded(types.NewElement(id, "code", id, root, true), vectors[id]...))
	}
	c, err := NewCollection(entries)
	require.NoError(t, err)
	assert.Equal(t, 5, c.Comparable(), "artifacts are not comparable")

	query := types.Embedding{1, 0}
	ranked, err := c.Rank(query, MetricCosine)
	require.NoError(t, err)

	assert.Equal(t, []string{"doc$1", "doc$3", "doc$5", "doc$2", "doc$4"}, ids(Elements(ranked)),
		"equal distances are ordered by identifier")
	for i := 1; i < len(ranked); i++ {
		assert.LessOrEqual(t, ranked[i-1].Distance, ranked[i].Distance)
	}

	top := Select(ranked, ResultCount{K: 2}, 1.0)
	assert.Equal(t, []string{"doc$1", "doc$3"}, ids(Elements(top)))

	all := Select(ranked, ResultCount{All: true}, 1.0)
	assert.Equal(t, []string{"doc$1", "doc$3", "doc$5", "doc$2"}, ids(Elements(all)),
		"the opposite vector exceeds the threshold")

	none := Select(ranked, ResultCount{K: 0}, 2.0)
	assert.Empty(t, none)
}

func TestSelect_ThresholdCommutesWithTruncation(t *testing.T) {
	ranked := []Match{
		{Element: types.NewElement("a", "t", "", nil, true), Distance: 0.1},
		{Element: types.NewElement("b", "t", "", nil, true), Distance: 0.3},
		{Element: types.NewElement("c", "t", "", nil, true), Distance: 0.6},
		{Element: types.NewElement("d", "t", "", nil, true), Distance: 0.9},
	}
	for k := 0; k <= len(ranked); k++ {
		for _, threshold := range []float64{0, 0.2, 0.5, 1} {
			truncated := ranked[:k]
			var want []string
			for _, m := range truncated {
				if m.Distance <= threshold {
					want = append(want, m.Element.Identifier)
				}
			}
			got := ids(Elements(Select(ranked, ResultCount{K: k}, threshold)))
			if want == nil {
				want = []string{}
			}
			assert.Equal(t, want, got, "k=%d threshold=%v", k, threshold)
		}
	}
}

func TestCollection_ChildrenAndAll(t *testing.T) {
	root := types.NewArtifact("A", "doc", "")
	c10 := types.NewElement("A$10", "doc", "ten", root, true)
	c2 := types.NewElement("A$2", "doc", "two", root, false)
	c1 := types.NewElement("A$1", "doc", "one", root, true)
	col, err := NewCollection([]types.EmbeddedElement{
		embedded(root, 0), embedded(c10, 1), embedded(c2, 2), embedded(c1, 3),
	})
	require.NoError(t, err)

	children := col.Children("A")
	var childIDs []string
	for _, e := range children {
		childIDs = append(childIDs, e.Element.Identifier)
	}
	assert.Equal(t, []string{"A$1", "A$10", "A$2"}, childIDs, "children are sorted by identifier")

	all := col.All(false)
	assert.Len(t, all, 4)
	assert.Equal(t, "A", all[0].Element.Identifier, "ingestion order is kept")
	assert.Len(t, col.All(true), 2)

	_, ok := col.Get("A$3")
	assert.False(t, ok)
}

func TestNewCollection_LinksDeserializedParents(t *testing.T) {
	root := &types.Element{Identifier: "R", Type: "doc"}
	child := &types.Element{Identifier: "R$1", Type: "doc", Granularity: 1, ParentID: "R", Compare: true}

	col, err := NewCollection([]types.EmbeddedElement{embedded(child, 1), embedded(root, 0)})
	require.NoError(t, err)
	got, ok := col.Get("R$1")
	require.True(t, ok)
	require.NotNil(t, got.Element.Parent())
	assert.Equal(t, "R", got.Element.Parent().Identifier)

	orphan := &types.Element{Identifier: "X$1", Granularity: 1, ParentID: "X"}
	_, err = NewCollection([]types.EmbeddedElement{embedded(orphan, 1)})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCollection_Verify(t *testing.T) {
	root := types.NewArtifact("A", "doc", "")
	child := types.NewElement("A$1", "doc", "one", root, true)
	entries := []types.EmbeddedElement{embedded(root, 0), embedded(child, 0.5)}
	col, err := NewCollection(entries)
	require.NoError(t, err)

	assert.NoError(t, col.Verify(entries, 0))

	changed := types.NewElement("A$1", "doc", "changed", root, true)
	err = col.Verify([]types.EmbeddedElement{embedded(root, 0), embedded(changed, 0.5)}, 0)
	assert.ErrorIs(t, err, ErrStorageConsistency)

	err = col.Verify([]types.EmbeddedElement{embedded(root, 0)}, 0)
	assert.ErrorIs(t, err, ErrStorageConsistency)

	err = col.Verify([]types.EmbeddedElement{embedded(root, 0), embedded(child, 0.5+1e-9)}, 1e-6)
	assert.NoError(t, err, "differences within tolerance are accepted")

	err = col.Verify([]types.EmbeddedElement{embedded(root, 0), embedded(child, math.Pi)}, 1e-6)
	assert.ErrorIs(t, err, ErrStorageConsistency)
}
