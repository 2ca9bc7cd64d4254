package neighbors

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/storage"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/storage/mock"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

// countingReader records how often the store is consulted.
type countingReader struct {
	storage.ElementReader
	calls int
}

func (c *countingReader) GetByParentID(ctx context.Context, parentID string) ([]types.EmbeddedElement, error) {
	c.calls++
	return c.ElementReader.GetByParentID(ctx, parentID)
}

func TestNaturalSort(t *testing.T) {
	ids := []string{"a2", "a10", "a1"}
	slices.SortFunc(ids, NaturalCompare)
	assert.Equal(t, []string{"a1", "a2", "a10"}, ids)

	ids = []string{"Doc$10", "doc$9", "Doc$1", "Doc$09", "Doc"}
	slices.SortFunc(ids, NaturalCompare)
	assert.Equal(t, []string{"Doc", "Doc$1", "Doc$09", "doc$9", "Doc$10"}, ids)

	assert.True(t, NaturalLess("B$2", "b$3"), "text compares case-insensitively")
	assert.True(t, NaturalLess("x99999999999999999999998", "x99999999999999999999999"), "long digit runs do not overflow")
	assert.Equal(t, 0, NaturalCompare("same", "same"))
	assert.NotEqual(t, 0, NaturalCompare("A1", "a1"), "ties fall back to byte order")
}

func siblingStore(t *testing.T) (*countingReader, []*types.Element) {
	t.Helper()
	doc := types.NewArtifact("Doc", "text", "")
	var children []*types.Element
	entries := []types.EmbeddedElement{{Element: doc}}
	for _, id := range []string{"Doc$10", "Doc$2", "Doc$1", "Doc$3"} {
		e := types.NewElement(id, "text", "c"+id[4:], doc, true)
		children = append(children, e)
		entries = append(entries, types.EmbeddedElement{Element: e})
	}
	s := mock.NewElementStore()
	require.NoError(t, s.Ingest(context.Background(), "", entries))
	return &countingReader{ElementReader: s}, children
}

func TestSiblingContext_ZeroWindowSkipsStore(t *testing.T) {
	reader, children := siblingStore(t)
	p := NewProvider(reader, reader)

	pre, post, err := p.SiblingContext(context.Background(), children[0], Source, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, pre)
	assert.Empty(t, post)
	assert.Zero(t, reader.calls)
}

func TestSiblingContext_Windows(t *testing.T) {
	reader, children := siblingStore(t)
	p := NewProvider(reader, reader)
	ctx := context.Background()
	byID := map[string]*types.Element{}
	for _, c := range children {
		byID[c.Identifier] = c
	}

	// Natural order: Doc$1, Doc$2, Doc$3, Doc$10
	pre, post, err := p.SiblingContext(ctx, byID["Doc$3"], Target, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "c2", pre)
	assert.Equal(t, "c10", post)

	pre, post, err = p.SiblingContext(ctx, byID["Doc$2"], Target, 5, 5)
	require.NoError(t, err)
	assert.Equal(t, "c1", pre, "windows are clamped at the start")
	assert.Equal(t, "c3\nc10", post, "contents are joined with newlines")

	pre, post, err = p.SiblingContext(ctx, byID["Doc$10"], Source, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, "c2\nc3", pre)
	assert.Empty(t, post, "windows are clamped at the end")

	pre, post, err = p.SiblingContext(ctx, byID["Doc$1"], Source, 0, 1)
	require.NoError(t, err)
	assert.Empty(t, pre)
	assert.Equal(t, "c2", post)
}

func TestSiblingContext_Errors(t *testing.T) {
	reader, _ := siblingStore(t)
	p := NewProvider(reader, reader)
	ctx := context.Background()

	stranger := types.NewElement("Doc$99", "text", "", types.NewArtifact("Doc", "text", ""), true)
	_, _, err := p.SiblingContext(ctx, stranger, Source, 1, 0)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, _, err = p.SiblingContext(ctx, stranger, Source, -1, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	root := types.NewArtifact("Doc", "text", "")
	pre, post, err := p.SiblingContext(ctx, root, Source, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, pre+post)
}
