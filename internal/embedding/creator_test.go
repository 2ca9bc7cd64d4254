package embedding

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/cache"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

// lengthEmbedder embeds a text as [len(text), 1] and records every request.
type lengthEmbedder struct {
	mu       sync.Mutex
	requests [][]string
}

func (l *lengthEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := l.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (l *lengthEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	l.mu.Lock()
	l.requests = append(l.requests, append([]string(nil), texts...))
	l.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (l *lengthEmbedder) GetModel() string { return "length" }

func (l *lengthEmbedder) texts() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var all []string
	for _, r := range l.requests {
		all = append(all, r...)
	}
	return all
}

func newCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.Open(cache.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func elements(contents ...string) []*types.Element {
	doc := types.NewArtifact("doc", "text", strings.Join(contents, "\n"))
	out := make([]*types.Element, len(contents))
	for i, c := range contents {
		out[i] = types.NewElement("doc$"+string(rune('a'+i)), "text", c, doc, true)
	}
	return out
}

func TestCachedCreator_MemoizesByContent(t *testing.T) {
	c := newCache(t)
	gen := &lengthEmbedder{}
	key := types.ModuleConfiguration{Name: "open_ai", Args: map[string]any{"path": "/tmp/a"}}
	creator := NewCachedCreator(gen, c, key, nil)
	ctx := context.Background()

	got, err := creator.EmbedAll(ctx, elements("one", "three", "one"))
	require.NoError(t, err)
	assert.Equal(t, []types.Embedding{{3, 1}, {5, 1}, {3, 1}}, got)
	assert.Equal(t, []string{"one", "three"}, gen.texts(), "duplicate contents are embedded once")

	// A second creator with a different path shares the cached vectors.
	other := NewCachedCreator(gen, c, types.ModuleConfiguration{Name: "open_ai", Args: map[string]any{"path": "/tmp/b"}}, nil)
	emb, err := other.Embed(ctx, elements("three")[0])
	require.NoError(t, err)
	assert.Equal(t, types.Embedding{5, 1}, emb)
	assert.Len(t, gen.texts(), 2, "cache hit does not call the provider")
}

func TestCachedCreator_ModelIsPartOfTheKey(t *testing.T) {
	c := newCache(t)
	gen := &lengthEmbedder{}
	ctx := context.Background()

	a := NewCachedCreator(gen, c, types.ModuleConfiguration{Name: "ollama", Args: map[string]any{"model": "m1"}}, nil)
	_, err := a.Embed(ctx, elements("text")[0])
	require.NoError(t, err)

	b := NewCachedCreator(gen, c, types.ModuleConfiguration{Name: "ollama", Args: map[string]any{"model": "m2"}}, nil)
	_, err = b.Embed(ctx, elements("text")[0])
	require.NoError(t, err)

	assert.Len(t, gen.texts(), 2)
}

func TestCachedCreator_ReplacesMalformedVector(t *testing.T) {
	c := newCache(t)
	gen := &lengthEmbedder{}
	ctx := context.Background()
	creator := NewCachedCreator(gen, c, types.ModuleConfiguration{Name: "ollama"}, nil)
	require.NoError(t, c.Put(ctx, creator.key, "text", []float64{}))

	emb, err := creator.Embed(ctx, elements("text")[0])
	require.NoError(t, err)
	assert.Equal(t, types.Embedding{4, 1}, emb)

	emb, err = NewCachedCreator(gen, c, types.ModuleConfiguration{Name: "ollama"}, nil).Embed(ctx, elements("text")[0])
	require.NoError(t, err)
	assert.Equal(t, types.Embedding{4, 1}, emb)
	assert.Len(t, gen.texts(), 1, "the fresh vector is served from the cache")
}

func TestCachedCreator_Batches(t *testing.T) {
	gen := &lengthEmbedder{}
	creator := NewCachedCreator(gen, nil, types.ModuleConfiguration{Name: "mock"}, nil)
	creator.batchSize = 2

	_, err := creator.EmbedAll(context.Background(), elements("a", "bb", "ccc", "dddd", "eeeee"))
	require.NoError(t, err)
	require.Len(t, gen.requests, 3)
	assert.Equal(t, []string{"eeeee"}, gen.requests[2])
}

func TestNew(t *testing.T) {
	creator, err := New(types.ModuleConfiguration{Name: "mock"}, Deps{})
	require.NoError(t, err)
	got, err := creator.EmbedAll(context.Background(), elements("x", "y"))
	require.NoError(t, err)
	assert.Equal(t, []types.Embedding{{0}, {0}}, got)

	_, err = New(types.ModuleConfiguration{Name: "word2vec"}, Deps{})
	assert.ErrorIs(t, err, config.ErrConfiguration)

	_, err = New(types.ModuleConfiguration{Name: "ollama", Args: map[string]any{"batch_size": 0}}, Deps{})
	assert.ErrorIs(t, err, config.ErrConfiguration)

	assert.Contains(t, Names(), "open_ai")
}
