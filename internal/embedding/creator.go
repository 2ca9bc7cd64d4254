// Package embedding computes element embeddings through an embedding
// provider, memoizing every vector in the fingerprint cache keyed by the
// element content.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/cache"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/llm"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/logging"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

// DefaultBatchSize is the number of texts sent per embedding request.
const DefaultBatchSize = 64

// Creator embeds elements.
type Creator interface {
	Embed(ctx context.Context, element *types.Element) (types.Embedding, error)
	EmbedAll(ctx context.Context, elements []*types.Element) ([]types.Embedding, error)
}

// Deps carries the collaborators of an embedding creator.
type Deps struct {
	Cache  *cache.Cache // nil disables memoization
	LLM    config.LLMConfig
	Logger *zap.Logger
}

type builder struct {
	provider string
	cached   bool
}

var builders = map[string]builder{
	"mock":    {provider: llm.ProviderMock},
	"open_ai": {provider: llm.ProviderOpenAI, cached: true},
	"openai":  {provider: llm.ProviderOpenAI, cached: true},
	"ollama":  {provider: llm.ProviderOllama, cached: true},
}

// Names returns the registered creator names.
func Names() []string {
	out := make([]string, 0, len(builders))
	for n := range builders {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// New builds the embedding creator named by cfg.
//
// Arguments: model (provider default when absent), batch_size. A path
// argument is accepted for compatibility and is not part of the cache key.
func New(cfg types.ModuleConfiguration, deps Deps) (Creator, error) {
	b, ok := builders[cfg.Name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown embedding creator %q", config.ErrConfiguration, cfg.Name)
	}
	model, err := config.String(cfg.Args, "model", "")
	if err != nil {
		return nil, err
	}
	batchSize, err := config.Int(cfg.Args, "batch_size", DefaultBatchSize)
	if err != nil {
		return nil, err
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("%w: batch_size must be positive, got %d", config.ErrConfiguration, batchSize)
	}

	gen, err := llm.NewEmbeddingGenerator(b.provider, model, deps.LLM)
	if err != nil {
		return nil, err
	}

	c := &CachedCreator{
		gen:       gen,
		batchSize: batchSize,
		logger:    logging.OrNop(deps.Logger),
		key:       cacheKey(cfg, gen.GetModel()),
	}
	if b.cached {
		c.cache = deps.Cache
	}
	return c, nil
}

// cacheKey returns the producer identity of cached vectors: the creator name
// and its arguments with the resolved model and without the storage path.
func cacheKey(cfg types.ModuleConfiguration, model string) types.ModuleConfiguration {
	key := cfg.Clone()
	key.Type = types.ModuleEmbeddingCreator
	delete(key.Args, "path")
	delete(key.Args, "batch_size")
	key.Args["model"] = model
	return key
}

// CachedCreator embeds element contents with an EmbeddingGenerator and
// memoizes every vector.
type CachedCreator struct {
	gen       llm.EmbeddingGenerator
	cache     *cache.Cache
	key       types.ModuleConfiguration
	batchSize int
	logger    *zap.Logger
}

// NewCachedCreator wraps gen. key identifies the producer in the cache; c may be nil.
func NewCachedCreator(gen llm.EmbeddingGenerator, c *cache.Cache, key types.ModuleConfiguration, logger *zap.Logger) *CachedCreator {
	return &CachedCreator{
		gen:       gen,
		cache:     c,
		key:       cacheKey(key, gen.GetModel()),
		batchSize: DefaultBatchSize,
		logger:    logging.OrNop(logger),
	}
}

// vector is the cached payload of one embedding.
type vector []float64

func (v *vector) Validate() error {
	if len(*v) == 0 {
		return errors.New("empty embedding")
	}
	return nil
}

// Embed returns the embedding of element's content.
func (c *CachedCreator) Embed(ctx context.Context, element *types.Element) (types.Embedding, error) {
	out, err := c.EmbedAll(ctx, []*types.Element{element})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedAll returns one embedding per element, in element order. Cached
// contents are not sent to the provider; identical contents are embedded
// once.
func (c *CachedCreator) EmbedAll(ctx context.Context, elements []*types.Element) ([]types.Embedding, error) {
	out := make([]types.Embedding, len(elements))
	pending := map[string][]int{}
	var misses []string

	for i, e := range elements {
		if idx, ok := pending[e.Content]; ok {
			pending[e.Content] = append(idx, i)
			continue
		}
		if c.cache != nil {
			v, ok, err := cache.Lookup[vector](ctx, c.cache, c.key, e.Content)
			if err != nil {
				return nil, err
			}
			if ok {
				out[i] = types.Embedding(v)
				continue
			}
		}
		pending[e.Content] = []int{i}
		misses = append(misses, e.Content)
	}

	c.logger.Debug("embedding elements",
		zap.String("creator", c.key.Name),
		zap.Int("elements", len(elements)),
		zap.Int("requests", len(misses)))

	for start := 0; start < len(misses); start += c.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch := misses[start:min(start+c.batchSize, len(misses))]
		vecs, err := c.gen.EmbedBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embedding: %w", err)
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("embedding: provider returned %d vectors for %d texts", len(vecs), len(batch))
		}
		for j, content := range batch {
			emb := types.FromFloat32(vecs[j])
			if c.cache != nil {
				if err := c.cache.Put(ctx, c.key, content, []float64(emb)); err != nil {
					return nil, err
				}
			}
			for _, i := range pending[content] {
				out[i] = emb
			}
		}
	}
	return out, nil
}

var _ Creator = (*CachedCreator)(nil)
