// Package preprocess segments artifacts into hierarchies of elements.
//
// Every preprocessor returns the artifact itself followed by its descendants,
// parents before children. The element list of one artifact is memoized in
// the fingerprint cache as a single payload and relinked on reload.
package preprocess

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/cache"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/logging"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

// Preprocessor segments one artifact.
type Preprocessor interface {
	Preprocess(ctx context.Context, artifact *types.Element) ([]*types.Element, error)
}

// SplitFunc segments artifact without caching. The returned list starts with
// artifact.
type SplitFunc func(ctx context.Context, artifact *types.Element) ([]*types.Element, error)

// Deps carries the collaborators of a preprocessor.
type Deps struct {
	Cache  *cache.Cache // nil disables memoization
	Logger *zap.Logger
}

type builder func(args map[string]any) (SplitFunc, error)

var builders = map[string]builder{
	"simple":        buildSimple,
	"line":          buildLine,
	"sentence":      buildSentence,
	"code_chunking": buildCodeChunking,
	"code_method":   buildCodeMethod,
	"model_uml":     buildModelUML,
}

// Names returns the registered preprocessor names.
func Names() []string {
	out := make([]string, 0, len(builders))
	for n := range builders {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// New builds the preprocessor named by cfg.
func New(cfg types.ModuleConfiguration, deps Deps) (*Cached, error) {
	b, ok := builders[cfg.Name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown preprocessor %q", config.ErrConfiguration, cfg.Name)
	}
	split, err := b(cfg.Args)
	if err != nil {
		return nil, err
	}
	key := cfg.Clone()
	key.Type = types.ModulePreprocessor
	return NewCached(split, deps.Cache, key, deps.Logger), nil
}

// Cached memoizes the output of a SplitFunc per artifact.
type Cached struct {
	split  SplitFunc
	cache  *cache.Cache
	key    types.ModuleConfiguration
	logger *zap.Logger
}

// NewCached wraps split. key identifies the producer in the cache; c may be nil.
func NewCached(split SplitFunc, c *cache.Cache, key types.ModuleConfiguration, logger *zap.Logger) *Cached {
	return &Cached{split: split, cache: c, key: key, logger: logging.OrNop(logger)}
}

// elementList is the cached payload of one artifact.
type elementList []*types.Element

func (l *elementList) Validate() error {
	if len(*l) == 0 {
		return errors.New("empty element list")
	}
	if (*l)[0].Granularity != 0 {
		return errors.New("element list does not start with an artifact")
	}
	return nil
}

// Preprocess returns the elements of artifact, from the cache when possible.
func (c *Cached) Preprocess(ctx context.Context, artifact *types.Element) ([]*types.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	input, err := cache.Canonicalize(artifact)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		var linked []*types.Element
		_, ok, err := cache.LookupWith(ctx, c.cache, c.key, input, func(cached elementList) error {
			elements, err := relink(artifact, cached)
			linked = elements
			return err
		})
		if err != nil {
			return nil, err
		}
		if ok {
			return linked, nil
		}
	}

	elements, err := c.split(ctx, artifact)
	if err != nil {
		return nil, fmt.Errorf("preprocess %s: artifact %q: %w", c.key.Name, artifact.Identifier, err)
	}
	c.logger.Debug("preprocessed artifact",
		zap.String("preprocessor", c.key.Name),
		zap.String("artifact", artifact.Identifier),
		zap.Int("elements", len(elements)))

	if c.cache != nil {
		if err := c.cache.Put(ctx, c.key, input, elements); err != nil {
			return nil, err
		}
	}
	return elements, nil
}

// relink resolves the parents of cached elements. The cached root must carry
// the identifier of artifact.
func relink(artifact *types.Element, cached elementList) ([]*types.Element, error) {
	if cached[0].Identifier != artifact.Identifier {
		return nil, fmt.Errorf("cached root %q does not match", cached[0].Identifier)
	}
	arena := types.NewArena()
	for _, e := range cached {
		if err := arena.Add(e); err != nil {
			return nil, err
		}
	}
	if err := arena.Link(); err != nil {
		return nil, err
	}
	return arena.Elements(), nil
}

// child creates the n-th element directly below parent.
func child(parent *types.Element, n int, elementType, content string, compare bool) *types.Element {
	return types.NewElement(fmt.Sprintf("%s$%d", parent.Identifier, n), elementType, content, parent, compare)
}
