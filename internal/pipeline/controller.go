// Package pipeline wires the modules of one trace link recovery run:
// acquire artifacts, segment, embed, store both collections, retrieve
// candidates, classify and aggregate.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/aggregator"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/artifacts"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/cache"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/classifier"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/embedding"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/llm"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/logging"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/neighbors"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/preprocess"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/storage"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/storage/registry"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

// Deps carries the process-level collaborators of a run.
type Deps struct {
	Cache    *cache.Cache
	LLM      config.LLMConfig
	StoreDSN string
	// Oracle replaces the classifier's configured provider when set.
	Oracle llm.TextGenerator
	// Workers is the number of source elements classified concurrently.
	Workers int
	Logger  *zap.Logger
}

// side holds the modules of one artifact collection.
type side struct {
	name         neighbors.Side
	artifacts    artifacts.Provider
	preprocessor preprocess.Preprocessor
	store        storage.ElementStore
	fingerprint  string
}

// Controller runs one configured pipeline.
type Controller struct {
	source     side
	target     side
	embedder   embedding.Creator
	classifier classifier.Classifier
	aggregator aggregator.Aggregator
	workers    int
	runID      string
	logger     *zap.Logger
}

// New builds every module of cfg. Unknown module names and invalid
// arguments fail here, before any work is done.
func New(cfg types.PipelineConfiguration, deps Deps) (_ *Controller, err error) {
	logger := logging.OrNop(deps.Logger)
	c := &Controller{workers: max(deps.Workers, 1), logger: logger}
	if deps.Cache != nil {
		c.runID = deps.Cache.RunID()
		c.logger = logger.With(zap.String("run_id", c.runID))
	}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	c.source.name, c.target.name = neighbors.Source, neighbors.Target
	if c.source.artifacts, err = artifacts.New(cfg.SourceArtifactProvider); err != nil {
		return nil, fmt.Errorf("source artifact provider: %w", err)
	}
	if c.target.artifacts, err = artifacts.New(cfg.TargetArtifactProvider); err != nil {
		return nil, fmt.Errorf("target artifact provider: %w", err)
	}

	preDeps := preprocess.Deps{Cache: deps.Cache, Logger: c.logger}
	if c.source.preprocessor, err = preprocess.New(cfg.SourcePreprocessor, preDeps); err != nil {
		return nil, fmt.Errorf("source preprocessor: %w", err)
	}
	if c.target.preprocessor, err = preprocess.New(cfg.TargetPreprocessor, preDeps); err != nil {
		return nil, fmt.Errorf("target preprocessor: %w", err)
	}

	c.embedder, err = embedding.New(cfg.EmbeddingCreator, embedding.Deps{Cache: deps.Cache, LLM: deps.LLM, Logger: c.logger})
	if err != nil {
		return nil, fmt.Errorf("embedding creator: %w", err)
	}
	if c.source.fingerprint, err = StageFingerprint(cfg.SourcePreprocessor, cfg.EmbeddingCreator); err != nil {
		return nil, err
	}
	if c.target.fingerprint, err = StageFingerprint(cfg.TargetPreprocessor, cfg.EmbeddingCreator); err != nil {
		return nil, err
	}

	storeDeps := registry.Deps{DSN: deps.StoreDSN, Logger: c.logger}
	for _, st := range []struct {
		side *side
		cfg  types.ModuleConfiguration
	}{{&c.source, cfg.SourceStore}, {&c.target, cfg.TargetStore}} {
		store, err := registry.New(st.cfg, storeDeps)
		if err != nil {
			return nil, fmt.Errorf("%s store: %w", st.side.name, err)
		}
		st.side.store = store
	}

	c.classifier, err = classifier.New(cfg.Classifier, classifier.Deps{
		Cache:   deps.Cache,
		Context: neighbors.NewProvider(c.source.store, c.target.store),
		Oracle:  deps.Oracle,
		LLM:     deps.LLM,
		Logger:  c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	if c.aggregator, err = aggregator.New(cfg.ResultAggregator); err != nil {
		return nil, fmt.Errorf("result aggregator: %w", err)
	}
	return c, nil
}

// StageFingerprint identifies the elements and embeddings a store is
// ingested from: the preprocessor and the embedding creator with their
// arguments. The storage location of the embedding creator and its batch
// size do not change the embeddings and are left out.
func StageFingerprint(pre, emb types.ModuleConfiguration) (string, error) {
	preArgs, err := cache.Canonicalize(orEmpty(pre.Args))
	if err != nil {
		return "", err
	}
	embKey := emb.Clone()
	delete(embKey.Args, "path")
	delete(embKey.Args, "batch_size")
	embArgs, err := cache.Canonicalize(embKey.Args)
	if err != nil {
		return "", err
	}
	return cache.Hash(pre.Name + preArgs + emb.Name + embArgs), nil
}

func orEmpty(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	return args
}

// CacheDir returns the directory the fingerprint cache of cfg lives in: the
// target store's path, or fallback when the target store has none.
func CacheDir(cfg types.PipelineConfiguration, fallback string) string {
	if p, _ := config.String(cfg.TargetStore.Args, "path", ""); p != "" {
		return filepath.Clean(p)
	}
	return fallback
}

// Run executes the pipeline and returns the recovered trace links sorted by
// source, then target.
func (c *Controller) Run(ctx context.Context) ([]types.TraceLink, error) {
	start := time.Now()
	if err := c.ingest(ctx, &c.target); err != nil {
		return nil, err
	}
	if err := c.ingest(ctx, &c.source); err != nil {
		return nil, err
	}

	results, err := c.classify(ctx)
	if err != nil {
		return nil, err
	}

	links := c.aggregator.Aggregate(results).Links()
	c.logger.Info("pipeline finished",
		zap.Int("sources", len(results)),
		zap.Int("trace_links", len(links)),
		zap.Duration("elapsed", time.Since(start)))
	return links, nil
}

// ingest segments and embeds the artifacts of s and fills its store.
func (c *Controller) ingest(ctx context.Context, s *side) error {
	all := s.artifacts.GetAll()
	c.logger.Info("preprocessing artifacts", zap.Stringer("side", s.name), zap.Int("artifacts", len(all)))

	var elements []*types.Element
	for _, a := range all {
		els, err := s.preprocessor.Preprocess(ctx, a)
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		elements = append(elements, els...)
	}

	c.logger.Info("embedding elements", zap.Stringer("side", s.name), zap.Int("elements", len(elements)))
	vectors, err := c.embedder.EmbedAll(ctx, elements)
	if err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	entries := make([]types.EmbeddedElement, len(elements))
	for i, e := range elements {
		entries[i] = types.EmbeddedElement{Element: e, Embedding: vectors[i]}
	}

	c.logger.Info("filling element store", zap.Stringer("side", s.name), zap.String("fingerprint", s.fingerprint))
	if err := s.store.Ingest(ctx, s.fingerprint, entries); err != nil {
		return fmt.Errorf("%s store: %w", s.name, err)
	}
	return nil
}

// classify judges the retrieved candidates of every comparable source
// element. Results keep the order of the source store.
func (c *Controller) classify(ctx context.Context) ([]types.ClassificationResult, error) {
	queries, err := c.source.store.GetAll(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("source store: %w", err)
	}
	c.logger.Info("classifying", zap.Int("sources", len(queries)), zap.Int("workers", c.workers))

	results := make([]types.ClassificationResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, q := range queries {
		if gctx.Err() != nil {
			break
		}
		i, q := i, q
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			candidates, err := c.target.store.FindSimilar(gctx, q.Embedding)
			if err != nil {
				return fmt.Errorf("target store: %w", err)
			}
			c.logger.Debug("retrieved candidates",
				zap.String("source", q.Element.Identifier),
				zap.Int("candidates", len(candidates)))

			res, err := c.classifier.Classify(gctx, q.Element, candidates)
			if err != nil {
				return fmt.Errorf("classify %q: %w", q.Element.Identifier, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Close releases both element stores.
func (c *Controller) Close() error {
	var errs []error
	for _, s := range []storage.ElementStore{c.source.store, c.target.store} {
		if s != nil {
			errs = append(errs, s.Close())
		}
	}
	return errors.Join(errs...)
}
