// Package classifier decides which retrieved candidates are related to a
// source element.
//
// Every oracle-backed classifier is the same state machine: an ordered list
// of steps, each a prompt plus a status function. A candidate that a step
// finds Related is accepted, Unrelated is dropped and Continue moves on to
// the next step. Candidates still undecided after the last step are dropped.
// Oracle responses are memoized in the fingerprint cache before they are
// interpreted, so a rerun never asks the oracle the same question twice.
package classifier

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/cache"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/llm"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/logging"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/neighbors"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

// Classifier judges candidates for one source element.
type Classifier interface {
	Classify(ctx context.Context, source *types.Element, candidates []*types.Element) (types.ClassificationResult, error)
}

// ContextProvider supplies sibling windows around an element.
type ContextProvider interface {
	SiblingContext(ctx context.Context, element *types.Element, side neighbors.Side, pre, post int) (string, string, error)
}

// Window is the number of siblings before and after an element that a
// prompt may show.
type Window struct {
	Pre, Post int
}

// Options configure a MultiStep classifier.
type Options struct {
	// Name is the classifier name recorded in cache keys.
	Name  string
	Steps []Step
	// Provider names the oracle service. When set it is part of the cache
	// key, so equal model names of different services do not share answers.
	Provider string

	// UseOriginalArtifacts collapses the source and every candidate to its
	// artifact before classification.
	UseOriginalArtifacts bool
	SourceContext        Window
	TargetContext        Window

	// BatchSize is the number of oracle requests in flight per step.
	BatchSize int
}

// MultiStep is the stepwise classifier.
type MultiStep struct {
	opts     Options
	oracle   llm.TextGenerator
	cache    *cache.Cache
	context  ContextProvider
	cacheKey types.ModuleConfiguration
	logger   *zap.Logger
}

// NewMultiStep builds a classifier. c and provider may be nil: without a
// cache every question goes to the oracle, without a provider all sibling
// context is empty.
func NewMultiStep(opts Options, oracle llm.TextGenerator, c *cache.Cache, provider ContextProvider, logger *zap.Logger) *MultiStep {
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	return &MultiStep{
		opts:    opts,
		oracle:  oracle,
		cache:   c,
		context: provider,
		logger:  logging.OrNop(logger),
		cacheKey: responseKey(opts, oracle.GetModel()),
	}
}

// responseKey is the configuration responses are cached under. The prompt is
// part of each input key; the configuration keeps only the oracle identity
// and the collapse flag.
func responseKey(opts Options, model string) types.ModuleConfiguration {
	args := map[string]any{
		"model":                  model,
		"use_original_artifacts": opts.UseOriginalArtifacts,
	}
	if opts.Provider != "" {
		args["provider"] = opts.Provider
	}
	return types.ModuleConfiguration{Type: types.ModuleClassifier, Name: opts.Name, Args: args}
}

// CacheKey returns the module configuration under which responses are cached.
func (c *MultiStep) CacheKey() types.ModuleConfiguration { return c.cacheKey }

// Classify runs the steps over the candidates of source.
func (c *MultiStep) Classify(ctx context.Context, source *types.Element, candidates []*types.Element) (types.ClassificationResult, error) {
	source, active := collapse(source, candidates, c.opts.UseOriginalArtifacts)

	var related []*types.Element
	for i, step := range c.opts.Steps {
		if len(active) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return types.ClassificationResult{}, err
		}

		statuses, err := c.step(ctx, i, step, source, active)
		if err != nil {
			return types.ClassificationResult{}, fmt.Errorf("classifier %s: step %d for %q: %w", c.opts.Name, i, source.Identifier, err)
		}

		var next []*types.Element
		for j, target := range active {
			switch statuses[j] {
			case Related:
				related = append(related, target)
			case Continue:
				next = append(next, target)
			}
		}
		active = next
	}

	return types.ClassificationResult{Source: source, Related: related}, nil
}

// collapse optionally replaces the source and the candidates with their
// artifacts, keeping the first occurrence of every candidate artifact.
func collapse(source *types.Element, candidates []*types.Element, toArtifacts bool) (*types.Element, []*types.Element) {
	if !toArtifacts {
		return source, append([]*types.Element(nil), candidates...)
	}
	seen := make(map[string]bool, len(candidates))
	out := make([]*types.Element, 0, len(candidates))
	for _, t := range candidates {
		a := t.Artifact()
		if seen[a.Identifier] {
			continue
		}
		seen[a.Identifier] = true
		out = append(out, a)
	}
	return source.Artifact(), out
}

// response is the cached payload of one oracle call.
type response struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Output *string `json:"output"`
}

func (r *response) Validate() error {
	if r.Output == nil {
		return errors.New("cached response without output")
	}
	return nil
}

// question is one uncached oracle call of a step.
type question struct {
	index    int
	input    string
	messages []llm.Message
}

func (c *MultiStep) step(ctx context.Context, index int, step Step, source *types.Element, targets []*types.Element) ([]Status, error) {
	srcPre, srcPost, err := c.siblings(ctx, step, source, neighbors.Source, c.opts.SourceContext)
	if err != nil {
		return nil, err
	}

	statuses := make([]Status, len(targets))
	var pending []question
	for j, target := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tgtPre, tgtPost, err := c.siblings(ctx, step, target, neighbors.Target, c.opts.TargetContext)
		if err != nil {
			return nil, err
		}

		values := map[string]string{
			SourceType:        source.Type,
			TargetType:        target.Type,
			SourceContent:     source.Content,
			TargetContent:     target.Content,
			SourceContextPre:  srcPre,
			SourceContextPost: srcPost,
			TargetContextPre:  tgtPre,
			TargetContextPost: tgtPost,
		}
		input, err := cache.Canonicalize(map[string]any{"template": step.Messages, "input": values})
		if err != nil {
			return nil, err
		}

		if c.cache != nil {
			cached, ok, err := cache.Lookup[response](ctx, c.cache, c.cacheKey, input)
			if err != nil {
				return nil, err
			}
			if ok {
				statuses[j] = step.Status(*cached.Output)
				continue
			}
		}
		pending = append(pending, question{index: j, input: input, messages: step.Render(values)})
	}

	c.logger.Debug("classification step",
		zap.String("classifier", c.opts.Name),
		zap.Int("step", index),
		zap.String("source", source.Identifier),
		zap.Int("cached", len(targets)-len(pending)),
		zap.Int("oracle_calls", len(pending)))
	if len(pending) == 0 {
		return statuses, nil
	}

	prompts := make([][]llm.Message, len(pending))
	for i, q := range pending {
		prompts[i] = q.messages
		c.logger.Debug("invoking oracle",
			zap.String("source", source.Identifier),
			zap.String("target", targets[q.index].Identifier))
	}
	outputs, err := llm.BatchComplete(ctx, c.oracle, prompts, c.opts.BatchSize)
	if err != nil {
		return nil, err
	}

	for i, q := range pending {
		output := outputs[i]
		if c.cache != nil {
			payload := response{Source: source.Identifier, Target: targets[q.index].Identifier, Output: &output}
			if err := c.cache.Put(ctx, c.cacheKey, q.input, payload); err != nil {
				return nil, err
			}
		}
		statuses[q.index] = step.Status(output)
	}
	return statuses, nil
}

// siblings fetches the context windows a step actually shows for element.
func (c *MultiStep) siblings(ctx context.Context, step Step, element *types.Element, side neighbors.Side, w Window) (string, string, error) {
	prePlaceholder, postPlaceholder := SourceContextPre, SourceContextPost
	if side == neighbors.Target {
		prePlaceholder, postPlaceholder = TargetContextPre, TargetContextPost
	}
	pre, post := 0, 0
	if step.Uses(prePlaceholder) {
		pre = w.Pre
	}
	if step.Uses(postPlaceholder) {
		post = w.Post
	}
	if (pre == 0 && post == 0) || c.context == nil {
		return "", "", nil
	}
	return c.context.SiblingContext(ctx, element, side, pre, post)
}

// Mock accepts every candidate without consulting an oracle.
type Mock struct {
	UseOriginalArtifacts bool
}

// Classify returns all candidates as related.
func (m Mock) Classify(ctx context.Context, source *types.Element, candidates []*types.Element) (types.ClassificationResult, error) {
	if err := ctx.Err(); err != nil {
		return types.ClassificationResult{}, err
	}
	source, related := collapse(source, candidates, m.UseOriginalArtifacts)
	return types.ClassificationResult{Source: source, Related: related}, nil
}

var (
	_ Classifier      = (*MultiStep)(nil)
	_ Classifier      = Mock{}
	_ ContextProvider = (*neighbors.Provider)(nil)
)
