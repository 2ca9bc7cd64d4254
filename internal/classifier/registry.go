package classifier

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/cache"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/llm"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

// Deps carries the collaborators of a classifier.
type Deps struct {
	Cache   *cache.Cache
	Context ContextProvider
	// Oracle overrides the provider and model arguments when set.
	Oracle llm.TextGenerator
	LLM    config.LLMConfig
	Logger *zap.Logger
}

type builder func(cfg types.ModuleConfiguration, deps Deps) (Classifier, error)

var builders = map[string]builder{
	"multi_step":       buildMultiStep,
	"simple":           buildSimple,
	"chain_of_thought": buildChainOfThought,
	"mock":             buildMock,
	"selection": func(types.ModuleConfiguration, Deps) (Classifier, error) {
		return nil, fmt.Errorf("%w: classifier %q", config.ErrNotSupported, "selection")
	},
}

// Names returns the registered classifier names, including unsupported ones.
func Names() []string {
	out := make([]string, 0, len(builders))
	for n := range builders {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// New builds the classifier named by cfg.
//
// Common arguments: provider (openai, ollama, anthropic, mock; default
// openai), model, use_original_artifacts, source_pre_context,
// source_post_context, target_pre_context, target_post_context and
// batch_size.
func New(cfg types.ModuleConfiguration, deps Deps) (Classifier, error) {
	b, ok := builders[cfg.Name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown classifier %q", config.ErrConfiguration, cfg.Name)
	}
	return b(cfg, deps)
}

func buildMultiStep(cfg types.ModuleConfiguration, deps Deps) (Classifier, error) {
	name, err := config.RequiredString(cfg.Args, "prompt")
	if err != nil {
		return nil, err
	}
	steps, err := multiStepPrompt(name)
	if err != nil {
		return nil, err
	}
	return buildSteps(cfg, deps, steps)
}

func buildSimple(cfg types.ModuleConfiguration, deps Deps) (Classifier, error) {
	return buildSteps(cfg, deps, simplePrompt())
}

func buildChainOfThought(cfg types.ModuleConfiguration, deps Deps) (Classifier, error) {
	number, err := config.Int(cfg.Args, "prompt_number", 0)
	if err != nil {
		return nil, err
	}
	withSystem, err := config.Bool(cfg.Args, "system_message", true)
	if err != nil {
		return nil, err
	}
	steps, err := chainOfThoughtPrompt(number, withSystem)
	if err != nil {
		return nil, err
	}
	return buildSteps(cfg, deps, steps)
}

func buildMock(cfg types.ModuleConfiguration, _ Deps) (Classifier, error) {
	collapse, err := config.Bool(cfg.Args, "use_original_artifacts", false)
	if err != nil {
		return nil, err
	}
	return Mock{UseOriginalArtifacts: collapse}, nil
}

func buildSteps(cfg types.ModuleConfiguration, deps Deps, steps []Step) (Classifier, error) {
	opts := Options{Name: cfg.Name, Steps: steps}
	var err error
	if opts.UseOriginalArtifacts, err = config.Bool(cfg.Args, "use_original_artifacts", false); err != nil {
		return nil, err
	}
	if opts.SourceContext, err = window(cfg.Args, "source"); err != nil {
		return nil, err
	}
	if opts.TargetContext, err = window(cfg.Args, "target"); err != nil {
		return nil, err
	}
	if opts.BatchSize, err = config.Int(cfg.Args, "batch_size", 1); err != nil {
		return nil, err
	}
	if opts.BatchSize < 1 {
		return nil, fmt.Errorf("%w: batch_size must be positive, got %d", config.ErrConfiguration, opts.BatchSize)
	}

	oracle := deps.Oracle
	if oracle == nil {
		provider, err := config.String(cfg.Args, "provider", llm.ProviderOpenAI)
		if err != nil {
			return nil, err
		}
		model, err := config.String(cfg.Args, "model", "")
		if err != nil {
			return nil, err
		}
		if oracle, err = llm.NewTextGenerator(provider, model, deps.LLM); err != nil {
			return nil, err
		}
		opts.Provider = provider
	}
	return NewMultiStep(opts, oracle, deps.Cache, deps.Context, deps.Logger), nil
}

func window(args map[string]any, side string) (Window, error) {
	pre, err := config.NonNegativeInt(args, side+"_pre_context", 0)
	if err != nil {
		return Window{}, err
	}
	post, err := config.NonNegativeInt(args, side+"_post_context", 0)
	if err != nil {
		return Window{}, err
	}
	return Window{Pre: pre, Post: post}, nil
}
