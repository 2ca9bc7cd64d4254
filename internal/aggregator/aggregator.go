// Package aggregator rolls classification results up to a reporting
// granularity and collects them into trace links.
package aggregator

import (
	"fmt"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

// Aggregator turns classification results into trace links.
type Aggregator interface {
	Aggregate(results []types.ClassificationResult) types.TraceLinkSet
}

// AnyConnection reports a link between two elements at the configured
// granularities when any pair of their descendants was classified related.
type AnyConnection struct {
	SourceGranularity int
	TargetGranularity int
}

// Aggregate walks every source and related target up to its granularity
// and adds the resulting pair. Walks stop at the artifact even if the
// granularity was never reached.
func (a AnyConnection) Aggregate(results []types.ClassificationResult) types.TraceLinkSet {
	links := types.NewTraceLinkSet()
	for _, r := range results {
		source := r.Source.Ancestor(a.SourceGranularity)
		for _, t := range r.Related {
			target := t.Ancestor(a.TargetGranularity)
			links.Add(types.TraceLink{Source: source.Identifier, Target: target.Identifier})
		}
	}
	return links
}

// New builds the aggregator named by cfg.
func New(cfg types.ModuleConfiguration) (Aggregator, error) {
	switch cfg.Name {
	case "any_connection":
		src, err := config.NonNegativeInt(cfg.Args, "source_granularity", 0)
		if err != nil {
			return nil, err
		}
		tgt, err := config.NonNegativeInt(cfg.Args, "target_granularity", 0)
		if err != nil {
			return nil, err
		}
		return AnyConnection{SourceGranularity: src, TargetGranularity: tgt}, nil
	default:
		return nil, fmt.Errorf("%w: unknown result aggregator %q", config.ErrConfiguration, cfg.Name)
	}
}
