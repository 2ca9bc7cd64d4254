package types

// Module types used as the producer type of cache entries.
const (
	ModuleArtifactProvider = "artifact_provider"
	ModulePreprocessor     = "preprocessor"
	ModuleEmbeddingCreator = "embedding_creator"
	ModuleElementStore     = "element_store"
	ModuleClassifier       = "classifier"
	ModuleResultAggregator = "result_aggregator"
)

// ModuleConfiguration identifies which implementation and which parameters
// produced a value. It is part of every cache key.
type ModuleConfiguration struct {
	Type string         `json:"-" yaml:"-"`
	Name string         `json:"name" yaml:"name"`
	Args map[string]any `json:"args" yaml:"args"`
}

// Clone returns a copy with a shallow copy of Args.
func (m ModuleConfiguration) Clone() ModuleConfiguration {
	args := make(map[string]any, len(m.Args))
	for k, v := range m.Args {
		args[k] = v
	}
	return ModuleConfiguration{Type: m.Type, Name: m.Name, Args: args}
}

// PipelineConfiguration maps every pipeline role to a module configuration.
type PipelineConfiguration struct {
	SourceArtifactProvider ModuleConfiguration
	TargetArtifactProvider ModuleConfiguration
	SourcePreprocessor     ModuleConfiguration
	TargetPreprocessor     ModuleConfiguration
	EmbeddingCreator       ModuleConfiguration
	SourceStore            ModuleConfiguration
	TargetStore            ModuleConfiguration
	Classifier             ModuleConfiguration
	ResultAggregator       ModuleConfiguration
}

// Reversed returns a configuration tracing in the opposite direction: source
// and target providers, preprocessors and stores swap places.
func (p PipelineConfiguration) Reversed() PipelineConfiguration {
	r := p
	r.SourceArtifactProvider, r.TargetArtifactProvider = p.TargetArtifactProvider, p.SourceArtifactProvider
	r.SourcePreprocessor, r.TargetPreprocessor = p.TargetPreprocessor, p.SourcePreprocessor
	r.SourceStore, r.TargetStore = p.TargetStore, p.SourceStore
	return r
}
