package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

// Pipeline roles as they appear in pipeline configuration files.
const (
	RoleSourceArtifactProvider = "source_artifact_provider"
	RoleTargetArtifactProvider = "target_artifact_provider"
	RoleSourcePreprocessor     = "source_preprocessor"
	RoleTargetPreprocessor     = "target_preprocessor"
	RoleEmbeddingCreator       = "embedding_creator"
	RoleSourceStore            = "source_store"
	RoleTargetStore            = "target_store"
	RoleClassifier             = "classifier"
	RoleResultAggregator       = "result_aggregator"
)

// RoleTypes maps every role to the module type of its implementation.
var RoleTypes = map[string]string{
	RoleSourceArtifactProvider: types.ModuleArtifactProvider,
	RoleTargetArtifactProvider: types.ModuleArtifactProvider,
	RoleSourcePreprocessor:     types.ModulePreprocessor,
	RoleTargetPreprocessor:     types.ModulePreprocessor,
	RoleEmbeddingCreator:       types.ModuleEmbeddingCreator,
	RoleSourceStore:            types.ModuleElementStore,
	RoleTargetStore:            types.ModuleElementStore,
	RoleClassifier:             types.ModuleClassifier,
	RoleResultAggregator:       types.ModuleResultAggregator,
}

type moduleEntry struct {
	Name string         `json:"name" yaml:"name"`
	Args map[string]any `json:"args" yaml:"args"`
}

// LoadPipeline reads a pipeline configuration file. Files ending in .yaml or
// .yml are parsed as YAML, everything else as JSON.
func LoadPipeline(path string) (types.PipelineConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.PipelineConfiguration{}, fmt.Errorf("config: failed to read pipeline %s: %w", path, err)
	}
	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	return ParsePipeline(data, format)
}

// ParsePipeline decodes a pipeline configuration in the given format
// ("json" or "yaml"). Every role is required and unknown roles are rejected.
func ParsePipeline(data []byte, format string) (types.PipelineConfiguration, error) {
	entries := make(map[string]moduleEntry)
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return types.PipelineConfiguration{}, fmt.Errorf("%w: invalid yaml: %v", ErrConfiguration, err)
		}
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&entries); err != nil {
			return types.PipelineConfiguration{}, fmt.Errorf("%w: invalid json: %v", ErrConfiguration, err)
		}
	default:
		return types.PipelineConfiguration{}, fmt.Errorf("%w: unknown pipeline format %q", ErrConfiguration, format)
	}

	for role := range entries {
		if _, ok := RoleTypes[role]; !ok {
			return types.PipelineConfiguration{}, fmt.Errorf("%w: unknown role %q", ErrConfiguration, role)
		}
	}

	module := func(role string) (types.ModuleConfiguration, error) {
		e, ok := entries[role]
		if !ok {
			return types.ModuleConfiguration{}, fmt.Errorf("%w: missing role %q", ErrConfiguration, role)
		}
		if e.Name == "" {
			return types.ModuleConfiguration{}, fmt.Errorf("%w: role %q has no module name", ErrConfiguration, role)
		}
		args := e.Args
		if args == nil {
			args = make(map[string]any)
		}
		return types.ModuleConfiguration{Type: RoleTypes[role], Name: e.Name, Args: args}, nil
	}

	var (
		cfg types.PipelineConfiguration
		err error
	)
	targets := []struct {
		role string
		dst  *types.ModuleConfiguration
	}{
		{RoleSourceArtifactProvider, &cfg.SourceArtifactProvider},
		{RoleTargetArtifactProvider, &cfg.TargetArtifactProvider},
		{RoleSourcePreprocessor, &cfg.SourcePreprocessor},
		{RoleTargetPreprocessor, &cfg.TargetPreprocessor},
		{RoleEmbeddingCreator, &cfg.EmbeddingCreator},
		{RoleSourceStore, &cfg.SourceStore},
		{RoleTargetStore, &cfg.TargetStore},
		{RoleClassifier, &cfg.Classifier},
		{RoleResultAggregator, &cfg.ResultAggregator},
	}
	for _, t := range targets {
		if *t.dst, err = module(t.role); err != nil {
			return types.PipelineConfiguration{}, err
		}
	}
	return cfg, nil
}
