package llm

import (
	"fmt"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
)

// Provider names accepted by the factories.
const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

func clientOptions(cfg config.LLMConfig) ClientOptions {
	return ClientOptions{
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		RetryDelay:        cfg.RetryDelay,
	}
}

// NewTextGenerator creates the oracle for provider, using model or the
// provider's default when model is empty.
func NewTextGenerator(provider, model string, cfg config.LLMConfig) (TextGenerator, error) {
	switch provider {
	case ProviderOpenAI, "open_ai", "":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:        cfg.OpenAIAPIKey,
			Model:         model,
			BaseURL:       cfg.OpenAIBaseURL,
			ClientOptions: clientOptions(cfg),
		}), nil
	case ProviderOllama:
		return NewOllamaClient(OllamaConfig{
			BaseURL:       cfg.OllamaURL,
			Model:         model,
			Username:      cfg.OllamaUser,
			Password:      cfg.OllamaPassword,
			ClientOptions: clientOptions(cfg),
		}), nil
	case ProviderAnthropic:
		return NewAnthropicClient(AnthropicConfig{
			APIKey:        cfg.AnthropicAPIKey,
			Model:         model,
			ClientOptions: clientOptions(cfg),
		}), nil
	case ProviderMock:
		gen := NewMockTextGenerator(func([]Message) (string, error) {
			return "<component>yes</component> <trace>yes</trace>", nil
		})
		if model != "" {
			gen.Model = model
		}
		return gen, nil
	default:
		return nil, fmt.Errorf("%w: unsupported LLM provider %q", config.ErrConfiguration, provider)
	}
}

// NewEmbeddingGenerator creates the embedding client for provider.
// Anthropic offers no embeddings and is rejected.
func NewEmbeddingGenerator(provider, model string, cfg config.LLMConfig) (EmbeddingGenerator, error) {
	switch provider {
	case ProviderOpenAI, "open_ai":
		return NewOpenAIEmbeddingClient(OpenAIConfig{
			APIKey:        cfg.OpenAIAPIKey,
			Model:         model,
			BaseURL:       cfg.OpenAIBaseURL,
			ClientOptions: clientOptions(cfg),
		}), nil
	case ProviderOllama:
		if model == "" {
			model = "nomic-embed-text:v1.5"
		}
		return NewOllamaClient(OllamaConfig{
			BaseURL:       cfg.OllamaURL,
			Model:         model,
			Username:      cfg.OllamaUser,
			Password:      cfg.OllamaPassword,
			ClientOptions: clientOptions(cfg),
		}), nil
	case ProviderMock:
		return MockEmbeddingGenerator{}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider %q", config.ErrConfiguration, provider)
	}
}
