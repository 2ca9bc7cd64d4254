package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// OllamaClient handles communication with the Ollama API. A single client
// serves both chat completions and embeddings for its model.
type OllamaClient struct {
	cfg       OllamaConfig
	transport *transport
}

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	// BaseURL is the base URL for the Ollama API (default: http://localhost:11434)
	BaseURL string

	// Model is the model name to use (default: llama3)
	Model string

	// Username and Password enable HTTP basic auth for hosts behind a proxy.
	Username string
	Password string

	ClientOptions
}

// chatRequest represents the request body for the /api/chat endpoint
type chatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

// chatResponse represents the response from the /api/chat endpoint
type chatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

// embedRequest represents the request body for the /api/embed endpoint
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse represents the response from the /api/embed endpoint;
// one embedding per input, in input order.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaClient creates a new Ollama client with the given configuration.
func NewOllamaClient(config OllamaConfig) *OllamaClient {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Model == "" {
		config.Model = "llama3"
	}
	return &OllamaClient{cfg: config, transport: newTransport("ollama", config.ClientOptions)}
}

func (c *OllamaClient) header() http.Header {
	h := http.Header{}
	if c.cfg.Username != "" || c.cfg.Password != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(c.cfg.Username + ":" + c.cfg.Password))
		h.Set("Authorization", "Basic "+auth)
	}
	return h
}

// Complete sends the conversation to Ollama and returns the response text.
// Sampling is deterministic (temperature 0).
func (c *OllamaClient) Complete(ctx context.Context, messages []Message) (string, error) {
	reqBody := chatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   false,
		Options:  map[string]any{"temperature": 0},
	}

	var respData chatResponse
	if err := c.transport.postJSON(ctx, c.cfg.BaseURL+"/api/chat", c.header(), reqBody, &respData); err != nil {
		return "", err
	}
	return respData.Message.Content, nil
}

// Embed generates an embedding for the given text.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request; the i-th vector belongs to texts[i].
func (c *OllamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var respData embedResponse
	reqBody := embedRequest{Model: c.cfg.Model, Input: texts}
	if err := c.transport.postJSON(ctx, c.cfg.BaseURL+"/api/embed", c.header(), reqBody, &respData); err != nil {
		return nil, err
	}
	if len(respData.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(respData.Embeddings), len(texts))
	}
	for i, v := range respData.Embeddings {
		if len(v) == 0 {
			return nil, fmt.Errorf("ollama returned empty embedding vector for input %d", i)
		}
	}
	return respData.Embeddings, nil
}

// GetModel returns the configured model name.
func (c *OllamaClient) GetModel() string {
	return c.cfg.Model
}

// Compile-time assertions that OllamaClient satisfies both LLM interfaces.
var _ TextGenerator = (*OllamaClient)(nil)
var _ EmbeddingGenerator = (*OllamaClient)(nil)
