package llm

import (
	"context"
	"sync"
)

// MockTextGenerator is a deterministic oracle. Respond decides the answer
// for each prompt; every call is recorded.
type MockTextGenerator struct {
	Model   string
	Respond func(messages []Message) (string, error)

	mu    sync.Mutex
	calls [][]Message
}

// NewMockTextGenerator returns a mock oracle answering with respond.
func NewMockTextGenerator(respond func(messages []Message) (string, error)) *MockTextGenerator {
	return &MockTextGenerator{Model: "mock", Respond: respond}
}

// Complete records the prompt and returns the scripted answer.
func (m *MockTextGenerator) Complete(ctx context.Context, messages []Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.calls = append(m.calls, messages)
	m.mu.Unlock()
	if m.Respond == nil {
		return "", nil
	}
	return m.Respond(messages)
}

// Calls returns the prompts received so far, in call order.
func (m *MockTextGenerator) Calls() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]Message(nil), m.calls...)
}

// GetModel returns the mock model name.
func (m *MockTextGenerator) GetModel() string { return m.Model }

// MockEmbeddingGenerator returns the same one-dimensional zero vector for
// every text.
type MockEmbeddingGenerator struct{}

// Embed returns [0].
func (MockEmbeddingGenerator) Embed(ctx context.Context, _ string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []float32{0}, nil
}

// EmbedBatch returns one [0] vector per text.
func (m MockEmbeddingGenerator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// GetModel returns the mock model name.
func (MockEmbeddingGenerator) GetModel() string { return "mock" }

var (
	_ TextGenerator      = (*MockTextGenerator)(nil)
	_ EmbeddingGenerator = MockEmbeddingGenerator{}
)
