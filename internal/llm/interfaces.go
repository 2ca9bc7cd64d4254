package llm

import "context"

// Message roles understood by every provider.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one turn of a chat prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TextGenerator is the reasoning oracle: it answers a chat prompt with text.
type TextGenerator interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	GetModel() string
}

// EmbeddingGenerator turns text into vectors.
// Returns float32 slices; callers convert to float64 for storage.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	GetModel() string
}
