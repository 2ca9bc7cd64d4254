package types

// Embedding is a numeric vector representation of an element's content.
// Its length depends on the embedding model.
type Embedding []float64

// FromFloat32 converts a float32 vector as returned by embedding services.
func FromFloat32(vec []float32) Embedding {
	out := make(Embedding, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}

// Float32 converts the embedding to float32 precision.
func (e Embedding) Float32() []float32 {
	out := make([]float32, len(e))
	for i, v := range e {
		out[i] = float32(v)
	}
	return out
}

// EmbeddedElement pairs an element with its embedding.
type EmbeddedElement struct {
	Element   *Element
	Embedding Embedding
}
