package models

// Chunk represents a bounded piece of the uploaded document text
type Chunk struct {
	Content string
	ChunkID int
}

// ChunkEmbedding pairs a chunk with its embedding vector
type ChunkEmbedding struct {
	Chunk
	Embedding []float32
}

// SearchResult is a chunk returned by the vector index together with its score.
// Distance is the cosine distance, 1 - Similarity.
type SearchResult struct {
	Chunk      Chunk
	Similarity float32
	Distance   float32
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat history record
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
