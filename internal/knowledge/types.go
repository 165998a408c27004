package knowledge

import "time"

// VectorDimension is the embedding dimension stored in the passages table.
// Changing it requires a migration of the embedding column. Typed int32 to
// match the embedder API's output dimensionality option.
const VectorDimension int32 = 768

// Passage is one retrievable unit of the knowledge base.
type Passage struct {
	ID        string
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
}

// Result is a passage with its similarity to the search query,
// from 0 to 1 (higher is more similar).
type Result struct {
	Passage    Passage
	Similarity float64
}
