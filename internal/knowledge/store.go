// Package knowledge manages the passage store backing knowledge_lookup.
//
// Passages live in PostgreSQL with pgvector embeddings. Add embeds the
// content and upserts it; Search embeds the query and runs a cosine
// nearest-neighbor scan.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"
)

// SearchTimeout bounds one embed-plus-scan cycle so a slow vector query
// cannot stall the calling turn past its own deadline.
const SearchTimeout = 10 * time.Second

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages knowledge passages with vector search.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	q        querier
	embedder ai.Embedder
	logger   *slog.Logger
}

// NewStore creates a passage Store.
func NewStore(q querier, embedder ai.Embedder, logger *slog.Logger) (*Store, error) {
	if q == nil {
		return nil, fmt.Errorf("querier is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{q: q, embedder: embedder, logger: logger}, nil
}

// embed generates a vector embedding for the given text.
func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	dim := VectorDimension
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("empty embedding response")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// Add embeds a passage's content and upserts it by ID. A passage without an
// ID gets a generated one; callers that want idempotent re-indexing supply
// their own deterministic IDs.
func (s *Store) Add(ctx context.Context, p Passage) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Content == "" {
		return fmt.Errorf("passage content is required")
	}

	vec, err := s.embed(ctx, p.Content)
	if err != nil {
		return err
	}

	metadataJSON, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	_, err = s.q.Exec(ctx,
		`INSERT INTO passages (id, content, embedding, metadata)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET content = EXCLUDED.content, embedding = EXCLUDED.embedding,
		     metadata = EXCLUDED.metadata`,
		p.ID, p.Content, vec, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("upserting passage %q: %w", p.ID, err)
	}

	s.logger.Debug("added passage", "id", p.ID, "content_length", len(p.Content))
	return nil
}

// Search returns the topK passages most similar to the query, ordered by
// descending similarity. An empty knowledge base yields an empty slice.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if topK < 1 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	searchCtx, cancel := context.WithTimeout(ctx, SearchTimeout)
	defer cancel()

	vec, err := s.embed(searchCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("query embedding timeout: %w", err)
		}
		return nil, err
	}

	rows, err := s.q.Query(searchCtx,
		`SELECT id, content, metadata, created_at, 1 - (embedding <=> $1) AS similarity
		 FROM passages
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		vec, topK,
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("vector search timeout: %w", err)
		}
		return nil, fmt.Errorf("searching passages: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0, topK)
	for rows.Next() {
		var (
			p           Passage
			metadataRaw []byte
			similarity  float64
		)
		if err := rows.Scan(&p.ID, &p.Content, &metadataRaw, &p.CreatedAt, &similarity); err != nil {
			return nil, fmt.Errorf("scanning passage row: %w", err)
		}
		if err := json.Unmarshal(metadataRaw, &p.Metadata); err != nil {
			s.logger.Warn("failed to parse passage metadata", "id", p.ID, "error", err)
			p.Metadata = map[string]string{}
		}
		results = append(results, Result{Passage: p, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search results: %w", err)
	}

	s.logger.Debug("searched passages", "top_k", topK, "results", len(results))
	return results, nil
}

// Delete removes a passage by ID. Deleting a missing passage is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("passage ID is required")
	}
	if _, err := s.q.Exec(ctx, `DELETE FROM passages WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting passage %q: %w", id, err)
	}
	return nil
}

// Count returns the total number of stored passages.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM passages`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting passages: %w", err)
	}
	return count, nil
}
