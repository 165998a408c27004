// Package tools registers the Genkit tools exposed to the model.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/sagehq/sage/internal/knowledge"
)

// KnowledgeLookupName is the Genkit tool name for knowledge base retrieval.
const KnowledgeLookupName = "knowledge_lookup"

// passageSeparator joins retrieved passages in the tool result.
const passageSeparator = "\n\n"

// LookupInput defines input for the knowledge_lookup tool.
type LookupInput struct {
	Query string `json:"query" jsonschema_description:"The search query, phrased as a standalone question or topic"`
}

// Searcher defines the retrieval operation needed by Lookup.
// Interfaces are defined by the consumer, not the provider.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]knowledge.Result, error)
}

// Lookup handles knowledge base retrieval for the model.
type Lookup struct {
	searcher Searcher
	topK     int
	logger   *slog.Logger
}

// NewLookup creates a Lookup handler.
func NewLookup(searcher Searcher, topK int, logger *slog.Logger) (*Lookup, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if topK < 1 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Lookup{searcher: searcher, topK: topK, logger: logger}, nil
}

// RegisterLookup registers the knowledge_lookup tool with Genkit.
func RegisterLookup(g *genkit.Genkit, lk *Lookup) (ai.Tool, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if lk == nil {
		return nil, fmt.Errorf("Lookup is required")
	}

	return genkit.DefineTool(g, KnowledgeLookupName,
		"Search the knowledge base for passages relevant to the user's question. "+
			"Returns the most relevant passages separated by blank lines, or an empty string when nothing relevant is indexed. "+
			"IMPORTANT: You MUST call this tool before answering ANY question about the knowledge base subject matter. "+
			"You MUST NOT use it for greetings, small talk, or questions unrelated to the knowledge base.",
		lk.Run), nil
}

// Run executes one lookup. An empty knowledge base is a normal outcome and
// yields an empty string, not an error.
func (lk *Lookup) Run(ctx *ai.ToolContext, input LookupInput) (string, error) {
	if input.Query == "" {
		return "", fmt.Errorf("query is required")
	}

	results, err := lk.searcher.Search(ctx.Context, input.Query, lk.topK)
	if err != nil {
		return "", fmt.Errorf("knowledge lookup failed: %w", err)
	}

	lk.logger.Debug("knowledge lookup", "query", input.Query, "results", len(results))

	if len(results) == 0 {
		return "", nil
	}

	contents := make([]string, 0, len(results))
	for _, r := range results {
		contents = append(contents, r.Passage.Content)
	}
	return strings.Join(contents, passageSeparator), nil
}
