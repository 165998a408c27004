package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/ai"

	"github.com/sagehq/sage/internal/knowledge"
)

// fakeSearcher returns canned search results.
type fakeSearcher struct {
	results []knowledge.Result
	err     error

	lastQuery string
	lastTopK  int
}

func (f *fakeSearcher) Search(_ context.Context, query string, topK int) ([]knowledge.Result, error) {
	f.lastQuery = query
	f.lastTopK = topK
	return f.results, f.err
}

func toolCtx() *ai.ToolContext {
	return &ai.ToolContext{Context: context.Background()}
}

func TestRun_JoinsPassagesWithBlankLines(t *testing.T) {
	searcher := &fakeSearcher{results: []knowledge.Result{
		{Passage: knowledge.Passage{ID: "p1", Content: "first passage"}, Similarity: 0.9},
		{Passage: knowledge.Passage{ID: "p2", Content: "second passage"}, Similarity: 0.8},
		{Passage: knowledge.Passage{ID: "p3", Content: "third passage"}, Similarity: 0.7},
	}}
	lk, err := NewLookup(searcher, 4, nil)
	if err != nil {
		t.Fatalf("NewLookup: %v", err)
	}

	out, err := lk.Run(toolCtx(), LookupInput{Query: "what is a goroutine"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := "first passage\n\nsecond passage\n\nthird passage"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
	if searcher.lastQuery != "what is a goroutine" {
		t.Errorf("query = %q", searcher.lastQuery)
	}
	if searcher.lastTopK != 4 {
		t.Errorf("topK = %d, want 4", searcher.lastTopK)
	}
}

func TestRun_EmptyKnowledgeBaseReturnsEmptyString(t *testing.T) {
	lk, err := NewLookup(&fakeSearcher{}, 4, nil)
	if err != nil {
		t.Fatalf("NewLookup: %v", err)
	}

	out, err := lk.Run(toolCtx(), LookupInput{Query: "anything"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "" {
		t.Errorf("expected empty string, got %q", out)
	}
}

func TestRun_SearchFailurePropagates(t *testing.T) {
	searchErr := errors.New("embedder unreachable")
	lk, err := NewLookup(&fakeSearcher{err: searchErr}, 4, nil)
	if err != nil {
		t.Fatalf("NewLookup: %v", err)
	}

	if _, err := lk.Run(toolCtx(), LookupInput{Query: "anything"}); !errors.Is(err, searchErr) {
		t.Errorf("expected wrapped search error, got %v", err)
	}
}

func TestRun_EmptyQueryRejected(t *testing.T) {
	lk, err := NewLookup(&fakeSearcher{}, 4, nil)
	if err != nil {
		t.Fatalf("NewLookup: %v", err)
	}

	if _, err := lk.Run(toolCtx(), LookupInput{}); err == nil {
		t.Error("Run accepted empty query")
	}
}

func TestNewLookup_Validation(t *testing.T) {
	if _, err := NewLookup(nil, 4, nil); err == nil {
		t.Error("NewLookup accepted nil searcher")
	}
	if _, err := NewLookup(&fakeSearcher{}, 0, nil); err == nil {
		t.Error("NewLookup accepted zero topK")
	}
}
