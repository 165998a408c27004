// Package testutil provides deterministic test doubles for the AI stack.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockLLM provides deterministic model responses for testing. It matches
// the last user message against registered patterns and returns the
// corresponding response.
//
// A rule with tool requests answers with the tool calls on the first model
// call and with its final text once the request contains tool responses,
// mirroring how a real model concludes a tool round-trip. A repeating rule
// stays active once matched, so it keeps requesting tools even after history
// windowing drops the matching user message from the request.
//
// Thread-safe for concurrent use.
type MockLLM struct {
	mu       sync.Mutex
	rules    []mockRule
	errQueue []error
	fallback string
	calls    []MockCall
	active   *mockRule // last matched repeating rule
}

type mockRule struct {
	pattern  string            // substring match in the last user message
	response string            // final text response
	tools    []*ai.ToolRequest // tool calls to request first (nil = text only)
	repeat   bool              // request tools on every call, never conclude
}

// MockCall records a single call to the mock model.
type MockCall struct {
	UserMessage   string // last user message text
	System        string // system instruction text, if any
	MessageCount  int    // conversation messages in the request, system excluded
	RequestedTool bool   // whether this call returned tool requests
	Response      string // text returned (empty when tools were requested)
}

// NewMockLLM creates a mock model with the given fallback response,
// returned when no pattern matches.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback}
}

// AddResponse registers a pattern that yields a plain text response.
// Patterns match case-insensitively; first match wins.
func (m *MockLLM) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern:  strings.ToLower(pattern),
		response: response,
	})
}

// AddToolResponse registers a pattern that first requests the given tools,
// then yields finalText on the follow-up call.
func (m *MockLLM) AddToolResponse(pattern string, tools []*ai.ToolRequest, finalText string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern:  strings.ToLower(pattern),
		response: finalText,
		tools:    tools,
	})
}

// AddRepeatingToolResponse registers a pattern that requests the given
// tools on every call, never producing a final answer. Use it to exercise
// step-limit handling.
func (m *MockLLM) AddRepeatingToolResponse(pattern string, tools []*ai.ToolRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern: strings.ToLower(pattern),
		tools:   tools,
		repeat:  true,
	})
}

// FailNext queues errors returned by the next model calls, in order,
// before any pattern matching happens.
func (m *MockLLM) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errQueue = append(m.errQueue, errs...)
}

// Calls returns a copy of all recorded calls.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// CallCount returns the number of model calls made so far.
func (m *MockLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Register registers the mock as a Genkit model named "mock/test-model".
func (m *MockLLM) Register(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, "mock/test-model", &ai.ModelOptions{
		Label: "Mock Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			Tools:      true,
			SystemRole: true,
		},
	}, m.generate)
}

// ModelName returns the provider-qualified name the mock registers under.
func (*MockLLM) ModelName() string { return "mock/test-model" }

func (m *MockLLM) generate(_ context.Context, req *ai.ModelRequest, _ ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	system, conversation := splitSystem(req.Messages)
	userText, toolRoundTrip := lastUserAndToolState(conversation)

	m.mu.Lock()
	if len(m.errQueue) > 0 {
		err := m.errQueue[0]
		m.errQueue = m.errQueue[1:]
		m.mu.Unlock()
		return nil, err
	}

	var matched *mockRule
	lower := strings.ToLower(userText)
	for i := range m.rules {
		if strings.Contains(lower, m.rules[i].pattern) {
			matched = &m.rules[i]
			break
		}
	}
	if matched == nil {
		matched = m.active
	}
	if matched != nil && matched.repeat {
		m.active = matched
	}

	wantsTools := matched != nil && len(matched.tools) > 0 && (matched.repeat || !toolRoundTrip)

	responseText := m.fallback
	if matched != nil {
		responseText = matched.response
	}
	if wantsTools {
		responseText = ""
	}

	m.calls = append(m.calls, MockCall{
		UserMessage:   userText,
		System:        system,
		MessageCount:  len(conversation),
		RequestedTool: wantsTools,
		Response:      responseText,
	})
	m.mu.Unlock()

	var parts []*ai.Part
	if wantsTools {
		for _, tr := range matched.tools {
			parts = append(parts, &ai.Part{
				Kind:        ai.PartToolRequest,
				ToolRequest: tr,
			})
		}
	} else {
		parts = append(parts, ai.NewTextPart(responseText))
	}

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: parts,
		},
	}, nil
}

// splitSystem separates the system instruction the framework injects into
// the request from the conversation messages.
func splitSystem(messages []*ai.Message) (string, []*ai.Message) {
	var system strings.Builder
	conversation := make([]*ai.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == ai.RoleSystem {
			system.WriteString(msg.Text())
			continue
		}
		conversation = append(conversation, msg)
	}
	return system.String(), conversation
}

// lastUserAndToolState extracts the last user message text and whether a
// tool response already follows it in the request.
func lastUserAndToolState(messages []*ai.Message) (string, bool) {
	userIdx := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == ai.RoleUser {
			userIdx = i
			break
		}
	}
	if userIdx == -1 {
		return "", false
	}

	toolRoundTrip := false
	for _, msg := range messages[userIdx+1:] {
		if msg.Role == ai.RoleTool {
			toolRoundTrip = true
			break
		}
	}
	return messages[userIdx].Text(), toolRoundTrip
}

// MockEmbedder provides deterministic embedding vectors for testing.
// The same content always produces the same unit vector.
//
// Thread-safe for concurrent use.
type MockEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	dim     int
}

// NewMockEmbedder creates a mock embedder with the given dimensions.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{
		vectors: make(map[string][]float32),
		dim:     dim,
	}
}

// SetVector registers an explicit vector for a content string, for precise
// cosine similarity control between test inputs.
func (e *MockEmbedder) SetVector(content string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[content] = vec
}

// Register registers the mock as a Genkit embedder named "mock/test-embedder".
func (e *MockEmbedder) Register(g *genkit.Genkit) ai.Embedder {
	return genkit.DefineEmbedder(g, "mock/test-embedder", &ai.EmbedderOptions{
		Label:      "Mock Test Embedder",
		Dimensions: e.dim,
	}, e.embed)
}

func (e *MockEmbedder) embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	embeddings := make([]*ai.Embedding, len(req.Input))
	for i, doc := range req.Input {
		embeddings[i] = &ai.Embedding{Embedding: e.vectorFor(documentText(doc))}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

func (e *MockEmbedder) vectorFor(content string) []float32 {
	e.mu.Lock()
	if v, ok := e.vectors[content]; ok {
		e.mu.Unlock()
		return v
	}
	e.mu.Unlock()
	return deterministicVector(content, e.dim)
}

func documentText(doc *ai.Document) string {
	var sb strings.Builder
	for _, p := range doc.Content {
		if p.Kind == ai.PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// deterministicVector generates a normalized vector from content via SHA-256.
func deterministicVector(content string, dim int) []float32 {
	hash := sha256.Sum256([]byte(content))
	vec := make([]float32, dim)

	for i := range vec {
		idx := (i * 4) % len(hash)
		bits := binary.LittleEndian.Uint32([]byte{
			hash[idx%32],
			hash[(idx+1)%32],
			hash[(idx+2)%32],
			hash[(idx+3)%32],
		})
		vec[i] = (float32(bits)/float32(math.MaxUint32))*2 - 1
	}

	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}
