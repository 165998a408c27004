// Package turn executes one conversational turn end to end: load the
// thread checkpoint, run the model/tool loop, and persist the result.
//
// Persistence is all-or-nothing per turn. A turn that fails mid-loop
// (timeout, tool failure, step limit, model error) leaves the checkpoint
// exactly as it was. The one exception is provider overload, which ends
// the turn with a fixed apology and persists only the user's message.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
)

// apologyText is the fixed response returned when the model provider is
// overloaded. It is returned to the caller but never persisted.
const apologyText = "I'm sorry, I'm receiving too many requests right now. Please try again in a moment."

// ThreadStore defines the checkpoint operations needed by Engine.
// Interfaces are defined by the consumer, not the provider.
type ThreadStore interface {
	Load(ctx context.Context, threadID string) ([]*ai.Message, error)
	Save(ctx context.Context, threadID string, messages []*ai.Message) error
}

// Config contains all required parameters for Engine.
type Config struct {
	Genkit *genkit.Genkit
	Store  ThreadStore
	Logger *slog.Logger
	Tools  []ai.Tool // pre-registered tools

	ModelName     string        // provider-qualified model name
	HistoryWindow int           // messages per model call
	MaxModelCalls int           // model invocations per turn before aborting
	TurnTimeout   time.Duration // whole-turn deadline

	// Resilience
	RateLimiter   *rate.Limiter // nil = use default
	BreakerConfig BreakerConfig // zero value = defaults
}

func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Store == nil {
		return errors.New("thread store is required")
	}
	if len(cfg.Tools) == 0 {
		return errors.New("at least one tool is required")
	}
	if cfg.ModelName == "" {
		return errors.New("model name is required")
	}
	return nil
}

// Engine runs turns. It is stateless between turns apart from the
// per-thread locks and the circuit breaker.
//
// Engine is safe for concurrent use; turns on the same thread are
// serialized, turns on different threads run in parallel.
type Engine struct {
	g      *genkit.Genkit
	store  ThreadStore
	logger *slog.Logger

	modelName string
	window    int
	maxCalls  int
	timeout   time.Duration

	toolRefs []ai.ToolRef
	tools    map[string]ai.Tool

	limiter *rate.Limiter
	breaker *Breaker
	locks   *threadLocks
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	window := cfg.HistoryWindow
	if window <= 0 {
		window = 6
	}
	maxCalls := cfg.MaxModelCalls
	if maxCalls <= 0 {
		maxCalls = 4
	}
	timeout := cfg.TurnTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}

	toolRefs := make([]ai.ToolRef, len(cfg.Tools))
	tools := make(map[string]ai.Tool, len(cfg.Tools))
	for i, t := range cfg.Tools {
		toolRefs[i] = t
		tools[t.Name()] = t
	}

	return &Engine{
		g:         cfg.Genkit,
		store:     cfg.Store,
		logger:    logger,
		modelName: cfg.ModelName,
		window:    window,
		maxCalls:  maxCalls,
		timeout:   timeout,
		toolRefs:  toolRefs,
		tools:     tools,
		limiter:   limiter,
		breaker:   NewBreaker(cfg.BreakerConfig),
		locks:     newThreadLocks(),
	}, nil
}

// Run executes one turn on a thread and returns the assistant's final text.
//
// On provider overload the returned text is the fixed apology and only the
// user's message is persisted. Any other failure persists nothing.
func (e *Engine) Run(ctx context.Context, threadID, userText string) (string, error) {
	if threadID == "" {
		return "", fmt.Errorf("thread ID is required")
	}
	if strings.TrimSpace(userText) == "" {
		return "", fmt.Errorf("user message is required")
	}

	unlock := e.locks.acquire(threadID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()

	log, err := e.store.Load(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("loading thread: %w", err)
	}

	log = append(log, ai.NewUserMessage(ai.NewTextPart(userText)))
	// Length of the log with only the user's message appended; this prefix
	// is what an overload persists.
	userOnlyLen := len(log)

	calls := 0
	for {
		if calls >= e.maxCalls {
			return "", fmt.Errorf("%w: %d model calls without a final answer", ErrStepLimit, calls)
		}

		resp, err := e.generate(ctx, log)
		calls++
		if err != nil {
			if isOverload(err) {
				e.logger.Warn("model overloaded, returning apology",
					"thread_id", threadID, "calls", calls, "error", err)
				if saveErr := e.store.Save(ctx, threadID, log[:userOnlyLen]); saveErr != nil {
					return "", fmt.Errorf("saving thread after overload: %w", saveErr)
				}
				return apologyText, nil
			}
			return "", fmt.Errorf("model call %d: %w", calls, err)
		}

		log = append(log, resp.Message)

		requests := resp.ToolRequests()
		if len(requests) == 0 {
			text := strings.TrimSpace(resp.Text())
			if text == "" {
				e.logger.Warn("model returned empty final response", "thread_id", threadID)
				text = fallbackText
				log[len(log)-1] = ai.NewModelMessage(ai.NewTextPart(text))
			}
			if err := e.store.Save(ctx, threadID, log); err != nil {
				return "", fmt.Errorf("saving thread: %w", err)
			}
			e.logger.Info("turn completed",
				"thread_id", threadID,
				"model_calls", calls,
				"messages", len(log),
				"elapsed", time.Since(start))
			return text, nil
		}

		toolMessages, err := e.runTools(ctx, requests)
		if err != nil {
			return "", err
		}
		log = append(log, toolMessages...)
	}
}

// generate performs one rate-limited, breaker-guarded model call over the
// windowed log.
func (e *Engine) generate(ctx context.Context, log []*ai.Message) (*ai.ModelResponse, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	if err := e.breaker.Allow(); err != nil {
		return nil, err
	}

	messages := deepCopyMessages(Window(log, e.window))

	resp, err := genkit.Generate(ctx, e.g,
		ai.WithModelName(e.modelName),
		ai.WithSystem(systemInstruction),
		ai.WithMessages(messages...),
		ai.WithTools(e.toolRefs...),
		ai.WithReturnToolRequests(true),
	)
	if err != nil {
		e.breaker.Failure()
		return nil, err
	}
	e.breaker.Success()
	return resp, nil
}

// runTools executes the model's tool requests concurrently and returns one
// tool message per request, in request order. A tool the model invented or
// a tool execution failure aborts the turn.
func (e *Engine) runTools(ctx context.Context, requests []*ai.ToolRequest) ([]*ai.Message, error) {
	type toolResult struct {
		output any
		err    error
	}

	// Resolve every name before launching anything, so an invented tool
	// aborts the turn with no tool executed at all.
	resolved := make([]ai.Tool, len(requests))
	for i, req := range requests {
		tool, ok := e.tools[req.Name]
		if !ok {
			return nil, fmt.Errorf("model requested unknown tool %q", req.Name)
		}
		resolved[i] = tool
	}

	results := make([]toolResult, len(requests))
	var wg sync.WaitGroup

	for i, req := range requests {
		wg.Add(1)
		go func(i int, tool ai.Tool, req *ai.ToolRequest) {
			defer wg.Done()
			out, err := tool.RunRaw(ctx, req.Input)
			results[i] = toolResult{output: out, err: err}
		}(i, resolved[i], req)
	}
	wg.Wait()

	messages := make([]*ai.Message, 0, len(requests))
	for i, req := range requests {
		if results[i].err != nil {
			return nil, fmt.Errorf("tool %q: %w", req.Name, results[i].err)
		}
		part := ai.NewToolResponsePart(&ai.ToolResponse{
			Name:   req.Name,
			Ref:    req.Ref,
			Output: results[i].output,
		})
		messages = append(messages, &ai.Message{
			Role:    ai.RoleTool,
			Content: []*ai.Part{part},
		})
	}
	return messages, nil
}
