package turn

import "errors"

// Sentinel errors for turn execution, checked with errors.Is().
var (
	// ErrStepLimit indicates the model-call cap was reached before the
	// model produced a final answer. Nothing is persisted.
	ErrStepLimit = errors.New("turn step limit exceeded")

	// ErrBreakerOpen indicates the model circuit breaker is rejecting
	// calls after repeated failures.
	ErrBreakerOpen = errors.New("model circuit breaker is open")
)
