package turn

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsOverload(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("googleai: rate limit exceeded"), true},
		{"rate_limit snake case", errors.New("RATE_LIMIT_EXCEEDED"), true},
		{"quota", errors.New("quota exceeded for model"), true},
		{"resource exhausted", errors.New("rpc error: code = ResourceExhausted desc = resource exhausted"), true},
		{"status 429", errors.New("unexpected status 429"), true},
		{"payload too large 413", errors.New("got HTTP 413 from provider"), true},
		{"service unavailable 503", errors.New("503 service unavailable"), true},
		{"overloaded", errors.New("model is currently overloaded"), true},
		{"breaker open", ErrBreakerOpen, true},
		{"wrapped breaker open", fmt.Errorf("model call 2: %w", ErrBreakerOpen), true},
		{"auth failure", errors.New("invalid api key"), false},
		{"context canceled", errors.New("context canceled"), false},
		{"plain model error", errors.New("internal error generating content"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isOverload(tt.err); got != tt.want {
				t.Errorf("isOverload(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
