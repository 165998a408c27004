package turn

import (
	"errors"
	"strings"
)

// overloadPatterns are error substrings indicating the model provider is
// refusing work because of load or request size, matched case-insensitively.
//
// NOTE: String matching is used because Genkit and provider SDKs do not
// expose typed errors for these failures. Re-evaluate if Genkit adds
// structured error types.
var overloadPatterns = []string{
	"rate limit",
	"rate_limit",
	"quota exceeded",
	"resource exhausted",
	"resource_exhausted",
	"overloaded",
	"request too large",
	"429",
	"413",
	"503",
}

// isOverload reports whether err means the provider is overloaded rather
// than broken. Overload ends the turn with the fixed apology instead of an
// error; everything else is fatal to the turn.
func isOverload(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBreakerOpen) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range overloadPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
