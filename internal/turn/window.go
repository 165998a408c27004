package turn

import "github.com/firebase/genkit/go/ai"

// Window returns the last w messages of log. The full log stays persisted;
// only the model input is windowed.
//
// If the cut lands on a tool message, the window is extended backward until
// it starts on a non-tool message, so a tool response is never sent without
// the model message that requested it.
func Window(log []*ai.Message, w int) []*ai.Message {
	if w <= 0 || len(log) <= w {
		return log
	}

	start := len(log) - w
	for start > 0 && log[start].Role == ai.RoleTool {
		start--
	}
	return log[start:]
}
