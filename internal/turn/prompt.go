package turn

import "github.com/firebase/genkit/go/ai"

// systemInstruction is sent with every model call and is never persisted
// in the thread checkpoint.
const systemInstruction = `You are a helpful assistant that answers questions using an indexed knowledge base.

Rules:
- For ANY question about the knowledge base subject matter, you MUST call the knowledge_lookup tool first and ground your answer in the passages it returns. Never answer such questions from your own knowledge.
- For greetings and small talk, respond directly and do NOT call the tool.
- If the tool returns no passages, tell the user you could not find relevant information instead of guessing.`

// fallbackText is returned when the model produces an empty final response.
const fallbackText = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

// deepCopyMessages creates independent copies of Message and Part structs.
//
// WORKAROUND: Genkit's renderMessages() modifies msg.Content in-place,
// causing data races when concurrent turns share message objects loaded
// from the same checkpoint. Tested version: github.com/firebase/genkit/go
// v1.4.0; re-check with the race detector after upgrading.
func deepCopyMessages(msgs []*ai.Message) []*ai.Message {
	if msgs == nil {
		return nil
	}
	copied := make([]*ai.Message, len(msgs))
	for i, msg := range msgs {
		parts := make([]*ai.Part, len(msg.Content))
		for j, part := range msg.Content {
			parts[j] = deepCopyPart(part)
		}
		copied[i] = &ai.Message{
			Role:     msg.Role,
			Content:  parts,
			Metadata: shallowCopyMap(msg.Metadata),
		}
	}
	return copied
}

// deepCopyPart copies one ai.Part. ToolRequest.Input and ToolResponse.Output
// are copied by reference: Genkit only mutates the Content slice, not tool
// payloads.
func deepCopyPart(p *ai.Part) *ai.Part {
	if p == nil {
		return nil
	}
	cp := &ai.Part{
		Kind:        p.Kind,
		ContentType: p.ContentType,
		Text:        p.Text,
		Custom:      shallowCopyMap(p.Custom),
		Metadata:    shallowCopyMap(p.Metadata),
	}
	if p.ToolRequest != nil {
		cp.ToolRequest = &ai.ToolRequest{
			Name:  p.ToolRequest.Name,
			Ref:   p.ToolRequest.Ref,
			Input: p.ToolRequest.Input,
		}
	}
	if p.ToolResponse != nil {
		cp.ToolResponse = &ai.ToolResponse{
			Name:   p.ToolResponse.Name,
			Ref:    p.ToolResponse.Ref,
			Output: p.ToolResponse.Output,
		}
	}
	if p.Resource != nil {
		cp.Resource = &ai.ResourcePart{Uri: p.Resource.Uri}
	}
	return cp
}

func shallowCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
