package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/sagehq/sage/internal/thread"
	"github.com/sagehq/sage/internal/turn"
)

// maxChatBodyBytes bounds the chat request body.
const maxChatBodyBytes = 64 * 1024

// TurnRunner executes one conversational turn.
// Interfaces are defined by the consumer, not the provider.
type TurnRunner interface {
	Run(ctx context.Context, threadID, userText string) (string, error)
}

// HistoryStore exposes the checkpoint operations the chat endpoints need.
type HistoryStore interface {
	Load(ctx context.Context, threadID string) ([]*ai.Message, error)
	Delete(ctx context.Context, threadID string) error
}

// ChatHandler handles the conversational endpoints.
//
// Endpoints:
//   - POST /chat          - run one turn
//   - GET  /chat_history  - user-visible message history
//   - POST /clear_history - drop the thread checkpoint
//
// The authenticated user ID is the thread ID; each user has exactly one
// conversation thread.
type ChatHandler struct {
	engine  TurnRunner
	threads HistoryStore
	logger  *slog.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(engine TurnRunner, threads HistoryStore, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{engine: engine, threads: threads, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat", h.chat)
	mux.HandleFunc("GET /chat_history", h.history)
	mux.HandleFunc("POST /clear_history", h.clear)
}

// ChatRequest is the POST /chat request body.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the POST /chat response body.
type ChatResponse struct {
	Output string `json:"output"`
}

func (h *ChatHandler) chat(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity", h.logger)
		return
	}

	var req ChatRequest
	body := http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body", h.logger)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "message is required", h.logger)
		return
	}

	output, err := h.engine.Run(r.Context(), userID, req.Message)
	if err != nil {
		h.logger.Error("turn failed", "thread_id", userID, "error", err)
		switch {
		case errors.Is(err, thread.ErrUnavailable):
			writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "conversation storage is unavailable", h.logger)
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusGatewayTimeout, "timeout", "the turn did not complete in time", h.logger)
		case errors.Is(err, turn.ErrStepLimit):
			writeError(w, http.StatusInternalServerError, "turn_aborted", "the model did not produce a final answer", h.logger)
		default:
			writeError(w, http.StatusInternalServerError, "turn_failed", "the turn could not be completed", h.logger)
		}
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{Output: output}, h.logger)
}

// HistoryMessage is one user-visible message in GET /chat_history.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HistoryResponse is the GET /chat_history response body.
type HistoryResponse struct {
	History []HistoryMessage `json:"history"`
}

func (h *ChatHandler) history(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity", h.logger)
		return
	}

	messages, err := h.threads.Load(r.Context(), userID)
	if err != nil {
		h.logger.Error("loading history", "thread_id", userID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "conversation storage is unavailable", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, HistoryResponse{History: visibleHistory(messages)}, h.logger)
}

// visibleHistory filters the raw message log down to what a chat UI shows:
// user messages and the assistant's text replies. Tool traffic and the model
// messages that only carry tool requests are dropped.
func visibleHistory(messages []*ai.Message) []HistoryMessage {
	history := make([]HistoryMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case ai.RoleUser:
			history = append(history, HistoryMessage{Role: "user", Content: msg.Text()})
		case ai.RoleModel:
			if text := strings.TrimSpace(msg.Text()); text != "" {
				history = append(history, HistoryMessage{Role: "assistant", Content: text})
			}
		}
	}
	return history
}

// StatusResponse is the POST /clear_history response body.
type StatusResponse struct {
	Status string `json:"status"`
}

func (h *ChatHandler) clear(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity", h.logger)
		return
	}

	if err := h.threads.Delete(r.Context(), userID); err != nil {
		h.logger.Error("clearing history", "thread_id", userID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "conversation storage is unavailable", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"}, h.logger)
}
