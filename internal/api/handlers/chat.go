package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/askfolio/askfolio/internal/api"
	"github.com/askfolio/askfolio/internal/api/middleware"
	"github.com/askfolio/askfolio/internal/domain"
	"github.com/askfolio/askfolio/internal/service"
	"github.com/askfolio/askfolio/internal/telemetry"
)

// MaxQuestionChars bounds the question length after sanitization.
const MaxQuestionChars = 500

// AnswerStreamer produces a streamed answer for a question.
type AnswerStreamer interface {
	Answer(ctx context.Context, question string, sink service.TokenSink) (*service.AnswerStats, error)
}

// TranscriptStore persists and retrieves chat transcripts by session.
type TranscriptStore interface {
	SaveMessage(ctx context.Context, sessionID, role, content, ipAddress string) (*domain.ChatMessage, error)
	History(ctx context.Context, sessionID string, limit int) ([]*domain.ChatMessage, error)
	DeleteSession(ctx context.Context, sessionID string) (int64, error)
}

type ChatHandler struct {
	engine      AnswerStreamer
	transcripts TranscriptStore
}

func NewChatHandler(engine AnswerStreamer, transcripts TranscriptStore) *ChatHandler {
	return &ChatHandler{engine: engine, transcripts: transcripts}
}

type ChatRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

type HistoryResponse struct {
	SessionID string                `json:"session_id"`
	Messages  []*domain.ChatMessage `json:"messages"`
}

type DeleteSessionResponse struct {
	SessionID string `json:"session_id"`
	Deleted   int64  `json:"deleted"`
}

// Ask handles POST /chat: validate, persist the user message, stream the
// answer as SSE and persist the assistant message once the stream ends.
//
// Validation failures are plain JSON errors; once streaming has begun,
// failures are delivered as an SSE error event followed by the terminator
// so clients always see a well-formed stream.
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := uuid.Parse(req.SessionID); err != nil {
		api.HandleError(w, domain.ErrInvalidSessionID)
		return
	}

	question := sanitizeQuestion(req.Question)
	if question == "" {
		api.HandleError(w, domain.ErrEmptyQuestion)
		return
	}
	if len([]rune(question)) > MaxQuestionChars {
		api.HandleError(w, domain.ErrQuestionTooLong)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	clientIP := middleware.ClientIP(r)
	if _, err := h.transcripts.SaveMessage(r.Context(), req.SessionID, domain.RoleUser, question, clientIP); err != nil {
		// Transcripts are best-effort; the answer still streams.
		log.Printf("failed to save user message for session %s: %v", req.SessionID, err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sink := &sseSink{w: w, flusher: flusher}
	ctx, span := telemetry.StartSpan(r.Context(), "rag.answer", telemetry.SpanAttributes{
		SessionID: req.SessionID,
		Operation: "answer",
	})
	stats, err := h.engine.Answer(ctx, question, sink)
	if err != nil {
		if r.Context().Err() == nil {
			log.Printf("answer failed for session %s: %v", req.SessionID, err)
			span.SetError(err)
			sink.writeEvent(sseEvent{Error: streamErrorMessage(err)})
		}
		span.End()
		sink.terminate()
		return
	}
	if stats != nil {
		span.SetProvider(stats.Provider)
		telemetry.AddBreadcrumb(ctx, "rag", fmt.Sprintf("answered via %s with %d context chunks", stats.Provider, stats.ChunksRetrieved))
	}
	span.End()
	sink.terminate()

	if answer := sink.answer.String(); answer != "" {
		if _, err := h.transcripts.SaveMessage(r.Context(), req.SessionID, domain.RoleAssistant, answer, clientIP); err != nil {
			log.Printf("failed to save assistant message for session %s: %v", req.SessionID, err)
		}
	}
}

// History handles GET /chat/history/{sessionID}.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := uuid.Parse(sessionID); err != nil {
		api.HandleError(w, domain.ErrInvalidSessionID)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			api.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	messages, err := h.transcripts.History(r.Context(), sessionID, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, HistoryResponse{SessionID: sessionID, Messages: messages})
}

// DeleteSession handles DELETE /chat/history/{sessionID}.
func (h *ChatHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := uuid.Parse(sessionID); err != nil {
		api.HandleError(w, domain.ErrInvalidSessionID)
		return
	}

	deleted, err := h.transcripts.DeleteSession(r.Context(), sessionID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, DeleteSessionResponse{SessionID: sessionID, Deleted: deleted})
}

// sanitizeQuestion trims surrounding whitespace and strips control
// characters that have no place in a question.
func sanitizeQuestion(q string) string {
	q = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, q)
	return strings.TrimSpace(q)
}

// streamErrorMessage picks the client-facing message for a mid-stream
// failure. Domain errors carry safe messages; anything else is masked.
func streamErrorMessage(err error) string {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) && api.DomainErrorToHTTP(err) != http.StatusInternalServerError {
		return domainErr.Message
	}
	return domain.ErrAllProvidersExhausted.Message
}

type sseEvent struct {
	Token string `json:"token,omitempty"`
	Error string `json:"error,omitempty"`
}

// sseSink writes tokens as SSE data events. Reset clears the transcript
// accumulator; tokens already on the wire cannot be recalled, so clients
// observe the answer restarting when a provider retries.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	answer  strings.Builder
}

func (s *sseSink) Reset() {
	s.answer.Reset()
}

func (s *sseSink) Token(token string) error {
	s.answer.WriteString(token)
	return s.writeEvent(sseEvent{Token: token})
}

func (s *sseSink) writeEvent(ev sseEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) terminate() {
	if _, err := s.w.Write([]byte("data: [DONE]\n\n")); err != nil {
		return
	}
	s.flusher.Flush()
}
