package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/askfolio/askfolio/internal/domain"
	"github.com/askfolio/askfolio/internal/service"
)

const testSessionID = "7f6c1c1e-8aa4-4a8f-9f0e-3a2a6a9c1d2b"

// MockAnswerStreamer is a mock for the RAG engine. Tokens configured via
// emit are streamed into the sink before the configured error is returned.
type MockAnswerStreamer struct {
	mock.Mock
	emit []string
}

func (m *MockAnswerStreamer) Answer(ctx context.Context, question string, sink service.TokenSink) (*service.AnswerStats, error) {
	args := m.Called(ctx, question, sink)
	for _, token := range m.emit {
		if err := sink.Token(token); err != nil {
			return nil, err
		}
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AnswerStats), args.Error(1)
}

// MockTranscriptStore is a mock for the transcript repository
type MockTranscriptStore struct {
	mock.Mock
}

func (m *MockTranscriptStore) SaveMessage(ctx context.Context, sessionID, role, content, ipAddress string) (*domain.ChatMessage, error) {
	args := m.Called(ctx, sessionID, role, content, ipAddress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChatMessage), args.Error(1)
}

func (m *MockTranscriptStore) History(ctx context.Context, sessionID string, limit int) ([]*domain.ChatMessage, error) {
	args := m.Called(ctx, sessionID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ChatMessage), args.Error(1)
}

func (m *MockTranscriptStore) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(int64), args.Error(1)
}

func savedMessage(role, content string) *domain.ChatMessage {
	return &domain.ChatMessage{
		ID:        1,
		SessionID: testSessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

func askRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func sseEvents(t *testing.T, body string) []string {
	t.Helper()
	var events []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			events = append(events, strings.TrimPrefix(line, "data: "))
		}
	}
	return events
}

func TestAsk_StreamsAnswer(t *testing.T) {
	engine := &MockAnswerStreamer{emit: []string{"Jane", " builds", " things."}}
	store := new(MockTranscriptStore)

	engine.On("Answer", mock.Anything, "What does Jane build?", mock.Anything).
		Return(&service.AnswerStats{TokensStreamed: 3, Provider: "openrouter"}, nil)
	store.On("SaveMessage", mock.Anything, testSessionID, domain.RoleUser, "What does Jane build?", mock.Anything).
		Return(savedMessage(domain.RoleUser, "What does Jane build?"), nil)
	store.On("SaveMessage", mock.Anything, testSessionID, domain.RoleAssistant, "Jane builds things.", mock.Anything).
		Return(savedMessage(domain.RoleAssistant, "Jane builds things."), nil)

	handler := NewChatHandler(engine, store)
	w := httptest.NewRecorder()
	handler.Ask(w, askRequest(t, `{"question":"What does Jane build?","session_id":"`+testSessionID+`"}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := sseEvents(t, w.Body.String())
	require.Len(t, events, 4)
	assert.JSONEq(t, `{"token":"Jane"}`, events[0])
	assert.JSONEq(t, `{"token":" builds"}`, events[1])
	assert.JSONEq(t, `{"token":" things."}`, events[2])
	assert.Equal(t, "[DONE]", events[3])

	store.AssertExpectations(t)
}

func TestAsk_InvalidSessionID(t *testing.T) {
	engine := &MockAnswerStreamer{}
	store := new(MockTranscriptStore)

	handler := NewChatHandler(engine, store)
	w := httptest.NewRecorder()
	handler.Ask(w, askRequest(t, `{"question":"hi there","session_id":"not-a-uuid"}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	engine.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "SaveMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAsk_EmptyQuestion(t *testing.T) {
	handler := NewChatHandler(&MockAnswerStreamer{}, new(MockTranscriptStore))

	w := httptest.NewRecorder()
	handler.Ask(w, askRequest(t, `{"question":"   \t ","session_id":"`+testSessionID+`"}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "question cannot be empty")
}

func TestAsk_QuestionTooLong(t *testing.T) {
	handler := NewChatHandler(&MockAnswerStreamer{}, new(MockTranscriptStore))

	long := strings.Repeat("w", MaxQuestionChars+1)
	w := httptest.NewRecorder()
	handler.Ask(w, askRequest(t, `{"question":"`+long+`","session_id":"`+testSessionID+`"}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "maximum length")
}

func TestAsk_InvalidBody(t *testing.T) {
	handler := NewChatHandler(&MockAnswerStreamer{}, new(MockTranscriptStore))

	w := httptest.NewRecorder()
	handler.Ask(w, askRequest(t, `{not json`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAsk_EngineFailureEmitsSSEError(t *testing.T) {
	engine := &MockAnswerStreamer{}
	store := new(MockTranscriptStore)

	engine.On("Answer", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, domain.ErrAllProvidersExhausted)
	store.On("SaveMessage", mock.Anything, testSessionID, domain.RoleUser, mock.AnythingOfType("string"), mock.Anything).
		Return(savedMessage(domain.RoleUser, "hi"), nil)

	handler := NewChatHandler(engine, store)
	w := httptest.NewRecorder()
	handler.Ask(w, askRequest(t, `{"question":"anything at all?","session_id":"`+testSessionID+`"}`))

	// The stream has already started, so the failure arrives in-band.
	assert.Equal(t, http.StatusOK, w.Code)

	events := sseEvents(t, w.Body.String())
	require.Len(t, events, 2)
	assert.Contains(t, events[0], "temporarily unavailable")
	assert.Equal(t, "[DONE]", events[1])

	store.AssertNotCalled(t, "SaveMessage", mock.Anything, testSessionID, domain.RoleAssistant, mock.Anything, mock.Anything)
}

func TestAsk_TranscriptFailureDoesNotBlockAnswer(t *testing.T) {
	engine := &MockAnswerStreamer{emit: []string{"still works"}}
	store := new(MockTranscriptStore)

	engine.On("Answer", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&service.AnswerStats{TokensStreamed: 1}, nil)
	store.On("SaveMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, assert.AnError)

	handler := NewChatHandler(engine, store)
	w := httptest.NewRecorder()
	handler.Ask(w, askRequest(t, `{"question":"is the database down?","session_id":"`+testSessionID+`"}`))

	assert.Equal(t, http.StatusOK, w.Code)
	events := sseEvents(t, w.Body.String())
	require.Len(t, events, 2)
	assert.JSONEq(t, `{"token":"still works"}`, events[0])
	assert.Equal(t, "[DONE]", events[1])
}

func historyRequest(sessionID, query string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/chat/history/"+sessionID+query, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("sessionID", sessionID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestHistory_ReturnsMessages(t *testing.T) {
	store := new(MockTranscriptStore)
	store.On("History", mock.Anything, testSessionID, 0).Return([]*domain.ChatMessage{
		savedMessage(domain.RoleUser, "hi"),
		savedMessage(domain.RoleAssistant, "hello"),
	}, nil)

	handler := NewChatHandler(&MockAnswerStreamer{}, store)
	w := httptest.NewRecorder()
	handler.History(w, historyRequest(testSessionID, ""))

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data HistoryResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, testSessionID, resp.Data.SessionID)
	assert.Len(t, resp.Data.Messages, 2)
}

func TestHistory_CustomLimit(t *testing.T) {
	store := new(MockTranscriptStore)
	store.On("History", mock.Anything, testSessionID, 10).Return([]*domain.ChatMessage{}, nil)

	handler := NewChatHandler(&MockAnswerStreamer{}, store)
	w := httptest.NewRecorder()
	handler.History(w, historyRequest(testSessionID, "?limit=10"))

	assert.Equal(t, http.StatusOK, w.Code)
	store.AssertExpectations(t)
}

func TestHistory_InvalidLimit(t *testing.T) {
	handler := NewChatHandler(&MockAnswerStreamer{}, new(MockTranscriptStore))

	w := httptest.NewRecorder()
	handler.History(w, historyRequest(testSessionID, "?limit=zero"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistory_InvalidSessionID(t *testing.T) {
	handler := NewChatHandler(&MockAnswerStreamer{}, new(MockTranscriptStore))

	w := httptest.NewRecorder()
	handler.History(w, historyRequest("not-a-uuid", ""))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteSession(t *testing.T) {
	store := new(MockTranscriptStore)
	store.On("DeleteSession", mock.Anything, testSessionID).Return(int64(4), nil)

	handler := NewChatHandler(&MockAnswerStreamer{}, store)

	req := httptest.NewRequest(http.MethodDelete, "/chat/history/"+testSessionID, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("sessionID", testSessionID)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	w := httptest.NewRecorder()
	handler.DeleteSession(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data DeleteSessionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(4), resp.Data.Deleted)
}

func TestSanitizeQuestion(t *testing.T) {
	assert.Equal(t, "hello", sanitizeQuestion("  hello \x00\x07 "))
	assert.Equal(t, "line\none", sanitizeQuestion("line\none"))
	assert.Equal(t, "", sanitizeQuestion(" \t\r\n "))
}
