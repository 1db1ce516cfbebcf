//go:build e2e

package e2e

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
)

// FakeLLMServer is an OpenAI-compatible test double serving both the
// embeddings and the streaming chat completions endpoints. Embeddings are
// deterministic per input text so retrieval behaves the same across runs.
type FakeLLMServer struct {
	srv    *httptest.Server
	answer string

	// completionStatus, when non-zero, is returned for every completion
	// request instead of a stream.
	completionStatus atomic.Int32
	completionCalls  atomic.Int32
}

// NewFakeLLMServer starts a fake upstream that streams answer token by token.
func NewFakeLLMServer(answer string) *FakeLLMServer {
	f := &FakeLLMServer{answer: answer}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", f.handleEmbeddings)
	mux.HandleFunc("/v1/chat/completions", f.handleCompletions)
	f.srv = httptest.NewServer(mux)

	return f
}

// URL returns the base URL of the fake server.
func (f *FakeLLMServer) URL() string {
	return f.srv.URL
}

// Close shuts the fake server down.
func (f *FakeLLMServer) Close() {
	f.srv.Close()
}

// FailCompletionsWith makes every subsequent completion request return the
// given HTTP status. Pass 0 to restore streaming.
func (f *FakeLLMServer) FailCompletionsWith(status int) {
	f.completionStatus.Store(int32(status))
}

// CompletionCalls reports how many completion requests arrived.
func (f *FakeLLMServer) CompletionCalls() int {
	return int(f.completionCalls.Load())
}

func (f *FakeLLMServer) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input []string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Input) == 0 {
		http.Error(w, `{"error":{"message":"bad request"}}`, http.StatusBadRequest)
		return
	}

	type datum struct {
		Object    string    `json:"object"`
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	}
	resp := struct {
		Object string  `json:"object"`
		Data   []datum `json:"data"`
		Model  string  `json:"model"`
	}{
		Object: "list",
		Model:  "all-MiniLM-L6-v2",
	}
	for i, text := range req.Input {
		resp.Data = append(resp.Data, datum{
			Object:    "embedding",
			Index:     i,
			Embedding: deterministicEmbedding(text),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (f *FakeLLMServer) handleCompletions(w http.ResponseWriter, r *http.Request) {
	f.completionCalls.Add(1)

	if status := int(f.completionStatus.Load()); status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"error":{"message":"forced failure","type":"server_error","code":%d}}`, status)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher := w.(http.Flusher)

	writeChunk := func(content, finish string) {
		chunk := map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion.chunk",
			"model":  "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"delta":         map[string]string{"content": content},
				"finish_reason": nil,
			}},
		}
		if finish != "" {
			chunk["choices"].([]map[string]any)[0]["finish_reason"] = finish
		}
		payload, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	words := strings.SplitAfter(f.answer, " ")
	for _, word := range words {
		writeChunk(word, "")
	}
	writeChunk("", "stop")
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// deterministicEmbedding hashes the text into a fixed 384-dim unit-ish
// vector. Identical texts map to identical vectors, so nearest-neighbour
// ranking is stable.
func deterministicEmbedding(text string) []float32 {
	const dims = 384
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, dims)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed>>33))/float32(1<<31) + 1e-3
	}
	return vec
}
