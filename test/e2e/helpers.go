//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/askfolio/askfolio/internal/api/handlers"
	"github.com/askfolio/askfolio/internal/index/pgvector"
	"github.com/askfolio/askfolio/internal/llm"
	"github.com/askfolio/askfolio/internal/openai"
	"github.com/askfolio/askfolio/internal/profile"
	"github.com/askfolio/askfolio/internal/repository"
	"github.com/askfolio/askfolio/internal/server"
	"github.com/askfolio/askfolio/internal/service"
	"github.com/askfolio/askfolio/internal/testutil"
)

const testProfileJSON = `{
	"personal": {
		"name": "Jane Smith",
		"location": "Berlin, Germany, relocating between the Kreuzberg and Mitte districts depending on the season",
		"email": "jane.smith@example.com",
		"linkedin": "https://linkedin.com/in/janesmith",
		"github": "https://github.com/janesmith"
	},
	"education": {
		"degree": "BSc Computer Science",
		"institution": "Technical University of Berlin",
		"cgpa": "3.8",
		"expected_graduation": "2025",
		"relevant_coursework": ["Distributed Systems", "Machine Learning", "Databases", "Operating Systems", "Computer Networks", "Algorithms and Data Structures"]
	},
	"projects": [{
		"name": "AskFolio",
		"description": "A retrieval-augmented question answering backend for a personal portfolio site. Visitors ask free-form questions and receive streamed answers grounded in the owner's resume, with context retrieved from a vector index over profile chunks.",
		"technologies": ["Go", "pgvector", "PostgreSQL"]
	}]
}`

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	Pool         *pgxpool.Pool
	Indexer      *service.Indexer
	Index        *pgvector.Index
	ServerURL    string
	ServerCloser func()
	Primary      *FakeLLMServer
	Secondary    *FakeLLMServer
	HTTPClient   *http.Client
	profileDir   string
}

// SetupE2EEnv creates a full E2E test environment: a pgvector container,
// two fake OpenAI-compatible upstreams serving embeddings and streamed
// completions, and the real router wired on top through the real
// completion clients.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	primary := NewFakeLLMServer("primary answer about Jane Smith.")
	secondary := NewFakeLLMServer("secondary answer about Jane Smith.")

	dir, err := os.MkdirTemp("", "askfolio-e2e-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	profilePath := filepath.Join(dir, "profile.json")
	if err := os.WriteFile(profilePath, []byte(testProfileJSON), 0o600); err != nil {
		t.Fatalf("failed to write profile: %v", err)
	}

	encoder := openai.NewClient(openai.Config{
		BaseURL: primary.URL() + "/v1",
		APIKey:  "test-key",
	})
	index := pgvector.New(pool, encoder.Dimensions())
	loader := profile.NewFileLoader(profilePath)
	indexer := service.NewIndexer(loader, encoder, index)

	report := indexer.Reindex(ctx, false)
	if !report.Success {
		t.Fatalf("startup indexing failed: %s", report.Message)
	}

	engine := service.NewEngine(encoder, index,
		llm.NewClient(llm.Config{
			Provider: "primary",
			BaseURL:  primary.URL() + "/v1",
			APIKey:   "test-key",
			Model:    "test-model",
			Timeout:  10 * time.Second,
		}),
		llm.NewClient(llm.Config{
			Provider: "secondary",
			BaseURL:  secondary.URL() + "/v1",
			APIKey:   "test-key",
			Model:    "test-model",
			Timeout:  10 * time.Second,
		}),
	)
	transcripts := repository.NewTranscriptRepository(pool)

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}
	serverURL, closer := startServer(t, engine, transcripts, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		Pool:         pool,
		Indexer:      indexer,
		Index:        index,
		ServerURL:    serverURL,
		ServerCloser: closer,
		Primary:      primary,
		Secondary:    secondary,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		profileDir:   dir,
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Primary != nil {
		e.Primary.Close()
	}
	if e.Secondary != nil {
		e.Secondary.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.profileDir != "" {
		os.RemoveAll(e.profileDir)
	}
}

// PostChat posts a question and returns the raw SSE body.
func (e *E2ETestEnv) PostChat(sessionID, question string) (int, string, error) {
	payload, _ := json.Marshal(map[string]string{
		"question":   question,
		"session_id": sessionID,
	})
	resp, err := e.HTTPClient.Post(e.ServerURL+"/chat", "application/json", bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", err
	}
	return resp.StatusCode, string(body), nil
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodDelete, path)
}

func (e *E2ETestEnv) doRequest(method, path string) (*APIResponse, error) {
	req, err := http.NewRequest(method, e.ServerURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}
	return &apiResp, nil
}

// SSETokens extracts the token payloads from an SSE body.
func SSETokens(body string) (tokens []string, done bool) {
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			done = true
			continue
		}
		var ev struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal([]byte(data), &ev); err == nil && ev.Token != "" {
			tokens = append(tokens, ev.Token)
		}
	}
	return tokens, done
}

func startServer(t *testing.T, engine handlers.AnswerStreamer, transcripts handlers.TranscriptStore, port int) (string, func()) {
	router := server.NewRouter(server.RouterConfig{
		ChatHandler:    handlers.NewChatHandler(engine, transcripts),
		AllowedOrigins: []string{"*"},
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
