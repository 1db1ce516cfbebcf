package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/askfolio/askfolio/internal/domain"
)

// DefaultTopK is the number of context chunks retrieved per question.
const DefaultTopK = 3

const systemInstruction = "You are a helpful AI assistant answering questions " +
	"about the portfolio owner's background, experience and projects. Use the " +
	"provided context to answer accurately."

// CompletionOptions are the sampling parameters passed to completion clients.
type CompletionOptions struct {
	Temperature float32
	MaxTokens   int
}

// DefaultCompletionOptions mirror the upstream defaults.
func DefaultCompletionOptions() CompletionOptions {
	return CompletionOptions{Temperature: 0.7, MaxTokens: 500}
}

// TokenSink receives completion tokens as they arrive. Reset is invoked
// when a retry or provider fallback restarts the stream from empty output,
// so accumulators can discard tokens from the failed attempt.
type TokenSink interface {
	Reset()
	Token(token string) error
}

// CompletionClient streams a text completion for a prompt. One instance per
// LLM provider; retry and backoff live inside the client, provider fallback
// lives in the Engine.
type CompletionClient interface {
	Provider() string
	StreamCompletion(ctx context.Context, prompt string, opts CompletionOptions, sink TokenSink) error
}

// AnswerStats carries per-answer observability counters. They are logged,
// not part of the output contract.
type AnswerStats struct {
	ChunksRetrieved int
	TokensStreamed  int
	Provider        string
}

// Engine orchestrates the RAG pipeline: encode the question, retrieve
// context from the similarity index, build a grounded prompt and stream the
// completion, falling back from the primary provider to the secondary when
// the primary is unavailable or exhausts its retries.
type Engine struct {
	encoder EmbeddingClient
	index   VectorIndex
	clients []CompletionClient
	topK    int
	opts    CompletionOptions
}

// NewEngine creates a new Engine. Clients are tried in order: the first is
// the primary provider, any further clients are fallbacks.
func NewEngine(encoder EmbeddingClient, index VectorIndex, clients ...CompletionClient) *Engine {
	return &Engine{
		encoder: encoder,
		index:   index,
		clients: clients,
		topK:    DefaultTopK,
		opts:    DefaultCompletionOptions(),
	}
}

// Answer streams the answer for question into sink.
//
// Validation happens before any network call. A failing index search
// degrades to an empty context rather than failing the answer; validation
// errors from the search are surfaced. When every configured provider
// fails, the returned error matches domain.ErrAllProvidersExhausted and
// wraps the last provider failure.
func (e *Engine) Answer(ctx context.Context, question string, sink TokenSink) (*AnswerStats, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.ErrEmptyQuestion
	}
	if len(e.clients) == 0 {
		return nil, domain.ErrProviderUnavailable
	}

	embedding, err := e.encoder.GenerateEmbedding(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	var contextTexts []string
	var searchErr error
	results, err := e.index.Search(ctx, embedding, e.topK)
	switch {
	case err == nil:
		contextTexts = make([]string, 0, len(results))
		for _, r := range results {
			contextTexts = append(contextTexts, r.Text)
		}
	case errors.Is(err, domain.ErrInvalidK), errors.Is(err, domain.ErrDimensionMismatch):
		return nil, err
	default:
		// A contextless answer beats no answer; indexing paths fail loudly
		// instead.
		log.Printf("index search failed, answering without context: %v", err)
		searchErr = err
	}

	prompt := BuildPrompt(question, contextTexts)

	counter := &countingSink{inner: sink}
	var lastErr error
	for i, client := range e.clients {
		if i > 0 {
			log.Printf("falling back to provider %s: %v", client.Provider(), lastErr)
			counter.Reset()
		}

		err := client.StreamCompletion(ctx, prompt, e.opts, counter)
		if err == nil {
			stats := &AnswerStats{
				ChunksRetrieved: len(contextTexts),
				TokensStreamed:  counter.count,
				Provider:        client.Provider(),
			}
			log.Printf("answer complete: provider=%s chunks=%d tokens=%d",
				stats.Provider, stats.ChunksRetrieved, stats.TokensStreamed)
			return stats, nil
		}
		if ctx.Err() != nil {
			// Caller abandoned the stream; no fallback after cancellation.
			return nil, ctx.Err()
		}
		lastErr = err
	}

	cause := lastErr
	if searchErr != nil {
		cause = fmt.Errorf("%w (no context available: %v)", lastErr, searchErr)
	}
	return nil, domain.NewDomainErrorWithCause(
		domain.ErrCodeProvidersExhausted,
		domain.ErrAllProvidersExhausted.Message,
		cause,
	)
}

// BuildPrompt assembles the grounded prompt: system instruction, numbered
// context enumeration in descending-similarity order, raw question. An
// empty context produces an empty enumeration, which is valid.
func BuildPrompt(question string, contextTexts []string) string {
	var contextSection strings.Builder
	for i, text := range contextTexts {
		if i > 0 {
			contextSection.WriteString("\n")
		}
		fmt.Fprintf(&contextSection, "[%d] %s", i+1, text)
	}

	return fmt.Sprintf("System: %s\n\nContext:\n%s\n\nQuestion: %s",
		systemInstruction, contextSection.String(), question)
}

// countingSink forwards tokens while tracking how many survived resets.
type countingSink struct {
	inner TokenSink
	count int
}

func (s *countingSink) Reset() {
	s.count = 0
	s.inner.Reset()
}

func (s *countingSink) Token(token string) error {
	if err := s.inner.Token(token); err != nil {
		return err
	}
	s.count++
	return nil
}
