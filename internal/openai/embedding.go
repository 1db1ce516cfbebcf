// Package openai wraps an OpenAI-compatible embeddings endpoint behind the
// text-encoder interface the RAG engine consumes.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/askfolio/askfolio/internal/domain"
)

const (
	// DefaultEmbeddingModel produces 384-dimensional sentence embeddings.
	DefaultEmbeddingModel = "all-MiniLM-L6-v2"
	// DefaultEmbeddingDimensions is the fixed dimensionality of the index.
	DefaultEmbeddingDimensions = 384
)

// ErrWrongDimensions is returned when the endpoint yields an embedding of
// unexpected dimensionality.
var ErrWrongDimensions = errors.New("embedding has wrong dimensions")

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, text string) ([]float32, error)
}

// Client maps text to fixed-dimension vectors via an embeddings API.
type Client struct {
	api        EmbeddingAPI
	dimensions int
}

// Config configures the embeddings client. BaseURL may point at any
// OpenAI-compatible inference server hosting the sentence-embedding model.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
}

type apiAdapter struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func newAPIAdapter(cfg Config) *apiAdapter {
	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	return &apiAdapter{
		client: openai.NewClientWithConfig(apiCfg),
		model:  openai.EmbeddingModel(model),
	}
}

// CreateEmbeddings calls the embeddings API for a single input text.
func (a *apiAdapter) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: a.model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}

	return resp.Data[0].Embedding, nil
}

// NewClient creates a new embeddings client with the given configuration.
func NewClient(cfg Config) *Client {
	dimensions := cfg.Dimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	return &Client{
		api:        newAPIAdapter(cfg),
		dimensions: dimensions,
	}
}

// Dimensions returns the fixed embedding dimensionality.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// GenerateEmbedding generates an embedding for the given text. Blank input
// fails before any network call.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyEmbeddingInput
	}

	embedding, err := c.api.CreateEmbeddings(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	if len(embedding) != c.dimensions {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrWrongDimensions, c.dimensions, len(embedding))
	}

	return embedding, nil
}
