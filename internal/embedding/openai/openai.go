package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"packrag/internal/domain"
)

var _ domain.Embedder = (*Client)(nil)

// knownDimensions maps embedding models to their output size.
var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
type Client struct {
	client     *goopenai.Client
	model      string
	timeout    time.Duration
	dimension  int
	maxRetries int
	sleep      func(time.Duration)
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	// Dimension overrides the model's known output size. Zero means use the
	// known size, or learn it from the first response.
	Dimension int
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	oc := goopenai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: t}

	dim := cfg.Dimension
	if dim == 0 {
		dim = knownDimensions[cfg.Model]
	}
	return &Client{
		client:     goopenai.NewClientWithConfig(oc),
		model:      cfg.Model,
		timeout:    t,
		dimension:  dim,
		maxRetries: 5,
		sleep:      time.Sleep,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Prepare is not required for remote embedding.
func (c *Client) Prepare(corpus []string) error { return nil }

// Dimension returns the dimensionality of the produced embedding vectors.
// It is zero for unknown models until the first successful Embed.
func (c *Client) Dimension() int { return c.dimension }

// Embed returns an L2-normalized embedding vector for the given text.
// Rate limiting and server errors are retried with exponential backoff.
func (c *Client) Embed(text string) ([]float64, error) {
	if text == "" {
		return nil, errors.New("cannot embed empty text")
	}
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		v, err := c.embedOnce(text)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !retryable(err) || attempt == c.maxRetries {
			break
		}
		c.sleep(retryDelay(attempt))
	}
	return nil, fmt.Errorf("openai embeddings failed: %w", lastErr)
}

func (c *Client) embedOnce(text string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	resp, err := c.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: []string{text},
		Model: goopenai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("no embedding returned")
	}
	raw := resp.Data[0].Embedding
	if c.dimension == 0 {
		c.dimension = len(raw)
	}
	if len(raw) != c.dimension {
		return nil, fmt.Errorf("%w: model returned %d values, expected %d", domain.ErrDimensionMismatch, len(raw), c.dimension)
	}
	v := make([]float64, len(raw))
	for i, x := range raw {
		v[i] = float64(x)
	}
	l2normalize(v)
	return v, nil
}

func retryable(err error) bool {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return !errors.Is(err, domain.ErrDimensionMismatch)
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// exponential backoff capped at 5s
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func l2normalize(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] *= inv
	}
}
