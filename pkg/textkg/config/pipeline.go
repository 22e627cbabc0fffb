package config

import (
	"fmt"
	"time"

	tkerrors "github.com/randalmurphal/textkg/pkg/textkg/errors"
)

// Pipeline is the typed configuration for an extraction run.
type Pipeline struct {
	// Generation endpoint
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration

	// Retry policy for generation calls
	MaxRetries int
	RetryDelay time.Duration

	// Scheduling
	Workers    int
	BufferSize int // 0 means max(2 x Workers, 8)

	// Chunking
	ChunkSize    int
	ChunkOverlap int

	// ForceJSON requests a JSON response format from the provider.
	ForceJSON bool
}

// DefaultPipeline returns the standard configuration.
func DefaultPipeline() Pipeline {
	return Pipeline{
		Model:        "gpt-4o-mini",
		Temperature:  0.1,
		MaxTokens:    4000,
		Timeout:      60 * time.Second,
		MaxRetries:   3,
		RetryDelay:   1 * time.Second,
		Workers:      4,
		ChunkSize:    3000,
		ChunkOverlap: 200,
		ForceJSON:    true,
	}
}

// PipelineFrom builds a Pipeline from a generic Config, filling gaps
// with defaults.
func PipelineFrom(cfg Config) Pipeline {
	def := DefaultPipeline()
	return Pipeline{
		APIKey:       cfg.String("api_key", def.APIKey),
		BaseURL:      cfg.String("base_url", def.BaseURL),
		Model:        cfg.String("model", def.Model),
		Temperature:  cfg.Float("temperature", def.Temperature),
		MaxTokens:    cfg.Int("max_tokens", def.MaxTokens),
		Timeout:      cfg.Duration("timeout", def.Timeout),
		MaxRetries:   cfg.Int("max_retries", def.MaxRetries),
		RetryDelay:   cfg.Duration("retry_delay", def.RetryDelay),
		Workers:      cfg.Int("workers", def.Workers),
		BufferSize:   cfg.Int("buffer_size", def.BufferSize),
		ChunkSize:    cfg.Int("chunk_size", def.ChunkSize),
		ChunkOverlap: cfg.Int("chunk_overlap", def.ChunkOverlap),
		ForceJSON:    cfg.Bool("force_json", def.ForceJSON),
	}
}

// Validate reports the first structural problem with the configuration.
func (p Pipeline) Validate() error {
	if p.Workers < 1 {
		return &tkerrors.ValidationError{Field: "workers", Message: "must be at least 1"}
	}
	if p.BufferSize < 0 {
		return &tkerrors.ValidationError{Field: "buffer_size", Message: "must not be negative"}
	}
	if p.ChunkSize < 1 {
		return &tkerrors.ValidationError{Field: "chunk_size", Message: "must be at least 1"}
	}
	if p.ChunkOverlap < 0 || p.ChunkOverlap >= p.ChunkSize {
		return &tkerrors.ValidationError{
			Field:   "chunk_overlap",
			Message: fmt.Sprintf("must be in [0, chunk_size); got %d with chunk_size %d", p.ChunkOverlap, p.ChunkSize),
		}
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return &tkerrors.ValidationError{Field: "temperature", Message: "must be in [0, 2]"}
	}
	if p.MaxRetries < 1 {
		return &tkerrors.ValidationError{Field: "max_retries", Message: "must be at least 1"}
	}
	return nil
}

// RetryConfig derives the retry policy for generation calls.
func (p Pipeline) RetryConfig() tkerrors.RetryConfig {
	cfg := tkerrors.DefaultRetry
	cfg.MaxAttempts = p.MaxRetries
	if p.RetryDelay > 0 {
		cfg.InitialBackoff = p.RetryDelay
	}
	return cfg
}
