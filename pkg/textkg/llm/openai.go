package llm

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	tkerrors "github.com/randalmurphal/textkg/pkg/textkg/errors"
)

// OpenAI is a Client backed by an OpenAI-compatible chat completions
// endpoint. Any provider speaking the protocol works via WithBaseURL.
type OpenAI struct {
	client      *openai.Client
	model       string
	temperature float64
	maxTokens   int
}

// OpenAIOption configures the OpenAI client.
type OpenAIOption func(*openaiSettings)

type openaiSettings struct {
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	httpClient  *http.Client
}

// WithBaseURL points the client at an alternate endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(s *openaiSettings) { s.baseURL = url }
}

// WithModel sets the default model.
func WithModel(model string) OpenAIOption {
	return func(s *openaiSettings) { s.model = model }
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) OpenAIOption {
	return func(s *openaiSettings) { s.temperature = t }
}

// WithMaxTokens sets the default completion token limit.
func WithMaxTokens(n int) OpenAIOption {
	return func(s *openaiSettings) { s.maxTokens = n }
}

// WithTimeout sets the per-call HTTP timeout.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(s *openaiSettings) { s.timeout = d }
}

// WithHTTPClient overrides the HTTP client entirely.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(s *openaiSettings) { s.httpClient = c }
}

// NewOpenAI creates an OpenAI-compatible client.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAI {
	s := openaiSettings{
		model:       "gpt-4o-mini",
		temperature: 0.1,
		maxTokens:   4000,
		timeout:     60 * time.Second,
	}
	for _, opt := range opts {
		opt(&s)
	}

	cfg := openai.DefaultConfig(apiKey)
	if s.baseURL != "" {
		cfg.BaseURL = s.baseURL
	}
	if s.httpClient != nil {
		cfg.HTTPClient = s.httpClient
	} else {
		cfg.HTTPClient = &http.Client{Timeout: s.timeout}
	}

	return &OpenAI{
		client:      openai.NewClientWithConfig(cfg),
		model:       s.model,
		temperature: s.temperature,
		maxTokens:   s.maxTokens,
	}
}

// Complete implements Client.
func (o *OpenAI) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}
	temperature := o.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = o.maxTokens
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	apiReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: wireTemperature(temperature),
		MaxTokens:   maxTokens,
	}
	if req.ForceJSON {
		apiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		return nil, translateError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &tkerrors.APIError{
			StatusCode: http.StatusOK,
			Message:    "response contained no choices",
		}
	}

	choice := resp.Choices[0]
	return &CompletionResponse{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		Duration:     time.Since(start),
		Usage: TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}

// wireTemperature maps a temperature into go-openai's request field,
// which drops zero values from the wire request entirely, silently
// reinstating the provider default. The smallest positive float stands
// in for an exact zero.
func wireTemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

// translateError maps provider errors into the pipeline taxonomy so
// the retry layer can categorize them.
func translateError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = err.Error()
		}
		return &tkerrors.APIError{
			StatusCode: apiErr.HTTPStatusCode,
			Message:    msg,
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &tkerrors.TimeoutError{Operation: "chat completion"}
	}
	return err
}
