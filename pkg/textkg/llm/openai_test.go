package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	tkerrors "github.com/randalmurphal/textkg/pkg/textkg/errors"
	"github.com/randalmurphal/textkg/pkg/textkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// completionServer returns an httptest server speaking just enough of
// the chat completions protocol, capturing the last request body.
func completionServer(t *testing.T, status int, content string, captured *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if captured != nil {
			*captured = body
		}

		if status != http.StatusOK {
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "synthetic failure", "type": "server_error"},
			})
			return
		}

		json.NewEncoder(w).Encode(map[string]any{
			"id":    "chatcmpl-1",
			"model": "gpt-4o-mini",
			"choices": []map[string]any{
				{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": content},
				},
			},
			"usage": map[string]any{
				"prompt_tokens":     12,
				"completion_tokens": 34,
				"total_tokens":      46,
			},
		})
	}))
}

// TestOpenAIComplete verifies a full request/response round trip.
func TestOpenAIComplete(t *testing.T) {
	var captured map[string]any
	srv := completionServer(t, http.StatusOK, `{"entities": []}`, &captured)
	defer srv.Close()

	client := llm.NewOpenAI("test-key",
		llm.WithBaseURL(srv.URL+"/v1"),
		llm.WithModel("gpt-4o-mini"),
		llm.WithMaxTokens(512),
		llm.WithTemperature(0.2),
	)

	resp, err := client.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "extract a graph",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "some text"}},
		ForceJSON:    true,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"entities": []}`, resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 34, resp.Usage.OutputTokens)
	assert.Equal(t, 46, resp.Usage.TotalTokens)
	assert.GreaterOrEqual(t, resp.Duration, time.Duration(0))

	// The system prompt rides as the first message.
	msgs, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	first := msgs[0].(map[string]any)
	assert.Equal(t, "system", first["role"])
	assert.Equal(t, "extract a graph", first["content"])

	format, ok := captured["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_object", format["type"])
}

// TestOpenAIServerError verifies provider failures map into the error
// taxonomy with their status code.
func TestOpenAIServerError(t *testing.T) {
	srv := completionServer(t, http.StatusTooManyRequests, "", nil)
	defer srv.Close()

	client := llm.NewOpenAI("test-key", llm.WithBaseURL(srv.URL+"/v1"))

	_, err := client.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}},
	})
	require.Error(t, err)

	var apiErr *tkerrors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, tkerrors.CategoryTransient, tkerrors.Categorize(err))
}

// TestOpenAIRequestOverrides verifies per-request fields override the
// client defaults.
func TestOpenAIRequestOverrides(t *testing.T) {
	var captured map[string]any
	srv := completionServer(t, http.StatusOK, "ok", &captured)
	defer srv.Close()

	client := llm.NewOpenAI("test-key",
		llm.WithBaseURL(srv.URL+"/v1"),
		llm.WithModel("gpt-4o-mini"),
	)

	_, err := client.Complete(context.Background(), llm.CompletionRequest{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: "x"}},
		Model:     "gpt-4o",
		MaxTokens: 99,
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", captured["model"])
	assert.Equal(t, float64(99), captured["max_tokens"])
}

// TestOpenAITemperatureZero verifies an explicit zero temperature
// reaches the provider instead of falling back to the client default.
func TestOpenAITemperatureZero(t *testing.T) {
	var captured map[string]any
	srv := completionServer(t, http.StatusOK, "ok", &captured)
	defer srv.Close()

	client := llm.NewOpenAI("test-key",
		llm.WithBaseURL(srv.URL+"/v1"),
		llm.WithTemperature(0.7),
	)

	zero := 0.0
	_, err := client.Complete(context.Background(), llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "x"}},
		Temperature: &zero,
	})
	require.NoError(t, err)

	temp, ok := captured["temperature"].(float64)
	require.True(t, ok, "temperature must be present in the request body")
	assert.Less(t, temp, 1e-6)

	// No override: the client default applies.
	_, err = client.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.7, captured["temperature"].(float64), 1e-6)
}
