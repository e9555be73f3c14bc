// Package llm defines the interface the pipeline uses for both schema
// reasoning and answer synthesis, and provides two implementations: an
// offline Echo collaborator for tests and LLM-less deployments, and an
// HTTP-transport client talking to an OpenAI-compatible chat endpoint.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/pgnlq/isaqe/pkg/httputil"
)

// ErrUnsupportedProvider is returned by Build for any provider name other
// than "openai" or the empty string.
var ErrUnsupportedProvider = errors.New("llm: unsupported provider")

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is the request payload handed to a Client: a list of chat messages
// plus any provider-specific fields merged in at the transport layer.
type Prompt struct {
	Messages []Message
}

// Client completes a chat-style prompt and returns the parsed JSON object
// from the model's response.
type Client interface {
	CompleteJSON(ctx context.Context, prompt Prompt) (map[string]any, error)
}

// RetryConfig bounds the HTTP transport's retry behavior.
type RetryConfig struct {
	Attempts       int
	BackoffSeconds float64
}

// Config configures the HTTP-transport client.
type Config struct {
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
	APIKey      string
	Retry       RetryConfig
}

// Build selects an implementation based on cfg.Provider and whether an API
// key is present: an empty key always selects the Echo collaborator,
// matching the deployment convention of running without live LLM access.
func Build(cfg Config, log *zap.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return NewEchoClient(), nil
	}
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIClient(cfg, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
}

// EchoClient is a deterministic, offline stand-in that inspects the shape of
// the last message's JSON content and returns a plausible reasoner- or
// synthesizer-shaped object without calling any model. Tables and columns
// are taken in sorted name order, at most five columns per table.
type EchoClient struct{}

// NewEchoClient builds an EchoClient.
func NewEchoClient() *EchoClient { return &EchoClient{} }

// CompleteJSON implements Client.
func (e *EchoClient) CompleteJSON(_ context.Context, prompt Prompt) (map[string]any, error) {
	if len(prompt.Messages) == 0 {
		return map[string]any{}, nil
	}
	content := prompt.Messages[len(prompt.Messages)-1].Content

	var payload map[string]any
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return map[string]any{}, nil
	}

	if rawSlice, ok := payload["schema_slice"]; ok {
		slice, _ := rawSlice.(map[string]any)
		tables, _ := slice["tables"].(map[string]any)

		tableKeys := make([]string, 0, len(tables))
		for table := range tables {
			tableKeys = append(tableKeys, table)
		}
		sort.Strings(tableKeys)
		schemaContext := make(map[string]any, len(tables))
		for _, table := range tableKeys {
			meta, _ := tables[table].(map[string]any)
			cols, _ := meta["columns"].(map[string]any)
			names := make([]string, 0, len(cols))
			for name := range cols {
				names = append(names, name)
			}
			sort.Strings(names)
			if len(names) > 5 {
				names = names[:5]
			}
			schemaContext[table] = map[string]any{"columns": names}
		}

		fkMap := slice["foreign_keys"]
		if fkMap == nil {
			fkMap = []any{}
		}

		query, _ := payload["query"].(string)
		return map[string]any{
			"query_intent":       query,
			"relevant_tables":    tableKeys,
			"schema_context":     schemaContext,
			"foreign_keys_map":   fkMap,
			"performance_hints":  []any{},
		}, nil
	}

	if rawRows, ok := payload["rows"]; ok {
		rows, _ := rawRows.([]any)
		return map[string]any{
			"response":   fmt.Sprintf("Returned %d rows.", len(rows)),
			"highlights": []any{},
		}, nil
	}

	return payload, nil
}

// OpenAIClient talks to an OpenAI-compatible chat completions endpoint,
// using the teacher's retrying HTTP request helper for transport.
type OpenAIClient struct {
	cfg Config
	log *zap.Logger
}

// NewOpenAIClient builds an OpenAIClient.
func NewOpenAIClient(cfg Config, log *zap.Logger) *OpenAIClient {
	return &OpenAIClient{cfg: cfg, log: log}
}

const chatCompletionsURL = "https://api.openai.com/v1/chat/completions"

type chatCompletionRequest struct {
	Model          string           `json:"model"`
	Messages       []Message        `json:"messages"`
	Temperature    float64          `json:"temperature"`
	MaxTokens      int              `json:"max_tokens"`
	ResponseFormat responseFormat   `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// CompleteJSON implements Client.
func (c *OpenAIClient) CompleteJSON(ctx context.Context, prompt Prompt) (map[string]any, error) {
	reqBody := chatCompletionRequest{
		Model:          c.cfg.Model,
		Messages:       prompt.Messages,
		Temperature:    c.cfg.Temperature,
		MaxTokens:      c.cfg.MaxTokens,
		ResponseFormat: responseFormat{Type: "json_object"},
	}

	cfg := httputil.DefaultRequestConfig("POST", chatCompletionsURL)
	cfg.Headers = map[string][]string{
		"Authorization": {"Bearer " + c.cfg.APIKey},
	}
	cfg.MaxRetries = maxInt(c.cfg.Retry.Attempts, 1)
	cfg.InitialBackoff = time.Duration(c.cfg.Retry.BackoffSeconds * float64(time.Second))
	cfg.MaxBackoff = 5 * time.Second
	if c.log != nil {
		cfg.Logger = zapPrintfLogger{c.log}
	}

	resp, err := httputil.Request(ctx, cfg, reqBody)
	if err != nil {
		return nil, fmt.Errorf("llm: completion request: %w", backoff.Permanent(err))
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("llm: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, errors.New("llm: empty choices in response")
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &result); err != nil {
		return nil, fmt.Errorf("llm: decode message content: %w", err)
	}
	return result, nil
}

type zapPrintfLogger struct{ log *zap.Logger }

func (z zapPrintfLogger) Printf(format string, v ...any) {
	z.log.Sugar().Infof(format, v...)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
