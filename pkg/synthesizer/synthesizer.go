// Package synthesizer turns a SQL execution result into a human-readable
// answer using the LLM collaborator, constrained to only the rows it was
// given.
package synthesizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pgnlq/isaqe/pkg/llm"
	"github.com/pgnlq/isaqe/pkg/model"
	"github.com/pgnlq/isaqe/pkg/prompts"
)

// ErrInvalidSchema is returned when the LLM's response fails structural
// JSON-schema validation.
var ErrInvalidSchema = errors.New("synthesizer: response failed schema validation")

const systemDirective = "You produce human friendly summaries using only provided rows. Output JSON only."

// Synthesize asks the LLM collaborator to summarize result in response to
// query and sql, and returns the response text.
func Synthesize(ctx context.Context, client llm.Client, res *prompts.Resources, query, sql string, result model.ExecutionResult) (string, error) {
	messages := buildMessages(res, query, sql, result)

	raw, err := client.CompleteJSON(ctx, llm.Prompt{Messages: messages})
	if err != nil {
		return "", fmt.Errorf("synthesizer: complete: %w", err)
	}

	if err := res.SynthesizerSchema.Validate(raw); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidSchema, err)
	}

	response, _ := raw["response"].(string)
	return response, nil
}

func buildMessages(res *prompts.Resources, query, sql string, result model.ExecutionResult) []llm.Message {
	messages := []llm.Message{{Role: "system", Content: systemDirective}}

	for _, example := range res.SynthesizerExamples {
		userTurn, _ := json.Marshal(map[string]any{
			"query":    example.UserQuery,
			"sql":      example.SQL,
			"rows":     example.Rows,
			"metadata": example.Metadata,
		})
		assistantTurn, _ := json.Marshal(map[string]any{
			"response":   example.ExpectedOutput,
			"highlights": []any{},
		})
		messages = append(messages,
			llm.Message{Role: "user", Content: string(userTurn)},
			llm.Message{Role: "assistant", Content: string(assistantTurn)},
		)
	}

	finalTurn, _ := json.Marshal(map[string]any{
		"query":    query,
		"sql":      sql,
		"rows":     result.Data,
		"metadata": result.Metadata,
	})
	messages = append(messages, llm.Message{Role: "user", Content: string(finalTurn)})

	return messages
}
