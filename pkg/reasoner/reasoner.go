// Package reasoner builds the schema-reasoning LLM call and enforces that
// its structured output never references anything outside the schema slice
// it was given.
package reasoner

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
var ErrInvalidSchema = errors.New("reasoner: response failed schema validation")

// ErrOutOfBounds is returned when the LLM's response references tables or
// columns that were not present in the schema slice it was given.
var ErrOutOfBounds = errors.New("reasoner: response references tables or columns outside schema slice")

const systemDirective = "You are a schema reasoning engine. Respond with strict JSON only."

// Reason asks the LLM collaborator to map query against slice, validates the
// structural shape, and enforces schema bounds on the result.
func Reason(ctx context.Context, client llm.Client, res *prompts.Resources, query string, slice model.SchemaSlice) (model.ReasonerOutput, error) {
	messages := buildMessages(res, query, slice)

	raw, err := client.CompleteJSON(ctx, llm.Prompt{Messages: messages})
	if err != nil {
		return model.ReasonerOutput{}, fmt.Errorf("reasoner: complete: %w", err)
	}

	if err := res.ReasonerSchema.Validate(raw); err != nil {
		return model.ReasonerOutput{}, fmt.Errorf("%w: %s", ErrInvalidSchema, err)
	}

	out, err := decodeOutput(raw)
	if err != nil {
		return model.ReasonerOutput{}, fmt.Errorf("%w: %s", ErrInvalidSchema, err)
	}

	if err := enforceSchemaBounds(out, slice); err != nil {
		return model.ReasonerOutput{}, err
	}

	return out, nil
}

func buildMessages(res *prompts.Resources, query string, slice model.SchemaSlice) []llm.Message {
	messages := []llm.Message{{Role: "system", Content: systemDirective}}

	for _, example := range res.ReasonerExamples {
		userTurn, _ := json.Marshal(map[string]any{
			"query":        example.UserQuery,
			"schema_slice": example.SchemaSlice,
		})
		assistantTurn, _ := json.Marshal(example.ExpectedOutput)
		messages = append(messages,
			llm.Message{Role: "user", Content: string(userTurn)},
			llm.Message{Role: "assistant", Content: string(assistantTurn)},
		)
	}

	finalTurn, _ := json.Marshal(map[string]any{
		"query":        query,
		"schema_slice": slice,
	})
	messages = append(messages, llm.Message{Role: "user", Content: string(finalTurn)})

	return messages
}

func decodeOutput(raw map[string]any) (model.ReasonerOutput, error) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return model.ReasonerOutput{}, err
	}
	var out model.ReasonerOutput
	if err := json.Unmarshal(encoded, &out); err != nil {
		return model.ReasonerOutput{}, err
	}
	return out, nil
}

func enforceSchemaBounds(out model.ReasonerOutput, slice model.SchemaSlice) error {
	for _, table := range out.RelevantTables {
		if _, ok := slice.Tables[table]; !ok {
			return fmt.Errorf("%w: relevant table %q not in slice", ErrOutOfBounds, table)
		}
	}

	for table, entry := range out.SchemaContext {
		tm, ok := slice.Tables[table]
		if !ok {
			return fmt.Errorf("%w: schema_context table %q not in slice", ErrOutOfBounds, table)
		}
		for _, col := range entry.Columns {
			if _, ok := tm.Columns[col]; !ok {
				return fmt.Errorf("%w: column %q not in table %q", ErrOutOfBounds, col, table)
			}
		}
	}

	return nil
}
