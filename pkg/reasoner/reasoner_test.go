package reasoner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgnlq/isaqe/pkg/llm"
	"github.com/pgnlq/isaqe/pkg/model"
	"github.com/pgnlq/isaqe/pkg/prompts"
)

const reasonerSchemaJSON = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["query_intent", "relevant_tables", "schema_context", "foreign_keys_map"],
	"properties": {
		"query_intent": {"type": "string"},
		"relevant_tables": {"type": "array"},
		"schema_context": {"type": "object"},
		"foreign_keys_map": {"type": "array"},
		"performance_hints": {"type": "array"}
	}
}`

const synthesizerSchemaJSON = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["response"],
	"properties": {"response": {"type": "string"}}
}`

func fixtureResources(t *testing.T) *prompts.Resources {
	t.Helper()
	dir := t.TempDir()

	examplesPath := filepath.Join(dir, "examples.json")
	require.NoError(t, os.WriteFile(examplesPath, []byte(`{"reasoner_examples": [], "synthesizer_examples": []}`), 0o644))

	reasonerPath := filepath.Join(dir, "reasoner.schema.json")
	require.NoError(t, os.WriteFile(reasonerPath, []byte(reasonerSchemaJSON), 0o644))

	synthesizerPath := filepath.Join(dir, "synthesizer.schema.json")
	require.NoError(t, os.WriteFile(synthesizerPath, []byte(synthesizerSchemaJSON), 0o644))

	res, err := prompts.Load(examplesPath, reasonerPath, synthesizerPath)
	require.NoError(t, err)
	return res
}

func sliceFixture() model.SchemaSlice {
	return model.SchemaSlice{
		Tables: map[string]model.TableMeta{
			"public.customers": {
				Schema: "public", Name: "customers",
				Columns: map[string]model.ColumnMeta{"id": {}, "status": {}},
			},
		},
	}
}

func TestReasonWithEchoClientStaysInBounds(t *testing.T) {
	res := fixtureResources(t)
	slice := sliceFixture()

	out, err := Reason(context.Background(), llm.NewEchoClient(), res, "show active customers", slice)
	require.NoError(t, err)
	assert.Contains(t, out.RelevantTables, "public.customers")
}

func TestEnforceSchemaBoundsRejectsUnknownTable(t *testing.T) {
	slice := sliceFixture()
	out := model.ReasonerOutput{RelevantTables: []string{"public.orders"}}
	err := enforceSchemaBounds(out, slice)
	require.ErrorIs(t, err, ErrOutOfBounds)
}

func TestEnforceSchemaBoundsRejectsUnknownColumn(t *testing.T) {
	slice := sliceFixture()
	out := model.ReasonerOutput{
		SchemaContext: map[string]model.TableColumnsEntry{
			"public.customers": {Columns: []string{"does_not_exist"}},
		},
	}
	err := enforceSchemaBounds(out, slice)
	require.ErrorIs(t, err, ErrOutOfBounds)
}
