package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reasonerSchemaJSON = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["query_intent", "relevant_tables", "schema_context", "foreign_keys_map"],
	"properties": {
		"query_intent": {"type": "string"},
		"relevant_tables": {"type": "array", "items": {"type": "string"}},
		"schema_context": {"type": "object"},
		"foreign_keys_map": {"type": "array"},
		"performance_hints": {"type": "array"}
	}
}`

const synthesizerSchemaJSON = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["response"],
	"properties": {
		"response": {"type": "string"},
		"highlights": {"type": "array"}
	}
}`

const examplesJSON = `{
	"reasoner_examples": [
		{
			"user_query": "show active customers",
			"schema_slice": {"tables": {"public.customers": {"columns": {"status": {}}}}},
			"expected_output": {"query_intent": "show active customers", "relevant_tables": ["public.customers"], "schema_context": {}, "foreign_keys_map": []}
		}
	],
	"synthesizer_examples": [
		{
			"user_query": "show active customers",
			"sql": "SELECT * FROM public.customers LIMIT 10",
			"rows": [{"id": 1}],
			"metadata": {"rows_returned": 1},
			"expected_output": "Returned 1 row."
		}
	]
}`

func writeFixtures(t *testing.T) (examplesPath, reasonerPath, synthesizerPath string) {
	t.Helper()
	dir := t.TempDir()

	examplesPath = filepath.Join(dir, "examples.json")
	require.NoError(t, os.WriteFile(examplesPath, []byte(examplesJSON), 0o644))

	reasonerPath = filepath.Join(dir, "reasoner.schema.json")
	require.NoError(t, os.WriteFile(reasonerPath, []byte(reasonerSchemaJSON), 0o644))

	synthesizerPath = filepath.Join(dir, "synthesizer.schema.json")
	require.NoError(t, os.WriteFile(synthesizerPath, []byte(synthesizerSchemaJSON), 0o644))

	return examplesPath, reasonerPath, synthesizerPath
}

func TestLoadParsesExamplesAndCompilesSchemas(t *testing.T) {
	examplesPath, reasonerPath, synthesizerPath := writeFixtures(t)

	res, err := Load(examplesPath, reasonerPath, synthesizerPath)
	require.NoError(t, err)

	require.Len(t, res.ReasonerExamples, 1)
	assert.Equal(t, "show active customers", res.ReasonerExamples[0].UserQuery)
	require.Len(t, res.SynthesizerExamples, 1)
	assert.Equal(t, "Returned 1 row.", res.SynthesizerExamples[0].ExpectedOutput)

	require.NoError(t, res.ReasonerSchema.Validate(map[string]any{
		"query_intent":      "x",
		"relevant_tables":   []any{},
		"schema_context":    map[string]any{},
		"foreign_keys_map":  []any{},
		"performance_hints": []any{},
	}))

	assert.Error(t, res.SynthesizerSchema.Validate(map[string]any{}))
}

func TestLoadMissingExamplesFile(t *testing.T) {
	_, reasonerPath, synthesizerPath := writeFixtures(t)
	_, err := Load("/nonexistent/examples.json", reasonerPath, synthesizerPath)
	assert.Error(t, err)
}
