package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEchoClientEmptyMessagesReturnsEmptyObject(t *testing.T) {
	c := NewEchoClient()
	out, err := c.CompleteJSON(context.Background(), Prompt{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestEchoClientReasonerShapedResponse(t *testing.T) {
	c := NewEchoClient()
	content := `{
		"query": "show active customers",
		"schema_slice": {
			"tables": {
				"public.customers": {"columns": {"id": {}, "status": {}}}
			},
			"foreign_keys": []
		}
	}`
	out, err := c.CompleteJSON(context.Background(), Prompt{Messages: []Message{{Role: "user", Content: content}}})
	require.NoError(t, err)
	assert.Equal(t, "show active customers", out["query_intent"])
	tables, ok := out["relevant_tables"].([]string)
	require.True(t, ok)
	assert.Contains(t, tables, "public.customers")
}

func TestEchoClientSynthesizerShapedResponse(t *testing.T) {
	c := NewEchoClient()
	content := `{"query": "q", "sql": "SELECT 1", "rows": [{"id": 1}, {"id": 2}], "metadata": {}}`
	out, err := c.CompleteJSON(context.Background(), Prompt{Messages: []Message{{Role: "user", Content: content}}})
	require.NoError(t, err)
	assert.Equal(t, "Returned 2 rows.", out["response"])
}

func TestBuildSelectsEchoClientWithoutAPIKey(t *testing.T) {
	c, err := Build(Config{Provider: "openai"}, zap.NewNop())
	require.NoError(t, err)
	_, ok := c.(*EchoClient)
	assert.True(t, ok)
}

func TestBuildRejectsUnsupportedProvider(t *testing.T) {
	_, err := Build(Config{Provider: "anthropic", APIKey: "k"}, zap.NewNop())
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}
