// Package prompts loads the few-shot examples and JSON Schemas used to
// constrain the reasoner and synthesizer stages, compiling the schemas once
// at startup for reuse across requests.
package prompts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ReasonerExample is one few-shot training pair for the reasoner stage.
type ReasonerExample struct {
	UserQuery      string         `json:"user_query"`
	SchemaSlice    map[string]any `json:"schema_slice"`
	ExpectedOutput map[string]any `json:"expected_output"`
}

// SynthesizerExample is one few-shot training pair for the synthesis stage.
type SynthesizerExample struct {
	UserQuery      string           `json:"user_query"`
	SQL             string           `json:"sql"`
	Rows           []map[string]any `json:"rows"`
	Metadata       map[string]any   `json:"metadata"`
	ExpectedOutput string           `json:"expected_output"`
}

type examplesFile struct {
	ReasonerExamples     []ReasonerExample    `json:"reasoner_examples"`
	SynthesizerExamples  []SynthesizerExample `json:"synthesizer_examples"`
}

// Resources bundles compiled schemas and few-shot examples for both LLM
// stages.
type Resources struct {
	ReasonerExamples    []ReasonerExample
	SynthesizerExamples []SynthesizerExample

	ReasonerSchema    *jsonschema.Schema
	SynthesizerSchema *jsonschema.Schema
}

// Load reads the few-shot examples bundle and compiles the two Draft-7
// schemas named by reasonerSchemaPath and synthesizerSchemaPath. Relative
// paths are resolved against the current working directory.
func Load(examplesPath, reasonerSchemaPath, synthesizerSchemaPath string) (*Resources, error) {
	raw, err := os.ReadFile(resolvePath(examplesPath))
	if err != nil {
		return nil, fmt.Errorf("prompts: read examples: %w", err)
	}

	var ex examplesFile
	if err := json.Unmarshal(raw, &ex); err != nil {
		return nil, fmt.Errorf("prompts: decode examples: %w", err)
	}

	reasonerSchema, err := compileSchema(resolvePath(reasonerSchemaPath))
	if err != nil {
		return nil, fmt.Errorf("prompts: reasoner schema: %w", err)
	}

	synthesizerSchema, err := compileSchema(resolvePath(synthesizerSchemaPath))
	if err != nil {
		return nil, fmt.Errorf("prompts: synthesizer schema: %w", err)
	}

	return &Resources{
		ReasonerExamples:    ex.ReasonerExamples,
		SynthesizerExamples: ex.SynthesizerExamples,
		ReasonerSchema:      reasonerSchema,
		SynthesizerSchema:   synthesizerSchema,
	}, nil
}

func compileSchema(path string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	return c.Compile(path)
}

func resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	wd, err := os.Getwd()
	if err != nil {
		return p
	}
	return filepath.Join(wd, p)
}
