// Package model holds the data types shared across pipeline stages: the
// schema snapshot, its request-scoped slice, and the reasoner/generator/
// executor intermediate results.
package model

import "time"

// Request is the inbound natural-language query.
type Request struct {
	Query         string `json:"query"`
	UserID        string `json:"user_id,omitempty"`
	RefreshSchema bool   `json:"refresh_schema"`
}

// Response is the pipeline's final answer to a Request.
type Response struct {
	Answer   string           `json:"answer"`
	SQL      string           `json:"sql"`
	Rows     []map[string]any `json:"rows"`
	Metadata map[string]any   `json:"metadata"`
}

// ColumnMeta describes one column of a table.
type ColumnMeta struct {
	DataType     string `json:"data_type"`
	DefaultValue string `json:"default_value,omitempty"`
	Description  string `json:"description,omitempty"`
	IsNotNull    bool   `json:"is_not_null"`
}

// TableMeta describes one table, including its columns.
type TableMeta struct {
	Schema      string                `json:"schema"`
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	RowEstimate int64                 `json:"row_estimate"`
	SizeBytes   int64                 `json:"size_bytes"`
	Columns     map[string]ColumnMeta `json:"columns"`
}

// ForeignKey is one pg_constraint row of type 'f'.
type ForeignKey struct {
	Constraint   string `json:"constraint"`
	Definition   string `json:"definition"`
	Table        string `json:"table"`
	ForeignTable string `json:"foreign_table"`
}

// Index is one index definition on a table.
type Index struct {
	Index      string `json:"index"`
	Definition string `json:"definition"`
	IsUnique   bool   `json:"is_unique"`
}

// TableStats is the row/size estimate for one table.
type TableStats struct {
	RowEstimate int64 `json:"row_estimate"`
	SizeBytes   int64 `json:"size_bytes"`
}

// SchemaSnapshot is a point-in-time materialized view of database metadata.
// It is immutable once published: a refresh produces a new value rather
// than mutating an existing one.
type SchemaSnapshot struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Tables      map[string]TableMeta   `json:"tables"`
	ForeignKeys []ForeignKey           `json:"foreign_keys"`
	Indexes     map[string][]Index     `json:"indexes"`
	TableStats  map[string]TableStats  `json:"table_stats"`
}

// SchemaSlice is the request-scoped, byte-budgeted subset of a snapshot
// handed to the reasoner. ForeignKeys is flattened to
// [left_table, left_col, right_table, right_col] tuples.
type SchemaSlice struct {
	Tables      map[string]TableMeta `json:"tables"`
	ForeignKeys [][4]string          `json:"foreign_keys"`
}

// ReasonerOutput is the LLM's structural breakdown of the query against the
// provided schema slice.
type ReasonerOutput struct {
	QueryIntent      string                       `json:"query_intent"`
	RelevantTables   []string                     `json:"relevant_tables"`
	SchemaContext    map[string]TableColumnsEntry `json:"schema_context"`
	ForeignKeysMap   [][4]string                  `json:"foreign_keys_map"`
	PerformanceHints []string                     `json:"performance_hints"`
}

// TableColumnsEntry is the per-table column list inside ReasonerOutput's
// SchemaContext.
type TableColumnsEntry struct {
	Columns []string `json:"columns"`
}

// SQLPlan is one candidate SELECT statement produced by the SQL generator.
type SQLPlan struct {
	SQL          string `json:"sql"`
	Purpose      string `json:"purpose"`
	ExpectedRows string `json:"expected_rows"`
}

// GuardMetrics are the planner figures the guardrail engine extracts from
// EXPLAIN output.
type GuardMetrics struct {
	PlanRows  int64   `json:"plan_rows"`
	PlanWidth int64   `json:"plan_width"`
	TotalCost float64 `json:"total_cost"`
	NodeType  string  `json:"node_type"`
}

// ExecutionResult is the bounded, sampled output of running sanitized SQL.
type ExecutionResult struct {
	Status   string           `json:"status"`
	Data     []map[string]any `json:"data"`
	Metadata ExecutionMeta    `json:"metadata"`
}

// ExecutionMeta reports how many rows were returned and whether the result
// was truncated to the sample limit.
type ExecutionMeta struct {
	RowsReturned int  `json:"rows_returned"`
	Truncated    bool `json:"truncated"`
}
