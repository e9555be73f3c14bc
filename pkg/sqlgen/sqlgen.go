// Package sqlgen composes a candidate SELECT statement from reasoner
// output. Generation is a pure function: no I/O, no randomness.
package sqlgen

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pgnlq/isaqe/pkg/model"
)

// ErrEmpty is returned when the reasoner output names no relevant tables.
var ErrEmpty = errors.New("sqlgen: no relevant tables to generate from")

var (
	lastDaysPattern = regexp.MustCompile(`last (\d+) day`)
	isoDatePattern  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
)

// Config controls the sample LIMIT appended to every generated statement.
type Config struct {
	SampleLimit int
}

// Generate builds the single candidate plan described by spec.md's SQL
// generator component from a reasoner's output.
func Generate(out model.ReasonerOutput, cfg Config) ([]model.SQLPlan, error) {
	if len(out.RelevantTables) == 0 {
		return nil, ErrEmpty
	}

	selectCols := buildSelectColumns(out)
	fromClause, err := buildFromClause(out)
	if err != nil {
		return nil, err
	}
	whereClauses := buildWhereClauses(out.QueryIntent)

	sql := composeSQL(selectCols, fromClause, whereClauses, cfg.SampleLimit)

	return []model.SQLPlan{{
		SQL:          sql,
		Purpose:      out.QueryIntent,
		ExpectedRows: "unknown",
	}}, nil
}

func buildSelectColumns(out model.ReasonerOutput) []string {
	var cols []string
	for _, table := range out.RelevantTables {
		entry, ok := out.SchemaContext[table]
		if !ok {
			continue
		}
		columns := entry.Columns
		if len(columns) > 5 {
			columns = columns[:5]
		}
		for _, col := range columns {
			alias := strings.ReplaceAll(table, ".", "_") + "_" + col
			cols = append(cols, fmt.Sprintf("%s.%s AS %s", table, col, alias))
		}
	}
	if len(cols) == 0 {
		return []string{"*"}
	}
	return cols
}

func buildFromClause(out model.ReasonerOutput) (string, error) {
	if len(out.RelevantTables) == 0 {
		return "", fmt.Errorf("sqlgen: %w", ErrEmpty)
	}

	base := out.RelevantTables[0]
	relevant := make(map[string]bool, len(out.RelevantTables))
	for _, t := range out.RelevantTables {
		relevant[t] = true
	}

	clause := base
	for _, fk := range out.ForeignKeysMap {
		leftTable, leftCol, rightTable, rightCol := fk[0], fk[1], fk[2], fk[3]
		if relevant[leftTable] && relevant[rightTable] {
			clause += fmt.Sprintf(" LEFT JOIN %s ON %s.%s = %s.%s", rightTable, leftTable, leftCol, rightTable, rightCol)
		}
	}
	return clause, nil
}

func buildWhereClauses(intent string) []string {
	lowered := strings.ToLower(intent)
	var clauses []string

	if strings.Contains(lowered, "last") && strings.Contains(lowered, "day") {
		days := 30
		if m := lastDaysPattern.FindStringSubmatch(lowered); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				days = n
			}
		}
		clauses = append(clauses, fmt.Sprintf("created_at >= CURRENT_DATE - INTERVAL '%d days'", days))
	}

	if strings.Contains(lowered, "active") {
		clauses = append(clauses, "status = 'active'")
	}

	if m := isoDatePattern.FindString(lowered); m != "" {
		if parsed, err := time.Parse("2006-01-02", m); err == nil {
			clauses = append(clauses, fmt.Sprintf("created_at >= DATE '%s'", parsed.Format("2006-01-02")))
		}
	}

	return clauses
}

func composeSQL(selectCols []string, fromClause string, whereClauses []string, sampleLimit int) string {
	var b strings.Builder
	b.WriteString("SELECT\n       ")
	b.WriteString(strings.Join(selectCols, ",\n       "))
	b.WriteString("\nFROM ")
	b.WriteString(fromClause)
	if len(whereClauses) > 0 {
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(whereClauses, " AND "))
	}
	b.WriteString(fmt.Sprintf("\nLIMIT %d;", sampleLimit))
	return b.String()
}
