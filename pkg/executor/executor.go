// Package executor runs sanitized SQL under a bounded timeout and samples
// the result down to a configured row limit.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	pg "github.com/pgnlq/isaqe/pkg/pgx"
	"github.com/pgnlq/isaqe/pkg/model"
)

// ErrTimeout is returned when execution exceeds its deadline.
var ErrTimeout = errors.New("executor: query execution timed out")

// Config controls the default timeout and row sampling.
type Config struct {
	StatementTimeout time.Duration
	SampleLimit      int
}

// Execute runs sql against conn, bounded by cfg.StatementTimeout (overridden
// by timeout when non-zero), and returns at most cfg.SampleLimit rows.
func Execute(ctx context.Context, conn pg.Conn, sql string, cfg Config, timeout time.Duration) (model.ExecutionResult, error) {
	if timeout <= 0 {
		timeout = cfg.StatementTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := conn.Query(ctx, sql)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return model.ExecutionResult{}, ErrTimeout
		}
		return model.ExecutionResult{}, fmt.Errorf("executor: query: %w", err)
	}
	defer rows.Close()

	var all []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return model.ExecutionResult{}, fmt.Errorf("executor: read row: %w", err)
		}
		row := make(map[string]any, len(values))
		for i, fd := range rows.FieldDescriptions() {
			row[string(fd.Name)] = values[i]
		}
		all = append(all, row)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return model.ExecutionResult{}, ErrTimeout
		}
		return model.ExecutionResult{}, fmt.Errorf("executor: iterate rows: %w", err)
	}

	data := all
	if len(data) > cfg.SampleLimit {
		data = data[:cfg.SampleLimit]
	}

	return model.ExecutionResult{
		Status: "success",
		Data:   data,
		Metadata: model.ExecutionMeta{
			RowsReturned: len(data),
			Truncated:    len(all) > len(data),
		},
	}, nil
}
