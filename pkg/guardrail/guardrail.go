// Package guardrail runs an EXPLAIN-based pre-execution check against the
// query planner's cost and row estimates, vetoing statements that look
// likely to be expensive or unbounded.
package guardrail

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	pg "github.com/pgnlq/isaqe/pkg/pgx"
	"github.com/pgnlq/isaqe/pkg/model"
)

// Config carries the thresholds used to reject a plan.
type Config struct {
	RowThreshold  int64
	CostThreshold float64
}

// Check runs EXPLAIN (FORMAT JSON) for sql, extracts the planner's metrics,
// and reports whether the statement is allowed to execute. Metrics are
// always returned, even when the verdict is rejection, so callers can audit
// both outcomes.
func Check(ctx context.Context, conn pg.Conn, sql string, cfg Config) (bool, model.GuardMetrics, error) {
	metrics, err := runExplain(ctx, conn, sql)
	if err != nil {
		return false, model.GuardMetrics{}, fmt.Errorf("guardrail: explain: %w", err)
	}
	return applyRules(metrics, cfg), metrics, nil
}

func runExplain(ctx context.Context, conn pg.Conn, sql string) (model.GuardMetrics, error) {
	row := conn.QueryRow(ctx, "EXPLAIN (FORMAT JSON) "+sql)

	var raw []byte
	if err := row.Scan(&raw); err != nil {
		return model.GuardMetrics{}, fmt.Errorf("scan explain output: %w", err)
	}

	var plans []struct {
		Plan struct {
			NodeType  string  `json:"Node Type"`
			PlanRows  int64   `json:"Plan Rows"`
			PlanWidth int64   `json:"Plan Width"`
			TotalCost float64 `json:"Total Cost"`
		} `json:"Plan"`
	}
	if err := json.Unmarshal(raw, &plans); err != nil {
		return model.GuardMetrics{}, fmt.Errorf("decode explain output: %w", err)
	}
	if len(plans) == 0 {
		return model.GuardMetrics{}, fmt.Errorf("explain returned no plan")
	}

	root := plans[0].Plan
	return model.GuardMetrics{
		PlanRows:  root.PlanRows,
		PlanWidth: root.PlanWidth,
		TotalCost: root.TotalCost,
		NodeType:  root.NodeType,
	}, nil
}

func applyRules(metrics model.GuardMetrics, cfg Config) bool {
	if metrics.PlanRows > cfg.RowThreshold {
		return false
	}
	if metrics.TotalCost > cfg.CostThreshold {
		return false
	}
	if strings.EqualFold(metrics.NodeType, "seq scan") && metrics.PlanRows > cfg.RowThreshold/10 {
		return false
	}
	return true
}
