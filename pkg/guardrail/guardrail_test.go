package guardrail

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pgnlq/isaqe/pkg/model"
)

func TestApplyRulesRejectsOnRowThreshold(t *testing.T) {
	cfg := Config{RowThreshold: 1000, CostThreshold: 1_000_000}
	allowed := applyRules(model.GuardMetrics{PlanRows: 5000, NodeType: "Index Scan"}, cfg)
	assert.False(t, allowed)
}

func TestApplyRulesRejectsOnCostThreshold(t *testing.T) {
	cfg := Config{RowThreshold: 1_000_000, CostThreshold: 100}
	allowed := applyRules(model.GuardMetrics{TotalCost: 500, NodeType: "Index Scan"}, cfg)
	assert.False(t, allowed)
}

func TestApplyRulesRejectsSeqScanOverTenthOfThreshold(t *testing.T) {
	cfg := Config{RowThreshold: 1000, CostThreshold: 1_000_000}
	allowed := applyRules(model.GuardMetrics{PlanRows: 150, NodeType: "Seq Scan"}, cfg)
	assert.False(t, allowed)
}

func TestApplyRulesAllowsWithinBounds(t *testing.T) {
	cfg := Config{RowThreshold: 1000, CostThreshold: 1_000_000}
	allowed := applyRules(model.GuardMetrics{PlanRows: 50, TotalCost: 10, NodeType: "Index Scan"}, cfg)
	assert.True(t, allowed)
}
