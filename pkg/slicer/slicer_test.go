package slicer

import (
	"testing"

	"github.com/pgnlq/isaqe/pkg/model"
	"github.com/stretchr/testify/assert"
)

func TestSelectStopsAtByteBudget(t *testing.T) {
	snap := model.SchemaSnapshot{
		Tables: map[string]model.TableMeta{
			"public.a": {Schema: "public", Name: "a", Columns: map[string]model.ColumnMeta{"id": {DataType: "bigint"}}},
			"public.b": {Schema: "public", Name: "b", Columns: map[string]model.ColumnMeta{"id": {DataType: "bigint"}}},
			"public.c": {Schema: "public", Name: "c", Columns: map[string]model.ColumnMeta{"id": {DataType: "bigint"}}},
		},
	}

	slice := Select(snap, []string{"public.a", "public.b", "public.c"}, 1)
	assert.Empty(t, slice.Tables, "budget of 1 byte should admit nothing")
}

func TestSelectIncludesWithinBudget(t *testing.T) {
	snap := model.SchemaSnapshot{
		Tables: map[string]model.TableMeta{
			"public.a": {Schema: "public", Name: "a", Columns: map[string]model.ColumnMeta{"id": {DataType: "bigint"}}},
		},
	}
	slice := Select(snap, []string{"public.a"}, 10_000)
	assert.Contains(t, slice.Tables, "public.a")
}

func TestSelectFiltersForeignKeysToIncludedTables(t *testing.T) {
	snap := model.SchemaSnapshot{
		Tables: map[string]model.TableMeta{
			"public.orders":    {Schema: "public", Name: "orders"},
			"public.customers": {Schema: "public", Name: "customers"},
			"public.untouched": {Schema: "public", Name: "untouched"},
		},
		ForeignKeys: []model.ForeignKey{
			{
				Table:        "public.orders",
				ForeignTable: "public.customers",
				Definition:   "FOREIGN KEY (customer_id) REFERENCES customers(id)",
			},
			{
				Table:        "public.orders",
				ForeignTable: "public.untouched",
				Definition:   "FOREIGN KEY (other_id) REFERENCES untouched(id)",
			},
		},
	}

	slice := Select(snap, []string{"public.orders", "public.customers"}, 10_000)
	assert.Len(t, slice.ForeignKeys, 1)
	assert.Equal(t, [4]string{"public.orders", "customer_id", "public.customers", "id"}, slice.ForeignKeys[0])
}

func TestExtractFKColumnToleratesMalformedDefinition(t *testing.T) {
	assert.Equal(t, "", extractFKColumn("not a valid definition", 1))
	assert.Equal(t, "", extractFKColumn("FOREIGN KEY (only_one_group", 2))
}
