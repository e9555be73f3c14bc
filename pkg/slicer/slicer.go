// Package slicer builds a byte-budgeted slice of a schema snapshot from a
// ranked list of table keys, for handing to the reasoner.
package slicer

import (
	"encoding/json"
	"strings"

	"github.com/pgnlq/isaqe/pkg/model"
)

// Select walks rankedTables in order, including each table's metadata in the
// slice as long as doing so keeps the running serialized size at or under
// maxBytes. The first table that would push the total over the budget is
// excluded and no further tables are considered.
func Select(snapshot model.SchemaSnapshot, rankedTables []string, maxBytes int) model.SchemaSlice {
	slice := model.SchemaSlice{Tables: make(map[string]model.TableMeta)}

	totalBytes := 0
	for _, tableID := range rankedTables {
		meta, ok := snapshot.Tables[tableID]
		if !ok {
			continue
		}
		serialized, err := json.Marshal(meta)
		if err != nil {
			continue
		}
		totalBytes += len(serialized)
		if totalBytes > maxBytes {
			break
		}
		slice.Tables[tableID] = meta
	}

	for _, fk := range snapshot.ForeignKeys {
		_, leftOK := slice.Tables[fk.Table]
		_, rightOK := slice.Tables[fk.ForeignTable]
		if !leftOK || !rightOK {
			continue
		}
		leftCol := extractFKColumn(fk.Definition, 1)
		rightCol := extractFKColumn(fk.Definition, 2)
		slice.ForeignKeys = append(slice.ForeignKeys, [4]string{fk.Table, leftCol, fk.ForeignTable, rightCol})
	}

	return slice
}

// extractFKColumn tolerantly pulls the column name out of a
// pg_get_constraintdef-style definition such as
// "FOREIGN KEY (customer_id) REFERENCES customers(id)", where index 1 is the
// local column's parenthesized group and index 2 is the referenced one.
// Malformed definitions yield an empty string rather than an error.
func extractFKColumn(definition string, index int) string {
	parts := strings.Split(definition, "(")
	if index >= len(parts) {
		return ""
	}
	closeParen := strings.Index(parts[index], ")")
	if closeParen < 0 {
		return ""
	}
	return strings.TrimSpace(parts[index][:closeParen])
}
