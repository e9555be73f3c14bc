// Package schema maintains a cached, pull-refreshed snapshot of database
// metadata (tables, columns, foreign keys, indexes, and row/size estimates)
// used to ground query answering.
package schema

import (
	"context"
	"fmt"
	"sync"
	"time"

	pg "github.com/pgnlq/isaqe/pkg/pgx"
	"github.com/pgnlq/isaqe/pkg/model"
)

const (
	tablesSQL = `
SELECT n.nspname, c.relname, d.description,
       GREATEST(c.reltuples, 0)::bigint AS row_estimate,
       pg_total_relation_size(c.oid) AS size_bytes
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
LEFT JOIN pg_description d ON d.objoid = c.oid AND d.objsubid = 0
WHERE c.relkind = 'r'
  AND n.nspname NOT IN ('pg_catalog', 'information_schema')
ORDER BY n.nspname, c.relname`

	columnsSQL = `
SELECT n.nspname, c.relname, a.attname,
       format_type(a.atttypid, a.atttypmod) AS data_type,
       pg_get_expr(ad.adbin, ad.adrelid) AS default_value,
       a.attnotnull,
       col_description(c.oid, a.attnum) AS description
FROM pg_attribute a
JOIN pg_class c ON c.oid = a.attrelid
JOIN pg_namespace n ON n.oid = c.relnamespace
LEFT JOIN pg_attrdef ad ON ad.adrelid = c.oid AND ad.adnum = a.attnum
WHERE a.attnum > 0
  AND NOT a.attisdropped
  AND c.relkind = 'r'
  AND n.nspname NOT IN ('pg_catalog', 'information_schema')
ORDER BY n.nspname, c.relname, a.attnum`

	fkSQL = `
SELECT conrelid::regclass::text AS table_name,
       confrelid::regclass::text AS foreign_table_name,
       pg_get_constraintdef(oid) AS definition,
       conname
FROM pg_constraint
WHERE contype = 'f'`

	indexSQL = `
SELECT c.relname AS table_name, i.relname AS index_name,
       pg_get_indexdef(ix.indexrelid) AS definition, ix.indisunique
FROM pg_index ix
JOIN pg_class c ON c.oid = ix.indrelid
JOIN pg_class i ON i.oid = ix.indexrelid
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname NOT IN ('pg_catalog', 'information_schema')
ORDER BY c.relname, i.relname`
)

// Config controls staleness and refresh behavior.
type Config struct {
	RefreshInterval time.Duration
}

// Extractor caches a SchemaSnapshot, refreshing it on demand when stale or
// when a caller forces a refresh.
type Extractor struct {
	cfg  Config
	pool pg.Conn

	mu       sync.RWMutex
	snapshot model.SchemaSnapshot
	loadedAt time.Time
}

// NewExtractor builds an Extractor that queries through conn.
func NewExtractor(conn pg.Conn, cfg Config) *Extractor {
	return &Extractor{cfg: cfg, pool: conn}
}

// Snapshot returns the current cached snapshot, refreshing it first if
// forced or stale. Refresh is single-flight: concurrent callers that land on
// a stale cache contend for one lock and re-check staleness once inside it.
func (e *Extractor) Snapshot(ctx context.Context, refresh bool) (model.SchemaSnapshot, error) {
	if !refresh && !e.isStale() {
		e.mu.RLock()
		snap := e.snapshot
		e.mu.RUnlock()
		return snap, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !refresh && !e.isStaleLocked() {
		return e.snapshot, nil
	}

	snap, err := e.collect(ctx)
	if err != nil {
		return model.SchemaSnapshot{}, fmt.Errorf("schema: collect: %w", err)
	}

	e.snapshot = snap
	e.loadedAt = time.Now()
	return e.snapshot, nil
}

func (e *Extractor) isStale() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isStaleLocked()
}

func (e *Extractor) isStaleLocked() bool {
	if e.loadedAt.IsZero() || len(e.snapshot.Tables) == 0 {
		return true
	}
	return time.Since(e.loadedAt) > e.cfg.RefreshInterval
}

func (e *Extractor) collect(ctx context.Context) (model.SchemaSnapshot, error) {
	snap := model.SchemaSnapshot{
		GeneratedAt: time.Now(),
		Tables:      make(map[string]model.TableMeta),
		Indexes:     make(map[string][]model.Index),
		TableStats:  make(map[string]model.TableStats),
	}

	rows, err := e.pool.Query(ctx, tablesSQL)
	if err != nil {
		return snap, fmt.Errorf("query tables: %w", err)
	}
	for rows.Next() {
		var schemaName, tableName string
		var description *string
		var rowEstimate, sizeBytes int64
		if err := rows.Scan(&schemaName, &tableName, &description, &rowEstimate, &sizeBytes); err != nil {
			rows.Close()
			return snap, fmt.Errorf("scan table: %w", err)
		}
		key := schemaName + "." + tableName
		tm := snap.Tables[key]
		tm.Schema = schemaName
		tm.Name = tableName
		if description != nil {
			tm.Description = *description
		}
		tm.RowEstimate = rowEstimate
		tm.SizeBytes = sizeBytes
		if tm.Columns == nil {
			tm.Columns = make(map[string]model.ColumnMeta)
		}
		snap.Tables[key] = tm
		snap.TableStats[key] = model.TableStats{RowEstimate: rowEstimate, SizeBytes: sizeBytes}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return snap, fmt.Errorf("iterate tables: %w", err)
	}
	rows.Close()

	colRows, err := e.pool.Query(ctx, columnsSQL)
	if err != nil {
		return snap, fmt.Errorf("query columns: %w", err)
	}
	for colRows.Next() {
		var schemaName, tableName, columnName, dataType string
		var defaultValue, description *string
		var isNotNull bool
		if err := colRows.Scan(&schemaName, &tableName, &columnName, &dataType, &defaultValue, &isNotNull, &description); err != nil {
			colRows.Close()
			return snap, fmt.Errorf("scan column: %w", err)
		}
		key := schemaName + "." + tableName
		tm, ok := snap.Tables[key]
		if !ok {
			tm = model.TableMeta{Schema: schemaName, Name: tableName, Columns: make(map[string]model.ColumnMeta)}
		}
		if tm.Columns == nil {
			tm.Columns = make(map[string]model.ColumnMeta)
		}
		col := model.ColumnMeta{DataType: dataType, IsNotNull: isNotNull}
		if defaultValue != nil {
			col.DefaultValue = *defaultValue
		}
		if description != nil {
			col.Description = *description
		}
		tm.Columns[columnName] = col
		snap.Tables[key] = tm
	}
	if err := colRows.Err(); err != nil {
		colRows.Close()
		return snap, fmt.Errorf("iterate columns: %w", err)
	}
	colRows.Close()

	fkRows, err := e.pool.Query(ctx, fkSQL)
	if err != nil {
		return snap, fmt.Errorf("query foreign keys: %w", err)
	}
	for fkRows.Next() {
		var fk model.ForeignKey
		if err := fkRows.Scan(&fk.Table, &fk.ForeignTable, &fk.Definition, &fk.Constraint); err != nil {
			fkRows.Close()
			return snap, fmt.Errorf("scan foreign key: %w", err)
		}
		snap.ForeignKeys = append(snap.ForeignKeys, fk)
	}
	if err := fkRows.Err(); err != nil {
		fkRows.Close()
		return snap, fmt.Errorf("iterate foreign keys: %w", err)
	}
	fkRows.Close()

	idxRows, err := e.pool.Query(ctx, indexSQL)
	if err != nil {
		return snap, fmt.Errorf("query indexes: %w", err)
	}
	for idxRows.Next() {
		var tableName string
		var idx model.Index
		if err := idxRows.Scan(&tableName, &idx.Index, &idx.Definition, &idx.IsUnique); err != nil {
			idxRows.Close()
			return snap, fmt.Errorf("scan index: %w", err)
		}
		snap.Indexes[tableName] = append(snap.Indexes[tableName], idx)
	}
	if err := idxRows.Err(); err != nil {
		idxRows.Close()
		return snap, fmt.Errorf("iterate indexes: %w", err)
	}
	idxRows.Close()

	return snap, nil
}
