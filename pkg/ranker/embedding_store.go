package ranker

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

const embeddingTable = "isaqe_schema_embeddings"

// EmbeddingRecord is one precomputed per-table vector.
type EmbeddingRecord struct {
	Table  string
	Vector []float32
}

// EmbeddingStore persists precomputed table embeddings in Postgres via the
// pgvector extension. Population is out of scope here: an offline job writes
// rows, and this store only reads them back for ranking.
type EmbeddingStore struct {
	conn *pgx.Conn
}

// NewEmbeddingStore wraps conn for embedding lookups.
func NewEmbeddingStore(conn *pgx.Conn) *EmbeddingStore {
	return &EmbeddingStore{conn: conn}
}

// EnsureSchema creates the extension, registers the vector type, and creates
// the backing table if absent.
func (s *EmbeddingStore) EnsureSchema(ctx context.Context, dimensions int) error {
	if _, err := s.conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("embedding store: create extension: %w", err)
	}
	if err := pgxvector.RegisterTypes(ctx, s.conn); err != nil {
		return fmt.Errorf("embedding store: register types: %w", err)
	}
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		table_key TEXT PRIMARY KEY,
		embedding VECTOR(%d)
	)`, embeddingTable, dimensions)
	if _, err := s.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("embedding store: create table: %w", err)
	}
	return nil
}

// All loads every stored embedding.
func (s *EmbeddingStore) All(ctx context.Context) ([]EmbeddingRecord, error) {
	rows, err := s.conn.Query(ctx, fmt.Sprintf("SELECT table_key, embedding FROM %s", embeddingTable))
	if err != nil {
		return nil, fmt.Errorf("embedding store: query: %w", err)
	}
	defer rows.Close()

	var records []EmbeddingRecord
	for rows.Next() {
		var table string
		var vec pgvector.Vector
		if err := rows.Scan(&table, &vec); err != nil {
			return nil, fmt.Errorf("embedding store: scan: %w", err)
		}
		records = append(records, EmbeddingRecord{Table: table, Vector: vec.Slice()})
	}
	return records, rows.Err()
}

// Upsert stores or replaces the embedding for a table.
func (s *EmbeddingStore) Upsert(ctx context.Context, table string, vector []float32) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (table_key, embedding) VALUES ($1, $2)
		ON CONFLICT (table_key) DO UPDATE SET embedding = EXCLUDED.embedding`, embeddingTable)
	_, err := s.conn.Exec(ctx, query, table, pgvector.NewVector(vector))
	if err != nil {
		return fmt.Errorf("embedding store: upsert %s: %w", table, err)
	}
	return nil
}
