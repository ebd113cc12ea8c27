package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"resumeingest/internal/record"
)

// RecordStore keeps one row per user in ingestion_records.
type RecordStore struct {
	db *sql.DB
}

func NewRecordStore(db *sql.DB) *RecordStore {
	return &RecordStore{db: db}
}

func (s *RecordStore) DeleteAll(ctx context.Context, userID string) error {
	query := `DELETE FROM ingestion_records WHERE user_id = $1`
	_, err := s.db.ExecContext(ctx, query, userID)
	return err
}

func (s *RecordStore) Insert(ctx context.Context, rec record.Record) error {
	embeddings, err := json.Marshal(rec.Embeddings)
	if err != nil {
		return fmt.Errorf("encode embeddings: %w", err)
	}
	query := `INSERT INTO ingestion_records (user_id, text_chunks, embeddings, chunk_count, ingested_at) VALUES ($1, $2, $3, $4, $5)`
	_, err = s.db.ExecContext(ctx, query, rec.UserID, pq.Array(rec.TextChunks), string(embeddings), len(rec.TextChunks), rec.IngestedAt)
	return err
}

// Get returns the stored record for a user, or sql.ErrNoRows.
func (s *RecordStore) Get(ctx context.Context, userID string) (*record.Record, error) {
	rec := &record.Record{}
	var embeddings []byte
	query := `SELECT user_id, text_chunks, embeddings, ingested_at FROM ingestion_records WHERE user_id = $1`
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&rec.UserID, pq.Array(&rec.TextChunks), &embeddings, &rec.IngestedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(embeddings, &rec.Embeddings); err != nil {
		return nil, fmt.Errorf("decode embeddings: %w", err)
	}
	return rec, nil
}
