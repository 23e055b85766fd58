package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	domain "github.com/bryanwahyu/medimaging-bridge/internal/domain/analysis"
)

const analysesSchema = `
CREATE TABLE IF NOT EXISTS analyses (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    message_id TEXT NOT NULL UNIQUE,
    whatsapp_number TEXT NOT NULL,
    body TEXT,
    media_url TEXT,
    media_content_type TEXT,
    metadata TEXT,
    scores TEXT,
    status TEXT NOT NULL,
    storage_uri TEXT,
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

type AnalysisRepository struct {
	db         *sqlx.DB
	schemaOnce sync.Once
	schemaErr  error
}

func NewAnalysisRepository(db *sqlx.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// ensureSchema is lazy and idempotent; every entry point goes through it.
func (r *AnalysisRepository) ensureSchema(ctx context.Context) error {
	r.schemaOnce.Do(func() {
		if _, err := r.db.ExecContext(ctx, analysesSchema); err != nil {
			r.schemaErr = fmt.Errorf("create analyses table: %w", err)
		}
	})
	return r.schemaErr
}

// row mirrors the table; metadata/scores live as serialized text blobs
// the store never interprets.
type analysisRow struct {
	ID               int64          `db:"id"`
	MessageID        string         `db:"message_id"`
	WhatsAppNumber   string         `db:"whatsapp_number"`
	Body             sql.NullString `db:"body"`
	MediaURL         sql.NullString `db:"media_url"`
	MediaContentType sql.NullString `db:"media_content_type"`
	Metadata         sql.NullString `db:"metadata"`
	Scores           sql.NullString `db:"scores"`
	Status           string         `db:"status"`
	StorageURI       sql.NullString `db:"storage_uri"`
	ErrorMessage     sql.NullString `db:"error_message"`
	CreatedAt        time.Time      `db:"created_at"`
}

// Upsert writes the record in a single statement: redelivery of the
// same message_id overwrites the mutable columns instead of inserting
// a duplicate. Returns the rowid.
func (r *AnalysisRepository) Upsert(ctx context.Context, a *domain.Analysis) (int64, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return 0, err
	}

	metadataJSON, err := json.Marshal(a.Metadata)
	if err != nil {
		return 0, fmt.Errorf("serialize metadata: %w", err)
	}
	scoresJSON, err := json.Marshal(a.Scores)
	if err != nil {
		return 0, fmt.Errorf("serialize scores: %w", err)
	}

	const q = `
INSERT INTO analyses
  (message_id, whatsapp_number, body, media_url, media_content_type,
   metadata, scores, status, storage_uri, error_message)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(message_id) DO UPDATE SET
  whatsapp_number=excluded.whatsapp_number,
  body=excluded.body,
  media_url=excluded.media_url,
  media_content_type=excluded.media_content_type,
  metadata=excluded.metadata,
  scores=excluded.scores,
  status=excluded.status,
  storage_uri=excluded.storage_uri,
  error_message=excluded.error_message
RETURNING id;`

	var id int64
	if err := r.db.QueryRowContext(ctx, q,
		a.MessageID, a.WhatsAppNumber, a.Body, a.MediaURL, a.MediaContentType,
		string(metadataJSON), string(scoresJSON), string(a.Status),
		a.StorageURI, a.ErrorMessage,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert analysis %s: %w", a.MessageID, err)
	}
	return id, nil
}

// Get by provider message id. Returns nil, nil when absent.
func (r *AnalysisRepository) Get(ctx context.Context, messageID string) (*domain.Analysis, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}

	const q = `
SELECT id, message_id, whatsapp_number, body, media_url, media_content_type,
       metadata, scores, status, storage_uri, error_message, created_at
FROM analyses WHERE message_id=? LIMIT 1;`

	var row analysisRow
	if err := r.db.GetContext(ctx, &row, q, messageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get analysis %s: %w", messageID, err)
	}
	return rowToDomain(&row)
}

// Latest analyses, newest first.
func (r *AnalysisRepository) Latest(ctx context.Context, limit int) ([]*domain.Analysis, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	const q = `
SELECT id, message_id, whatsapp_number, body, media_url, media_content_type,
       metadata, scores, status, storage_uri, error_message, created_at
FROM analyses ORDER BY created_at DESC, id DESC LIMIT ?;`

	var rows []analysisRow
	if err := r.db.SelectContext(ctx, &rows, q, limit); err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}

	out := make([]*domain.Analysis, 0, len(rows))
	for i := range rows {
		a, err := rowToDomain(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func rowToDomain(row *analysisRow) (*domain.Analysis, error) {
	a := &domain.Analysis{
		ID:               row.ID,
		MessageID:        row.MessageID,
		WhatsAppNumber:   row.WhatsAppNumber,
		Body:             row.Body.String,
		MediaURL:         row.MediaURL.String,
		MediaContentType: row.MediaContentType.String,
		Status:           domain.Status(row.Status),
		StorageURI:       row.StorageURI.String,
		ErrorMessage:     row.ErrorMessage.String,
		CreatedAt:        row.CreatedAt,
	}
	if row.Metadata.Valid && row.Metadata.String != "" {
		if err := json.Unmarshal([]byte(row.Metadata.String), &a.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", row.MessageID, err)
		}
	}
	if row.Scores.Valid && row.Scores.String != "" {
		if err := json.Unmarshal([]byte(row.Scores.String), &a.Scores); err != nil {
			return nil, fmt.Errorf("decode scores for %s: %w", row.MessageID, err)
		}
	}
	return a, nil
}
