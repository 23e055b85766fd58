package sqlite

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	domain "github.com/bryanwahyu/medimaging-bridge/internal/domain/analysis"
)

const processingErrorsSchema = `
CREATE TABLE IF NOT EXISTS processing_errors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    message_id TEXT NOT NULL,
    phase TEXT NOT NULL,
    message TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

// ErrorLogRepository keeps the per-phase failure audit trail.
type ErrorLogRepository struct {
	db         *sqlx.DB
	schemaOnce sync.Once
	schemaErr  error
}

func NewErrorLogRepository(db *sqlx.DB) *ErrorLogRepository {
	return &ErrorLogRepository{db: db}
}

func (r *ErrorLogRepository) ensureSchema(ctx context.Context) error {
	r.schemaOnce.Do(func() {
		if _, err := r.db.ExecContext(ctx, processingErrorsSchema); err != nil {
			r.schemaErr = fmt.Errorf("create processing_errors table: %w", err)
		}
	})
	return r.schemaErr
}

func (r *ErrorLogRepository) Record(ctx context.Context, e *domain.ProcessingError) error {
	if err := r.ensureSchema(ctx); err != nil {
		return err
	}

	msg := e.Message
	if strings.TrimSpace(msg) == "" {
		msg = "-"
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	const q = `
INSERT INTO processing_errors (message_id, phase, message, created_at)
VALUES (?,?,?,?);`
	if _, err := r.db.ExecContext(ctx, q, e.MessageID, e.Phase, msg, created); err != nil {
		return fmt.Errorf("record processing error: %w", err)
	}
	return nil
}

// ListByMessage returns the newest entries for one provider message id.
func (r *ErrorLogRepository) ListByMessage(ctx context.Context, messageID string, limit int) ([]*domain.ProcessingError, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	const q = `
SELECT id, message_id, phase, message, created_at
FROM processing_errors
WHERE message_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?;`

	rows, err := r.db.QueryContext(ctx, q, messageID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ProcessingError
	for rows.Next() {
		var e domain.ProcessingError
		if err := rows.Scan(&e.ID, &e.MessageID, &e.Phase, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
