package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/staffdeck/realtime-api/internal/model"
	"github.com/staffdeck/realtime-api/internal/repository"
)

type callLogRepository struct {
	db *sqlx.DB
}

func NewCallLogRepository(db *sqlx.DB) repository.CallLogRepository {
	return &callLogRepository{db: db}
}

func (r *callLogRepository) Insert(ctx context.Context, log *model.CallLog) (bool, error) {
	// The session id key plus DO NOTHING makes the terminal-transition
	// persistence call idempotent.
	query := `
		INSERT INTO call_logs
			(session_id, caller_id, receiver_id, kind, status, started_at, ended_at, duration_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query,
		log.SessionID, log.CallerID, log.ReceiverID, log.Kind, log.Status,
		log.StartedAt, log.EndedAt, log.DurationSeconds, log.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert call log: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read result: %w", err)
	}
	return rows > 0, nil
}

func (r *callLogRepository) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*model.CallLog, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT session_id, caller_id, receiver_id, kind, status, started_at, ended_at, duration_seconds, created_at
		FROM call_logs
		WHERE caller_id = $1 OR receiver_id = $1
		ORDER BY started_at DESC
		LIMIT $2`

	var logs []*model.CallLog
	if err := r.db.SelectContext(ctx, &logs, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to list call logs: %w", err)
	}
	return logs, nil
}
