package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"callsync-core/internal/domain"
)

// CallHistoryRepository persists terminal call sessions to the call log
type CallHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewCallHistoryRepository creates a new call history repository
func NewCallHistoryRepository(pool *pgxpool.Pool) *CallHistoryRepository {
	return &CallHistoryRepository{pool: pool}
}

// Record appends one terminal session to the call log
func (r *CallHistoryRepository) Record(ctx context.Context, session *domain.CallSession) error {
	query := `
		INSERT INTO call_history (
			call_id, caller_id, caller_display_name, caller_role,
			call_kind, room_reference, final_state, end_reason,
			created_at, answered_at, ended_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (call_id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		session.CallID,
		session.CallerID,
		session.CallerDisplayName,
		session.CallerRole,
		session.CallKind,
		session.RoomReference,
		session.State,
		session.EndReason,
		session.CreatedAt,
		session.AnsweredAt,
		session.EndedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to record call history: %w", err)
	}

	return nil
}

// GetByID retrieves one call log entry
func (r *CallHistoryRepository) GetByID(ctx context.Context, callID uuid.UUID) (*domain.CallSession, error) {
	query := `
		SELECT call_id, caller_id, caller_display_name, caller_role,
		       call_kind, room_reference, final_state, end_reason,
		       created_at, answered_at, ended_at
		FROM call_history
		WHERE call_id = $1
	`

	session := &domain.CallSession{}
	err := r.pool.QueryRow(ctx, query, callID).Scan(
		&session.CallID,
		&session.CallerID,
		&session.CallerDisplayName,
		&session.CallerRole,
		&session.CallKind,
		&session.RoomReference,
		&session.State,
		&session.EndReason,
		&session.CreatedAt,
		&session.AnsweredAt,
		&session.EndedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("call not found: %w", err)
	}

	return session, nil
}

// Recent retrieves the most recent call log entries
func (r *CallHistoryRepository) Recent(ctx context.Context, limit int) ([]*domain.CallSession, error) {
	if limit == 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := `
		SELECT call_id, caller_id, caller_display_name, caller_role,
		       call_kind, room_reference, final_state, end_reason,
		       created_at, answered_at, ended_at
		FROM call_history
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query call history: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.CallSession
	for rows.Next() {
		session := &domain.CallSession{}
		if err := rows.Scan(
			&session.CallID,
			&session.CallerID,
			&session.CallerDisplayName,
			&session.CallerRole,
			&session.CallKind,
			&session.RoomReference,
			&session.State,
			&session.EndReason,
			&session.CreatedAt,
			&session.AnsweredAt,
			&session.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan call history row: %w", err)
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}
