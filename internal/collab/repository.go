package collab

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meshmarket/backend/internal/models"
)

// PgRepository handles collaboration session persistence in Postgres.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a collaboration sessions repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Create inserts a new collaboration session.
func (r *PgRepository) Create(ctx context.Context, sess *models.CollabSession) error {
	const q = `INSERT INTO collab_sessions (id, project_ref, type, initiator_id, status, workspace)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, sess.ProjectRef, sess.Type, sess.InitiatorID, sess.Status, sess.Workspace).
		Scan(&sess.ID, &sess.CreatedAt)
}

// SetStatus updates a session's status and optional end timestamp.
func (r *PgRepository) SetStatus(ctx context.Context, id uuid.UUID, status string, endedAt *time.Time) error {
	const q = `UPDATE collab_sessions SET status = $1, ended_at = $2 WHERE id = $3`
	_, err := r.pool.Exec(ctx, q, status, endedAt, id)
	return err
}

// SaveWorkspace stores the full workspace payload after a patch.
func (r *PgRepository) SaveWorkspace(ctx context.Context, id uuid.UUID, workspace json.RawMessage) error {
	const q = `UPDATE collab_sessions SET workspace = $1 WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, workspace, id)
	return err
}

// LogJoin records a participant joining a session.
func (r *PgRepository) LogJoin(ctx context.Context, sessionID, participantID uuid.UUID) error {
	const q = `INSERT INTO collab_participant_logs (id, session_id, participant_id)
		VALUES (gen_random_uuid(), $1, $2)`
	_, err := r.pool.Exec(ctx, q, sessionID, participantID)
	return err
}

// LogLeave closes the participant's open log entry.
func (r *PgRepository) LogLeave(ctx context.Context, sessionID, participantID uuid.UUID) error {
	const q = `UPDATE collab_participant_logs SET left_at = NOW()
		WHERE session_id = $1 AND participant_id = $2 AND left_at IS NULL`
	_, err := r.pool.Exec(ctx, q, sessionID, participantID)
	return err
}

// ListParticipantLogs returns the attendance history for a session.
func (r *PgRepository) ListParticipantLogs(ctx context.Context, sessionID uuid.UUID) ([]models.CollabParticipantLog, error) {
	const q = `SELECT id, session_id, participant_id, joined_at, left_at
		FROM collab_participant_logs WHERE session_id = $1 ORDER BY joined_at`
	rows, err := r.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.CollabParticipantLog
	for rows.Next() {
		var l models.CollabParticipantLog
		if err := rows.Scan(&l.ID, &l.SessionID, &l.ParticipantID, &l.JoinedAt, &l.LeftAt); err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	return list, rows.Err()
}
