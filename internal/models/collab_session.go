package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Collaboration session statuses.
const (
	CollabStatusPending = "pending"
	CollabStatusActive  = "active"
	CollabStatusEnded   = "ended"
)

// CollabSession is a named collaborative workspace tied to a project.
// Workspace is an opaque JSON object owned by the session and mutated
// via patches.
type CollabSession struct {
	ID          uuid.UUID       `json:"id"`
	ProjectRef  string          `json:"project_ref"`
	Type        string          `json:"type"`
	InitiatorID uuid.UUID       `json:"initiator_id"`
	Status      string          `json:"status"`
	Workspace   json.RawMessage `json:"workspace,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	EndedAt     *time.Time      `json:"ended_at,omitempty"`
}

// CollabParticipantLog tracks join/leave per participant for attendance
// history of a collaboration session.
type CollabParticipantLog struct {
	ID            uuid.UUID  `json:"id"`
	SessionID     uuid.UUID  `json:"session_id"`
	ParticipantID uuid.UUID  `json:"participant_id"`
	JoinedAt      time.Time  `json:"joined_at"`
	LeftAt        *time.Time `json:"left_at,omitempty"`
}
